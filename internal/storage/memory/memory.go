package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gastos/internal/core"
	"gastos/internal/ports"
)

// ErrUnknownCategory mirrors the foreign key the SQL schema enforces.
var ErrUnknownCategory = errors.New("expense references unknown category")

// Store keeps categories and expenses in process memory. It is safe for
// concurrent use and is meant for tests and throwaway runs.
type Store struct {
	mu         sync.Mutex
	now        func() time.Time
	nextCat    int64
	nextExp    int64
	categories map[int64]core.Category
	expenses   map[int64]core.Expense
}

func New() *Store {
	return &Store{
		now:        time.Now,
		categories: map[int64]core.Category{},
		expenses:   map[int64]core.Expense{},
	}
}

// Session returns a view over the shared maps; closing it is a no-op.
func (s *Store) Session(_ context.Context) (ports.Session, error) {
	return session{s}, nil
}

func (s *Store) Ping(_ context.Context) error { return nil }
func (s *Store) Close() error                 { return nil }

type session struct{ s *Store }

func (v session) Categories() ports.CategoryRepository { return categoryRepo{v.s} }
func (v session) Expenses() ports.ExpenseRepository    { return expenseRepo{v.s} }
func (v session) Close() error                         { return nil }

type categoryRepo struct{ s *Store }

func (r categoryRepo) FindByID(_ context.Context, id int64) (*core.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.categories[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r categoryRepo) FindAll(_ context.Context) ([]core.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedCategories(func(core.Category) bool { return true }, byID), nil
}

func (r categoryRepo) FindActive(_ context.Context) ([]core.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedCategories(func(c core.Category) bool { return c.Active }, byName), nil
}

func (r categoryRepo) FindByName(_ context.Context, name string) (*core.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.categories {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, nil
}

func (r categoryRepo) Save(_ context.Context, c *core.Category) (*core.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, existing := range r.s.categories {
		if existing.Name == c.Name && id != c.ID {
			return nil, ports.ErrDuplicateKey
		}
	}

	saved := *c
	if saved.ID == 0 {
		r.s.nextCat++
		saved.ID = r.s.nextCat
		if saved.CreatedAt.IsZero() {
			saved.CreatedAt = r.s.now().UTC()
		}
	} else {
		prev, ok := r.s.categories[saved.ID]
		if !ok {
			return nil, fmt.Errorf("save category: no category with id %d", saved.ID)
		}
		now := r.s.now().UTC()
		saved.CreatedAt = prev.CreatedAt
		saved.UpdatedAt = &now
	}
	r.s.categories[saved.ID] = saved
	return &saved, nil
}

func (r categoryRepo) DeleteByID(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[id]; !ok {
		return false, nil
	}
	delete(r.s.categories, id)
	return true, nil
}

func (r categoryRepo) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.categories)), nil
}

type expenseRepo struct{ s *Store }

func (r expenseRepo) FindByID(_ context.Context, id int64) (*core.Expense, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.expenses[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r expenseRepo) FindAll(_ context.Context) ([]core.Expense, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedExpenses(func(core.Expense) bool { return true }, byDate), nil
}

func (r expenseRepo) FindByDateRange(_ context.Context, start, end core.Date) ([]core.Expense, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedExpenses(func(e core.Expense) bool {
		return !e.Date.Before(start.Time) && !e.Date.After(end.Time)
	}, byDate), nil
}

func (r expenseRepo) FindByMonth(_ context.Context, year, month int) ([]core.Expense, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedExpenses(inMonth(year, month), byDate), nil
}

func (r expenseRepo) FindByCategory(_ context.Context, categoryID int64) ([]core.Expense, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedExpenses(func(e core.Expense) bool { return e.CategoryID == categoryID }, byDate), nil
}

func (r expenseRepo) FindRecent(_ context.Context, limit int) ([]core.Expense, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.s.sortedExpenses(func(core.Expense) bool { return true }, byDateThenCreated)
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r expenseRepo) MonthlyTotal(_ context.Context, year, month int) (core.Money, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total core.Money
	match := inMonth(year, month)
	for _, e := range r.s.expenses {
		if match(e) {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func (r expenseRepo) Save(_ context.Context, e *core.Expense) (*core.Expense, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[e.CategoryID]; !ok {
		return nil, fmt.Errorf("save expense: %w", ErrUnknownCategory)
	}

	saved := *e
	if saved.ID == 0 {
		r.s.nextExp++
		saved.ID = r.s.nextExp
		if saved.CreatedAt.IsZero() {
			saved.CreatedAt = r.s.now().UTC()
		}
	} else {
		prev, ok := r.s.expenses[saved.ID]
		if !ok {
			return nil, fmt.Errorf("save expense: no expense with id %d", saved.ID)
		}
		now := r.s.now().UTC()
		saved.CreatedAt = prev.CreatedAt
		saved.UpdatedAt = &now
	}
	r.s.expenses[saved.ID] = saved
	return &saved, nil
}

func (r expenseRepo) Delete(_ context.Context, e *core.Expense) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.expenses, e.ID)
	return nil
}

func inMonth(year, month int) func(core.Expense) bool {
	start, next := core.MonthRange(year, month)
	return func(e core.Expense) bool {
		return !e.Date.Before(start.Time) && e.Date.Before(next.Time)
	}
}

func byID(a, b core.Category) bool { return a.ID < b.ID }

func byName(a, b core.Category) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

func byDate(a, b core.Expense) bool {
	if !a.Date.Equal(b.Date.Time) {
		return a.Date.After(b.Date.Time)
	}
	return a.ID > b.ID
}

func byDateThenCreated(a, b core.Expense) bool {
	if !a.Date.Equal(b.Date.Time) {
		return a.Date.After(b.Date.Time)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// callers hold s.mu
func (s *Store) sortedCategories(keep func(core.Category) bool, less func(a, b core.Category) bool) []core.Category {
	out := make([]core.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// callers hold s.mu
func (s *Store) sortedExpenses(keep func(core.Expense) bool, less func(a, b core.Expense) bool) []core.Expense {
	out := make([]core.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
