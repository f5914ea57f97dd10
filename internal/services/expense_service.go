package services

import (
	"context"
	"fmt"
	"time"

	"gastos/internal/core"
	applog "gastos/internal/log"
	"gastos/internal/ports"
)

// EventPublisher receives expense lifecycle notifications. Implementations
// must not block the request for long; failures are logged by the service.
type EventPublisher interface {
	PublishExpenseCreated(ctx context.Context, e core.Expense) error
	PublishExpenseDeleted(ctx context.Context, e core.Expense) error
}

// ExpenseService orchestrates expense operations over a session-scoped store
type ExpenseService struct {
	expenses   ports.ExpenseRepository
	categories ports.CategoryRepository
	publisher  EventPublisher
	now        func() time.Time
}

type ExpenseOption func(*ExpenseService)

// WithPublisher enables expense events. A nil publisher disables them.
func WithPublisher(p EventPublisher) ExpenseOption {
	return func(s *ExpenseService) { s.publisher = p }
}

// WithClock overrides time.Now for the current-month summary.
func WithClock(now func() time.Time) ExpenseOption {
	return func(s *ExpenseService) { s.now = now }
}

func NewExpenseService(expenses ports.ExpenseRepository, categories ports.CategoryRepository, opts ...ExpenseOption) *ExpenseService {
	s := &ExpenseService{
		expenses:   expenses,
		categories: categories,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateExpense checks the category exists before writing anything
func (s *ExpenseService) CreateExpense(ctx context.Context, in core.ExpenseInput) (*core.Expense, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	cat, err := s.categories.FindByID(ctx, in.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("lookup category: %w", err)
	}
	if cat == nil {
		return nil, core.CategoryNotFound(in.CategoryID)
	}

	saved, err := s.expenses.Save(ctx, &core.Expense{
		Amount:      in.Amount,
		Description: in.Description,
		CategoryID:  in.CategoryID,
		Date:        in.Date,
		Notes:       in.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("save expense: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Expense created",
		applog.NewFields().
			WithComponent(applog.ComponentExpense).
			WithOperation(applog.OpCreate).
			WithExpense(saved.ID, saved.Amount.String(), saved.CategoryID, saved.Date.String()).
			ToSlice()...)

	if s.publisher != nil {
		if err := s.publisher.PublishExpenseCreated(ctx, *saved); err != nil {
			applog.FromContext(ctx).ErrorContext(ctx, "Failed to publish expense created event",
				"id", saved.ID, "error", err)
			// Don't fail the request - the expense is stored
		}
	}

	return saved, nil
}

func (s *ExpenseService) GetExpenseByID(ctx context.Context, id int64) (*core.Expense, error) {
	e, err := s.expenses.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	if e == nil {
		return nil, core.ExpenseNotFound(id)
	}
	return e, nil
}

func (s *ExpenseService) GetAllExpenses(ctx context.Context) ([]core.Expense, error) {
	es, err := s.expenses.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return es, nil
}

// GetRecentExpenses falls back to core.DefaultRecentLimit when limit is not positive.
func (s *ExpenseService) GetRecentExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	if limit <= 0 {
		limit = core.DefaultRecentLimit
	}
	es, err := s.expenses.FindRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent expenses: %w", err)
	}
	return es, nil
}

func (s *ExpenseService) GetExpensesByMonth(ctx context.Context, year, month int) ([]core.Expense, error) {
	es, err := s.expenses.FindByMonth(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("list expenses by month: %w", err)
	}
	return es, nil
}

func (s *ExpenseService) GetExpensesByCategory(ctx context.Context, categoryID int64) ([]core.Expense, error) {
	es, err := s.expenses.FindByCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list expenses by category: %w", err)
	}
	return es, nil
}

// DeleteExpense removes an existing expense; unknown ids yield ExpenseNotFound.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id int64) (bool, error) {
	e, err := s.GetExpenseByID(ctx, id)
	if err != nil {
		return false, err
	}

	if err := s.expenses.Delete(ctx, e); err != nil {
		return false, fmt.Errorf("delete expense: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Expense deleted",
		applog.FieldComponent, applog.ComponentExpense,
		applog.FieldOperation, applog.OpDelete,
		applog.FieldExpenseID, id)

	if s.publisher != nil {
		if err := s.publisher.PublishExpenseDeleted(ctx, *e); err != nil {
			applog.FromContext(ctx).ErrorContext(ctx, "Failed to publish expense deleted event",
				"id", id, "error", err)
		}
	}

	return true, nil
}

// GetMonthlySummary buckets each expense under its category's current name.
// Renaming a category therefore changes past summaries too.
func (s *ExpenseService) GetMonthlySummary(ctx context.Context, year, month int) (*core.MonthlySummary, error) {
	expenses, err := s.expenses.FindByMonth(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("list expenses by month: %w", err)
	}

	summary := core.NewMonthlySummary(year, month)
	for _, e := range expenses {
		cat, err := s.categories.FindByID(ctx, e.CategoryID)
		if err != nil {
			return nil, fmt.Errorf("lookup category %d: %w", e.CategoryID, err)
		}
		if cat == nil {
			return nil, core.CategoryNotFound(e.CategoryID)
		}
		summary.Add(cat.Name, e.Amount)
	}
	return &summary, nil
}

func (s *ExpenseService) GetCurrentMonthSummary(ctx context.Context) (*core.MonthlySummary, error) {
	now := s.now()
	return s.GetMonthlySummary(ctx, now.Year(), int(now.Month()))
}
