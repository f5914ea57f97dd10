package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gastos/internal/core"
	"gastos/internal/ports"
)

const expenseColumns = `id, amount_cents, description, category_id, date, notes, created_at, updated_at`

type ExpenseRepository struct {
	db      DBTX
	dialect Dialect
}

func NewExpenseRepository(db DBTX, dialect Dialect) *ExpenseRepository {
	return &ExpenseRepository{db: db, dialect: dialect}
}

var _ ports.ExpenseRepository = (*ExpenseRepository)(nil)

func scanExpense(row interface{ Scan(...any) error }) (core.Expense, error) {
	var (
		e                       core.Expense
		cents                   int64
		notes                   sql.NullString
		date, created, modified timeValue
	)
	if err := row.Scan(&e.ID, &cents, &e.Description, &e.CategoryID, &date, &notes, &created, &modified); err != nil {
		return core.Expense{}, err
	}
	e.Amount = core.MoneyFromCents(cents)
	e.Date = date.date()
	e.Notes = nullString(notes)
	e.CreatedAt = created.Time
	e.UpdatedAt = modified.ptr()
	return e, nil
}

func (r *ExpenseRepository) queryMany(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ExpenseRepository) FindByID(ctx context.Context, id int64) (*core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx, r.dialect.rebind(
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get expense by id: %w", err)
	}
	return &e, nil
}

func (r *ExpenseRepository) FindAll(ctx context.Context) ([]core.Expense, error) {
	es, err := r.queryMany(ctx, `SELECT `+expenseColumns+` FROM expenses ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return es, nil
}

// FindByDateRange returns expenses dated between start and end, both inclusive.
func (r *ExpenseRepository) FindByDateRange(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	es, err := r.queryMany(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE date >= ? AND date <= ? ORDER BY date DESC, id DESC`,
		dateArg(start), dateArg(end))
	if err != nil {
		return nil, fmt.Errorf("list expenses by date range: %w", err)
	}
	return es, nil
}

func (r *ExpenseRepository) FindByMonth(ctx context.Context, year, month int) ([]core.Expense, error) {
	start, next := core.MonthRange(year, month)
	es, err := r.queryMany(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE date >= ? AND date < ? ORDER BY date DESC, id DESC`,
		dateArg(start), dateArg(next))
	if err != nil {
		return nil, fmt.Errorf("list expenses by month: %w", err)
	}
	return es, nil
}

func (r *ExpenseRepository) FindByCategory(ctx context.Context, categoryID int64) ([]core.Expense, error) {
	es, err := r.queryMany(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE category_id = ? ORDER BY date DESC, id DESC`,
		categoryID)
	if err != nil {
		return nil, fmt.Errorf("list expenses by category: %w", err)
	}
	return es, nil
}

func (r *ExpenseRepository) FindRecent(ctx context.Context, limit int) ([]core.Expense, error) {
	es, err := r.queryMany(ctx,
		`SELECT `+expenseColumns+` FROM expenses ORDER BY date DESC, created_at DESC, id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("list recent expenses: %w", err)
	}
	return es, nil
}

func (r *ExpenseRepository) MonthlyTotal(ctx context.Context, year, month int) (core.Money, error) {
	start, next := core.MonthRange(year, month)
	var cents int64
	err := r.db.QueryRowContext(ctx, r.dialect.rebind(
		`SELECT CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT) FROM expenses WHERE date >= ? AND date < ?`),
		dateArg(start), dateArg(next)).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("get monthly total: %w", err)
	}
	return core.MoneyFromCents(cents), nil
}

// Save inserts e when it has no id yet, otherwise updates the existing row.
func (r *ExpenseRepository) Save(ctx context.Context, e *core.Expense) (*core.Expense, error) {
	var (
		saved core.Expense
		err   error
	)
	if e.ID == 0 {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		saved, err = scanExpense(r.db.QueryRowContext(ctx, r.dialect.rebind(
			`INSERT INTO expenses (amount_cents, description, category_id, date, notes, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 RETURNING `+expenseColumns),
			e.Amount.Cents(), e.Description, e.CategoryID, dateArg(e.Date), stringArg(e.Notes), createdAt.UTC()))
	} else {
		now := time.Now()
		saved, err = scanExpense(r.db.QueryRowContext(ctx, r.dialect.rebind(
			`UPDATE expenses SET amount_cents = ?, description = ?, category_id = ?, date = ?, notes = ?, updated_at = ?
			 WHERE id = ?
			 RETURNING `+expenseColumns),
			e.Amount.Cents(), e.Description, e.CategoryID, dateArg(e.Date), stringArg(e.Notes), timeArg(&now), e.ID))
	}
	if err != nil {
		if r.dialect.isUniqueViolation(err) {
			return nil, ports.ErrDuplicateKey
		}
		return nil, fmt.Errorf("save expense: %w", err)
	}
	return &saved, nil
}

func (r *ExpenseRepository) Delete(ctx context.Context, e *core.Expense) error {
	if _, err := r.db.ExecContext(ctx, r.dialect.rebind(`DELETE FROM expenses WHERE id = ?`), e.ID); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}
