// Package ports declares the storage interfaces the services depend on.
// Each backend (SQL, memory) implements them.
package ports

import (
	"context"
	"errors"

	"gastos/internal/core"
)

type (
	// CategoryRepository translates category queries into store operations.
	// Lookups return (nil, nil) when no row matches.
	CategoryRepository interface {
		FindByID(ctx context.Context, id int64) (*core.Category, error)
		FindAll(ctx context.Context) ([]core.Category, error)
		// FindActive returns active categories ordered by name.
		FindActive(ctx context.Context) ([]core.Category, error)
		FindByName(ctx context.Context, name string) (*core.Category, error)
		// Save inserts when c.ID is zero, otherwise updates.
		Save(ctx context.Context, c *core.Category) (*core.Category, error)
		DeleteByID(ctx context.Context, id int64) (bool, error)
		Count(ctx context.Context) (int64, error)
	}

	// ExpenseRepository translates expense queries into store operations.
	// Every list is ordered by date descending.
	ExpenseRepository interface {
		FindByID(ctx context.Context, id int64) (*core.Expense, error)
		FindAll(ctx context.Context) ([]core.Expense, error)
		FindByDateRange(ctx context.Context, start, end core.Date) ([]core.Expense, error)
		FindByMonth(ctx context.Context, year, month int) ([]core.Expense, error)
		FindByCategory(ctx context.Context, categoryID int64) ([]core.Expense, error)
		// FindRecent orders by date, then creation time, newest first.
		FindRecent(ctx context.Context, limit int) ([]core.Expense, error)
		MonthlyTotal(ctx context.Context, year, month int) (core.Money, error)
		Save(ctx context.Context, e *core.Expense) (*core.Expense, error)
		Delete(ctx context.Context, e *core.Expense) error
	}

	// Session is a store handle scoped to one request. Close must be called on every path.
	Session interface {
		Categories() CategoryRepository
		Expenses() ExpenseRepository
		Close() error
	}

	// Store hands out sessions and reports health.
	Store interface {
		Session(ctx context.Context) (Session, error)
		Ping(ctx context.Context) error
		Close() error
	}
)

// ErrDuplicateKey is returned by Save when a unique constraint rejects the row.
var ErrDuplicateKey = errors.New("duplicate key")
