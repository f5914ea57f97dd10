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

const categoryColumns = `id, name, icon, color, active, created_at, updated_at`

type CategoryRepository struct {
	db      DBTX
	dialect Dialect
}

func NewCategoryRepository(db DBTX, dialect Dialect) *CategoryRepository {
	return &CategoryRepository{db: db, dialect: dialect}
}

var _ ports.CategoryRepository = (*CategoryRepository)(nil)

func scanCategory(row interface{ Scan(...any) error }) (core.Category, error) {
	var (
		c                  core.Category
		icon, color        sql.NullString
		createdAt, updated timeValue
	)
	if err := row.Scan(&c.ID, &c.Name, &icon, &color, &c.Active, &createdAt, &updated); err != nil {
		return core.Category{}, err
	}
	c.Icon = nullString(icon)
	c.Color = nullString(color)
	c.CreatedAt = createdAt.Time
	c.UpdatedAt = updated.ptr()
	return c, nil
}

func (r *CategoryRepository) queryOne(ctx context.Context, query string, args ...any) (*core.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx, r.dialect.rebind(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CategoryRepository) queryMany(ctx context.Context, query string, args ...any) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CategoryRepository) FindByID(ctx context.Context, id int64) (*core.Category, error) {
	c, err := r.queryOne(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get category by id: %w", err)
	}
	return c, nil
}

func (r *CategoryRepository) FindAll(ctx context.Context) ([]core.Category, error) {
	cs, err := r.queryMany(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cs, nil
}

func (r *CategoryRepository) FindActive(ctx context.Context) ([]core.Category, error) {
	cs, err := r.queryMany(ctx, `SELECT `+categoryColumns+` FROM categories WHERE active = ? ORDER BY name ASC, id ASC`, true)
	if err != nil {
		return nil, fmt.Errorf("list active categories: %w", err)
	}
	return cs, nil
}

func (r *CategoryRepository) FindByName(ctx context.Context, name string) (*core.Category, error) {
	c, err := r.queryOne(ctx, `SELECT `+categoryColumns+` FROM categories WHERE name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("get category by name: %w", err)
	}
	return c, nil
}

// Save inserts c when it has no id yet, otherwise updates the existing row.
func (r *CategoryRepository) Save(ctx context.Context, c *core.Category) (*core.Category, error) {
	var (
		saved core.Category
		err   error
	)
	if c.ID == 0 {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		saved, err = scanCategory(r.db.QueryRowContext(ctx, r.dialect.rebind(
			`INSERT INTO categories (name, icon, color, active, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 RETURNING `+categoryColumns),
			c.Name, stringArg(c.Icon), stringArg(c.Color), c.Active, createdAt.UTC()))
	} else {
		now := time.Now()
		saved, err = scanCategory(r.db.QueryRowContext(ctx, r.dialect.rebind(
			`UPDATE categories SET name = ?, icon = ?, color = ?, active = ?, updated_at = ?
			 WHERE id = ?
			 RETURNING `+categoryColumns),
			c.Name, stringArg(c.Icon), stringArg(c.Color), c.Active, timeArg(&now), c.ID))
	}
	if err != nil {
		if r.dialect.isUniqueViolation(err) {
			return nil, ports.ErrDuplicateKey
		}
		return nil, fmt.Errorf("save category: %w", err)
	}
	return &saved, nil
}

func (r *CategoryRepository) DeleteByID(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.rebind(`DELETE FROM categories WHERE id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete category: %w", err)
	}
	return n > 0, nil
}

func (r *CategoryRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return n, nil
}
