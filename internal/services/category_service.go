package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gastos/internal/core"
	applog "gastos/internal/log"
	"gastos/internal/ports"
)

// DefaultCategories is the set created by SeedDefaults on an empty store.
var DefaultCategories = []core.CategoryInput{
	{Name: "Comida", Icon: strPtr("🍔"), Color: strPtr("#10B981")},
	{Name: "Transporte", Icon: strPtr("🚗"), Color: strPtr("#3B82F6")},
	{Name: "Servicios", Icon: strPtr("💡"), Color: strPtr("#F59E0B")},
	{Name: "Compras", Icon: strPtr("🛍️"), Color: strPtr("#8B5CF6")},
	{Name: "Entretenimiento", Icon: strPtr("🎬"), Color: strPtr("#EC4899")},
	{Name: "Salud", Icon: strPtr("⚕️"), Color: strPtr("#EF4444")},
	{Name: "Otros", Icon: strPtr("📦"), Color: strPtr("#6B7280")},
}

func strPtr(s string) *string { return &s }

// CategoryService enforces category rules over a session-scoped repository.
type CategoryService struct {
	categories ports.CategoryRepository
}

func NewCategoryService(categories ports.CategoryRepository) *CategoryService {
	return &CategoryService{categories: categories}
}

// CreateCategory rejects names that already exist (exact match) and persists the rest.
func (s *CategoryService) CreateCategory(ctx context.Context, in core.CategoryInput) (*core.Category, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.categories.FindByName(ctx, in.Name)
	if err != nil {
		return nil, fmt.Errorf("lookup category: %w", err)
	}
	if existing != nil {
		return nil, core.DuplicateCategory(in.Name)
	}

	saved, err := s.categories.Save(ctx, &core.Category{
		Name:   in.Name,
		Icon:   in.Icon,
		Color:  in.Color,
		Active: in.IsActive(),
	})
	if errors.Is(err, ports.ErrDuplicateKey) {
		return nil, core.DuplicateCategory(in.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Category created",
		applog.NewFields().
			WithComponent(applog.ComponentCategory).
			WithOperation(applog.OpCreate).
			WithCategory(saved.ID, saved.Name).
			ToSlice()...)
	return saved, nil
}

func (s *CategoryService) GetCategoryByID(ctx context.Context, id int64) (*core.Category, error) {
	c, err := s.categories.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if c == nil {
		return nil, core.CategoryNotFound(id)
	}
	return c, nil
}

func (s *CategoryService) GetAllCategories(ctx context.Context) ([]core.Category, error) {
	cs, err := s.categories.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cs, nil
}

func (s *CategoryService) GetActiveCategories(ctx context.Context) ([]core.Category, error) {
	cs, err := s.categories.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active categories: %w", err)
	}
	return cs, nil
}

// SeedDefaults creates defaults only when the store holds no categories.
// It returns how many categories were created.
func (s *CategoryService) SeedDefaults(ctx context.Context, defaults []core.CategoryInput) (int, error) {
	n, err := s.categories.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Categories already present, skipping seed", "count", n)
		return 0, nil
	}

	created := 0
	for _, in := range defaults {
		if _, err := s.CreateCategory(ctx, in); err != nil {
			return created, fmt.Errorf("seed %q: %w", in.Name, err)
		}
		created++
	}
	slog.InfoContext(ctx, "Default categories seeded", "count", created)
	return created, nil
}
