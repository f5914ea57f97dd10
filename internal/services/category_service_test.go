package services

import (
	"context"
	"strings"
	"testing"

	"gastos/internal/core"

	"github.com/stretchr/testify/require"
)

func TestCategoryService_CreateCategory(t *testing.T) {
	ctx := context.Background()
	sess := newSQLiteSession(t)
	svc := NewCategoryService(sess.Categories())

	icon, color := "🍔", "#10B981"
	c, err := svc.CreateCategory(ctx, core.CategoryInput{Name: "Comida", Icon: &icon, Color: &color})
	require.NoError(t, err)
	require.NotZero(t, c.ID)
	require.True(t, c.Active)

	got, err := svc.GetCategoryByID(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, "Comida", got.Name)

	_, err = svc.CreateCategory(ctx, core.CategoryInput{Name: "Comida"})
	require.ErrorIs(t, err, core.ErrDuplicateCategory)
	require.EqualError(t, err, "Category 'Comida' already exists")

	// exact match only
	_, err = svc.CreateCategory(ctx, core.CategoryInput{Name: "comida"})
	require.NoError(t, err)

	_, err = svc.GetCategoryByID(ctx, 9999)
	require.ErrorIs(t, err, core.ErrCategoryNotFound)
}

func TestCategoryService_CreateCategoryValidation(t *testing.T) {
	svc := NewCategoryService(newMemorySession(t).Categories())
	_, err := svc.CreateCategory(context.Background(), core.CategoryInput{Name: strings.Repeat("n", 101)})
	require.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestCategoryService_ActiveCategories(t *testing.T) {
	ctx := context.Background()
	svc := NewCategoryService(newMemorySession(t).Categories())
	inactive := false

	for _, in := range []core.CategoryInput{
		{Name: "Transporte"},
		{Name: "Viejo", Active: &inactive},
		{Name: "Comida"},
	} {
		_, err := svc.CreateCategory(ctx, in)
		require.NoError(t, err)
	}

	active, err := svc.GetActiveCategories(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "Comida", active[0].Name)
	require.Equal(t, "Transporte", active[1].Name)

	all, err := svc.GetAllCategories(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestCategoryService_SeedDefaults(t *testing.T) {
	ctx := context.Background()
	sess := newSQLiteSession(t)
	svc := NewCategoryService(sess.Categories())

	n, err := svc.SeedDefaults(ctx, DefaultCategories)
	require.NoError(t, err)
	require.Equal(t, len(DefaultCategories), n)

	again, err := svc.SeedDefaults(ctx, DefaultCategories)
	require.NoError(t, err)
	require.Zero(t, again)

	all, err := svc.GetAllCategories(ctx)
	require.NoError(t, err)
	require.Len(t, all, 7)
	require.Equal(t, "Comida", all[0].Name)
	require.Equal(t, "#10B981", *all[0].Color)
}
