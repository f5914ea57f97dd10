package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-15")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.Year() != 2024 || d.Month() != 1 || d.Day() != 15 {
		t.Fatalf("unexpected date %v", d)
	}
	if d.String() != "2024-01-15" {
		t.Fatalf("String() = %s", d.String())
	}
	for _, bad := range []string{"", "2024-13-01", "15/01/2024", "2024-01-15T10:00:00Z"} {
		if _, err := ParseDate(bad); err == nil {
			t.Fatalf("%q expected error", bad)
		}
	}
}

func TestMonthRange(t *testing.T) {
	start, next := MonthRange(2024, 12)
	if start.String() != "2024-12-01" || next.String() != "2025-01-01" {
		t.Fatalf("unexpected range %s..%s", start, next)
	}
}

func TestCategoryInputValidate(t *testing.T) {
	good := CategoryInput{Name: "Comida", Icon: ptr("🍔"), Color: ptr("#10B981")}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if !good.IsActive() {
		t.Fatalf("active should default to true")
	}
	if (CategoryInput{Name: "x", Active: ptr(false)}).IsActive() {
		t.Fatalf("explicit false should be kept")
	}

	for _, name := range []string{"", "   "} {
		if err := (CategoryInput{Name: name}).Validate(); err != nil {
			t.Fatalf("name %q should be accepted, got %v", name, err)
		}
	}

	bads := []CategoryInput{
		{Name: strings.Repeat("a", 101)},
		{Name: "ok", Color: ptr("10B981")},
		{Name: "ok", Color: ptr("#10B98")},
		{Name: "ok", Color: ptr("#GGGGGG")},
		{Name: "ok", Icon: ptr(strings.Repeat("i", 51))},
	}
	for i, in := range bads {
		err := in.Validate()
		if err == nil {
			t.Fatalf("case %d expected error", i)
		}
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d expected invalid input, got %v", i, err)
		}
	}
}

func TestExpenseInputValidate(t *testing.T) {
	good := ExpenseInput{
		Amount:      MoneyFromCents(150050),
		Description: "Almuerzo",
		CategoryID:  1,
		Date:        NewDate(2024, 1, 15),
		Notes:       ptr("Test"),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	for _, desc := range []string{"", "  "} {
		e := good
		e.Description = desc
		if err := e.Validate(); err != nil {
			t.Fatalf("description %q should be accepted, got %v", desc, err)
		}
	}

	bads := []ExpenseInput{
		{Amount: Money{}, Description: "a", CategoryID: 1, Date: NewDate(2024, 1, 1)},
		{Amount: MoneyFromCents(-100), Description: "a", CategoryID: 1, Date: NewDate(2024, 1, 1)},
		{Amount: MoneyFromCents(100), Description: strings.Repeat("d", 256), CategoryID: 1, Date: NewDate(2024, 1, 1)},
		{Amount: MoneyFromCents(100), Description: "a", CategoryID: 0, Date: NewDate(2024, 1, 1)},
		{Amount: MoneyFromCents(100), Description: "a", CategoryID: 1},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	err := CategoryNotFound(7)
	if !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("expected errors.Is to match kind")
	}
	if errors.Is(err, ErrExpenseNotFound) {
		t.Fatalf("kinds must not cross-match")
	}
	if err.Error() != "Category 7 not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	var de *Error
	if !errors.As(DuplicateCategory("Comida"), &de) || de.Name != "Comida" {
		t.Fatalf("errors.As should expose the name")
	}
}

func TestMonthlySummaryAdd(t *testing.T) {
	s := NewMonthlySummary(2024, 1)
	s.Add("Food", MoneyFromCents(10000))
	s.Add("Food", MoneyFromCents(5000))
	s.Add("Transport", MoneyFromCents(2500))

	if s.Total.String() != "175.00" || s.Count != 3 {
		t.Fatalf("unexpected totals %s/%d", s.Total, s.Count)
	}
	if s.ByCategory["Food"].String() != "150.00" || s.ByCategory["Transport"].String() != "25.00" {
		t.Fatalf("unexpected buckets %v", s.ByCategory)
	}
}
