package core

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxCategoryNameLen = 100
	MaxCategoryIconLen = 50
	MaxDescriptionLen  = 255
	DefaultRecentLimit = 10
	dateLayout         = "2006-01-02"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

type (
	// Date is a calendar date without a time component, always held at UTC midnight.
	Date struct {
		time.Time
	}

	Category struct {
		ID        int64
		Name      string
		Icon      *string
		Color     *string
		Active    bool
		CreatedAt time.Time
		UpdatedAt *time.Time
	}

	Expense struct {
		ID          int64
		Amount      Money
		Description string
		CategoryID  int64
		Date        Date
		Notes       *string
		CreatedAt   time.Time
		UpdatedAt   *time.Time
	}

	// CategoryInput carries the fields accepted when creating a category.
	// A nil Active means the default (true).
	CategoryInput struct {
		Name   string
		Icon   *string
		Color  *string
		Active *bool
	}

	ExpenseInput struct {
		Amount      Money
		Description string
		CategoryID  int64
		Date        Date
		Notes       *string
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, InvalidInput("fecha", "must be a date in YYYY-MM-DD format")
	}
	return Date{Time: t}, nil
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return InvalidInput("fecha", "date is required")
	}
	return nil
}

// String returns the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(dateLayout)
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MonthRange returns the first day of year/month and the first day of the following month.
func MonthRange(year, month int) (start, next Date) {
	start = NewDate(year, month, 1)
	next = Date{Time: start.AddDate(0, 1, 0)}
	return start, next
}

// ValidMonth reports whether month is within 1..12.
func ValidMonth(month int) bool {
	return month >= 1 && month <= 12
}

func (in CategoryInput) Validate() error {
	if utf8.RuneCountInString(in.Name) > MaxCategoryNameLen {
		return InvalidInput("nombre", "name too long (max 100 characters)")
	}
	if in.Icon != nil && utf8.RuneCountInString(*in.Icon) > MaxCategoryIconLen {
		return InvalidInput("icono", "icon too long (max 50 characters)")
	}
	if in.Color != nil && !colorPattern.MatchString(*in.Color) {
		return InvalidInput("color", "color must match #RRGGBB")
	}
	return nil
}

// IsActive resolves the active flag, defaulting to true.
func (in CategoryInput) IsActive() bool {
	if in.Active == nil {
		return true
	}
	return *in.Active
}

func (in ExpenseInput) Validate() error {
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLen {
		return InvalidInput("descripcion", "description too long (max 255 characters)")
	}
	if in.CategoryID <= 0 {
		return InvalidInput("categoria_id", "must be greater than 0")
	}
	return in.Date.Validate()
}
