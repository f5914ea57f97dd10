package core

import (
	"fmt"
)

// ErrorKind enumerates the domain failures the API can report.
type ErrorKind int

const (
	KindCategoryNotFound ErrorKind = iota + 1
	KindExpenseNotFound
	KindDuplicateCategory
	KindInvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindCategoryNotFound:
		return "category_not_found"
	case KindExpenseNotFound:
		return "expense_not_found"
	case KindDuplicateCategory:
		return "duplicate_category"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Error is a domain error. Only the fields relevant to Kind are set.
type Error struct {
	Kind   ErrorKind
	ID     int64  // CategoryNotFound, ExpenseNotFound
	Name   string // DuplicateCategory
	Field  string // InvalidInput
	Reason string // InvalidInput
}

// Sentinels for errors.Is; they match any Error of the same Kind.
var (
	ErrCategoryNotFound  = &Error{Kind: KindCategoryNotFound}
	ErrExpenseNotFound   = &Error{Kind: KindExpenseNotFound}
	ErrDuplicateCategory = &Error{Kind: KindDuplicateCategory}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
)

func CategoryNotFound(id int64) *Error {
	return &Error{Kind: KindCategoryNotFound, ID: id}
}

func ExpenseNotFound(id int64) *Error {
	return &Error{Kind: KindExpenseNotFound, ID: id}
}

func DuplicateCategory(name string) *Error {
	return &Error{Kind: KindDuplicateCategory, Name: name}
}

func InvalidInput(field, reason string) *Error {
	return &Error{Kind: KindInvalidInput, Field: field, Reason: reason}
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindCategoryNotFound:
		return fmt.Sprintf("Category %d not found", e.ID)
	case KindExpenseNotFound:
		return fmt.Sprintf("Expense %d not found", e.ID)
	case KindDuplicateCategory:
		return fmt.Sprintf("Category '%s' already exists", e.Name)
	case KindInvalidInput:
		if e.Field == "" {
			return e.Reason
		}
		return e.Field + ": " + e.Reason
	default:
		return "unknown error"
	}
}

// Is matches on Kind so callers can use the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}
