// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating path and query
// parameters. Every failure is reported as core.InvalidInput naming the
// offending parameter.

package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"gastos/internal/core"
)

const maxListLimit = 100

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ExpenseListMode selects which expense listing a query asks for.
type ExpenseListMode int

const (
	ListAll ExpenseListMode = iota
	ListByMonth
	ListByCategory
	ListRecent
)

// ExpenseQuery is the parsed form of GET /api/expenses parameters.
type ExpenseQuery struct {
	Mode       ExpenseListMode
	Year       int
	Month      int
	CategoryID int64
	Limit      int
}

// ParseMonthParams reads year and month. It returns nil when either is
// missing or year is 0, which callers treat as the current month.
func ParseMonthParams(query url.Values) (*MonthParams, error) {
	year, hasYear, err := optionalInt(query, "year")
	if err != nil {
		return nil, err
	}
	month, hasMonth, err := optionalInt(query, "month")
	if err != nil {
		return nil, err
	}
	if hasMonth && !core.ValidMonth(month) {
		return nil, core.InvalidInput("month", "must be between 1 and 12")
	}
	if !hasYear || year == 0 || !hasMonth {
		return nil, nil
	}
	return &MonthParams{Year: year, Month: month}, nil
}

// ParseExpenseQuery applies the listing precedence: year+month, then
// categoria_id, then limit, then everything. A zero year or categoria_id
// counts as absent.
func ParseExpenseQuery(query url.Values) (ExpenseQuery, error) {
	var q ExpenseQuery

	year, hasYear, err := optionalInt(query, "year")
	if err != nil {
		return q, err
	}
	month, hasMonth, err := optionalInt(query, "month")
	if err != nil {
		return q, err
	}
	if hasMonth && !core.ValidMonth(month) {
		return q, core.InvalidInput("month", "must be between 1 and 12")
	}
	categoryID, hasCategory, err := optionalInt64(query, "categoria_id")
	if err != nil {
		return q, err
	}
	limit, hasLimit, err := optionalInt(query, "limit")
	if err != nil {
		return q, err
	}
	if hasLimit && (limit < 1 || limit > maxListLimit) {
		return q, core.InvalidInput("limit", "must be between 1 and 100")
	}

	switch {
	case hasYear && year != 0 && hasMonth:
		q.Mode, q.Year, q.Month = ListByMonth, year, month
	case hasCategory && categoryID != 0:
		q.Mode, q.CategoryID = ListByCategory, categoryID
	case hasLimit:
		q.Mode, q.Limit = ListRecent, limit
	default:
		q.Mode = ListAll
	}
	return q, nil
}

// ParseBoolParam accepts the usual spellings of true and false. A missing
// parameter yields def.
func ParseBoolParam(query url.Values, name string, def bool) (bool, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return def, nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return def, core.InvalidInput(name, "must be a boolean")
}

// pathID parses the {id} route variable.
func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, core.InvalidInput("id", "must be an integer")
	}
	return id, nil
}

func optionalInt(query url.Values, name string) (int, bool, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, core.InvalidInput(name, "must be an integer")
	}
	return n, true, nil
}

func optionalInt64(query url.Values, name string) (int64, bool, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, core.InvalidInput(name, "must be an integer")
	}
	return n, true, nil
}
