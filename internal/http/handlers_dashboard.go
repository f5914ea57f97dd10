package http

import (
	"net/http"

	"gastos/internal/core"
	"gastos/internal/ports"
)

// handleMonthlyDashboard returns the summary for ?year&month, or for the
// current month when either is missing.
func (s *Server) handleMonthlyDashboard(w http.ResponseWriter, r *http.Request, sess ports.Session) error {
	params, err := ParseMonthParams(r.URL.Query())
	if err != nil {
		return err
	}

	svc := s.expenseService(sess)
	var summary *core.MonthlySummary
	if params != nil {
		summary, err = svc.GetMonthlySummary(r.Context(), params.Year, params.Month)
	} else {
		summary, err = svc.GetCurrentMonthSummary(r.Context())
	}
	if err != nil {
		return err
	}

	OK(toSummaryResponse(*summary)).Write(w)
	return nil
}
