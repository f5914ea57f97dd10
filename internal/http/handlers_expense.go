package http

import (
	"net/http"

	"gastos/internal/core"
	"gastos/internal/ports"
)

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, sess ports.Session) error {
	in, err := s.validator.DecodeExpense(r.Body)
	if err != nil {
		return err
	}

	created, err := s.expenseService(sess).CreateExpense(r.Context(), in)
	if err != nil {
		return err
	}

	s.countExpenseCreated()
	Created(toExpenseResponse(*created)).Write(w)
	return nil
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, sess ports.Session) error {
	q, err := ParseExpenseQuery(r.URL.Query())
	if err != nil {
		return err
	}

	svc := s.expenseService(sess)
	var expenses []core.Expense
	switch q.Mode {
	case ListByMonth:
		expenses, err = svc.GetExpensesByMonth(r.Context(), q.Year, q.Month)
	case ListByCategory:
		expenses, err = svc.GetExpensesByCategory(r.Context(), q.CategoryID)
	case ListRecent:
		expenses, err = svc.GetRecentExpenses(r.Context(), q.Limit)
	default:
		expenses, err = svc.GetAllExpenses(r.Context())
	}
	if err != nil {
		return err
	}

	OK(toExpenseResponses(expenses)).Write(w)
	return nil
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request, sess ports.Session) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}

	expense, err := s.expenseService(sess).GetExpenseByID(r.Context(), id)
	if err != nil {
		return err
	}

	OK(toExpenseResponse(*expense)).Write(w)
	return nil
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, sess ports.Session) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}

	if _, err := s.expenseService(sess).DeleteExpense(r.Context(), id); err != nil {
		return err
	}

	s.countExpenseDeleted()
	NoContent().Write(w)
	return nil
}
