package http

import (
	"net/http"

	"gastos/internal/ports"
	"gastos/internal/services"
)

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, sess ports.Session) error {
	in, err := s.validator.DecodeCategory(r.Body)
	if err != nil {
		return err
	}

	created, err := services.NewCategoryService(sess.Categories()).CreateCategory(r.Context(), in)
	if err != nil {
		return err
	}

	s.countCategoryCreated()
	Created(toCategoryResponse(*created)).Write(w)
	return nil
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request, sess ports.Session) error {
	activeOnly, err := ParseBoolParam(r.URL.Query(), "active_only", false)
	if err != nil {
		return err
	}

	svc := services.NewCategoryService(sess.Categories())
	list := svc.GetAllCategories
	if activeOnly {
		list = svc.GetActiveCategories
	}
	categories, err := list(r.Context())
	if err != nil {
		return err
	}

	OK(toCategoryResponses(categories)).Write(w)
	return nil
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request, sess ports.Session) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}

	category, err := services.NewCategoryService(sess.Categories()).GetCategoryByID(r.Context(), id)
	if err != nil {
		return err
	}

	OK(toCategoryResponse(*category)).Write(w)
	return nil
}
