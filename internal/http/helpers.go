package http

import (
	"errors"
	"net/http"
	"time"

	"gastos/internal/core"
	applog "gastos/internal/log"
	"gastos/internal/schema"
)

type categoryResponse struct {
	ID            int64   `json:"id"`
	Nombre        string  `json:"nombre"`
	Icono         *string `json:"icono"`
	Color         *string `json:"color"`
	Activo        bool    `json:"activo"`
	FechaCreacion string  `json:"fecha_creacion"`
}

type expenseResponse struct {
	ID                 int64      `json:"id"`
	Monto              core.Money `json:"monto"`
	Descripcion        string     `json:"descripcion"`
	CategoriaID        int64      `json:"categoria_id"`
	Fecha              core.Date  `json:"fecha"`
	Notas              *string    `json:"notas"`
	FechaCreacion      string     `json:"fecha_creacion"`
	FechaActualizacion *string    `json:"fecha_actualizacion"`
}

type summaryResponse struct {
	Year         int                   `json:"year"`
	Month        int                   `json:"month"`
	Total        core.Money            `json:"total"`
	Count        int                   `json:"count"`
	PorCategoria map[string]core.Money `json:"por_categoria"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toCategoryResponse(c core.Category) categoryResponse {
	return categoryResponse{
		ID:            c.ID,
		Nombre:        c.Name,
		Icono:         c.Icon,
		Color:         c.Color,
		Activo:        c.Active,
		FechaCreacion: formatTimestamp(c.CreatedAt),
	}
}

func toCategoryResponses(cs []core.Category) []categoryResponse {
	out := make([]categoryResponse, 0, len(cs))
	for _, c := range cs {
		out = append(out, toCategoryResponse(c))
	}
	return out
}

func toExpenseResponse(e core.Expense) expenseResponse {
	resp := expenseResponse{
		ID:            e.ID,
		Monto:         e.Amount,
		Descripcion:   e.Description,
		CategoriaID:   e.CategoryID,
		Fecha:         e.Date,
		Notas:         e.Notes,
		FechaCreacion: formatTimestamp(e.CreatedAt),
	}
	if e.UpdatedAt != nil {
		updated := formatTimestamp(*e.UpdatedAt)
		resp.FechaActualizacion = &updated
	}
	return resp
}

func toExpenseResponses(es []core.Expense) []expenseResponse {
	out := make([]expenseResponse, 0, len(es))
	for _, e := range es {
		out = append(out, toExpenseResponse(e))
	}
	return out
}

func toSummaryResponse(s core.MonthlySummary) summaryResponse {
	byCategory := s.ByCategory
	if byCategory == nil {
		byCategory = map[string]core.Money{}
	}
	return summaryResponse{
		Year:         s.Year,
		Month:        s.Month,
		Total:        s.Total,
		Count:        s.Count,
		PorCategoria: byCategory,
	}
}

// errorStatus maps an error to its HTTP status and client-facing detail.
// Unknown errors are reported generically; their text stays in the logs.
func errorStatus(err error) (int, string) {
	var de *core.Error
	switch {
	case errors.Is(err, schema.ErrMalformed):
		return http.StatusBadRequest, "Malformed JSON body"
	case errors.As(err, &de):
		switch de.Kind {
		case core.KindDuplicateCategory:
			return http.StatusBadRequest, de.Error()
		case core.KindCategoryNotFound, core.KindExpenseNotFound:
			return http.StatusNotFound, de.Error()
		case core.KindInvalidInput:
			return http.StatusUnprocessableEntity, de.Error()
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

// writeError logs err with the request-scoped logger and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := errorStatus(err)
	applog.NewStructuredLogger(applog.FromContext(r.Context())).LogHTTPError(r.Context(), r, status, err)
	ErrorResponse(status, detail).Write(w)
}
