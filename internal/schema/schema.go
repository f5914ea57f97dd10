// Package schema validates request bodies against embedded JSON Schemas
// and binds them to core inputs.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gastos/internal/core"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed category.json expense.json
var files embed.FS

// ErrMalformed is returned when the body is not a single JSON document.
var ErrMalformed = errors.New("malformed JSON body")

type CategoryRequest struct {
	Nombre string  `json:"nombre"`
	Icono  *string `json:"icono"`
	Color  *string `json:"color"`
	Activo *bool   `json:"activo"`
}

type ExpenseRequest struct {
	Monto       core.Money `json:"monto"`
	Descripcion string     `json:"descripcion"`
	CategoriaID int64      `json:"categoria_id"`
	Fecha       core.Date  `json:"fecha"`
	Notas       *string    `json:"notas"`
}

// Validator holds the compiled request schemas.
type Validator struct {
	category *jsonschema.Schema
	expense  *jsonschema.Schema
}

func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	for _, name := range []string{"category.json", "expense.json"} {
		b, err := files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}

	category, err := compiler.Compile("category.json")
	if err != nil {
		return nil, fmt.Errorf("compile category schema: %w", err)
	}
	expense, err := compiler.Compile("expense.json")
	if err != nil {
		return nil, fmt.Errorf("compile expense schema: %w", err)
	}
	return &Validator{category: category, expense: expense}, nil
}

// DecodeCategory validates r and returns the category input it describes.
func (v *Validator) DecodeCategory(r io.Reader) (core.CategoryInput, error) {
	var req CategoryRequest
	if err := decode(v.category, r, &req); err != nil {
		return core.CategoryInput{}, err
	}
	in := core.CategoryInput{
		Name:   req.Nombre,
		Icon:   req.Icono,
		Color:  req.Color,
		Active: req.Activo,
	}
	return in, in.Validate()
}

// DecodeExpense validates r and returns the expense input it describes.
func (v *Validator) DecodeExpense(r io.Reader) (core.ExpenseInput, error) {
	var req ExpenseRequest
	if err := decode(v.expense, r, &req); err != nil {
		return core.ExpenseInput{}, err
	}
	in := core.ExpenseInput{
		Amount:      req.Monto,
		Description: req.Descripcion,
		CategoryID:  req.CategoriaID,
		Date:        req.Fecha,
		Notes:       req.Notas,
	}
	return in, in.Validate()
}

func decode(s *jsonschema.Schema, r io.Reader, dst any) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON document", ErrMalformed)
	}

	if err := s.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return toInvalidInput(ve)
		}
		return core.InvalidInput("", err.Error())
	}

	if err := json.Unmarshal(body, dst); err != nil {
		var de *core.Error
		if errors.As(err, &de) {
			return de
		}
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return core.InvalidInput(te.Field, "value out of range")
		}
		return core.InvalidInput("", err.Error())
	}
	return nil
}

// toInvalidInput reports the first leaf failure, which names the offending field.
func toInvalidInput(ve *jsonschema.ValidationError) *core.Error {
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	field := strings.TrimPrefix(leaf.InstanceLocation, "/")
	return core.InvalidInput(field, leaf.Message)
}
