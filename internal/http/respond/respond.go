// Package respond holds the JSON helpers shared by every HTTP handler.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrorBody is the payload of every non-2xx response.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// Error writes an {"error": message} body.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// Decode reads a JSON body into dst and runs struct validation on it.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("cuerpo de la solicitud inválido: %w", err)
	}
	return Validate(dst)
}

// Validate checks `validate` struct tags and flattens failures into one readable error.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, describe(fe))
	}
	return errors.New(strings.Join(parts, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s es obligatorio", field)
	case "email":
		return fmt.Sprintf("%s debe ser un email válido", field)
	case "min", "gte":
		return fmt.Sprintf("%s debe ser al menos %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s debe ser como máximo %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s debe ser uno de: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s no es válido (%s)", field, fe.Tag())
	}
}
