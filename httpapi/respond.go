package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
)

const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError renders err as a go-errors envelope using the service
// error mapping for the status code.
func respondError(w http.ResponseWriter, err error) {
	mapped := core.ToServiceError(err)
	if mapped == nil {
		mapped = core.ToServiceError(errors.New("unknown error"))
	}
	status := mapped.Code
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, mapped.ToErrorResponse(false, nil))
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeBody reads an optional JSON body into dst and validates it. An empty
// body leaves dst at its zero value before validation.
func (h *Handler) decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "read request body")
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, dst); err != nil {
			return goerrors.NewValidation("invalid request body", goerrors.FieldError{
				Field:   "body",
				Message: err.Error(),
			})
		}
	}
	return h.validateStruct(dst)
}

func (h *Handler) validateStruct(dst any) error {
	err := h.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request")
	}
	out := make([]goerrors.FieldError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, goerrors.FieldError{
			Field:   fe.Field(),
			Message: validationMessage(fe),
		})
	}
	return goerrors.NewValidation("invalid request", out...)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		return "must be a valid url"
	default:
		return "is invalid"
	}
}
