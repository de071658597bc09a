package types

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

// SimilarParams is the body of a similarity request against a stored chart.
type SimilarParams struct {
	K int `json:"k" validate:"omitempty,min=1,max=20"`
}

// UploadParams is the metadata part of a chart upload form.
type UploadParams struct {
	Timeframe  string `json:"timeframe" form:"timeframe" validate:"required"`
	Instrument string `json:"instrument" form:"instrument" validate:"required,max=32"`
	Session    string `json:"session" form:"session"`
	BundleID   string `json:"bundle_id" form:"bundle_id" validate:"omitempty,uuid"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *SimilarParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *UploadParams) Validate() map[string]string {
	errors := validateStruct(params)
	if errors != nil {
		return errors
	}
	if _, err := ParseTimeframe(params.Timeframe); err != nil {
		return map[string]string{"Timeframe": err.Error()}
	}
	if _, err := ParseSession(params.Session); err != nil {
		return map[string]string{"Session": err.Error()}
	}
	return nil
}

func validateStruct(v any) map[string]string {
	validate := validator.New()
	if err := validate.Struct(v); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: http.StatusUnprocessableEntity,
		Errors: errors,
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

// SimilarResponse is the HTTP contract for a retrieval call. Success stays
// true for an empty neighbor list, a small corpus is not an error.
type SimilarResponse struct {
	Success   bool       `json:"success"`
	Neighbors []Neighbor `json:"neighbors"`
	Count     int        `json:"count"`
}
