package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"innkeep/pkg/logger"
)

// Staff action request bodies. Unknown keys are rejected at decode time;
// these tags enforce the rest of the schema.

type ApproveRequest struct {
	StaffID string `json:"staff_id" validate:"required,min=1,max=64"`
}

type DeclineRequest struct {
	StaffID    string  `json:"staff_id" validate:"required,min=1,max=64"`
	ReasonCode string  `json:"reason_code" validate:"required,oneof=NO_AVAILABILITY GUEST_REQUEST PAYMENT_RISK POLICY_VIOLATION OTHER"`
	Note       *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

type MarkSeenRequest struct {
	StaffID string `json:"staff_id" validate:"required,min=1,max=64"`
}

type CancelRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required,min=1,max=64"`
	BookerType  string `json:"booker_type" validate:"required,oneof=GUEST STAFF"`
}

type CheckInRequest struct {
	StaffID string `json:"staff_id" validate:"required,min=1,max=64"`
	Room    string `json:"room" validate:"required,min=1,max=16"`
}

type CheckOutRequest struct {
	StaffID string `json:"staff_id" validate:"required,min=1,max=64"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type RequestValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewRequestValidator(log *logger.Logger) *RequestValidator {
	return &RequestValidator{
		validate: validator.New(),
		logger:   log,
	}
}

func (v *RequestValidator) Validate(req any) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
