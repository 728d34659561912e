package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"holdfast/pkg/logger"
	"holdfast/pkg/model"
)

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

// identityDocPattern matches national passport numbers of the form
// "II-DZ 123456": a short letter series, optionally dashed, then six digits.
var identityDocPattern = regexp.MustCompile(`^[A-Z]{1,3}(-[A-Z]{1,3})? ?\d{6}$`)

type PurchaseValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewPurchaseValidator(log *logger.Logger) *PurchaseValidator {
	v := validator.New()

	if err := v.RegisterValidation("identity_doc", validateIdentityDoc); err != nil {
		log.Fatal("Failed to register 'identity_doc' validator", "error", err)
	}

	log.Info("Purchase validator initialized successfully")

	return &PurchaseValidator{
		validate: v,
		logger:   log,
	}
}

func validateIdentityDoc(fl validator.FieldLevel) bool {
	return identityDocPattern.MatchString(strings.TrimSpace(fl.Field().String()))
}

func (v *PurchaseValidator) Validate(req *model.PurchaseRequest) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	// datetime= only checks the layout; reject birth dates in the future.
	if dob, err := time.Parse("02-01-2006", req.DOB); err == nil && dob.After(time.Now()) {
		return ValidationErrors{{Field: "DOB", Message: "dob cannot be in the future"}}
	}
	return nil
}

func (v *PurchaseValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s characters", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "datetime":
			message = "dob must be in DD-MM-YYYY format"
		case "e164":
			message = "mobile must be a full international number, e.g. +99371789091"
		case "email":
			message = "email must be a valid address"
		case "identity_doc":
			message = "identity_number must look like 'II-DZ 123456'"
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
