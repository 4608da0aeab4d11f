package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	// Payment method validation
	validate.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		method := fl.Field().String()
		validMethods := []string{"mpesa_paybill", "mpesa_stk", "airtel_money"}
		for _, m := range validMethods {
			if method == m {
				return true
			}
		}
		return false
	})

	// Listing placement validation
	validate.RegisterValidation("placement", func(fl validator.FieldLevel) bool {
		placement := fl.Field().String()
		validPlacements := []string{"standard", "featured", "premium", ""}
		for _, p := range validPlacements {
			if placement == p {
				return true
			}
		}
		return false
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "uuid":
			errors[field] = "Must be a valid UUID"
		case "min":
			errors[field] = "Value is below the allowed minimum"
		case "max":
			errors[field] = "Value is above the allowed maximum"
		case "e164":
			errors[field] = "Must be a valid phone number in E.164 format"
		case "payment_method":
			errors[field] = "Unsupported payment method"
		case "placement":
			errors[field] = "Unknown listing placement"
		default:
			errors[field] = "Invalid value"
		}
	}
	return errors
}
