package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kilianp07/fleetdispatch/core/status"
)

const maxBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("dispatch_status", func(fl validator.FieldLevel) bool {
		_, err := status.Parse(fl.Field().String())
		return err == nil
	})
	return v
}

// validationErrors maps json field names to readable messages.
func validationErrors(err error) map[string]string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return map[string]string{"body": err.Error()}
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "required_without":
		return fmt.Sprintf("Required when %s is empty", jsonName(fe.Param()))
	case "min":
		return fmt.Sprintf("Minimum is %s", fe.Param())
	case "dispatch_status":
		return fmt.Sprintf("Unknown status %q", fe.Value())
	default:
		return fmt.Sprintf("Invalid %s field", fe.Field())
	}
}

// jsonName converts a Go field name used in a validator param.
func jsonName(goName string) string {
	switch goName {
	case "DispatchID":
		return "dispatch_id"
	case "BookingID":
		return "booking_id"
	}
	return goName
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Fields: validationErrors(err)})
		return false
	}
	return true
}
