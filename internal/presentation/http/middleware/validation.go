package middleware

import (
	"fmt"
	"math"
	"reflect"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/AtRiskMedia/readership/internal/domain/analytics"
)

// RegisterValidators installs the binding tags used by request payloads:
// "readertype" for guest/registered and "progress" for a 0-100 percent.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}
	if err := v.RegisterValidation("readertype", validateReaderType); err != nil {
		return fmt.Errorf("failed to register readertype validator: %w", err)
	}
	if err := v.RegisterValidation("progress", validateProgress); err != nil {
		return fmt.Errorf("failed to register progress validator: %w", err)
	}
	return nil
}

func validateReaderType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	return analytics.ReaderType(fl.Field().String()).Valid()
}

func validateProgress(fl validator.FieldLevel) bool {
	field := fl.Field()
	switch field.Kind() {
	case reflect.Float32, reflect.Float64:
		v := field.Float()
		return !math.IsNaN(v) && v >= 0 && v <= 100
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v := field.Int()
		return v >= 0 && v <= 100
	}
	return false
}
