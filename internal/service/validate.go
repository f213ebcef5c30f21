// Package service holds the mutation, upload, moderation and read workflows.
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alexdfirestone/national-parks/internal/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// validateInput runs struct validation and converts the first failure into
// a validation AppError naming the field.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return models.NewValidationError(err.Error())
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "notblank":
		return models.NewValidationError(fmt.Sprintf("%s is required", fe.Field()))
	case "max":
		return models.NewValidationError(fmt.Sprintf("%s is too long (max %s characters)", fe.Field(), fe.Param()))
	case "oneof":
		return models.NewValidationError(fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
	default:
		return models.NewValidationError(fmt.Sprintf("%s is invalid", fe.Field()))
	}
}

// Invalidator drops cached reads by tag.
type Invalidator interface {
	Invalidate(ctx context.Context, tags ...string) error
	Refresh(ctx context.Context, tags ...string) error
}
