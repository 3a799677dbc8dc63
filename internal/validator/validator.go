// Package validator provides custom validation functions for Gin's binding
// engine and for the budget services' own validator instance.
package validator

import (
	"reflect"
	"strings"

	"energybudget/internal/allocation"
	"energybudget/internal/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		RegisterOn(v)
	}
}

// RegisterOn registers all custom validators on v.
func RegisterOn(v *validator.Validate) {
	_ = v.RegisterValidation("budget_kind", validateBudgetKind)
	_ = v.RegisterValidation("budget_date", validateBudgetDate)
	_ = v.RegisterValidation("meter_status", validateMeterStatus)
}

// New returns a validator with the custom tags registered that reports
// fields by their JSON names.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	RegisterOn(v)
	return v
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

func validateBudgetKind(fl validator.FieldLevel) bool {
	switch allocation.Kind(fl.Field().String()) {
	case allocation.KindParent, allocation.KindChild:
		return true
	}
	return false
}

func validateBudgetDate(fl validator.FieldLevel) bool {
	_, err := allocation.ParseDate(fl.Field().String())
	return err == nil
}

func validateMeterStatus(fl validator.FieldLevel) bool {
	switch models.MeterStatus(fl.Field().String()) {
	case models.MeterStatusActive, models.MeterStatusUnderMaintenance,
		models.MeterStatusInactive, models.MeterStatusDeleted:
		return true
	}
	return false
}
