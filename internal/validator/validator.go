// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"reflect"
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"zapgastos/internal/models"
	"zapgastos/internal/period"
)

var hexColorRegex = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		register(v)
	}
}

func register(v *validator.Validate) {
	// Money fields validate as float64 so gt/gte/lte tags work on them.
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

	_ = v.RegisterValidation("hex_color", validateHexColor)
	_ = v.RegisterValidation("transaction_type", validateTransactionType)
	_ = v.RegisterValidation("category_type", validateCategoryType)
	_ = v.RegisterValidation("periodicity", validatePeriodicity)
	_ = v.RegisterValidation("channel", validateChannel)
	_ = v.RegisterValidation("api_scope", validateAPIScope)
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

func validateHexColor(fl validator.FieldLevel) bool {
	return hexColorRegex.MatchString(fl.Field().String())
}

func validateTransactionType(fl validator.FieldLevel) bool {
	switch models.TransactionType(fl.Field().String()) {
	case models.TransactionTypeExpense, models.TransactionTypeIncome:
		return true
	}
	return false
}

func validateCategoryType(fl validator.FieldLevel) bool {
	switch models.CategoryType(fl.Field().String()) {
	case models.CategoryTypeExpense, models.CategoryTypeIncome:
		return true
	}
	return false
}

func validatePeriodicity(fl validator.FieldLevel) bool {
	return period.Periodicity(fl.Field().String()).Valid()
}

func validateChannel(fl validator.FieldLevel) bool {
	switch models.Channel(fl.Field().String()) {
	case models.ChannelConversation, models.ChannelAudio, models.ChannelImage, models.ChannelWebApp:
		return true
	}
	return false
}

func validateAPIScope(fl validator.FieldLevel) bool {
	switch models.APIKeyScope(fl.Field().String()) {
	case models.ScopeTransactions, models.ScopeBudgets, models.ScopeSystem:
		return true
	}
	return false
}
