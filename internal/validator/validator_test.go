package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

func newValidate() *validator.Validate {
	v := validator.New()
	register(v)
	return v
}

func TestCustomTags(t *testing.T) {
	v := newValidate()

	tests := []struct {
		tag   string
		value string
		valid bool
	}{
		{"periodicity", "monthly", true},
		{"periodicity", "biweekly", true},
		{"periodicity", "weekly", true},
		{"periodicity", "yearly", false},
		{"transaction_type", "despesa", true},
		{"transaction_type", "receita", true},
		{"transaction_type", "expense", false},
		{"category_type", "despesa", true},
		{"category_type", "transfer", false},
		{"channel", "audioMessage", true},
		{"channel", "telegram", false},
		{"api_scope", "system", true},
		{"api_scope", "admin", false},
		{"hex_color", "#0af", true},
		{"hex_color", "#00AAFF", true},
		{"hex_color", "blue", false},
	}
	for _, tt := range tests {
		t.Run(tt.tag+"/"+tt.value, func(t *testing.T) {
			err := v.Var(tt.value, tt.tag)
			if tt.valid && err != nil {
				t.Errorf("expected %q to pass %s: %v", tt.value, tt.tag, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("expected %q to fail %s", tt.value, tt.tag)
			}
		})
	}
}

func TestDecimalFields(t *testing.T) {
	type budgetBody struct {
		LimitAmount    decimal.Decimal `validate:"required,gt=0"`
		AlertThreshold decimal.Decimal `validate:"gte=0,lte=100"`
	}
	v := newValidate()

	tests := []struct {
		name  string
		body  budgetBody
		valid bool
	}{
		{"valid", budgetBody{decimal.RequireFromString("150.75"), decimal.NewFromInt(80)}, true},
		{"zero limit", budgetBody{decimal.Zero, decimal.NewFromInt(80)}, false},
		{"negative limit", budgetBody{decimal.NewFromInt(-1), decimal.NewFromInt(80)}, false},
		{"threshold over 100", budgetBody{decimal.NewFromInt(10), decimal.NewFromInt(101)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.body)
			if tt.valid && err != nil {
				t.Errorf("expected valid: %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
