// Package alert decides when a budget period has crossed its alert threshold.
// Evaluation is pure; delivering the alert and marking the period as alerted
// belong to the caller.
package alert

import (
	"fmt"
	"time"

	"zapgastos/internal/models"
	"zapgastos/internal/period"

	"github.com/shopspring/decimal"
)

// Kind distinguishes an approaching limit from an overspent one.
type Kind string

const (
	KindWarning   Kind = "warning"
	KindOvershoot Kind = "overshoot"
)

var hundred = decimal.NewFromInt(100)

// Descriptor is the payload handed to notifiers and attached to API responses.
type Descriptor struct {
	Kind           Kind               `json:"kind"`
	BudgetID       string             `json:"budget_id"`
	BudgetName     string             `json:"budget_name"`
	CategoryID     string             `json:"category_id"`
	UserID         string             `json:"user_id"`
	PeriodID       string             `json:"period_id"`
	Periodicity    period.Periodicity `json:"periodicity"`
	PeriodKey      period.Key         `json:"period_key"`
	PeriodStart    time.Time          `json:"period_start"`
	PeriodEnd      time.Time          `json:"period_end"`
	Limit          decimal.Decimal    `json:"limit"`
	Spent          decimal.Decimal    `json:"spent"`
	Remaining      decimal.Decimal    `json:"remaining"`
	Percent        decimal.Decimal    `json:"percent"`
	AlertThreshold decimal.Decimal    `json:"alert_threshold"`
	Message        string             `json:"message"`
}

// PercentSpent returns spent/limit*100 for the period. A non-positive limit
// yields zero; callers reject such budgets before evaluation.
func PercentSpent(p *models.BudgetPeriod) decimal.Decimal {
	if !p.LimitAmount.IsPositive() {
		return decimal.Zero
	}
	return p.Spent.Div(p.LimitAmount).Mul(hundred)
}

// Evaluate returns a descriptor when the period is at or above the budget's
// threshold and no alert has been sent for it yet. Finalized periods never
// alert. It returns nil otherwise.
func Evaluate(p *models.BudgetPeriod, b *models.Budget) *Descriptor {
	if p == nil || b == nil || p.AlertSent || p.Status == models.PeriodStatusFinalized {
		return nil
	}
	percent := PercentSpent(p)
	if percent.LessThan(b.AlertThreshold) {
		return nil
	}

	kind := KindWarning
	if percent.GreaterThanOrEqual(hundred) {
		kind = KindOvershoot
	}

	d := &Descriptor{
		Kind:           kind,
		BudgetID:       b.ID,
		BudgetName:     b.Name,
		CategoryID:     b.CategoryID,
		UserID:         b.UserID,
		PeriodID:       p.ID,
		Periodicity:    b.Periodicity,
		PeriodKey:      p.Key(),
		PeriodStart:    p.StartDate,
		PeriodEnd:      p.EndDate,
		Limit:          p.LimitAmount,
		Spent:          p.Spent,
		Remaining:      p.Remaining(),
		Percent:        percent.Round(2),
		AlertThreshold: b.AlertThreshold,
	}
	d.Message = message(d)
	return d
}

// message renders the chat text sent through the bot.
func message(d *Descriptor) string {
	if d.Kind == KindOvershoot {
		return fmt.Sprintf("🚨 Orçamento \"%s\" estourado: R$ %s de R$ %s (%s%%). Excedente de R$ %s.",
			d.BudgetName, d.Spent.StringFixed(2), d.Limit.StringFixed(2),
			d.Percent.StringFixed(1), d.Remaining.Neg().StringFixed(2))
	}
	return fmt.Sprintf("⚠️ Orçamento \"%s\" atingiu %s%%: R$ %s de R$ %s. Restam R$ %s.",
		d.BudgetName, d.Percent.StringFixed(1), d.Spent.StringFixed(2),
		d.Limit.StringFixed(2), d.Remaining.StringFixed(2))
}
