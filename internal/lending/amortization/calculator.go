// internal/lending/amortization/calculator.go
// Package amortization computes fixed-installment repayment schedules.
//
// All arithmetic is exact decimal; money is rounded half-up to 2 places the
// moment it becomes a schedule amount. The final installment is not the
// annuity payment: its principal portion is set to whatever balance remains,
// so the schedule sums exactly to the principal and ends at exactly zero.
package amortization

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"lending-workers/internal/common/errors"
	"lending-workers/internal/models"
)

// MaxTermMonths caps schedule length. Terms beyond 30 years are rejected.
const MaxTermMonths = 360

var one = decimal.NewFromInt(1)

// Validate checks the loan terms a schedule is computed from. The monthly
// rate is a fraction (0.01 = 1% per month); zero is allowed for interest-free
// products.
func Validate(principal, monthlyRate decimal.Decimal, termMonths int) error {
	if !principal.IsPositive() {
		return errors.NewValidationError(
			fmt.Sprintf("principal must be positive, got %s", principal))
	}
	if monthlyRate.IsNegative() {
		return errors.NewValidationError(
			fmt.Sprintf("interest rate must not be negative, got %s", monthlyRate))
	}
	if monthlyRate.GreaterThan(one) {
		return errors.NewValidationError(
			fmt.Sprintf("interest rate must be a monthly fraction <= 1, got %s", monthlyRate))
	}
	if termMonths < 1 || termMonths > MaxTermMonths {
		return errors.NewValidationError(
			fmt.Sprintf("term must be between 1 and %d months, got %d", MaxTermMonths, termMonths))
	}
	return nil
}

// MonthlyPayment returns the fixed installment for the annuity formula
// P * r * (1+r)^n / ((1+r)^n - 1), rounded to cents. A zero rate degenerates
// to an even principal split.
func MonthlyPayment(principal, monthlyRate decimal.Decimal, termMonths int) decimal.Decimal {
	n := decimal.NewFromInt(int64(termMonths))

	if monthlyRate.IsZero() {
		return principal.Div(n).Round(2)
	}

	factor := one.Add(monthlyRate).Pow(n)
	return principal.Mul(monthlyRate).Mul(factor).Div(factor.Sub(one)).Round(2)
}

// Schedule produces the full amortization schedule for a loan starting at
// startDate, with installments due monthly thereafter. Interest for each
// period is computed on the running balance and rounded to cents before the
// principal split, so every row holds amounts that can actually be paid.
func Schedule(principal, monthlyRate decimal.Decimal, termMonths int, startDate time.Time) ([]models.ScheduleEntry, error) {
	if err := Validate(principal, monthlyRate, termMonths); err != nil {
		return nil, err
	}

	payment := MonthlyPayment(principal, monthlyRate, termMonths)
	entries := make([]models.ScheduleEntry, 0, termMonths)
	balance := principal

	for i := 1; i <= termMonths; i++ {
		interest := balance.Mul(monthlyRate).Round(2)

		var principalPortion, total decimal.Decimal
		if i == termMonths {
			// Final installment absorbs all rounding drift.
			principalPortion = balance
			total = principalPortion.Add(interest)
		} else {
			principalPortion = payment.Sub(interest)
			if principalPortion.GreaterThan(balance) {
				principalPortion = balance
			}
			total = principalPortion.Add(interest)
		}

		balance = balance.Sub(principalPortion)

		entries = append(entries, models.ScheduleEntry{
			PaymentNumber:    i,
			PaymentDate:      startDate.AddDate(0, i, 0),
			PrincipalPortion: principalPortion,
			InterestPortion:  interest,
			TotalPayment:     total,
			RemainingBalance: balance,
		})
	}

	return entries, nil
}

// TotalAmount sums the installments of a schedule.
func TotalAmount(entries []models.ScheduleEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.TotalPayment)
	}
	return total
}
