// internal/lending/decision/decision.go
// Package decision holds the credit application state machine rules. The
// rules are pure; persistence and locking live in the origination service.
package decision

import (
	"fmt"

	"github.com/shopspring/decimal"

	"lending-workers/internal/common/errors"
	"lending-workers/internal/lending/amortization"
	"lending-workers/internal/models"
)

// ApprovalTerms are the reviewer-granted terms that replace the requested
// ones when an application is approved.
type ApprovalTerms struct {
	Amount       decimal.Decimal
	TermMonths   int
	InterestRate decimal.Decimal
}

// allowed transitions; everything else is a conflict.
var transitions = map[models.ApplicationStatus][]models.ApplicationStatus{
	models.ApplicationPending: {
		models.ApplicationUnderReview,
		models.ApplicationApproved,
		models.ApplicationRejected,
		models.ApplicationCancelled,
	},
	models.ApplicationUnderReview: {
		models.ApplicationApproved,
		models.ApplicationRejected,
		models.ApplicationCancelled,
	},
}

// ValidateTransition checks that an application in current may move to next.
// Terminal states never transition; reviewing a terminal application is a
// state conflict, not a validation failure.
func ValidateTransition(current, next models.ApplicationStatus) error {
	if !next.IsValid() || next == models.ApplicationPending {
		return errors.NewValidationError(
			fmt.Sprintf("status %q is not a valid review outcome", next))
	}

	if current.IsTerminal() {
		return errors.NewStateConflictError(
			"Application review already finalized",
			fmt.Sprintf("current status %s is terminal, cannot move to %s", current, next))
	}

	for _, allowed := range transitions[current] {
		if next == allowed {
			return nil
		}
	}

	return errors.NewStateConflictError(
		"Transition not permitted",
		fmt.Sprintf("cannot move application from %s to %s", current, next))
}

// ValidateApproval checks the reviewer-granted terms. Bounds mirror what the
// schedule calculator accepts, plus the product rule that the granted amount
// may not exceed the requested one.
func ValidateApproval(app *models.CreditApplication, terms *ApprovalTerms) error {
	if terms == nil {
		return errors.NewValidationError("approval requires approvedAmount, approvedTermMonths and interestRate")
	}

	if !terms.Amount.IsPositive() {
		return errors.NewValidationError(
			fmt.Sprintf("approved amount must be positive, got %s", terms.Amount))
	}
	if terms.Amount.GreaterThan(app.RequestedAmount) {
		return errors.NewValidationError(
			fmt.Sprintf("approved amount %s exceeds requested amount %s",
				terms.Amount, app.RequestedAmount))
	}
	if !terms.InterestRate.IsPositive() {
		return errors.NewValidationError(
			fmt.Sprintf("interest rate must be positive, got %s", terms.InterestRate))
	}

	return amortization.Validate(terms.Amount, terms.InterestRate, terms.TermMonths)
}
