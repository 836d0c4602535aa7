// internal/models/loan.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus represents the repayment state of an originated loan.
type LoanStatus string

const (
	LoanActive    LoanStatus = "ACTIVE"
	LoanPaidOff   LoanStatus = "PAID_OFF"
	LoanDefaulted LoanStatus = "DEFAULTED"
)

// Loan is an originated credit line with a repayment schedule.
// BalanceRemaining is the single authoritative source of outstanding debt;
// schedule entries are informational bookkeeping.
type Loan struct {
	ID                  uuid.UUID       `json:"id"`
	LoanNumber          string          `json:"loanNumber"`
	CreditApplicationID uuid.UUID       `json:"creditApplicationId"`
	ClientID            uuid.UUID       `json:"clientId"`
	PrincipalAmount     decimal.Decimal `json:"principalAmount"`
	InterestRate        decimal.Decimal `json:"interestRate"`
	TermMonths          int             `json:"termMonths"`
	MonthlyPayment      decimal.Decimal `json:"monthlyPayment"`
	TotalAmount         decimal.Decimal `json:"totalAmount"`
	BalanceRemaining    decimal.Decimal `json:"balanceRemaining"`
	Status              LoanStatus      `json:"status"`
	StartDate           time.Time       `json:"startDate"`
	EndDate             time.Time       `json:"endDate"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// ScheduleEntry is one row of a loan's amortization schedule.
type ScheduleEntry struct {
	ID               uuid.UUID       `json:"id"`
	LoanID           uuid.UUID       `json:"loanId"`
	PaymentNumber    int             `json:"paymentNumber"`
	PaymentDate      time.Time       `json:"paymentDate"`
	PrincipalPortion decimal.Decimal `json:"principalPortion"`
	InterestPortion  decimal.Decimal `json:"interestPortion"`
	TotalPayment     decimal.Decimal `json:"totalPayment"`
	RemainingBalance decimal.Decimal `json:"remainingBalance"`
	IsPaid           bool            `json:"isPaid"`
}
