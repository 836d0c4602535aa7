// internal/models/application.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApplicationStatus represents the review lifecycle state of a credit application.
type ApplicationStatus string

const (
	ApplicationPending     ApplicationStatus = "PENDING"
	ApplicationUnderReview ApplicationStatus = "UNDER_REVIEW"
	ApplicationApproved    ApplicationStatus = "APPROVED"
	ApplicationRejected    ApplicationStatus = "REJECTED"
	ApplicationCancelled   ApplicationStatus = "CANCELLED"
)

// IsTerminal reports whether the status permits no further transitions.
func (s ApplicationStatus) IsTerminal() bool {
	return s == ApplicationApproved || s == ApplicationRejected || s == ApplicationCancelled
}

// IsValid reports whether the status is a known lifecycle state.
func (s ApplicationStatus) IsValid() bool {
	switch s {
	case ApplicationPending, ApplicationUnderReview, ApplicationApproved,
		ApplicationRejected, ApplicationCancelled:
		return true
	}
	return false
}

// CreditApplication is a client's request for a loan, reviewed by a credit officer.
// Requested fields are what the client asked for; approved fields are what the
// reviewer granted and are only set once the application is APPROVED.
type CreditApplication struct {
	ID                  uuid.UUID         `json:"id"`
	ClientID            uuid.UUID         `json:"clientId"`
	RequestedAmount     decimal.Decimal   `json:"requestedAmount"`
	RequestedTermMonths int               `json:"requestedTermMonths"`
	Purpose             string            `json:"purpose,omitempty"`
	Status              ApplicationStatus `json:"status"`
	ApprovedAmount      *decimal.Decimal  `json:"approvedAmount,omitempty"`
	ApprovedTermMonths  *int              `json:"approvedTermMonths,omitempty"`
	InterestRate        *decimal.Decimal  `json:"interestRate,omitempty"`
	ReviewComments      string            `json:"reviewComments,omitempty"`
	ReviewedBy          string            `json:"reviewedBy,omitempty"`
	ReviewedAt          *time.Time        `json:"reviewedAt,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// Client holds the contact details used for notification delivery.
type Client struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"fullName"`
	Email    string    `json:"email,omitempty"`
	Phone    string    `json:"phone,omitempty"`
}
