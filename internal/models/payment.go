// internal/models/payment.go
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProviderManual identifies payments recorded by field staff rather than a
// payment gateway. Manual collections flow through the same ledger command
// and the same dedup constraint as provider webhooks.
const ProviderManual = "MANUAL"

// PaymentMethod describes how money was collected.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCard         PaymentMethod = "CARD"
	MethodWallet       PaymentMethod = "WALLET"
)

// PaymentStatus is the settlement state of a recorded payment.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// Payment is a settled inbound payment applied against a loan balance.
type Payment struct {
	ID          uuid.UUID       `json:"id"`
	LoanID      uuid.UUID       `json:"loanId"`
	ClientID    uuid.UUID       `json:"clientId"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"paymentDate"`
	Method      PaymentMethod   `json:"method"`
	Status      PaymentStatus   `json:"status"`
	Reference   string          `json:"reference,omitempty"`
	ProcessedBy string          `json:"processedBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// TransactionStatus is the provider-side state of a payment transaction.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
	TransactionCancelled TransactionStatus = "CANCELLED"
	TransactionRefunded  TransactionStatus = "REFUNDED"
)

// CanTransitionTo reports whether a stored transaction may move to next when a
// later delivery of the same provider transaction arrives. The ledger applies
// the balance effect only on entering COMPLETED and reverses it on REFUNDED.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	switch s {
	case TransactionPending:
		return next == TransactionCompleted || next == TransactionFailed || next == TransactionCancelled
	case TransactionCompleted:
		return next == TransactionRefunded
	}
	return false
}

// PaymentTransaction is the audit record of a provider event delivery. The
// (provider, provider_transaction_id) pair is unique in the database; that
// constraint is what makes event processing idempotent under retries.
type PaymentTransaction struct {
	ID                    uuid.UUID         `json:"id"`
	PaymentID             *uuid.UUID        `json:"paymentId,omitempty"`
	Provider              string            `json:"provider"`
	ProviderTransactionID string            `json:"providerTransactionId"`
	Amount                decimal.Decimal   `json:"amount"`
	Status                TransactionStatus `json:"status"`
	RawPayload            json.RawMessage   `json:"rawPayload,omitempty"`
	ProcessedAt           time.Time         `json:"processedAt"`
}

// PaymentEvent is the normalized form every inbound payment notification is
// reduced to before it reaches the ledger, regardless of source.
type PaymentEvent struct {
	Provider              string
	ProviderTransactionID string
	// OriginalTransactionID is set on refund events and references the
	// provider transaction being reversed.
	OriginalTransactionID string
	Status                TransactionStatus
	Amount                decimal.Decimal
	Method                PaymentMethod
	PaymentDate           time.Time
	LoanID                uuid.UUID
	ClientID              uuid.UUID
	ProcessedBy           string
	Reference             string
	PaymentNumber         int
	RawPayload            json.RawMessage
}
