// internal/workers/payments/manual-collection/handler_test.go
package manualcollection

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-workers/internal/common/auth"
	"lending-workers/internal/common/errors"
	"lending-workers/internal/common/logger"
	"lending-workers/internal/lending/ledger"
	"lending-workers/internal/models"
)

// ==========================
// Mock Implementations
// ==========================

type MockLedger struct {
	Result    *ledger.Result
	Err       error
	LastEvent *models.PaymentEvent
}

func (m *MockLedger) RecordPaymentEvent(_ context.Context, ev *models.PaymentEvent) (*ledger.Result, error) {
	m.LastEvent = ev
	return m.Result, m.Err
}

type MockPaymentNotifier struct {
	Calls int
}

func (m *MockPaymentNotifier) PaymentReceived(_ context.Context, _ uuid.UUID, _ string, _, _ decimal.Decimal) error {
	m.Calls++
	return nil
}

type denyingAuthorizer struct{}

func (denyingAuthorizer) CanReview(_ context.Context, _ string) error    { return nil }
func (denyingAuthorizer) CanOriginate(_ context.Context, _ string) error { return nil }
func (denyingAuthorizer) CanCollect(_ context.Context, actorID string) error {
	return errors.NewAuthorizationError("actor " + actorID + " is missing role " + auth.RoleFieldCollector)
}

// ==========================
// Test Helper Functions
// ==========================

var testLoanID = uuid.MustParse("eba7b810-9dad-11d1-80b4-00c04fd430c8")

func createTestHandler(t *testing.T) (*Handler, *MockLedger, *MockPaymentNotifier) {
	mockLedger := &MockLedger{}
	notifier := &MockPaymentNotifier{}
	h := NewHandler(LoadConfig(), mockLedger, auth.StaticAuthorizer{}, notifier, logger.NewTestLogger(t))
	return h, mockLedger, notifier
}

func collectionInput() *Input {
	return &Input{
		LoanID:        testLoanID.String(),
		Amount:        "500",
		CollectorID:   "collector-7",
		ReceiptNumber: "RCP-2026-0001",
	}
}

func appliedResult() *ledger.Result {
	return &ledger.Result{
		Applied: true,
		Payment: &models.Payment{
			ID:       uuid.New(),
			LoanID:   testLoanID,
			ClientID: uuid.New(),
			Amount:   decimal.RequireFromString("500"),
			Status:   models.PaymentCompleted,
		},
		LoanNumber: "LN-000042",
		NewBalance: decimal.RequireFromString("1500"),
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestExecute_RecordsCashCollection(t *testing.T) {
	h, mockLedger, notifier := createTestHandler(t)
	mockLedger.Result = appliedResult()

	output, err := h.Execute(context.Background(), collectionInput())
	require.NoError(t, err)

	assert.Equal(t, "LN-000042", output.LoanNumber)
	assert.Equal(t, "1500.00", output.NewBalance)
	assert.False(t, output.Duplicate)
	assert.Equal(t, 1, notifier.Calls)

	ev := mockLedger.LastEvent
	require.NotNil(t, ev)
	assert.Equal(t, models.ProviderManual, ev.Provider)
	assert.Equal(t, "RCP-2026-0001", ev.ProviderTransactionID)
	assert.Equal(t, models.TransactionCompleted, ev.Status)
	assert.Equal(t, models.MethodCash, ev.Method)
	assert.Equal(t, "collector-7", ev.ProcessedBy)
}

func TestExecute_MissingReceiptGetsGeneratedID(t *testing.T) {
	h, mockLedger, _ := createTestHandler(t)
	mockLedger.Result = appliedResult()

	input := collectionInput()
	input.ReceiptNumber = ""

	_, err := h.Execute(context.Background(), input)
	require.NoError(t, err)

	require.NotNil(t, mockLedger.LastEvent)
	assert.True(t, strings.HasPrefix(mockLedger.LastEvent.ProviderTransactionID, "MAN-"))
}

func TestExecute_RedeliveredReceiptIsDuplicate(t *testing.T) {
	h, mockLedger, notifier := createTestHandler(t)
	mockLedger.Result = &ledger.Result{Duplicate: true}

	output, err := h.Execute(context.Background(), collectionInput())
	require.NoError(t, err)

	assert.True(t, output.Duplicate)
	assert.Empty(t, output.PaymentID)
	assert.Zero(t, notifier.Calls)
}

func TestExecute_ExplicitMethod(t *testing.T) {
	h, mockLedger, _ := createTestHandler(t)
	mockLedger.Result = appliedResult()

	input := collectionInput()
	input.Method = "bank_transfer"

	_, err := h.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, models.MethodBankTransfer, mockLedger.LastEvent.Method)
}

// ==========================
// Error Handling Tests
// ==========================

func TestExecute_UnknownLoanSurfaces(t *testing.T) {
	h, mockLedger, _ := createTestHandler(t)
	mockLedger.Err = errors.NewLoanNotFoundError(testLoanID.String())

	_, err := h.Execute(context.Background(), collectionInput())
	require.Error(t, err, "a collector typing a wrong loan id must hear about it")
	assert.True(t, errors.IsCode(err, errors.ErrCodeLoanNotFound))
}

func TestExecute_UnauthorizedCollector(t *testing.T) {
	mockLedger := &MockLedger{}
	h := NewHandler(LoadConfig(), mockLedger, denyingAuthorizer{}, nil, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), collectionInput())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAuthorizationFailed))
	assert.Nil(t, mockLedger.LastEvent)
}

func TestExecute_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"bad loan id", func(in *Input) { in.LoanID = "not-a-uuid" }},
		{"zero amount", func(in *Input) { in.Amount = "0" }},
		{"negative amount", func(in *Input) { in.Amount = "-10" }},
		{"amount not a number", func(in *Input) { in.Amount = "five hundred" }},
		{"missing collector", func(in *Input) { in.CollectorID = "" }},
		{"bad payment date", func(in *Input) { in.PaymentDate = "yesterday" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := createTestHandler(t)

			input := collectionInput()
			tt.mutate(input)

			_, err := h.Execute(context.Background(), input)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
		})
	}
}
