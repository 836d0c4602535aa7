// internal/workers/loans/application-review/handler_test.go
package applicationreview

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-workers/internal/common/auth"
	"lending-workers/internal/common/errors"
	"lending-workers/internal/common/logger"
	"lending-workers/internal/lending/limits"
	"lending-workers/internal/lending/origination"
	"lending-workers/internal/lending/scoring"
	"lending-workers/internal/models"
)

// ==========================
// Mock Implementations
// ==========================

type MockReviewService struct {
	ReviewFunc func(ctx context.Context, cmd origination.ReviewCommand) (*origination.ReviewResult, error)
	LastCmd    *origination.ReviewCommand
}

func (m *MockReviewService) Review(ctx context.Context, cmd origination.ReviewCommand) (*origination.ReviewResult, error) {
	m.LastCmd = &cmd
	return m.ReviewFunc(ctx, cmd)
}

type MockGate struct {
	Decision *limits.Decision
	Err      error
}

func (m *MockGate) Check(_ context.Context, _ uuid.UUID, _ decimal.Decimal, _ int) (*limits.Decision, error) {
	return m.Decision, m.Err
}

type MockScores struct {
	Score *scoring.Score
	Err   error
}

func (m *MockScores) GetScore(_ context.Context, _ uuid.UUID) (*scoring.Score, error) {
	return m.Score, m.Err
}

type MockNotifier struct {
	ApprovedCalls []string
	RejectedCalls []string
	Err           error
}

func (m *MockNotifier) LoanApproved(_ context.Context, _ uuid.UUID, loanNumber string, _ decimal.Decimal) error {
	m.ApprovedCalls = append(m.ApprovedCalls, loanNumber)
	return m.Err
}

func (m *MockNotifier) ApplicationRejected(_ context.Context, _ uuid.UUID, comments string) error {
	m.RejectedCalls = append(m.RejectedCalls, comments)
	return m.Err
}

type denyingAuthorizer struct{}

func (denyingAuthorizer) CanReview(_ context.Context, actorID string) error {
	return errors.NewAuthorizationError("actor " + actorID + " is missing role " + auth.RoleCreditReviewer)
}
func (denyingAuthorizer) CanOriginate(_ context.Context, _ string) error { return nil }
func (denyingAuthorizer) CanCollect(_ context.Context, _ string) error   { return nil }

// ==========================
// Test Helper Functions
// ==========================

var (
	testAppID    = uuid.MustParse("cba7b810-9dad-11d1-80b4-00c04fd430c8")
	testClientID = uuid.MustParse("cba7b811-9dad-11d1-80b4-00c04fd430c8")
	testLoanID   = uuid.MustParse("cba7b812-9dad-11d1-80b4-00c04fd430c8")
)

type testDeps struct {
	handler  *Handler
	dbMock   sqlmock.Sqlmock
	service  *MockReviewService
	gate     *MockGate
	notifier *MockNotifier
	cleanup  func()
}

func createTestHandler(t *testing.T) *testDeps {
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)

	service := &MockReviewService{}
	gate := &MockGate{Decision: &limits.Decision{Allowed: true}}
	notifier := &MockNotifier{}
	scores := &MockScores{Score: &scoring.Score{Score: 712, RiskBand: "B"}}

	h := NewHandler(LoadConfig(), db, service, gate, auth.StaticAuthorizer{}, scores, notifier, logger.NewTestLogger(t))

	return &testDeps{
		handler:  h,
		dbMock:   dbMock,
		service:  service,
		gate:     gate,
		notifier: notifier,
		cleanup:  func() { db.Close() },
	}
}

func approveInput() *Input {
	return &Input{
		ApplicationID:      testAppID.String(),
		ReviewerID:         "reviewer-1",
		Decision:           "APPROVED",
		Comments:           "approved within policy",
		ApprovedAmount:     "50000",
		ApprovedTermMonths: 24,
		InterestRate:       "0.015",
	}
}

func approvedResult() *origination.ReviewResult {
	return &origination.ReviewResult{
		Application: &models.CreditApplication{ID: testAppID, ClientID: testClientID, Status: models.ApplicationApproved},
		Loan: &models.Loan{
			ID:             testLoanID,
			LoanNumber:     "LN-000042",
			MonthlyPayment: decimal.RequireFromString("2446.75"),
			TotalAmount:    decimal.RequireFromString("58722.05"),
			EndDate:        time.Date(2028, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func expectClientLookup(dbMock sqlmock.Sqlmock) {
	dbMock.ExpectQuery(regexp.QuoteMeta(`SELECT client_id FROM credit_applications WHERE id = $1`)).
		WithArgs(testAppID).
		WillReturnRows(sqlmock.NewRows([]string{"client_id"}).AddRow(testClientID.String()))
}

// ==========================
// Core Functionality Tests
// ==========================

func TestExecute_Approve(t *testing.T) {
	deps := createTestHandler(t)
	defer deps.cleanup()

	expectClientLookup(deps.dbMock)
	deps.service.ReviewFunc = func(ctx context.Context, cmd origination.ReviewCommand) (*origination.ReviewResult, error) {
		return approvedResult(), nil
	}

	output, err := deps.handler.Execute(context.Background(), approveInput())
	require.NoError(t, err)

	assert.Equal(t, "APPROVED", output.Status)
	assert.Equal(t, "LN-000042", output.LoanNumber)
	assert.Equal(t, "2446.75", output.MonthlyPayment)
	assert.Equal(t, 712, output.CreditScore)
	assert.Equal(t, "B", output.RiskBand)
	assert.NotEmpty(t, output.ReviewedAt)

	require.NotNil(t, deps.service.LastCmd)
	assert.Equal(t, models.ApplicationApproved, deps.service.LastCmd.Status)
	require.NotNil(t, deps.service.LastCmd.Terms)
	assert.True(t, deps.service.LastCmd.Terms.Amount.Equal(decimal.RequireFromString("50000")))

	assert.Equal(t, []string{"LN-000042"}, deps.notifier.ApprovedCalls)
}

func TestExecute_Reject(t *testing.T) {
	deps := createTestHandler(t)
	defer deps.cleanup()

	deps.service.ReviewFunc = func(ctx context.Context, cmd origination.ReviewCommand) (*origination.ReviewResult, error) {
		return &origination.ReviewResult{
			Application: &models.CreditApplication{ID: testAppID, ClientID: testClientID, Status: models.ApplicationRejected},
		}, nil
	}

	output, err := deps.handler.Execute(context.Background(), &Input{
		ApplicationID: testAppID.String(),
		ReviewerID:    "reviewer-1",
		Decision:      "REJECTED",
		Comments:      "insufficient income",
	})
	require.NoError(t, err)

	assert.Equal(t, "REJECTED", output.Status)
	assert.Empty(t, output.LoanNumber)
	assert.Equal(t, []string{"insufficient income"}, deps.notifier.RejectedCalls)
}

func TestExecute_ScoringOutageDoesNotBlock(t *testing.T) {
	deps := createTestHandler(t)
	defer deps.cleanup()

	expectClientLookup(deps.dbMock)
	deps.handler.scores = &MockScores{Err: assert.AnError}
	deps.service.ReviewFunc = func(ctx context.Context, cmd origination.ReviewCommand) (*origination.ReviewResult, error) {
		return approvedResult(), nil
	}

	output, err := deps.handler.Execute(context.Background(), approveInput())
	require.NoError(t, err)
	assert.Zero(t, output.CreditScore)
	assert.Equal(t, "LN-000042", output.LoanNumber)
}

func TestExecute_NotificationFailureDoesNotFailReview(t *testing.T) {
	deps := createTestHandler(t)
	defer deps.cleanup()

	expectClientLookup(deps.dbMock)
	deps.notifier.Err = assert.AnError
	deps.service.ReviewFunc = func(ctx context.Context, cmd origination.ReviewCommand) (*origination.ReviewResult, error) {
		return approvedResult(), nil
	}

	_, err := deps.handler.Execute(context.Background(), approveInput())
	require.NoError(t, err)
}

// ==========================
// Error Handling Tests
// ==========================

func TestExecute_GateBlocksApproval(t *testing.T) {
	deps := createTestHandler(t)
	defer deps.cleanup()

	expectClientLookup(deps.dbMock)
	deps.gate.Decision = &limits.Decision{Allowed: false, Reason: "amount 50000 exceeds plan limit 20000"}

	_, err := deps.handler.Execute(context.Background(), approveInput())
	require.Error(t, err)

	assert.True(t, errors.IsCode(err, errors.ErrCodeLimitExceeded))
	assert.Nil(t, deps.service.LastCmd, "a blocked approval must never reach the review service")
}

func TestExecute_UnauthorizedReviewer(t *testing.T) {
	deps := createTestHandler(t)
	defer deps.cleanup()

	deps.handler.authorizer = denyingAuthorizer{}

	_, err := deps.handler.Execute(context.Background(), approveInput())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAuthorizationFailed))
}

func TestExecute_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"bad application id", func(in *Input) { in.ApplicationID = "not-a-uuid" }},
		{"missing reviewer", func(in *Input) { in.ReviewerID = "" }},
		{"bad amount", func(in *Input) { in.ApprovedAmount = "fifty grand" }},
		{"bad rate", func(in *Input) { in.InterestRate = "one percent" }},
		{"bad start date", func(in *Input) { in.StartDate = "tomorrow" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := createTestHandler(t)
			defer deps.cleanup()

			input := approveInput()
			tt.mutate(input)

			_, err := deps.handler.Execute(context.Background(), input)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
		})
	}
}

func TestExecute_ReviewErrorPassesThrough(t *testing.T) {
	deps := createTestHandler(t)
	defer deps.cleanup()

	deps.service.ReviewFunc = func(ctx context.Context, cmd origination.ReviewCommand) (*origination.ReviewResult, error) {
		return nil, errors.NewStateConflictError("Application review already finalized", "")
	}

	_, err := deps.handler.Execute(context.Background(), &Input{
		ApplicationID: testAppID.String(),
		ReviewerID:    "reviewer-1",
		Decision:      "CANCELLED",
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeStateConflict))
}
