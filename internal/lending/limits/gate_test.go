// internal/lending/limits/gate_test.go
package limits

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-workers/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

var testClientID = uuid.MustParse("8ba7b810-9dad-11d1-80b4-00c04fd430c8")

const (
	planQuery = `SELECT client_id, name, max_principal, max_term_months, max_active_loans, is_active
		FROM lending_plans WHERE client_id = $1`
	activeLoansQuery = `SELECT COUNT(*) FROM loans WHERE client_id = $1 AND status = 'ACTIVE'`
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func createTestGate(t *testing.T) (*Gate, sqlmock.Sqlmock, redismock.ClientMock, func()) {
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	rdb, redisMock := redismock.NewClientMock()
	gate := NewGate(db, rdb, logger.NewTestLogger(t))
	return gate, dbMock, redisMock, func() { db.Close() }
}

func testPlan() Plan {
	return Plan{
		ClientID:       testClientID.String(),
		Name:           "standard",
		MaxPrincipal:   dec("100000"),
		MaxTermMonths:  60,
		MaxActiveLoans: 2,
		IsActive:       true,
	}
}

func planRows(p Plan) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"client_id", "name", "max_principal", "max_term_months", "max_active_loans", "is_active",
	}).AddRow(p.ClientID, p.Name, p.MaxPrincipal.String(), p.MaxTermMonths, p.MaxActiveLoans, p.IsActive)
}

func expectPlanLookup(dbMock sqlmock.Sqlmock, redisMock redismock.ClientMock, p Plan) {
	redisMock.ExpectGet("plan:" + testClientID.String()).RedisNil()
	dbMock.ExpectQuery(regexp.QuoteMeta(planQuery)).
		WithArgs(testClientID).
		WillReturnRows(planRows(p))
	data, _ := json.Marshal(p)
	redisMock.ExpectSet("plan:"+testClientID.String(), data, planCacheTTL).SetVal("OK")
}

// ==========================
// Core Functionality Tests
// ==========================

func TestCheck_AllowedWithinPlan(t *testing.T) {
	gate, dbMock, redisMock, cleanup := createTestGate(t)
	defer cleanup()

	expectPlanLookup(dbMock, redisMock, testPlan())
	dbMock.ExpectQuery(regexp.QuoteMeta(activeLoansQuery)).
		WithArgs(testClientID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	decision, err := gate.Check(context.Background(), testClientID, dec("50000"), 36)
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.Reason)
	require.NotNil(t, decision.Plan)
	assert.Equal(t, "standard", decision.Plan.Name)

	assert.NoError(t, dbMock.ExpectationsWereMet())
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestCheck_CacheHitSkipsDatabaseLookup(t *testing.T) {
	gate, dbMock, redisMock, cleanup := createTestGate(t)
	defer cleanup()

	data, _ := json.Marshal(testPlan())
	redisMock.ExpectGet("plan:" + testClientID.String()).SetVal(string(data))
	dbMock.ExpectQuery(regexp.QuoteMeta(activeLoansQuery)).
		WithArgs(testClientID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	decision, err := gate.Check(context.Background(), testClientID, dec("50000"), 36)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	assert.NoError(t, dbMock.ExpectationsWereMet())
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestCheck_NoPlanBlocks(t *testing.T) {
	gate, dbMock, redisMock, cleanup := createTestGate(t)
	defer cleanup()

	redisMock.ExpectGet("plan:" + testClientID.String()).RedisNil()
	dbMock.ExpectQuery(regexp.QuoteMeta(planQuery)).
		WithArgs(testClientID).
		WillReturnRows(sqlmock.NewRows([]string{
			"client_id", "name", "max_principal", "max_term_months", "max_active_loans", "is_active",
		}))

	decision, err := gate.Check(context.Background(), testClientID, dec("50000"), 36)
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "no lending plan")
	assert.Nil(t, decision.Plan)
}

func TestCheck_DeactivatedPlanBlocks(t *testing.T) {
	gate, dbMock, redisMock, cleanup := createTestGate(t)
	defer cleanup()

	plan := testPlan()
	plan.IsActive = false
	expectPlanLookup(dbMock, redisMock, plan)

	decision, err := gate.Check(context.Background(), testClientID, dec("50000"), 36)
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "deactivated")
}

// ==========================
// Limit Tests
// ==========================

func TestCheck_AmountAboveLimit(t *testing.T) {
	gate, dbMock, redisMock, cleanup := createTestGate(t)
	defer cleanup()

	expectPlanLookup(dbMock, redisMock, testPlan())

	decision, err := gate.Check(context.Background(), testClientID, dec("100000.01"), 36)
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "exceeds plan limit")
}

func TestCheck_TermAboveLimit(t *testing.T) {
	gate, dbMock, redisMock, cleanup := createTestGate(t)
	defer cleanup()

	expectPlanLookup(dbMock, redisMock, testPlan())

	decision, err := gate.Check(context.Background(), testClientID, dec("50000"), 72)
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "term 72 exceeds plan limit 60")
}

func TestCheck_ActiveLoanCapReached(t *testing.T) {
	gate, dbMock, redisMock, cleanup := createTestGate(t)
	defer cleanup()

	expectPlanLookup(dbMock, redisMock, testPlan())
	dbMock.ExpectQuery(regexp.QuoteMeta(activeLoansQuery)).
		WithArgs(testClientID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	decision, err := gate.Check(context.Background(), testClientID, dec("50000"), 36)
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "active loans")
}

func TestCheck_ExactLimitsAllowed(t *testing.T) {
	gate, dbMock, redisMock, cleanup := createTestGate(t)
	defer cleanup()

	expectPlanLookup(dbMock, redisMock, testPlan())
	dbMock.ExpectQuery(regexp.QuoteMeta(activeLoansQuery)).
		WithArgs(testClientID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	decision, err := gate.Check(context.Background(), testClientID, dec("100000"), 60)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
