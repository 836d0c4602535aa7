// test/e2e/e2e_test.go
// Full lifecycle test against real Postgres and Redis: approve an
// application, pay the loan down through the webhook path, replay the
// event, collect cash manually and refund a payment.
//
// Requires running infrastructure. Enable with E2E_TESTS=true.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-workers/internal/common/auth"
	"lending-workers/internal/common/config"
	"lending-workers/internal/common/database"
	"lending-workers/internal/common/logger"
	"lending-workers/internal/lending/ledger"
	"lending-workers/internal/lending/limits"
	"lending-workers/internal/lending/origination"
	"lending-workers/internal/lending/providers"
	"lending-workers/internal/lending/scoring"

	applicationreview "lending-workers/internal/workers/loans/application-review"
	manualcollection "lending-workers/internal/workers/payments/manual-collection"
	providerwebhook "lending-workers/internal/workers/payments/provider-webhook"
)

type testEnv struct {
	cfg *config.Config
	pg  *database.PostgresClient
	rdb *database.RedisClient
	log logger.Logger

	clientID      uuid.UUID
	applicationID uuid.UUID
}

func setup(t *testing.T) *testEnv {
	if os.Getenv("E2E_TESTS") != "true" {
		t.Skip("set E2E_TESTS=true to run against real infrastructure")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err)
	require.NoError(t, pg.Ping(context.Background()), "postgres unreachable")

	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err)
	require.NoError(t, rdb.Ping(context.Background()), "redis unreachable")

	require.NoError(t, database.Migrate(pg.DB, "../../migrations"))

	env := &testEnv{
		cfg: cfg,
		pg:  pg,
		rdb: rdb,
		log: logger.NewTestLogger(t),
	}
	env.seed(t)

	t.Cleanup(func() {
		pg.Close()
		rdb.Close()
	})

	return env
}

// seed inserts a client with a plan and one pending application. Fresh UUIDs
// per run keep repeated runs from colliding.
func (env *testEnv) seed(t *testing.T) {
	ctx := context.Background()
	env.clientID = uuid.New()
	env.applicationID = uuid.New()

	_, err := env.pg.DB.ExecContext(ctx,
		`INSERT INTO clients (id, full_name, email, phone) VALUES ($1, $2, $3, $4)`,
		env.clientID, "E2E Client", fmt.Sprintf("e2e-%s@example.com", env.clientID), "")
	require.NoError(t, err)

	_, err = env.pg.DB.ExecContext(ctx,
		`INSERT INTO lending_plans (client_id, name, max_principal, max_term_months, max_active_loans, is_active)
		VALUES ($1, 'e2e', 1000000, 120, 0, TRUE)`,
		env.clientID)
	require.NoError(t, err)

	_, err = env.pg.DB.ExecContext(ctx,
		`INSERT INTO credit_applications (id, client_id, requested_amount, requested_term_months, purpose, status)
		VALUES ($1, $2, 12000, 12, 'working capital', 'PENDING')`,
		env.applicationID, env.clientID)
	require.NoError(t, err)
}

func (env *testEnv) reviewHandler() *applicationreview.Handler {
	service := origination.NewService(env.pg.DB, env.cfg.Lending.LoanNumberPrefix, env.log)
	gate := limits.NewGate(env.pg.DB, env.rdb.Client, env.log)
	scores := noScores{}
	return applicationreview.NewHandler(applicationreview.LoadConfig(),
		env.pg.DB, service, gate, auth.StaticAuthorizer{}, scores, noNotifications{}, env.log)
}

func (env *testEnv) webhookHandler() *providerwebhook.Handler {
	paymentLedger := ledger.NewService(env.pg.DB, env.log)
	configs := providers.NewStore(env.pg.DB, env.log)
	return providerwebhook.NewHandler(providerwebhook.LoadConfig(),
		configs, paymentLedger, nil, nil, env.log)
}

func (env *testEnv) collectionHandler() *manualcollection.Handler {
	paymentLedger := ledger.NewService(env.pg.DB, env.log)
	return manualcollection.NewHandler(manualcollection.LoadConfig(),
		paymentLedger, auth.StaticAuthorizer{}, nil, env.log)
}

func TestLendingLifecycle(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	// Approve the application. A loan and its schedule must come out.
	review, err := env.reviewHandler().Execute(ctx, &applicationreview.Input{
		ApplicationID:      env.applicationID.String(),
		ReviewerID:         "e2e-reviewer",
		Decision:           "approved",
		ApprovedAmount:     "12000",
		ApprovedTermMonths: 12,
		InterestRate:       "0.12",
	})
	require.NoError(t, err)
	require.NotEmpty(t, review.LoanID)
	require.NotEmpty(t, review.LoanNumber)

	loanID := review.LoanID

	// Publish a provider config so the webhook path can map statuses.
	provider := fmt.Sprintf("e2e-gateway-%s", uuid.New())
	configs := providers.NewStore(env.pg.DB, env.log)
	_, err = configs.Publish(ctx, provider, providers.Settings{
		StatusMap:     map[string]string{"SUCCESS": "COMPLETED", "REVERSED": "REFUNDED"},
		DefaultMethod: "CARD",
	})
	require.NoError(t, err)

	webhook := env.webhookHandler()
	txnID := "e2e-txn-" + uuid.New().String()
	payload := fmt.Sprintf(`{
		"transactionId": %q,
		"status": "SUCCESS",
		"amount": "1000",
		"metadata": {"loanId": %q}
	}`, txnID, loanID)

	// First delivery applies the payment.
	out, err := webhook.Execute(ctx, &providerwebhook.Input{
		Provider: provider,
		Payload:  json.RawMessage(payload),
	})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, "11000.00", out.NewBalance)

	// Redelivery of the same transaction is acknowledged without effect.
	out, err = webhook.Execute(ctx, &providerwebhook.Input{
		Provider: provider,
		Payload:  json.RawMessage(payload),
	})
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Equal(t, "11000.00", loanBalance(t, env, loanID))

	// A field collector records cash against the same loan.
	collection, err := env.collectionHandler().Execute(ctx, &manualcollection.Input{
		LoanID:        loanID,
		Amount:        "500",
		CollectorID:   "e2e-collector",
		ReceiptNumber: "e2e-rcp-" + uuid.New().String(),
	})
	require.NoError(t, err)
	assert.Equal(t, "10500.00", collection.NewBalance)

	// The gateway reverses its payment; the balance comes back.
	refundPayload := fmt.Sprintf(`{
		"transactionId": %q,
		"originalTransactionId": %q,
		"status": "REVERSED",
		"amount": "1000"
	}`, "e2e-ref-"+uuid.New().String(), txnID)

	out, err = webhook.Execute(ctx, &providerwebhook.Input{
		Provider: provider,
		Payload:  json.RawMessage(refundPayload),
	})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, "11500.00", out.NewBalance)
	assert.Equal(t, "11500.00", loanBalance(t, env, loanID))
}

func loanBalance(t *testing.T, env *testEnv, loanID string) string {
	var balance decimal.Decimal
	err := env.pg.DB.QueryRow(`SELECT balance_remaining FROM loans WHERE id = $1`, loanID).Scan(&balance)
	require.NoError(t, err)
	return balance.StringFixed(2)
}

// noScores stands in for the scoring service; the review treats a scoring
// failure as advisory and proceeds.
type noScores struct{}

func (noScores) GetScore(_ context.Context, _ uuid.UUID) (*scoring.Score, error) {
	return nil, fmt.Errorf("scoring service not part of this test")
}

// noNotifications swallows review notifications.
type noNotifications struct{}

func (noNotifications) LoanApproved(_ context.Context, _ uuid.UUID, _ string, _ decimal.Decimal) error {
	return nil
}

func (noNotifications) ApplicationRejected(_ context.Context, _ uuid.UUID, _ string) error {
	return nil
}
