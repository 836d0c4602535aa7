// internal/lending/ledger/ledger.go
// Package ledger applies normalized payment events to loan balances.
//
// Every event becomes at most one ledger effect. The unique
// (provider, provider_transaction_id) constraint on payment_transactions is
// the idempotency key: redelivery of an already-recorded event is a no-op,
// and two near-simultaneous deliveries race on the constraint rather than on
// application code. Balance changes always commit in the same transaction as
// the Payment and PaymentTransaction rows they belong to.
package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"lending-workers/internal/common/errors"
	"lending-workers/internal/common/logger"
	"lending-workers/internal/models"
)

// Result reports what a payment event did to the ledger.
type Result struct {
	// Applied is true when a balance effect was committed.
	Applied bool
	// Duplicate is true when the event was already recorded with the same
	// status; nothing changed and the caller should acknowledge success.
	Duplicate bool
	// DropReason is set when the event was accepted but intentionally not
	// applied (forbidden status transition).
	DropReason string

	Payment     *models.Payment
	LoanNumber  string
	NewBalance  decimal.Decimal
	LoanPaidOff bool
}

type Service struct {
	db     *sql.DB
	logger logger.Logger
}

func NewService(db *sql.DB, log logger.Logger) *Service {
	return &Service{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "ledger"}),
	}
}

// RecordPaymentEvent applies one normalized event. Concurrent events on the
// same loan serialize on the loan row lock; concurrent deliveries of the
// same event serialize on the transaction row lock or, when both race past
// the existence check, on the uniqueness constraint itself.
func (s *Service) RecordPaymentEvent(ctx context.Context, ev *models.PaymentEvent) (*Result, error) {
	if err := validateEvent(ev); err != nil {
		return nil, err
	}

	var (
		result *Result
		err    error
	)
	if ev.Status == models.TransactionRefunded {
		result, err = s.applyRefund(ctx, ev)
	} else {
		result, err = s.record(ctx, ev)
	}

	if err != nil && isUniqueViolation(err) {
		// Lost the insert race against a concurrent delivery of the same
		// event. The winner recorded it; treat this delivery as a duplicate.
		s.logger.Info("concurrent duplicate event", map[string]interface{}{
			"provider":              ev.Provider,
			"providerTransactionId": ev.ProviderTransactionID,
		})
		return &Result{Duplicate: true}, nil
	}

	return result, err
}

func validateEvent(ev *models.PaymentEvent) error {
	if ev.Provider == "" {
		return errors.NewUnprocessableEventError("event has no provider")
	}
	if ev.ProviderTransactionID == "" && ev.OriginalTransactionID == "" {
		return errors.NewUnprocessableEventError("event has no provider transaction id")
	}
	if ev.Status != models.TransactionRefunded && !ev.Amount.IsPositive() {
		return errors.NewUnprocessableEventError(
			fmt.Sprintf("event amount must be positive, got %s", ev.Amount))
	}
	return nil
}

func (s *Service) record(ctx context.Context, ev *models.PaymentEvent) (*Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewPersistenceError("begin ledger tx", err)
	}
	defer tx.Rollback()

	existing, err := s.lockTransaction(ctx, tx, ev.Provider, ev.ProviderTransactionID)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var txnID uuid.UUID

	if existing != nil {
		if existing.Status == ev.Status {
			return &Result{Duplicate: true}, nil
		}
		if !existing.Status.CanTransitionTo(ev.Status) {
			s.logger.Warn("dropping event with forbidden status transition", map[string]interface{}{
				"provider":              ev.Provider,
				"providerTransactionId": ev.ProviderTransactionID,
				"storedStatus":          string(existing.Status),
				"eventStatus":           string(ev.Status),
			})
			return &Result{
				DropReason: fmt.Sprintf("transition %s -> %s not permitted", existing.Status, ev.Status),
			}, nil
		}
		txnID = existing.ID
	} else {
		txnID = uuid.New()
		insert := `INSERT INTO payment_transactions (id, provider, provider_transaction_id, amount, status, raw_payload, processed_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())`
		if _, err := tx.ExecContext(ctx, insert,
			txnID, ev.Provider, ev.ProviderTransactionID, ev.Amount, ev.Status, []byte(ev.RawPayload),
		); err != nil {
			if isUniqueViolation(err) {
				return nil, err
			}
			return nil, errors.NewPersistenceError("insert payment transaction", err)
		}
	}

	if ev.Status == models.TransactionCompleted {
		if err := s.applyCompletion(ctx, tx, ev, txnID, result); err != nil {
			return nil, err
		}
	} else if existing != nil {
		update := `UPDATE payment_transactions SET status = $1, processed_at = NOW() WHERE id = $2`
		if _, err := tx.ExecContext(ctx, update, ev.Status, txnID); err != nil {
			return nil, errors.NewPersistenceError("update payment transaction", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewPersistenceError("commit ledger tx", err)
	}

	return result, nil
}

// applyCompletion performs the balance decrement atomically with the Payment
// row. The loan row lock is the per-loan serialization point.
func (s *Service) applyCompletion(ctx context.Context, tx *sql.Tx, ev *models.PaymentEvent, txnID uuid.UUID, result *Result) error {
	loan, err := s.lockLoan(ctx, tx, ev.LoanID)
	if err != nil {
		return err
	}

	newBalance := loan.BalanceRemaining.Sub(ev.Amount)
	if newBalance.IsNegative() {
		// Overpayment clamps at zero; the loan is simply paid off.
		newBalance = decimal.Zero
	}

	status := loan.Status
	if newBalance.IsZero() && status == models.LoanActive {
		status = models.LoanPaidOff
	}

	payment := &models.Payment{
		ID:          uuid.New(),
		LoanID:      loan.ID,
		ClientID:    loan.ClientID,
		Amount:      ev.Amount,
		PaymentDate: ev.PaymentDate,
		Method:      ev.Method,
		Status:      models.PaymentCompleted,
		Reference:   ev.Reference,
		ProcessedBy: ev.ProcessedBy,
	}

	insertPayment := `INSERT INTO payments (id, loan_id, client_id, amount, payment_date, method, status, reference, processed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`
	if _, err := tx.ExecContext(ctx, insertPayment,
		payment.ID, payment.LoanID, payment.ClientID, payment.Amount, payment.PaymentDate,
		payment.Method, payment.Status, payment.Reference, payment.ProcessedBy,
	); err != nil {
		return errors.NewPersistenceError("insert payment", err)
	}

	updateLoan := `UPDATE loans SET balance_remaining = $1, status = $2, updated_at = NOW() WHERE id = $3`
	if _, err := tx.ExecContext(ctx, updateLoan, newBalance, status, loan.ID); err != nil {
		return errors.NewPersistenceError("update loan balance", err)
	}

	updateTxn := `UPDATE payment_transactions SET status = $1, payment_id = $2, processed_at = NOW() WHERE id = $3`
	if _, err := tx.ExecContext(ctx, updateTxn, models.TransactionCompleted, payment.ID, txnID); err != nil {
		return errors.NewPersistenceError("update payment transaction", err)
	}

	if err := s.markScheduleEntryPaid(ctx, tx, loan.ID, ev.PaymentNumber); err != nil {
		return err
	}

	result.Applied = true
	result.Payment = payment
	result.LoanNumber = loan.LoanNumber
	result.NewBalance = newBalance
	result.LoanPaidOff = status == models.LoanPaidOff && loan.Status == models.LoanActive

	return nil
}

// markScheduleEntryPaid flips isPaid on the referenced entry, or on the
// earliest unpaid entry when the event names none. Informational only; the
// balance on the loan row stays authoritative either way.
func (s *Service) markScheduleEntryPaid(ctx context.Context, tx *sql.Tx, loanID uuid.UUID, paymentNumber int) error {
	var query string
	var args []interface{}
	if paymentNumber > 0 {
		query = `UPDATE amortization_schedule SET is_paid = TRUE WHERE loan_id = $1 AND payment_number = $2`
		args = []interface{}{loanID, paymentNumber}
	} else {
		query = `UPDATE amortization_schedule SET is_paid = TRUE
			WHERE loan_id = $1 AND payment_number = (
				SELECT MIN(payment_number) FROM amortization_schedule WHERE loan_id = $1 AND NOT is_paid
			)`
		args = []interface{}{loanID}
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return errors.NewPersistenceError("mark schedule entry paid", err)
	}
	return nil
}

// applyRefund reverses a prior COMPLETED payment. The refund event may carry
// its own transaction id plus a reference to the original, or reuse the
// original id with a REFUNDED status; both shapes end up here.
func (s *Service) applyRefund(ctx context.Context, ev *models.PaymentEvent) (*Result, error) {
	originalID := ev.OriginalTransactionID
	if originalID == "" {
		originalID = ev.ProviderTransactionID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewPersistenceError("begin refund tx", err)
	}
	defer tx.Rollback()

	// Idempotency of the refund event itself, when it has a distinct id.
	if ev.ProviderTransactionID != "" && ev.ProviderTransactionID != originalID {
		refundTxn, err := s.lockTransaction(ctx, tx, ev.Provider, ev.ProviderTransactionID)
		if err != nil {
			return nil, err
		}
		if refundTxn != nil {
			return &Result{Duplicate: true}, nil
		}
	}

	original, err := s.lockTransaction(ctx, tx, ev.Provider, originalID)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, errors.NewUnprocessableEventError(
			fmt.Sprintf("refund references unknown transaction %s/%s", ev.Provider, originalID))
	}
	if original.Status == models.TransactionRefunded {
		return &Result{Duplicate: true}, nil
	}
	if original.Status != models.TransactionCompleted || original.PaymentID == nil {
		return nil, errors.NewUnprocessableEventError(
			fmt.Sprintf("refund of transaction %s/%s in status %s", ev.Provider, originalID, original.Status))
	}

	var payment models.Payment
	paymentQuery := `SELECT id, loan_id, client_id, amount, status FROM payments WHERE id = $1 FOR UPDATE`
	err = tx.QueryRowContext(ctx, paymentQuery, *original.PaymentID).Scan(
		&payment.ID, &payment.LoanID, &payment.ClientID, &payment.Amount, &payment.Status,
	)
	if err != nil {
		return nil, errors.NewPersistenceError("lock payment for refund", err)
	}

	loan, err := s.lockLoan(ctx, tx, payment.LoanID)
	if err != nil {
		return nil, err
	}

	newBalance := loan.BalanceRemaining.Add(payment.Amount)
	if newBalance.GreaterThan(loan.PrincipalAmount) {
		newBalance = loan.PrincipalAmount
	}

	status := loan.Status
	if status == models.LoanPaidOff && newBalance.IsPositive() {
		status = models.LoanActive
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = $1 WHERE id = $2`,
		models.PaymentRefunded, payment.ID,
	); err != nil {
		return nil, errors.NewPersistenceError("update refunded payment", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE loans SET balance_remaining = $1, status = $2, updated_at = NOW() WHERE id = $3`,
		newBalance, status, loan.ID,
	); err != nil {
		return nil, errors.NewPersistenceError("update loan balance", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE payment_transactions SET status = $1, processed_at = NOW() WHERE id = $2`,
		models.TransactionRefunded, original.ID,
	); err != nil {
		return nil, errors.NewPersistenceError("update refunded transaction", err)
	}

	// Record the refund event under its own id so its redelivery dedups
	// through the same uniqueness constraint as everything else.
	if ev.ProviderTransactionID != "" && ev.ProviderTransactionID != originalID {
		insert := `INSERT INTO payment_transactions (id, provider, provider_transaction_id, amount, status, payment_id, raw_payload, processed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`
		if _, err := tx.ExecContext(ctx, insert,
			uuid.New(), ev.Provider, ev.ProviderTransactionID, payment.Amount,
			models.TransactionRefunded, payment.ID, []byte(ev.RawPayload),
		); err != nil {
			if isUniqueViolation(err) {
				return nil, err
			}
			return nil, errors.NewPersistenceError("insert refund transaction", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewPersistenceError("commit refund tx", err)
	}

	payment.Status = models.PaymentRefunded

	return &Result{
		Applied:    true,
		Payment:    &payment,
		LoanNumber: loan.LoanNumber,
		NewBalance: newBalance,
	}, nil
}

type lockedTransaction struct {
	ID        uuid.UUID
	Status    models.TransactionStatus
	PaymentID *uuid.UUID
}

func (s *Service) lockTransaction(ctx context.Context, tx *sql.Tx, provider, providerTxnID string) (*lockedTransaction, error) {
	query := `SELECT id, status, payment_id FROM payment_transactions
		WHERE provider = $1 AND provider_transaction_id = $2 FOR UPDATE`

	var txn lockedTransaction
	var paymentID uuid.NullUUID
	err := tx.QueryRowContext(ctx, query, provider, providerTxnID).Scan(&txn.ID, &txn.Status, &paymentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewPersistenceError("lock payment transaction", err)
	}
	if paymentID.Valid {
		txn.PaymentID = &paymentID.UUID
	}

	return &txn, nil
}

func (s *Service) lockLoan(ctx context.Context, tx *sql.Tx, loanID uuid.UUID) (*models.Loan, error) {
	query := `SELECT id, loan_number, client_id, principal_amount, balance_remaining, status
		FROM loans WHERE id = $1 FOR UPDATE`

	var loan models.Loan
	err := tx.QueryRowContext(ctx, query, loanID).Scan(
		&loan.ID, &loan.LoanNumber, &loan.ClientID,
		&loan.PrincipalAmount, &loan.BalanceRemaining, &loan.Status,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewLoanNotFoundError(loanID.String())
	}
	if err != nil {
		return nil, errors.NewPersistenceError("lock loan", err)
	}

	return &loan, nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
