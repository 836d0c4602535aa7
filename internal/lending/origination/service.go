// internal/lending/origination/service.go
// Package origination executes credit application reviews. A review is one
// database transaction: the application row is locked, the decision rules
// are checked, and on approval the loan, its full schedule and the
// application update are committed together. Nothing partial ever commits.
package origination

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"lending-workers/internal/common/errors"
	"lending-workers/internal/common/logger"
	"lending-workers/internal/lending/amortization"
	"lending-workers/internal/lending/decision"
	"lending-workers/internal/models"
)

// ReviewCommand is one reviewer action against an application.
type ReviewCommand struct {
	ApplicationID uuid.UUID
	ReviewerID    string
	Status        models.ApplicationStatus
	Comments      string
	// Terms must be set when Status is APPROVED and nil otherwise.
	Terms *decision.ApprovalTerms
	// StartDate is the loan start date; zero value means now.
	StartDate time.Time
}

// ReviewResult carries the post-review application state, plus the loan and
// schedule when the outcome was an approval.
type ReviewResult struct {
	Application *models.CreditApplication
	Loan        *models.Loan
	Schedule    []models.ScheduleEntry
}

type Service struct {
	db     *sql.DB
	prefix string
	logger logger.Logger
}

func NewService(db *sql.DB, loanNumberPrefix string, log logger.Logger) *Service {
	return &Service{
		db:     db,
		prefix: loanNumberPrefix,
		logger: log.WithFields(map[string]interface{}{"component": "origination"}),
	}
}

// Review applies the reviewer's decision. The application row is locked FOR
// UPDATE for the duration, so concurrent reviews of the same application
// serialize; the loser of the race sees a terminal status and gets a state
// conflict. The unique loans.credit_application_id constraint is the second
// guard against double origination.
func (s *Service) Review(ctx context.Context, cmd ReviewCommand) (*ReviewResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewPersistenceError("begin review tx", err)
	}
	defer tx.Rollback()

	app, err := s.lockApplication(ctx, tx, cmd.ApplicationID)
	if err != nil {
		return nil, err
	}

	if err := decision.ValidateTransition(app.Status, cmd.Status); err != nil {
		return nil, err
	}

	result := &ReviewResult{Application: app}

	switch cmd.Status {
	case models.ApplicationApproved:
		if err := decision.ValidateApproval(app, cmd.Terms); err != nil {
			return nil, err
		}
		loan, schedule, err := s.originate(ctx, tx, app, cmd)
		if err != nil {
			return nil, err
		}
		result.Loan = loan
		result.Schedule = schedule
		app.ApprovedAmount = &cmd.Terms.Amount
		app.ApprovedTermMonths = &cmd.Terms.TermMonths
		app.InterestRate = &cmd.Terms.InterestRate

	case models.ApplicationUnderReview:
		query := `UPDATE credit_applications SET status = $1, updated_at = NOW() WHERE id = $2`
		if _, err := tx.ExecContext(ctx, query, cmd.Status, app.ID); err != nil {
			return nil, errors.NewPersistenceError("update application status", err)
		}

	default: // REJECTED, CANCELLED
		query := `UPDATE credit_applications
			SET status = $1, review_comments = $2, reviewed_by = $3, reviewed_at = NOW(), updated_at = NOW()
			WHERE id = $4`
		if _, err := tx.ExecContext(ctx, query, cmd.Status, cmd.Comments, cmd.ReviewerID, app.ID); err != nil {
			return nil, errors.NewPersistenceError("update application status", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewPersistenceError("commit review tx", err)
	}

	app.Status = cmd.Status
	if cmd.Status != models.ApplicationUnderReview {
		app.ReviewComments = cmd.Comments
		app.ReviewedBy = cmd.ReviewerID
		now := time.Now().UTC()
		app.ReviewedAt = &now
	}

	s.logger.Info("application reviewed", map[string]interface{}{
		"applicationId": app.ID.String(),
		"status":        string(cmd.Status),
		"reviewerId":    cmd.ReviewerID,
	})

	return result, nil
}

func (s *Service) lockApplication(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.CreditApplication, error) {
	query := `SELECT id, client_id, requested_amount, requested_term_months, purpose, status, created_at, updated_at
		FROM credit_applications WHERE id = $1 FOR UPDATE`

	var app models.CreditApplication
	err := tx.QueryRowContext(ctx, query, id).Scan(
		&app.ID, &app.ClientID, &app.RequestedAmount, &app.RequestedTermMonths,
		&app.Purpose, &app.Status, &app.CreatedAt, &app.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewApplicationNotFoundError(id.String())
	}
	if err != nil {
		return nil, errors.NewPersistenceError("lock application", err)
	}

	return &app, nil
}

// originate runs steps 1-5 of the approval inside the review transaction:
// loan number allocation, schedule computation, loan insert, schedule insert
// and the application update.
func (s *Service) originate(ctx context.Context, tx *sql.Tx, app *models.CreditApplication, cmd ReviewCommand) (*models.Loan, []models.ScheduleEntry, error) {
	startDate := cmd.StartDate
	if startDate.IsZero() {
		startDate = time.Now().UTC()
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT nextval('loan_number_seq')`).Scan(&seq); err != nil {
		return nil, nil, errors.NewPersistenceError("allocate loan number", err)
	}
	loanNumber := fmt.Sprintf("%s-%06d", s.prefix, seq)

	schedule, err := amortization.Schedule(cmd.Terms.Amount, cmd.Terms.InterestRate, cmd.Terms.TermMonths, startDate)
	if err != nil {
		return nil, nil, err
	}

	loan := &models.Loan{
		ID:                  uuid.New(),
		LoanNumber:          loanNumber,
		CreditApplicationID: app.ID,
		ClientID:            app.ClientID,
		PrincipalAmount:     cmd.Terms.Amount,
		InterestRate:        cmd.Terms.InterestRate,
		TermMonths:          cmd.Terms.TermMonths,
		MonthlyPayment:      amortization.MonthlyPayment(cmd.Terms.Amount, cmd.Terms.InterestRate, cmd.Terms.TermMonths),
		TotalAmount:         amortization.TotalAmount(schedule),
		BalanceRemaining:    cmd.Terms.Amount,
		Status:              models.LoanActive,
		StartDate:           startDate,
		EndDate:             schedule[len(schedule)-1].PaymentDate,
	}

	insertLoan := `INSERT INTO loans (id, loan_number, credit_application_id, client_id, principal_amount,
			interest_rate, term_months, monthly_payment, total_amount, balance_remaining, status,
			start_date, end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())`
	_, err = tx.ExecContext(ctx, insertLoan,
		loan.ID, loan.LoanNumber, loan.CreditApplicationID, loan.ClientID, loan.PrincipalAmount,
		loan.InterestRate, loan.TermMonths, loan.MonthlyPayment, loan.TotalAmount,
		loan.BalanceRemaining, loan.Status, loan.StartDate, loan.EndDate,
	)
	if err != nil {
		if isUniqueViolation(err, "loans_credit_application_id_key") {
			return nil, nil, errors.NewStateConflictError(
				"Application already has a loan",
				fmt.Sprintf("applicationId: %s", app.ID))
		}
		return nil, nil, errors.NewPersistenceError("insert loan", err)
	}

	insertEntry := `INSERT INTO amortization_schedule (id, loan_id, payment_number, payment_date,
			principal_portion, interest_portion, total_payment, remaining_balance, is_paid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)`
	for i := range schedule {
		schedule[i].ID = uuid.New()
		schedule[i].LoanID = loan.ID
		e := schedule[i]
		_, err = tx.ExecContext(ctx, insertEntry,
			e.ID, e.LoanID, e.PaymentNumber, e.PaymentDate,
			e.PrincipalPortion, e.InterestPortion, e.TotalPayment, e.RemainingBalance,
		)
		if err != nil {
			return nil, nil, errors.NewPersistenceError("insert schedule entry", err)
		}
	}

	updateApp := `UPDATE credit_applications
		SET status = $1, approved_amount = $2, approved_term_months = $3, interest_rate = $4,
			review_comments = $5, reviewed_by = $6, reviewed_at = NOW(), updated_at = NOW()
		WHERE id = $7`
	_, err = tx.ExecContext(ctx, updateApp,
		models.ApplicationApproved, cmd.Terms.Amount, cmd.Terms.TermMonths, cmd.Terms.InterestRate,
		cmd.Comments, cmd.ReviewerID, app.ID,
	)
	if err != nil {
		return nil, nil, errors.NewPersistenceError("update approved application", err)
	}

	return loan, schedule, nil
}

func isUniqueViolation(err error, constraint string) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505" && (constraint == "" || pqErr.Constraint == constraint)
	}
	return false
}
