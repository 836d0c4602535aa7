// internal/workers/loans/application-review/handler.go
package applicationreview

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lending-workers/internal/common/auth"
	"lending-workers/internal/common/errors"
	"lending-workers/internal/common/logger"
	"lending-workers/internal/common/metrics"
	"lending-workers/internal/lending/decision"
	"lending-workers/internal/lending/limits"
	"lending-workers/internal/lending/origination"
	"lending-workers/internal/lending/scoring"
	"lending-workers/internal/models"
)

const (
	TaskType = "review-credit-application"
)

// Narrow interfaces over the lending services so tests can substitute fakes.
type ReviewService interface {
	Review(ctx context.Context, cmd origination.ReviewCommand) (*origination.ReviewResult, error)
}

type LimitGate interface {
	Check(ctx context.Context, clientID uuid.UUID, amount decimal.Decimal, termMonths int) (*limits.Decision, error)
}

type ScoreFetcher interface {
	GetScore(ctx context.Context, clientID uuid.UUID) (*scoring.Score, error)
}

type ReviewNotifier interface {
	LoanApproved(ctx context.Context, clientID uuid.UUID, loanNumber string, monthlyPayment decimal.Decimal) error
	ApplicationRejected(ctx context.Context, clientID uuid.UUID, comments string) error
}

type Handler struct {
	config     *Config
	db         *sql.DB
	service    ReviewService
	gate       LimitGate
	authorizer auth.Authorizer
	scores     ScoreFetcher
	notifier   ReviewNotifier
	logger     logger.Logger
}

func NewHandler(config *Config, db *sql.DB, service ReviewService, gate LimitGate, authorizer auth.Authorizer, scores ScoreFetcher, notifier ReviewNotifier, log logger.Logger) *Handler {
	return &Handler{
		config:     config,
		db:         db,
		service:    service,
		gate:       gate,
		authorizer: authorizer,
		scores:     scores,
		notifier:   notifier,
		logger:     log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		bpmnErr := errors.ToBPMN(err)
		h.failJob(client, job, bpmnErr.Code, bpmnErr.Message)
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	applicationID, err := uuid.Parse(input.ApplicationID)
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("applicationId %q is not a UUID", input.ApplicationID))
	}
	if input.ReviewerID == "" {
		return nil, errors.NewValidationError("reviewerId is required")
	}

	if err := h.authorizer.CanReview(ctx, input.ReviewerID); err != nil {
		return nil, err
	}

	status := models.ApplicationStatus(strings.ToUpper(input.Decision))
	cmd := origination.ReviewCommand{
		ApplicationID: applicationID,
		ReviewerID:    input.ReviewerID,
		Status:        status,
		Comments:      input.Comments,
	}

	output := &Output{ApplicationID: input.ApplicationID, Status: string(status)}

	if status == models.ApplicationApproved {
		terms, err := parseTerms(input)
		if err != nil {
			return nil, err
		}
		cmd.Terms = terms

		if input.StartDate != "" {
			startDate, err := time.Parse(time.RFC3339, input.StartDate)
			if err != nil {
				return nil, errors.NewValidationError(fmt.Sprintf("startDate %q is not RFC3339", input.StartDate))
			}
			cmd.StartDate = startDate
		}

		clientID, err := h.applicationClient(ctx, applicationID)
		if err != nil {
			return nil, err
		}

		gateDecision, err := h.gate.Check(ctx, clientID, terms.Amount, terms.TermMonths)
		if err != nil {
			return nil, err
		}
		if !gateDecision.Allowed {
			return nil, errors.NewLimitExceededError(gateDecision.Reason)
		}

		// Advisory only; the review proceeds even when scoring is down.
		if score, err := h.scores.GetScore(ctx, clientID); err == nil {
			output.CreditScore = score.Score
			output.RiskBand = score.RiskBand
		}
	}

	result, err := h.service.Review(ctx, cmd)
	if err != nil {
		return nil, err
	}

	metrics.ApplicationsReviewed.WithLabelValues(string(status)).Inc()
	output.ReviewedAt = time.Now().UTC().Format(time.RFC3339)

	switch status {
	case models.ApplicationApproved:
		metrics.LoansOriginated.Inc()
		output.LoanID = result.Loan.ID.String()
		output.LoanNumber = result.Loan.LoanNumber
		output.MonthlyPayment = result.Loan.MonthlyPayment.StringFixed(2)
		output.TotalAmount = result.Loan.TotalAmount.StringFixed(2)
		output.EndDate = result.Loan.EndDate.Format(time.RFC3339)

		if err := h.notifier.LoanApproved(ctx, result.Application.ClientID, result.Loan.LoanNumber, result.Loan.MonthlyPayment); err != nil {
			h.logger.Warn("approval notification failed", map[string]interface{}{
				"applicationId": input.ApplicationID,
				"error":         err.Error(),
			})
		}

	case models.ApplicationRejected:
		if err := h.notifier.ApplicationRejected(ctx, result.Application.ClientID, input.Comments); err != nil {
			h.logger.Warn("rejection notification failed", map[string]interface{}{
				"applicationId": input.ApplicationID,
				"error":         err.Error(),
			})
		}
	}

	return output, nil
}

func parseTerms(input *Input) (*decision.ApprovalTerms, error) {
	amount, err := decimal.NewFromString(input.ApprovedAmount)
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("approvedAmount %q is not a number", input.ApprovedAmount))
	}
	rate, err := decimal.NewFromString(input.InterestRate)
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("interestRate %q is not a number", input.InterestRate))
	}
	return &decision.ApprovalTerms{
		Amount:       amount,
		TermMonths:   input.ApprovedTermMonths,
		InterestRate: rate,
	}, nil
}

func (h *Handler) applicationClient(ctx context.Context, applicationID uuid.UUID) (uuid.UUID, error) {
	var clientID uuid.UUID
	query := `SELECT client_id FROM credit_applications WHERE id = $1`
	err := h.db.QueryRowContext(ctx, query, applicationID).Scan(&clientID)
	if err == sql.ErrNoRows {
		return uuid.Nil, errors.NewApplicationNotFoundError(applicationID.String())
	}
	if err != nil {
		return uuid.Nil, errors.NewPersistenceError("lookup application client", err)
	}
	return clientID, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, errorCode).Inc()
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
