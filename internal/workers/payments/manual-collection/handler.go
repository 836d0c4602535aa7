// internal/workers/payments/manual-collection/handler.go
// Cash collected in the field goes through the same ledger path as gateway
// webhooks, with provider MANUAL and the receipt number as idempotency key.
package manualcollection

import (
	"context"
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
	"lending-workers/internal/lending/ledger"
	"lending-workers/internal/models"
)

const (
	TaskType = "record-cash-collection"
)

type EventLedger interface {
	RecordPaymentEvent(ctx context.Context, ev *models.PaymentEvent) (*ledger.Result, error)
}

type PaymentNotifier interface {
	PaymentReceived(ctx context.Context, clientID uuid.UUID, loanNumber string, amount, newBalance decimal.Decimal) error
}

type Handler struct {
	config     *Config
	ledger     EventLedger
	authorizer auth.Authorizer
	notifier   PaymentNotifier
	logger     logger.Logger
}

func NewHandler(config *Config, eventLedger EventLedger, authorizer auth.Authorizer, notifier PaymentNotifier, log logger.Logger) *Handler {
	return &Handler{
		config:     config,
		ledger:     eventLedger,
		authorizer: authorizer,
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
	loanID, err := uuid.Parse(input.LoanID)
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("loanId %q is not a UUID", input.LoanID))
	}
	amount, err := decimal.NewFromString(input.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, errors.NewValidationError(fmt.Sprintf("amount %q must be a positive number", input.Amount))
	}
	if input.CollectorID == "" {
		return nil, errors.NewValidationError("collectorId is required")
	}

	if err := h.authorizer.CanCollect(ctx, input.CollectorID); err != nil {
		return nil, err
	}

	method := models.MethodCash
	if input.Method != "" {
		method = models.PaymentMethod(strings.ToUpper(input.Method))
	}

	paymentDate := time.Now().UTC()
	if input.PaymentDate != "" {
		parsed, err := time.Parse(time.RFC3339, input.PaymentDate)
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("paymentDate %q is not RFC3339", input.PaymentDate))
		}
		paymentDate = parsed.UTC()
	}

	// The receipt number makes redelivered jobs idempotent. Without one,
	// each job execution is its own transaction.
	transactionID := input.ReceiptNumber
	if transactionID == "" {
		transactionID = "MAN-" + uuid.New().String()
	}

	ev := &models.PaymentEvent{
		Provider:              models.ProviderManual,
		ProviderTransactionID: transactionID,
		Status:                models.TransactionCompleted,
		Amount:                amount,
		Method:                method,
		PaymentDate:           paymentDate,
		LoanID:                loanID,
		ProcessedBy:           input.CollectorID,
		Reference:             input.ReceiptNumber,
		PaymentNumber:         input.PaymentNumber,
	}

	result, err := h.ledger.RecordPaymentEvent(ctx, ev)
	if err != nil {
		return nil, err
	}

	output := &Output{
		Duplicate:  result.Duplicate,
		RecordedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if result.Applied {
		metrics.PaymentEventsApplied.WithLabelValues(models.ProviderManual).Inc()
		output.PaymentID = result.Payment.ID.String()
		output.LoanNumber = result.LoanNumber
		output.NewBalance = result.NewBalance.StringFixed(2)
		output.LoanPaidOff = result.LoanPaidOff

		if h.notifier != nil {
			if err := h.notifier.PaymentReceived(ctx, result.Payment.ClientID, result.LoanNumber, amount, result.NewBalance); err != nil {
				h.logger.Warn("payment notification failed", map[string]interface{}{
					"loanId": input.LoanID,
					"error":  err.Error(),
				})
			}
		}
	}
	if result.Duplicate {
		metrics.PaymentEventsDuplicate.WithLabelValues(models.ProviderManual).Inc()
	}

	return output, nil
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
