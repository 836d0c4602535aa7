// internal/workers/payments/provider-webhook/handler.go
package providerwebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lending-workers/internal/common/errors"
	"lending-workers/internal/common/logger"
	"lending-workers/internal/common/metrics"
	"lending-workers/internal/lending/ledger"
	"lending-workers/internal/lending/providers"
	"lending-workers/internal/models"
)

const (
	TaskType = "process-payment-event"
)

type ConfigSource interface {
	Active(ctx context.Context, provider string) (*providers.ProviderConfig, error)
}

type EventLedger interface {
	RecordPaymentEvent(ctx context.Context, ev *models.PaymentEvent) (*ledger.Result, error)
}

type PaymentIndexer interface {
	IndexPayment(ctx context.Context, provider string, payment *models.Payment, loanNumber string, newBalance decimal.Decimal, paidOff bool) error
}

type PaymentNotifier interface {
	PaymentReceived(ctx context.Context, clientID uuid.UUID, loanNumber string, amount, newBalance decimal.Decimal) error
}

type Handler struct {
	config   *Config
	configs  ConfigSource
	ledger   EventLedger
	indexer  PaymentIndexer
	notifier PaymentNotifier
	logger   logger.Logger
}

func NewHandler(config *Config, configs ConfigSource, eventLedger EventLedger, indexer PaymentIndexer, notifier PaymentNotifier, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		configs:  configs,
		ledger:   eventLedger,
		indexer:  indexer,
		notifier: notifier,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
	if input.Provider == "" {
		return nil, errors.NewValidationError("provider is required")
	}

	cfg, err := h.configs.Active(ctx, input.Provider)
	if err != nil {
		return nil, err
	}

	ev, err := providers.Normalize(cfg, input.Payload)
	if err != nil {
		// Malformed or unresolvable payloads are accepted and dropped: the
		// provider already delivered them, retrying cannot fix the payload.
		return h.drop(input.Provider, "unprocessable_payload", dropDetail(err)), nil
	}

	result, err := h.ledger.RecordPaymentEvent(ctx, ev)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeLoanNotFound) {
			return h.drop(input.Provider, "loan_not_found", dropDetail(err)), nil
		}
		return nil, err
	}

	if result.Duplicate {
		metrics.PaymentEventsDuplicate.WithLabelValues(input.Provider).Inc()
		return &Output{Accepted: true, Duplicate: true}, nil
	}
	if result.DropReason != "" {
		return h.drop(input.Provider, "forbidden_transition", result.DropReason), nil
	}

	output := &Output{Accepted: true}
	if result.Applied {
		metrics.PaymentEventsApplied.WithLabelValues(input.Provider).Inc()
		output.Applied = true
		output.LoanNumber = result.LoanNumber
		output.NewBalance = result.NewBalance.StringFixed(2)
		output.LoanPaidOff = result.LoanPaidOff

		h.report(ctx, input.Provider, result)
	}

	return output, nil
}

// report mirrors the applied payment into search and tells the client. Both
// are best effort and never affect the acknowledgement.
func (h *Handler) report(ctx context.Context, provider string, result *ledger.Result) {
	if h.indexer != nil {
		if err := h.indexer.IndexPayment(ctx, provider, result.Payment, result.LoanNumber, result.NewBalance, result.LoanPaidOff); err != nil {
			h.logger.Warn("payment indexing failed", map[string]interface{}{
				"paymentId": result.Payment.ID.String(),
				"error":     err.Error(),
			})
		}
	}

	if h.notifier != nil && result.Payment.Status == models.PaymentCompleted {
		if err := h.notifier.PaymentReceived(ctx, result.Payment.ClientID, result.LoanNumber, result.Payment.Amount, result.NewBalance); err != nil {
			h.logger.Warn("payment notification failed", map[string]interface{}{
				"paymentId": result.Payment.ID.String(),
				"error":     err.Error(),
			})
		}
	}
}

// dropDetail prefers the structured error details over the bare error string;
// identifiers like the loan id live in Details, not in the message.
func dropDetail(err error) string {
	if stdErr, ok := errors.AsStandard(err); ok && stdErr.Details != "" {
		return stdErr.Details
	}
	return err.Error()
}

func (h *Handler) drop(provider, reason, detail string) *Output {
	metrics.PaymentEventsDropped.WithLabelValues(provider, reason).Inc()
	h.logger.Warn("payment event dropped", map[string]interface{}{
		"provider": provider,
		"reason":   reason,
		"detail":   detail,
	})
	return &Output{Accepted: true, DropReason: detail}
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
