// internal/lending/providers/event.go
package providers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xeipuuv/gojsonschema"

	"lending-workers/internal/common/errors"
	"lending-workers/internal/models"
)

// payloadSchema is the shape every provider webhook must satisfy before
// provider-specific interpretation starts.
var payloadSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"transactionId", "status"},
	"properties": map[string]interface{}{
		"transactionId":         map[string]interface{}{"type": "string", "minLength": 1},
		"originalTransactionId": map[string]interface{}{"type": "string"},
		"status":                map[string]interface{}{"type": "string", "minLength": 1},
		"amount":                map[string]interface{}{"type": []interface{}{"string", "number"}},
		"method":                map[string]interface{}{"type": "string"},
		"completedAt":           map[string]interface{}{"type": "string"},
		"reference":             map[string]interface{}{"type": "string"},
		"metadata": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"loanId":        map[string]interface{}{"type": "string"},
				"clientId":      map[string]interface{}{"type": "string"},
				"paymentNumber": map[string]interface{}{"type": "integer"},
			},
		},
	},
}

type rawEvent struct {
	TransactionID         string      `json:"transactionId"`
	OriginalTransactionID string      `json:"originalTransactionId"`
	Status                string      `json:"status"`
	Amount                json.Number `json:"amount"`
	Method                string      `json:"method"`
	CompletedAt           string      `json:"completedAt"`
	Reference             string      `json:"reference"`
	Metadata              struct {
		LoanID        string `json:"loanId"`
		ClientID      string `json:"clientId"`
		PaymentNumber int    `json:"paymentNumber"`
	} `json:"metadata"`
}

var validMethods = map[models.PaymentMethod]bool{
	models.MethodCash:         true,
	models.MethodBankTransfer: true,
	models.MethodCard:         true,
	models.MethodWallet:       true,
}

// Normalize turns a raw provider payload into a PaymentEvent using the
// provider's active configuration. Every rejection is an unprocessable-event
// error carrying the reason; the payload itself travels on in RawPayload.
func Normalize(cfg *ProviderConfig, payload json.RawMessage) (*models.PaymentEvent, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.NewUnprocessableEventError(fmt.Sprintf("decode payload: %v", err))
	}

	status, err := mapStatus(cfg, raw.Status)
	if err != nil {
		return nil, err
	}

	ev := &models.PaymentEvent{
		Provider:              cfg.Provider,
		ProviderTransactionID: raw.TransactionID,
		OriginalTransactionID: raw.OriginalTransactionID,
		Status:                status,
		Method:                mapMethod(cfg, raw.Method),
		Reference:             raw.Reference,
		PaymentNumber:         raw.Metadata.PaymentNumber,
		RawPayload:            payload,
	}

	if raw.Amount != "" {
		amount, err := decimal.NewFromString(raw.Amount.String())
		if err != nil {
			return nil, errors.NewUnprocessableEventError(
				fmt.Sprintf("amount %q is not a number", raw.Amount))
		}
		ev.Amount = amount
	}

	if status == models.TransactionRefunded {
		// Refunds resolve through the original transaction; metadata is
		// not required and the amount comes from the reversed payment.
		ev.PaymentDate = parseCompletedAt(raw.CompletedAt)
		return ev, nil
	}

	if !ev.Amount.IsPositive() {
		return nil, errors.NewUnprocessableEventError(
			fmt.Sprintf("payload amount must be a positive number, got %q", raw.Amount))
	}

	loanID, err := uuid.Parse(raw.Metadata.LoanID)
	if err != nil {
		return nil, errors.NewUnprocessableEventError(
			fmt.Sprintf("payload metadata does not resolve to a loan: %q", raw.Metadata.LoanID))
	}
	ev.LoanID = loanID

	if raw.Metadata.ClientID != "" {
		clientID, err := uuid.Parse(raw.Metadata.ClientID)
		if err != nil {
			return nil, errors.NewUnprocessableEventError(
				fmt.Sprintf("payload metadata carries invalid client id %q", raw.Metadata.ClientID))
		}
		ev.ClientID = clientID
	}

	ev.PaymentDate = parseCompletedAt(raw.CompletedAt)

	return ev, nil
}

func validatePayload(payload json.RawMessage) error {
	schemaLoader := gojsonschema.NewGoLoader(payloadSchema)
	documentLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errors.NewUnprocessableEventError(fmt.Sprintf("payload is not valid JSON: %v", err))
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return errors.NewUnprocessableEventError(strings.Join(errs, "; "))
	}

	return nil
}

func mapStatus(cfg *ProviderConfig, providerStatus string) (models.TransactionStatus, error) {
	key := strings.ToUpper(providerStatus)
	if mapped, ok := cfg.Settings.StatusMap[key]; ok {
		key = strings.ToUpper(mapped)
	}

	status := models.TransactionStatus(key)
	switch status {
	case models.TransactionPending, models.TransactionCompleted, models.TransactionFailed,
		models.TransactionCancelled, models.TransactionRefunded:
		return status, nil
	}

	return "", errors.NewUnprocessableEventError(
		fmt.Sprintf("provider %s status %q has no mapping", cfg.Provider, providerStatus))
}

func mapMethod(cfg *ProviderConfig, rawMethod string) models.PaymentMethod {
	method := models.PaymentMethod(strings.ToUpper(rawMethod))
	if validMethods[method] {
		return method
	}
	if fallback := models.PaymentMethod(cfg.Settings.DefaultMethod); validMethods[fallback] {
		return fallback
	}
	return models.MethodBankTransfer
}

func parseCompletedAt(value string) time.Time {
	if value != "" {
		if ts, err := time.Parse(time.RFC3339, value); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}
