// internal/lending/reporting/indexer.go
// Package reporting mirrors applied payment activity into Elasticsearch for
// dashboards and search. Indexing is best effort; the relational ledger is
// the source of truth and a failed index write only logs.
package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/shopspring/decimal"

	"lending-workers/internal/common/logger"
	"lending-workers/internal/models"
)

// PaymentDocument is the indexed shape of one applied payment event.
type PaymentDocument struct {
	PaymentID   string `json:"paymentId"`
	LoanNumber  string `json:"loanNumber"`
	ClientID    string `json:"clientId"`
	Provider    string `json:"provider"`
	Amount      string `json:"amount"`
	Method      string `json:"method"`
	Status      string `json:"status"`
	NewBalance  string `json:"newBalance"`
	LoanPaidOff bool   `json:"loanPaidOff"`
	PaymentDate string `json:"paymentDate"`
	IndexedAt   string `json:"indexedAt"`
}

type Indexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	return &Indexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "reporting"}),
	}
}

// IndexPayment writes one applied payment into the payment index, keyed by
// the payment id so redelivered events overwrite rather than duplicate.
func (i *Indexer) IndexPayment(ctx context.Context, provider string, payment *models.Payment, loanNumber string, newBalance decimal.Decimal, paidOff bool) error {
	doc := PaymentDocument{
		PaymentID:   payment.ID.String(),
		LoanNumber:  loanNumber,
		ClientID:    payment.ClientID.String(),
		Provider:    provider,
		Amount:      payment.Amount.StringFixed(2),
		Method:      string(payment.Method),
		Status:      string(payment.Status),
		NewBalance:  newBalance.StringFixed(2),
		LoanPaidOff: paidOff,
		PaymentDate: payment.PaymentDate.UTC().Format(time.RFC3339),
		IndexedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode payment document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: doc.PaymentID,
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("index payment: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("index payment: %s: %s", res.Status(), string(detail))
	}

	i.logger.Debug("payment indexed", map[string]interface{}{
		"paymentId":  doc.PaymentID,
		"loanNumber": loanNumber,
	})

	return nil
}
