// internal/lending/reporting/search.go
package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// SearchFilter narrows a payment search. Zero values leave the dimension
// unconstrained.
type SearchFilter struct {
	Provider   string
	LoanNumber string
	From       time.Time
	To         time.Time
	Size       int
}

// SearchPayments queries the payment index. Serves back-office reconciliation
// dashboards and support lookups; no worker consumes it.
func (i *Indexer) SearchPayments(ctx context.Context, filter SearchFilter) ([]PaymentDocument, error) {
	body, err := json.Marshal(buildPaymentQuery(filter))
	if err != nil {
		return nil, fmt.Errorf("encode search query: %w", err)
	}

	size := filter.Size
	if size <= 0 {
		size = 50
	}

	req := esapi.SearchRequest{
		Index: []string{i.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, fmt.Errorf("search payments: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("search payments: %s: %s", res.Status(), string(detail))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source PaymentDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	docs := make([]PaymentDocument, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs, nil
}

func buildPaymentQuery(filter SearchFilter) map[string]interface{} {
	filterClauses := []interface{}{}

	if filter.Provider != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"provider": filter.Provider},
		})
	}
	if filter.LoanNumber != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"loanNumber": filter.LoanNumber},
		})
	}

	dateRange := map[string]interface{}{}
	if !filter.From.IsZero() {
		dateRange["gte"] = filter.From.UTC().Format(time.RFC3339)
	}
	if !filter.To.IsZero() {
		dateRange["lte"] = filter.To.UTC().Format(time.RFC3339)
	}
	if len(dateRange) > 0 {
		filterClauses = append(filterClauses, map[string]interface{}{
			"range": map[string]interface{}{"paymentDate": dateRange},
		})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filterClauses,
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"paymentDate": map[string]interface{}{"order": "desc"}},
		},
	}
}
