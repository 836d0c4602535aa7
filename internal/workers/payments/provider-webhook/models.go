// internal/workers/payments/provider-webhook/models.go
package providerwebhook

import "encoding/json"

type Input struct {
	Provider string          `json:"provider"`
	Payload  json.RawMessage `json:"payload"`
}

// Output acknowledges the event to the process. Accepted is true even for
// dropped events; the provider already considers them delivered, so the
// process must not retry them.
type Output struct {
	Accepted    bool   `json:"accepted"`
	Applied     bool   `json:"applied"`
	Duplicate   bool   `json:"duplicate"`
	DropReason  string `json:"dropReason,omitempty"`
	LoanNumber  string `json:"loanNumber,omitempty"`
	NewBalance  string `json:"newBalance,omitempty"`
	LoanPaidOff bool   `json:"loanPaidOff,omitempty"`
}
