// internal/workers/payments/manual-collection/models.go
package manualcollection

type Input struct {
	LoanID        string `json:"loanId"`
	Amount        string `json:"amount"`
	CollectorID   string `json:"collectorId"`
	ReceiptNumber string `json:"receiptNumber,omitempty"`
	Method        string `json:"method,omitempty"`
	PaymentDate   string `json:"paymentDate,omitempty"`
	PaymentNumber int    `json:"paymentNumber,omitempty"`
}

type Output struct {
	PaymentID   string `json:"paymentId,omitempty"`
	LoanNumber  string `json:"loanNumber,omitempty"`
	NewBalance  string `json:"newBalance,omitempty"`
	LoanPaidOff bool   `json:"loanPaidOff"`
	Duplicate   bool   `json:"duplicate"`
	RecordedAt  string `json:"recordedAt"`
}
