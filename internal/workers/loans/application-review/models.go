// internal/workers/loans/application-review/models.go
package applicationreview

type Input struct {
	ApplicationID      string `json:"applicationId"`
	ReviewerID         string `json:"reviewerId"`
	Decision           string `json:"decision"`
	Comments           string `json:"comments,omitempty"`
	ApprovedAmount     string `json:"approvedAmount,omitempty"`
	ApprovedTermMonths int    `json:"approvedTermMonths,omitempty"`
	InterestRate       string `json:"interestRate,omitempty"`
	StartDate          string `json:"startDate,omitempty"`
}

// Output carries the review outcome back into the process. Loan fields are
// only set when the decision was an approval.
type Output struct {
	ApplicationID  string `json:"applicationId"`
	Status         string `json:"status"`
	LoanID         string `json:"loanId,omitempty"`
	LoanNumber     string `json:"loanNumber,omitempty"`
	MonthlyPayment string `json:"monthlyPayment,omitempty"`
	TotalAmount    string `json:"totalAmount,omitempty"`
	EndDate        string `json:"endDate,omitempty"`
	CreditScore    int    `json:"creditScore,omitempty"`
	RiskBand       string `json:"riskBand,omitempty"`
	ReviewedAt     string `json:"reviewedAt"`
}
