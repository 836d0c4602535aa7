// internal/lending/amortization/calculator_test.go
package amortization

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var testStart = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

// ==========================
// Monthly Payment Tests
// ==========================

func TestMonthlyPayment(t *testing.T) {
	tests := []struct {
		name       string
		principal  string
		rate       string
		termMonths int
		expected   string
	}{
		{
			name:       "reference case 10000 at 1 percent over 12 months",
			principal:  "10000",
			rate:       "0.01",
			termMonths: 12,
			expected:   "888.49",
		},
		{
			name:       "zero rate splits principal evenly",
			principal:  "12000",
			rate:       "0",
			termMonths: 12,
			expected:   "1000",
		},
		{
			name:       "single installment at zero rate",
			principal:  "500",
			rate:       "0",
			termMonths: 1,
			expected:   "500",
		},
		{
			name:       "zero rate with non-even split rounds to cents",
			principal:  "1000",
			rate:       "0",
			termMonths: 3,
			expected:   "333.33",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payment := MonthlyPayment(dec(tt.principal), dec(tt.rate), tt.termMonths)
			assert.True(t, payment.Equal(dec(tt.expected)),
				"expected %s, got %s", tt.expected, payment)
		})
	}
}

// ==========================
// Schedule Tests
// ==========================

func TestSchedule_ReferenceCase(t *testing.T) {
	entries, err := Schedule(dec("10000"), dec("0.01"), 12, testStart)
	require.NoError(t, err)
	require.Len(t, entries, 12)

	// First row: interest on the full principal, rest goes to principal.
	assert.True(t, entries[0].InterestPortion.Equal(dec("100.00")))
	assert.True(t, entries[0].PrincipalPortion.Equal(dec("788.49")))
	assert.True(t, entries[0].TotalPayment.Equal(dec("888.49")))
	assert.True(t, entries[0].RemainingBalance.Equal(dec("9211.51")))

	// All non-final installments equal the annuity payment.
	for _, e := range entries[:11] {
		assert.True(t, e.TotalPayment.Equal(dec("888.49")),
			"installment %d should equal the annuity payment, got %s", e.PaymentNumber, e.TotalPayment)
	}

	// Final row clears the balance exactly.
	last := entries[11]
	assert.True(t, last.RemainingBalance.IsZero(),
		"final remaining balance must be exactly zero, got %s", last.RemainingBalance)
	assert.True(t, last.PrincipalPortion.Equal(dec("879.67")))
}

func TestSchedule_PrincipalSumsExactly(t *testing.T) {
	tests := []struct {
		name       string
		principal  string
		rate       string
		termMonths int
	}{
		{"reference case", "10000", "0.01", 12},
		{"two year term", "50000", "0.015", 24},
		{"awkward principal", "9999.97", "0.0125", 36},
		{"zero rate", "1000", "0", 3},
		{"high rate short term", "2500", "0.08", 6},
		{"single installment", "750.50", "0.02", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal := dec(tt.principal)
			entries, err := Schedule(principal, dec(tt.rate), tt.termMonths, testStart)
			require.NoError(t, err)
			require.Len(t, entries, tt.termMonths)

			sum := decimal.Zero
			for _, e := range entries {
				sum = sum.Add(e.PrincipalPortion)
			}
			assert.True(t, sum.Equal(principal),
				"principal portions must sum to %s, got %s", principal, sum)

			assert.True(t, entries[len(entries)-1].RemainingBalance.IsZero(),
				"schedule must end at exactly zero")
		})
	}
}

func TestSchedule_Deterministic(t *testing.T) {
	first, err := Schedule(dec("10000"), dec("0.01"), 12, testStart)
	require.NoError(t, err)
	second, err := Schedule(dec("10000"), dec("0.01"), 12, testStart)
	require.NoError(t, err)

	for i := range first {
		assert.True(t, first[i].TotalPayment.Equal(second[i].TotalPayment))
		assert.True(t, first[i].RemainingBalance.Equal(second[i].RemainingBalance))
	}
}

func TestSchedule_PaymentDates(t *testing.T) {
	entries, err := Schedule(dec("1200"), dec("0"), 3, testStart)
	require.NoError(t, err)

	assert.Equal(t, testStart.AddDate(0, 1, 0), entries[0].PaymentDate)
	assert.Equal(t, testStart.AddDate(0, 2, 0), entries[1].PaymentDate)
	assert.Equal(t, testStart.AddDate(0, 3, 0), entries[2].PaymentDate)
}

func TestSchedule_BalancesDecrease(t *testing.T) {
	entries, err := Schedule(dec("50000"), dec("0.015"), 24, testStart)
	require.NoError(t, err)

	prev := dec("50000")
	for _, e := range entries {
		assert.True(t, e.RemainingBalance.LessThan(prev),
			"balance must strictly decrease at installment %d", e.PaymentNumber)
		prev = e.RemainingBalance
	}
}

// ==========================
// Validation Tests
// ==========================

func TestSchedule_Validation(t *testing.T) {
	tests := []struct {
		name       string
		principal  string
		rate       string
		termMonths int
	}{
		{"zero principal", "0", "0.01", 12},
		{"negative principal", "-100", "0.01", 12},
		{"negative rate", "1000", "-0.01", 12},
		{"rate above one", "1000", "1.5", 12},
		{"zero term", "1000", "0.01", 0},
		{"term above cap", "1000", "0.01", 361},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Schedule(dec(tt.principal), dec(tt.rate), tt.termMonths, testStart)
			require.Error(t, err)
		})
	}
}

// ==========================
// Total Amount Tests
// ==========================

func TestTotalAmount(t *testing.T) {
	entries, err := Schedule(dec("1000"), dec("0"), 4, testStart)
	require.NoError(t, err)
	assert.True(t, TotalAmount(entries).Equal(dec("1000")),
		"zero-rate total equals principal")

	entries, err = Schedule(dec("10000"), dec("0.01"), 12, testStart)
	require.NoError(t, err)
	assert.True(t, TotalAmount(entries).GreaterThan(dec("10000")),
		"interest-bearing total exceeds principal")
}

// ==========================
// Benchmarks
// ==========================

func BenchmarkSchedule(b *testing.B) {
	principal := dec("50000")
	rate := dec("0.015")
	for i := 0; i < b.N; i++ {
		_, _ = Schedule(principal, rate, 24, testStart)
	}
}
