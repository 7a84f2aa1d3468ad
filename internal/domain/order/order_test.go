package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefundable(t *testing.T) {
	tests := []struct {
		status   FinancialStatus
		expected bool
	}{
		{FinancialPending, false},
		{FinancialPaid, true},
		{FinancialPartiallyRefunded, true},
		{FinancialRefunded, false},
		{FinancialVoided, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			o := &Order{FinancialStatus: tt.status}
			assert.Equal(t, tt.expected, o.Refundable())
		})
	}
}

func TestStatusAfterRefund(t *testing.T) {
	assert.Equal(t, FinancialRefunded, StatusAfterRefund(true))
	assert.Equal(t, FinancialPartiallyRefunded, StatusAfterRefund(false))
}
