package postgres

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericToDecimal_Success(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"whole", "100", "100"},
		{"numeric(19,4)", "150.0000", "150"},
		{"cents", "0.99", "0.99"},
		{"zero", "0.0000", "0"},
		{"whitespace", "  50.25  ", "50.25"},
		{"negative", "-10.50", "-10.5"},
		{"beyond float precision", "12345678901234.5678", "12345678901234.5678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := numericToDecimal(tt.input)
			require.NoError(t, err)
			assert.True(t, result.Equal(decimal.RequireFromString(tt.expected)), "got %s", result)
		})
	}
}

func TestNumericToDecimal_Errors(t *testing.T) {
	for _, input := range []string{"", "abc", "$100.00", "10.5.5"} {
		t.Run(input, func(t *testing.T) {
			_, err := numericToDecimal(input)
			assert.Error(t, err)
		})
	}
}

func TestDecimalToNumeric(t *testing.T) {
	assert.Equal(t, "150.0000", decimalToNumeric(decimal.NewFromInt(150)))
	assert.Equal(t, "0.1000", decimalToNumeric(decimal.RequireFromString("0.1")))
	assert.Equal(t, "-10.5000", decimalToNumeric(decimal.RequireFromString("-10.5")))
	assert.Equal(t, "1.2346", decimalToNumeric(decimal.RequireFromString("1.23456")))
}
