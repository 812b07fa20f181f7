package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		amount     int64
		feeBPS     int
		wantFee    int64
		wantPayout int64
	}{
		{"default rate", 10000, 500, 500, 9500},
		{"rounding floors the fee", 999, 500, 49, 950},
		{"one minor unit", 1, 500, 0, 1},
		{"large amount", 999999999, 500, 49999999, 950000000},
		{"zero fee rate", 10000, 0, 0, 10000},
		{"full fee rate", 10000, 10000, 10000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Split(tt.amount, tt.feeBPS)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFee, b.Fee)
			assert.Equal(t, tt.wantPayout, b.SellerPayout)
			assert.Equal(t, tt.amount, b.Fee+b.SellerPayout, "split must conserve the amount")
		})
	}
}

func TestSplitRejectsInvalidInput(t *testing.T) {
	_, err := Split(0, 500)
	assert.Error(t, err)

	_, err = Split(-100, 500)
	assert.Error(t, err)

	_, err = Split(10000, -1)
	assert.Error(t, err)

	_, err = Split(10000, 10001)
	assert.Error(t, err)
}
