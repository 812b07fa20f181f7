package services

import (
	"testing"

	"github.com/gametrade/backend/internal/apperr"
	"github.com/gametrade/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeResolution(t *testing.T) {
	amt := func(v int64) *int64 { return &v }

	// 10000 gross, 500 bps fee: payout 9500
	const txnAmount = int64(10000)
	const payout = int64(9500)

	tests := []struct {
		name       string
		resolution string
		partial    *int64
		wantRefund int64
		wantPayout int64
		wantStatus string
	}{
		{"full refund", models.ResolutionFullRefund, nil, 10000, 0, models.TxStatusRefunded},
		{"no refund", models.ResolutionNoRefund, nil, 0, 9500, models.TxStatusCompleted},
		{"partial refund", models.ResolutionPartialRefund, amt(3000), 3000, 6500, models.TxStatusRefunded},
		{"partial refund at payout bound", models.ResolutionPartialRefund, amt(9500), 9500, 0, models.TxStatusRefunded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := computeResolution(tt.resolution, tt.partial, txnAmount, payout)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRefund, out.RefundToBuyer)
			assert.Equal(t, tt.wantPayout, out.SellerPayout)
			assert.Equal(t, tt.wantStatus, out.FinalTxStatus)
		})
	}
}

func TestComputeResolutionRejectsBadPartials(t *testing.T) {
	amt := func(v int64) *int64 { return &v }

	tests := []struct {
		name    string
		partial *int64
	}{
		{"missing amount", nil},
		{"zero", amt(0)},
		{"negative", amt(-100)},
		{"equal to transaction amount", amt(10000)},
		{"above transaction amount", amt(10001)},
		{"above seller payout", amt(9600)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := computeResolution(models.ResolutionPartialRefund, tt.partial, 10000, 9500)
			require.Error(t, err)
			assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
		})
	}
}

func TestComputeResolutionUnknownResolution(t *testing.T) {
	_, err := computeResolution("split_the_difference", nil, 10000, 9500)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}
