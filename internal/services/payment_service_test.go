package services

import (
	"strings"
	"testing"

	"github.com/gametrade/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTokenMatches(t *testing.T) {
	assert.True(t, tokenMatches("secret-token", "secret-token"))
	assert.False(t, tokenMatches("wrong", "secret-token"))
	assert.False(t, tokenMatches("", "secret-token"))

	// An unset server token must reject everything, including empty
	// callbacks, rather than degrade to an open webhook.
	assert.False(t, tokenMatches("", ""))
	assert.False(t, tokenMatches("anything", ""))
}

func TestNewChargeRef(t *testing.T) {
	ref := newChargeRef()
	assert.True(t, strings.HasPrefix(ref, "chg_"))
	assert.Len(t, ref, 36)

	assert.NotEqual(t, ref, newChargeRef())
}

func TestClassifyGatewayStatus(t *testing.T) {
	tests := []struct {
		status string
		want   gatewayEvent
	}{
		{models.GatewayStatusPaid, gatewayEventPaid},
		{models.GatewayStatusSettled, gatewayEventPaid},
		{models.GatewayStatusExpired, gatewayEventExpired},
		{models.GatewayStatusPending, gatewayEventNone},
		{"REFUNDED", gatewayEventNone},
		{"", gatewayEventNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyGatewayStatus(tt.status), "status %q", tt.status)
	}
}

func TestPaidTransitionReplay(t *testing.T) {
	// Delivery is at-least-once: five identical PAID callbacks apply
	// the transition exactly once, the rest are duplicate no-ops.
	status := models.PaymentStatusPending
	applied := 0
	for i := 0; i < 5; i++ {
		outcome, apply := paidTransition(status)
		if apply {
			applied++
			status = models.PaymentStatusPaid
			assert.Equal(t, OutcomeApplied, outcome)
			continue
		}
		assert.Equal(t, OutcomeDuplicate, outcome)
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, models.PaymentStatusPaid, status)
}

func TestPaidTransitionExpiredAttempt(t *testing.T) {
	outcome, apply := paidTransition(models.PaymentStatusExpired)
	assert.False(t, apply)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func TestLastLiveAttempt(t *testing.T) {
	// An expired attempt cancels the transaction only once no pending
	// sibling payment remains.
	assert.True(t, lastLiveAttempt(0))
	assert.False(t, lastLiveAttempt(1))
	assert.False(t, lastLiveAttempt(3))
}
