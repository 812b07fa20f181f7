package models

import "testing"

func TestIsValidTxTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{TxStatusPendingPayment, TxStatusPaid, true},
		{TxStatusPaid, TxStatusItemTransferred, true},
		{TxStatusItemTransferred, TxStatusCompleted, true},

		// Cancellation and dispute paths
		{TxStatusPendingPayment, TxStatusCancelled, true},
		{TxStatusItemTransferred, TxStatusDisputed, true},
		{TxStatusDisputed, TxStatusRefunded, true},
		{TxStatusDisputed, TxStatusCompleted, true},

		// Invalid transitions
		{TxStatusPendingPayment, TxStatusCompleted, false},
		{TxStatusPendingPayment, TxStatusItemTransferred, false},
		{TxStatusPaid, TxStatusCompleted, false},
		{TxStatusPaid, TxStatusCancelled, false},
		{TxStatusPaid, TxStatusDisputed, false},
		{TxStatusItemTransferred, TxStatusRefunded, false},
		{TxStatusCompleted, TxStatusDisputed, false},
		{TxStatusCompleted, TxStatusRefunded, false},
		{TxStatusRefunded, TxStatusCompleted, false},
		{TxStatusCancelled, TxStatusPaid, false},
		{"nonexistent", TxStatusPaid, false},
		{TxStatusPendingPayment, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidTxTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTxTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllStatusesHaveTransitionEntry(t *testing.T) {
	allStatuses := []string{
		TxStatusPendingPayment, TxStatusPaid, TxStatusItemTransferred,
		TxStatusCompleted, TxStatusDisputed, TxStatusCancelled, TxStatusRefunded,
	}

	for _, status := range allStatuses {
		if _, ok := ValidTxTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidTxTransitions map", status)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []string{TxStatusCompleted, TxStatusCancelled, TxStatusRefunded}
	for _, status := range terminal {
		if !IsTerminalTxStatus(status) {
			t.Errorf("status %q should be terminal", status)
		}
	}

	nonTerminal := []string{TxStatusPendingPayment, TxStatusPaid, TxStatusItemTransferred, TxStatusDisputed}
	for _, status := range nonTerminal {
		if IsTerminalTxStatus(status) {
			t.Errorf("status %q should not be terminal", status)
		}
	}
}
