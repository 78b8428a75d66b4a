package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeletableStatuses(t *testing.T) {
	assert.True(t, IsDeletablePaymentStatus(PaymentStatusFailed))
	assert.True(t, IsDeletablePaymentStatus(PaymentStatusCancelled))
	assert.True(t, IsDeletablePaymentStatus(PaymentStatusDeclined))

	assert.False(t, IsDeletablePaymentStatus(PaymentStatusPending))
	assert.False(t, IsDeletablePaymentStatus(PaymentStatusProcessing))
	assert.False(t, IsDeletablePaymentStatus(PaymentStatusCompleted))
	assert.False(t, IsDeletablePaymentStatus(PaymentStatusConfirmed))
}

func TestTerminalStatuses(t *testing.T) {
	// confirmed is terminal but never deletable
	assert.True(t, IsTerminalPaymentStatus(PaymentStatusConfirmed))
	assert.False(t, IsDeletablePaymentStatus(PaymentStatusConfirmed))

	assert.False(t, IsTerminalPaymentStatus(PaymentStatusPending))
	assert.False(t, IsTerminalPaymentStatus(PaymentStatusProcessing))
	assert.False(t, IsTerminalPaymentStatus(PaymentStatusCompleted))
}
