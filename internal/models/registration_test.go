package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentStatus_Sources(t *testing.T) {
	assert.Equal(t, []PaymentStatus{PaymentPending}, PaymentSuccess.Sources())
	assert.Equal(t, []PaymentStatus{PaymentPending, PaymentSuccess}, PaymentFailed.Sources())
	assert.Empty(t, PaymentPending.Sources())
}

func TestPaymentStatus_FailedIsTerminal(t *testing.T) {
	for _, next := range []PaymentStatus{PaymentPending, PaymentSuccess, PaymentFailed} {
		assert.False(t, PaymentFailed.CanTransition(next), next)
	}
	assert.False(t, PaymentSuccess.CanTransition(PaymentPending))
}
