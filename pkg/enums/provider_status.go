package enums

import (
	"fmt"
	"strings"
)

// ProviderStatus is the raw outcome reported by the payment provider's
// notify callback.
type ProviderStatus string

const (
	ProviderStatusAuthorized ProviderStatus = "AUTHORIZED"
	ProviderStatusRejected   ProviderStatus = "REJECTED"
	ProviderStatusAborted    ProviderStatus = "ABORTED"
	ProviderStatusFailed     ProviderStatus = "FAILED"
	ProviderStatusTimeout    ProviderStatus = "TIMEOUT"
	ProviderStatusError      ProviderStatus = "ERROR"
)

var validProviderStatuses = []ProviderStatus{
	ProviderStatusAuthorized,
	ProviderStatusRejected,
	ProviderStatusAborted,
	ProviderStatusFailed,
	ProviderStatusTimeout,
	ProviderStatusError,
}

// String implements fmt.Stringer.
func (s ProviderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ProviderStatus.
func (s ProviderStatus) IsValid() bool {
	for _, candidate := range validProviderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// PaymentState maps the provider outcome onto the local attempt state.
func (s ProviderStatus) PaymentState() PaymentState {
	switch s {
	case ProviderStatusAuthorized:
		return PaymentStateAuthorized
	case ProviderStatusRejected:
		return PaymentStateRejected
	case ProviderStatusAborted:
		return PaymentStateVoided
	default:
		return PaymentStateFailed
	}
}

// OrderOutcome maps the provider outcome onto the order's terminal state.
// rejected/aborted cancel the order; failed/timeout/error fail it. Both
// non-authorized paths release the stock reservation.
func (s ProviderStatus) OrderOutcome() OrderState {
	switch s {
	case ProviderStatusAuthorized:
		return OrderStateCompleted
	case ProviderStatusRejected, ProviderStatusAborted:
		return OrderStateCancelled
	default:
		return OrderStateFailed
	}
}

// ParseProviderStatus converts raw input into a ProviderStatus.
func ParseProviderStatus(value string) (ProviderStatus, error) {
	upper := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validProviderStatuses {
		if string(candidate) == upper {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider status %q", value)
}
