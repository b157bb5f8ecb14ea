package enums

import "fmt"

// PaymentState tracks a single payment attempt against the provider.
type PaymentState string

const (
	PaymentStateInitiated  PaymentState = "initiated"
	PaymentStateAuthorized PaymentState = "authorized"
	PaymentStateRejected   PaymentState = "rejected"
	PaymentStateVoided     PaymentState = "voided"
	PaymentStateFailed     PaymentState = "failed"
)

var validPaymentStates = []PaymentState{
	PaymentStateInitiated,
	PaymentStateAuthorized,
	PaymentStateRejected,
	PaymentStateVoided,
	PaymentStateFailed,
}

// String implements fmt.Stringer.
func (s PaymentState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PaymentState.
func (s PaymentState) IsValid() bool {
	for _, candidate := range validPaymentStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the attempt can no longer change state.
func (s PaymentState) IsTerminal() bool {
	return s != PaymentStateInitiated && s.IsValid()
}

// ParsePaymentState converts raw input into a PaymentState.
func ParsePaymentState(value string) (PaymentState, error) {
	for _, candidate := range validPaymentStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment state %q", value)
}
