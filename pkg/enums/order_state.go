package enums

import "fmt"

// OrderState tracks the lifecycle of an order.
type OrderState string

const (
	OrderStatePending   OrderState = "pending"
	OrderStateCompleted OrderState = "completed"
	OrderStateCancelled OrderState = "cancelled"
	OrderStateFailed    OrderState = "failed"
)

var validOrderStates = []OrderState{
	OrderStatePending,
	OrderStateCompleted,
	OrderStateCancelled,
	OrderStateFailed,
}

// String implements fmt.Stringer.
func (s OrderState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderState.
func (s OrderState) IsValid() bool {
	for _, candidate := range validOrderStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the order can no longer change state.
func (s OrderState) IsTerminal() bool {
	return s == OrderStateCompleted || s == OrderStateCancelled || s == OrderStateFailed
}

// ParseOrderState converts raw input into an OrderState.
func ParseOrderState(value string) (OrderState, error) {
	for _, candidate := range validOrderStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order state %q", value)
}
