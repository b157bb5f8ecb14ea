package enums

import "fmt"

// DeliveryState tracks the fulfillment sub-lifecycle of an order.
type DeliveryState string

const (
	DeliveryStatePending   DeliveryState = "pending"
	DeliveryStatePreparing DeliveryState = "preparing"
	DeliveryStateAssigned  DeliveryState = "assigned"
	DeliveryStateInTransit DeliveryState = "in_transit"
	DeliveryStateDelivered DeliveryState = "delivered"
	DeliveryStateFailed    DeliveryState = "failed"
)

var validDeliveryStates = []DeliveryState{
	DeliveryStatePending,
	DeliveryStatePreparing,
	DeliveryStateAssigned,
	DeliveryStateInTransit,
	DeliveryStateDelivered,
	DeliveryStateFailed,
}

// deliveryRank orders the states along the forward path. failed sits at the
// same rank as delivered: both are exits from in_transit.
var deliveryRank = map[DeliveryState]int{
	DeliveryStatePending:   0,
	DeliveryStatePreparing: 1,
	DeliveryStateAssigned:  2,
	DeliveryStateInTransit: 3,
	DeliveryStateDelivered: 4,
	DeliveryStateFailed:    4,
}

// String implements fmt.Stringer.
func (s DeliveryState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known DeliveryState.
func (s DeliveryState) IsValid() bool {
	for _, candidate := range validDeliveryStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanAdvanceTo reports whether moving from s to next follows the monotonic
// pending → preparing → assigned → in_transit → {delivered, failed} path.
// failed is not terminal for the order: re-dispatch goes failed → assigned.
func (s DeliveryState) CanAdvanceTo(next DeliveryState) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	if s == DeliveryStateDelivered {
		return false
	}
	if s == DeliveryStateFailed {
		return next == DeliveryStateAssigned
	}
	return deliveryRank[next] > deliveryRank[s]
}

// ParseDeliveryState converts raw input into a DeliveryState.
func ParseDeliveryState(value string) (DeliveryState, error) {
	for _, candidate := range validDeliveryStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery state %q", value)
}
