package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mavasquez/ferrevia-backend/pkg/enums"
)

// Order is one checkout: header, lines, payment attempts and the delivery
// sub-lifecycle. Cancellation is a state transition, never a row removal.
type Order struct {
	ID         int64   `gorm:"column:id;primaryKey;autoIncrement"`
	BuyerRUT   string  `gorm:"column:buyer_rut;not null;index"`
	GuestName  *string `gorm:"column:guest_name"`
	GuestEmail *string `gorm:"column:guest_email"`

	TotalAmount decimal.Decimal  `gorm:"column:total_amount;type:numeric(14,2);not null"`
	State       enums.OrderState `gorm:"column:state;type:text;not null;default:'pending'"`

	DeliveryMethod enums.DeliveryMethod `gorm:"column:delivery_method;type:text;not null"`
	DeliveryState  enums.DeliveryState  `gorm:"column:delivery_state;type:text;not null;default:'pending'"`

	CourierRUT    *string    `gorm:"column:courier_rut"`
	WindowStart   *time.Time `gorm:"column:window_start"`
	WindowEnd     *time.Time `gorm:"column:window_end"`
	ProofURL      *string    `gorm:"column:proof_url"`
	ProofLat      *float64   `gorm:"column:proof_lat"`
	ProofLng      *float64   `gorm:"column:proof_lng"`
	FailureReason *string    `gorm:"column:failure_reason"`
	AssignedAt    *time.Time `gorm:"column:assigned_at"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
	DeliveredAt   *time.Time `gorm:"column:delivered_at"`

	Lines    []OrderLine      `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Attempts []PaymentAttempt `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CurrentPaymentState is the state of the most recently created attempt,
// or empty when no attempt exists yet. Attempts must be loaded ordered by
// (created_at, id) ascending.
func (o *Order) CurrentPaymentState() enums.PaymentState {
	if o == nil || len(o.Attempts) == 0 {
		return ""
	}
	return o.Attempts[len(o.Attempts)-1].State
}
