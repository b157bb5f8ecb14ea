package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mavasquez/ferrevia-backend/pkg/enums"
)

// PaymentAttempt is one try at collecting payment for an order. An order
// may accumulate several attempts; its current payment status is the state
// of the most recently created one. History is never rewritten in place:
// a retry creates a new row.
type PaymentAttempt struct {
	ID       int64              `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID  int64              `gorm:"column:order_id;not null;index"`
	Provider string             `gorm:"column:provider;not null"`
	State    enums.PaymentState `gorm:"column:state;type:text;not null;default:'initiated'"`

	Amount   decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency string          `gorm:"column:currency;not null"`

	BuyOrder  string `gorm:"column:buy_order;not null;uniqueIndex"`
	SessionID string `gorm:"column:session_id;not null;index"`

	AuthorizationCode *string         `gorm:"column:authorization_code"`
	PaymentMethod     *string         `gorm:"column:payment_method"`
	Installments      *int            `gorm:"column:installments"`
	RawResponse       json.RawMessage `gorm:"column:raw_response;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
