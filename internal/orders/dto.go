package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mavasquez/ferrevia-backend/pkg/db/models"
	"github.com/mavasquez/ferrevia-backend/pkg/enums"
)

// GuestContact carries contact details when the buyer checks out without
// an account-backed profile.
type GuestContact struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email"`
}

// LineInput is one requested product. UnitPrice is advisory: the service
// snapshots the catalog price at creation time and recomputes subtotals,
// so a stale or tampered client price never changes what is charged.
type LineInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Qty       int             `json:"qty" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CreateOrderInput is the checkout request. ClientTotal, like line prices,
// is advisory only and is replaced by the server-computed total.
type CreateOrderInput struct {
	BuyerRUT       string           `json:"buyer_rut" validate:"required"`
	Guest          *GuestContact    `json:"guest,omitempty"`
	DeliveryMethod string           `json:"delivery_method" validate:"required"`
	Lines          []LineInput      `json:"lines" validate:"required,min=1,max=100,dive"`
	ClientTotal    *decimal.Decimal `json:"total,omitempty"`
}

// LineView is an order line as returned to clients.
type LineView struct {
	ProductID int64           `json:"product_id"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// DeliveryView groups the fulfillment sub-lifecycle of an order.
type DeliveryView struct {
	Method        enums.DeliveryMethod `json:"method"`
	State         enums.DeliveryState  `json:"state"`
	CourierRUT    *string              `json:"courier_rut,omitempty"`
	WindowStart   *time.Time           `json:"window_start,omitempty"`
	WindowEnd     *time.Time           `json:"window_end,omitempty"`
	ProofURL      *string              `json:"proof_url,omitempty"`
	FailureReason *string              `json:"failure_reason,omitempty"`
	AssignedAt    *time.Time           `json:"assigned_at,omitempty"`
	DispatchedAt  *time.Time           `json:"dispatched_at,omitempty"`
	DeliveredAt   *time.Time           `json:"delivered_at,omitempty"`
}

// View is the client-facing order projection. PaymentState is derived from
// the latest attempt, never stored on the header.
type View struct {
	ID           int64              `json:"id"`
	BuyerRUT     string             `json:"buyer_rut"`
	GuestName    *string            `json:"guest_name,omitempty"`
	GuestEmail   *string            `json:"guest_email,omitempty"`
	State        enums.OrderState   `json:"state"`
	PaymentState enums.PaymentState `json:"payment_state,omitempty"`
	TotalAmount  decimal.Decimal    `json:"total_amount"`
	Lines        []LineView         `json:"lines"`
	Delivery     DeliveryView       `json:"delivery"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// NewView projects a loaded order (lines and attempts preloaded) into the
// client shape.
func NewView(order *models.Order) View {
	lines := make([]LineView, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, LineView{
			ProductID: line.ProductID,
			Qty:       line.Qty,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal,
		})
	}
	return View{
		ID:           order.ID,
		BuyerRUT:     order.BuyerRUT,
		GuestName:    order.GuestName,
		GuestEmail:   order.GuestEmail,
		State:        order.State,
		PaymentState: order.CurrentPaymentState(),
		TotalAmount:  order.TotalAmount,
		Lines:        lines,
		Delivery: DeliveryView{
			Method:        order.DeliveryMethod,
			State:         order.DeliveryState,
			CourierRUT:    order.CourierRUT,
			WindowStart:   order.WindowStart,
			WindowEnd:     order.WindowEnd,
			ProofURL:      order.ProofURL,
			FailureReason: order.FailureReason,
			AssignedAt:    order.AssignedAt,
			DispatchedAt:  order.DispatchedAt,
			DeliveredAt:   order.DeliveredAt,
		},
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
}
