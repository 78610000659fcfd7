package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
)

type TicketStatus string

const (
	TicketPending   TicketStatus = "pending"
	TicketCooking   TicketStatus = "cooking"
	TicketCompleted TicketStatus = "completed"
	TicketServed    TicketStatus = "served"
)

// TicketStatusOrder is the forward-only lifecycle; served is terminal.
var TicketStatusOrder = []TicketStatus{TicketPending, TicketCooking, TicketCompleted, TicketServed}

// CartLine is one mutable line of an order's cart.
//
// Quantity is what the guest currently wants. NotifiedQuantity is how much
// of it is currently accounted for by tickets; it never exceeds Quantity
// and is lowered only when sent units are cancelled. CancelledQuantity
// accumulates every unit cancelled after having been sent.
type CartLine struct {
	ID                string  `json:"id"`
	ProductID         string  `json:"product_id"`
	Name              string  `json:"name"`
	UnitPrice         float64 `json:"unit_price"`
	Quantity          int     `json:"quantity"`
	NotifiedQuantity  int     `json:"notified_quantity"`
	CancelledQuantity int     `json:"cancelled_quantity"`
	Note              string  `json:"note,omitempty"`
	CancelReason      string  `json:"cancel_reason,omitempty"`
}

type Payment struct {
	Method string  `json:"method"`
	Amount float64 `json:"amount"`
}

type Order struct {
	ID          string       `json:"id"`
	TableID     *string      `json:"table_id,omitempty"`
	Status      OrderStatus  `json:"status"`
	Lines       []CartLine   `json:"lines"`
	Events      []OrderEvent `json:"events"`
	Payment     *Payment     `json:"payment,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Line returns a pointer into o.Lines, or nil.
func (o *Order) Line(lineID string) *CartLine {
	for i := range o.Lines {
		if o.Lines[i].ID == lineID {
			return &o.Lines[i]
		}
	}
	return nil
}

// LineByProduct matches cart edits that address a product rather than a
// line id (the cart UI adds by product).
func (o *Order) LineByProduct(productID string) *CartLine {
	for i := range o.Lines {
		if o.Lines[i].ProductID == productID {
			return &o.Lines[i]
		}
	}
	return nil
}

// TicketItem is the frozen projection of a CartLine onto one ticket.
// BaseLineItemID points back at the producing CartLine; matching is always
// by this field, never by parsing composite ids.
type TicketItem struct {
	ID                string `json:"id"`
	BaseLineItemID    string `json:"base_line_item_id"`
	Name              string `json:"name"`
	QuantitySent      int    `json:"quantity_sent"`
	Cancelled         bool   `json:"cancelled"`
	CancelledQuantity int    `json:"cancelled_quantity"`
	CancelReason      string `json:"cancel_reason,omitempty"`
	Note              string `json:"note,omitempty"`
}

// Available is the sent quantity still open to cancellation.
func (ti *TicketItem) Available() int { return ti.QuantitySent - ti.CancelledQuantity }

type KitchenTicket struct {
	ID        string       `json:"id"`
	OrderID   string       `json:"order_id"`
	Status    TicketStatus `json:"status"`
	Items     []TicketItem `json:"items"`
	CreatedAt time.Time    `json:"created_at"`
}

// Item returns the ticket's item produced by the given cart line, or nil.
func (t *KitchenTicket) Item(baseLineID string) *TicketItem {
	for i := range t.Items {
		if t.Items[i].BaseLineItemID == baseLineID {
			return &t.Items[i]
		}
	}
	return nil
}

func NewID() string { return uuid.NewString() }
