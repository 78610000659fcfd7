package domain

import "time"

type EventType string

const (
	EventCancelItem       EventType = "cancel_item"
	EventDecreaseQuantity EventType = "decrease_quantity"
	EventRemoveItem       EventType = "remove_item"
)

// OrderEvent is one entry of an order's append-only history. Entries are
// never rewritten or deleted.
type OrderEvent struct {
	Type         EventType `json:"type"`
	LineItemID   string    `json:"line_item_id"`
	Quantity     int       `json:"quantity"`
	Reason       string    `json:"reason,omitempty"`
	Actor        string    `json:"actor,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	PrevQuantity int       `json:"previous_quantity"`
	NewQuantity  int       `json:"new_quantity"`
}
