package domain

type CreateOrderRequest struct {
	TableID *string `json:"table_id,omitempty"`
}

type CreateOrderResponse struct {
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
}

type AddItemRequest struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	Note      string  `json:"note,omitempty"`
}

type SetQuantityRequest struct {
	LineItemID string `json:"line_item_id"`
	Quantity   int    `json:"quantity"`
}

type SetNoteRequest struct {
	LineItemID string `json:"line_item_id"`
	Note       string `json:"note"`
}

type AssignTableRequest struct {
	TableID string `json:"table_id"`
}

type CancelItemRequest struct {
	LineItemID string `json:"line_item_id"`
	Quantity   int    `json:"quantity"`
	Reason     string `json:"reason,omitempty"`
	Action     string `json:"action"` // remove | decrease
}

type TransitionRequest struct {
	Target TicketStatus `json:"target"`
}

type CompleteOrderRequest struct {
	Method string  `json:"method"`
	Amount float64 `json:"amount"`
}
