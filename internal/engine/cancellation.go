package engine

import (
	"fmt"
	"strings"
	"time"

	"kitchen-sync/internal/common/logger"
	"kitchen-sync/internal/domain"
)

type CancelAction string

const (
	ActionRemove   CancelAction = "remove"
	ActionDecrease CancelAction = "decrease"
)

type CancelRequest struct {
	OrderID    string
	LineItemID string
	Quantity   int
	Reason     string
	Action     CancelAction
	Actor      string
}

// CancellationProcessor splits a cancel/decrease request between unsent and
// already-sent quantity and distributes the sent part across the order's
// open tickets, newest-created first, without double-counting.
type CancellationProcessor struct {
	store *Store
	log   *logger.Logger
}

func NewCancellationProcessor(store *Store, log *logger.Logger) *CancellationProcessor {
	return &CancellationProcessor{store: store, log: log}
}

// Cancel applies one cancellation request. Validation failures reject with
// zero mutation. A shortfall (open tickets cannot cover the sent quantity)
// commits whatever was distributed and returns ErrReconciliationShortfall.
func (p *CancellationProcessor) Cancel(req CancelRequest) error {
	if req.Action != ActionRemove && req.Action != ActionDecrease {
		return fmt.Errorf("unknown cancel action %q", req.Action)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("cancel quantity must be positive, got %d", req.Quantity)
	}

	shortfall := 0
	err := p.store.Mutate(func(s *State) error {
		o := s.Order(req.OrderID)
		if o == nil {
			return ErrOrderNotFound
		}
		if o.Status == domain.OrderCompleted {
			return ErrOrderCompleted
		}
		ln := o.Line(req.LineItemID)
		if ln == nil {
			return ErrLineNotFound
		}
		if req.Quantity > ln.Quantity {
			return fmt.Errorf("%w: requested %d, have %d", ErrQuantityExceedsAvailable, req.Quantity, ln.Quantity)
		}

		fromUnsent := req.Quantity
		if unsent := ln.Quantity - ln.NotifiedQuantity; fromUnsent > unsent {
			fromUnsent = unsent
		}
		fromSent := req.Quantity - fromUnsent
		now := time.Now().UTC()

		if fromSent == 0 {
			// Nothing the kitchen knows about is affected: apply silently.
			prev := ln.Quantity
			ln.Quantity -= req.Quantity
			if req.Action == ActionRemove {
				o.Events = append(o.Events, domain.OrderEvent{
					Type:         domain.EventRemoveItem,
					LineItemID:   ln.ID,
					Quantity:     req.Quantity,
					Actor:        req.Actor,
					Timestamp:    now,
					PrevQuantity: prev,
					NewQuantity:  ln.Quantity,
				})
			}
			if ln.Quantity == 0 {
				s.RemoveLine(o, req.LineItemID)
			}
			o.UpdatedAt = now
			return nil
		}

		if strings.TrimSpace(req.Reason) == "" {
			return ErrReasonRequired
		}

		prev := ln.Quantity
		ln.Quantity -= req.Quantity
		ln.NotifiedQuantity -= fromSent
		ln.CancelledQuantity += fromSent
		ln.CancelReason = req.Reason

		evType := domain.EventDecreaseQuantity
		if req.Action == ActionRemove {
			evType = domain.EventCancelItem
		}
		o.Events = append(o.Events, domain.OrderEvent{
			Type:         evType,
			LineItemID:   ln.ID,
			Quantity:     req.Quantity,
			Reason:       req.Reason,
			Actor:        req.Actor,
			Timestamp:    now,
			PrevQuantity: prev,
			NewQuantity:  ln.Quantity,
		})

		remaining := fromSent
		for _, t := range s.TicketsNewestFirst(o.ID) {
			if remaining == 0 {
				break
			}
			if t.Status == domain.TicketServed {
				continue
			}
			it := t.Item(req.LineItemID)
			if it == nil || it.Cancelled {
				continue
			}
			apply := it.Available()
			if apply > remaining {
				apply = remaining
			}
			if apply == 0 {
				continue
			}
			it.CancelledQuantity += apply
			it.Cancelled = it.CancelledQuantity == it.QuantitySent
			it.CancelReason = req.Reason
			remaining -= apply
		}
		shortfall = remaining

		if ln.Quantity == 0 {
			s.RemoveLine(o, req.LineItemID)
		}
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}

	if shortfall > 0 {
		// Invariant violation: more sent quantity was cancelled than tickets
		// can account for. The distributed part is already committed.
		p.log.Error("reconciliation_shortfall", ErrReconciliationShortfall, map[string]any{
			"order_id":     req.OrderID,
			"line_item_id": req.LineItemID,
			"shortfall":    shortfall,
		})
		return fmt.Errorf("%w: %d units unaccounted", ErrReconciliationShortfall, shortfall)
	}
	return nil
}
