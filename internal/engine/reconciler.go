package engine

import (
	"errors"
	"time"

	"kitchen-sync/internal/domain"
)

// Reconciler diffs an order's cart against the quantities already sent to
// the kitchen and emits one new ticket per non-empty delta batch. Note-only
// edits are routed to existing ticket items in place.
type Reconciler struct {
	store *Store
}

func NewReconciler(store *Store) *Reconciler { return &Reconciler{store: store} }

// Reconcile sends the unsent part of the cart to the kitchen. It returns
// the created ticket, or nil when the call was a note-only update or a
// no-op. Calling it again without an intervening cart change does nothing.
func (r *Reconciler) Reconcile(orderID string) (*domain.KitchenTicket, error) {
	var created *domain.KitchenTicket

	err := r.store.Mutate(func(s *State) error {
		o := s.Order(orderID)
		if o == nil {
			return ErrOrderNotFound
		}
		if o.Status == domain.OrderCompleted {
			return ErrOrderCompleted
		}

		now := time.Now().UTC()
		var batch []domain.TicketItem
		noteUpdates := 0

		for i := range o.Lines {
			ln := &o.Lines[i]
			delta := ln.Quantity - ln.NotifiedQuantity
			if delta > 0 {
				batch = append(batch, domain.TicketItem{
					ID:             domain.NewID(),
					BaseLineItemID: ln.ID,
					Name:           ln.Name,
					QuantitySent:   delta,
					Note:           ln.Note,
				})
				ln.NotifiedQuantity = ln.Quantity
				continue
			}
			if ln.NotifiedQuantity > 0 && noteChanged(s, o.ID, ln) {
				noteUpdates += applyNote(s, o.ID, ln)
			}
		}

		if len(batch) == 0 {
			if noteUpdates == 0 {
				return errNoChange
			}
			o.UpdatedAt = now
			return nil
		}

		t := domain.KitchenTicket{
			ID:        domain.NewID(),
			OrderID:   o.ID,
			Status:    domain.TicketPending,
			Items:     batch,
			CreatedAt: now,
		}
		s.Tickets = append(s.Tickets, t)
		o.UpdatedAt = now

		out := t
		out.Items = append([]domain.TicketItem(nil), t.Items...)
		created = &out
		return nil
	})

	if errors.Is(err, errNoChange) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

// noteChanged compares the line's note against the newest open ticket item
// produced by it. The newest item is what the kitchen is looking at, so it
// is the reference for "changed".
func noteChanged(s *State, orderID string, ln *domain.CartLine) bool {
	for _, t := range s.TicketsNewestFirst(orderID) {
		if t.Status == domain.TicketServed {
			continue
		}
		it := t.Item(ln.ID)
		if it == nil || it.Cancelled {
			continue
		}
		return it.Note != ln.Note
	}
	return false
}

// applyNote rewrites the note on the line's items in every not-yet-served
// ticket and reports how many items changed. No ticket is created.
func applyNote(s *State, orderID string, ln *domain.CartLine) int {
	changed := 0
	for _, t := range s.TicketsForOrder(orderID) {
		if t.Status == domain.TicketServed {
			continue
		}
		it := t.Item(ln.ID)
		if it == nil || it.Cancelled || it.Note == ln.Note {
			continue
		}
		it.Note = ln.Note
		changed++
	}
	return changed
}
