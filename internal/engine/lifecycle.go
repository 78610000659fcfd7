package engine

import (
	"fmt"
	"time"

	"kitchen-sync/internal/domain"
)

// Lifecycle enforces the ticket state machine: pending -> cooking ->
// completed -> served, one step at a time. Payment completion is the single
// sanctioned bypass: it forces every open ticket of the order to served.
type Lifecycle struct {
	store *Store
}

func NewLifecycle(store *Store) *Lifecycle { return &Lifecycle{store: store} }

func statusIndex(s domain.TicketStatus) int {
	for i, v := range domain.TicketStatusOrder {
		if v == s {
			return i
		}
	}
	return -1
}

// RequestTransition moves a ticket to target if and only if target is the
// immediate next state. Same-state, backward and skipping requests are all
// rejected.
func (l *Lifecycle) RequestTransition(ticketID string, target domain.TicketStatus) error {
	return l.store.Mutate(func(s *State) error {
		t := s.Ticket(ticketID)
		if t == nil {
			return ErrTicketNotFound
		}
		tgt := statusIndex(target)
		if tgt < 0 {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
		}
		if tgt != statusIndex(t.Status)+1 {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, target)
		}
		t.Status = target
		return nil
	})
}

// CompleteOrder records the payment, marks the order completed and forces
// all of its tickets not already served directly to served. Further
// reconciliation and cancellation against the order is frozen.
func (l *Lifecycle) CompleteOrder(orderID string, pay domain.Payment) error {
	return l.store.Mutate(func(s *State) error {
		o := s.Order(orderID)
		if o == nil {
			return ErrOrderNotFound
		}
		if o.Status == domain.OrderCompleted {
			return ErrOrderCompleted
		}
		now := time.Now().UTC()
		o.Status = domain.OrderCompleted
		o.Payment = &pay
		o.CompletedAt = &now
		o.UpdatedAt = now
		for _, t := range s.TicketsForOrder(orderID) {
			if t.Status != domain.TicketServed {
				t.Status = domain.TicketServed
			}
		}
		return nil
	})
}
