package engine

import (
	"sort"
	"sync"

	"kitchen-sync/internal/domain"
)

// State is the mutable view handed to a mutation callback. Mutations work
// on a deep copy; the store commits it only when the callback returns nil.
type State struct {
	Orders  []domain.Order
	Tickets []domain.KitchenTicket
}

func (s *State) Order(id string) *domain.Order {
	for i := range s.Orders {
		if s.Orders[i].ID == id {
			return &s.Orders[i]
		}
	}
	return nil
}

func (s *State) Ticket(id string) *domain.KitchenTicket {
	for i := range s.Tickets {
		if s.Tickets[i].ID == id {
			return &s.Tickets[i]
		}
	}
	return nil
}

// TicketsForOrder returns pointers to the order's tickets in creation
// order. Slice position is the creation order within this process, so
// "newest first" is a reverse walk over the result.
func (s *State) TicketsForOrder(orderID string) []*domain.KitchenTicket {
	var out []*domain.KitchenTicket
	for i := range s.Tickets {
		if s.Tickets[i].OrderID == orderID {
			out = append(out, &s.Tickets[i])
		}
	}
	return out
}

// TicketsNewestFirst returns the order's tickets sorted by CreatedAt,
// newest first. Ties keep reverse slice order, so within one process the
// result matches reverse creation order even on coarse clocks; after a
// foreign overwrite the timestamps still decide.
func (s *State) TicketsNewestFirst(orderID string) []*domain.KitchenTicket {
	tickets := s.TicketsForOrder(orderID)
	for i, j := 0, len(tickets)-1; i < j; i, j = i+1, j-1 {
		tickets[i], tickets[j] = tickets[j], tickets[i]
	}
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
	})
	return tickets
}

// RemoveLine deletes a cart line from the order, keeping line order.
func (s *State) RemoveLine(o *domain.Order, lineID string) {
	for i := range o.Lines {
		if o.Lines[i].ID == lineID {
			o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
			return
		}
	}
}

// Change is delivered to subscribers after every commit. Local commits come
// from this process's mutations; the rest are foreign overwrites merged by
// the bridge.
type Change struct {
	Local bool
}

// Store is the canonical in-process holder of orders and kitchen tickets
// (the shared state store). All mutations are serialized under one mutex,
// giving the single logical timeline the engine assumes: no reconciliation
// or cancellation ever observes another call half-applied.
type Store struct {
	mu       sync.Mutex
	state    State
	revision uint64

	subMu sync.Mutex
	subs  []chan Change
}

func NewStore() *Store { return &Store{} }

// Snapshot returns a deep copy of the current orders and tickets.
func (st *Store) Snapshot() ([]domain.Order, []domain.KitchenTicket) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return domain.CloneOrders(st.state.Orders), domain.CloneTickets(st.state.Tickets)
}

// Revision counts committed mutations (local and foreign) in this process.
func (st *Store) Revision() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.revision
}

// Mutate runs fn against a working copy of the state and commits it when fn
// returns nil. Any error leaves the store untouched; errNoChange aborts
// silently without a change signal.
func (st *Store) Mutate(fn func(*State) error) error {
	st.mu.Lock()
	work := State{
		Orders:  domain.CloneOrders(st.state.Orders),
		Tickets: domain.CloneTickets(st.state.Tickets),
	}
	if err := fn(&work); err != nil {
		st.mu.Unlock()
		return err
	}
	st.state = work
	st.revision++
	st.mu.Unlock()

	st.notify(Change{Local: true})
	return nil
}

// Replace overwrites the orders and/or tickets slice with a foreign
// snapshot (last-write-wins per slice) and fires a non-local change signal.
// Used by the change notification bridge only.
func (st *Store) Replace(orders []domain.Order, tickets []domain.KitchenTicket, replaceOrders, replaceTickets bool) {
	if !replaceOrders && !replaceTickets {
		return
	}
	st.mu.Lock()
	if replaceOrders {
		st.state.Orders = domain.CloneOrders(orders)
	}
	if replaceTickets {
		st.state.Tickets = domain.CloneTickets(tickets)
	}
	st.revision++
	st.mu.Unlock()

	st.notify(Change{Local: false})
}

// Subscribe returns a channel receiving a Change after every commit.
// Delivery is best-effort: a subscriber that lags collapses intermediate
// signals, which is safe because consumers recompute from the full state.
func (st *Store) Subscribe() <-chan Change {
	ch := make(chan Change, 8)
	st.subMu.Lock()
	st.subs = append(st.subs, ch)
	st.subMu.Unlock()
	return ch
}

func (st *Store) notify(c Change) {
	st.subMu.Lock()
	defer st.subMu.Unlock()
	for _, ch := range st.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
