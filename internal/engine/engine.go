package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kitchen-sync/internal/common/logger"
	"kitchen-sync/internal/domain"
)

// Flusher persists the current state to the durable medium after a local
// commit. The bridge implements it; tests usually leave it nil.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Engine is the facade collaborators call. Every mutating operation applies
// to the local store first, then flushes to the durable medium, so this
// process observes its own writes immediately.
type Engine struct {
	store      *Store
	reconciler *Reconciler
	cancels    *CancellationProcessor
	lifecycle  *Lifecycle
	log        *logger.Logger
	actor      string
	flusher    Flusher
}

func New(store *Store, log *logger.Logger, actor string) *Engine {
	return &Engine{
		store:      store,
		reconciler: NewReconciler(store),
		cancels:    NewCancellationProcessor(store, log),
		lifecycle:  NewLifecycle(store),
		log:        log,
		actor:      actor,
	}
}

func (e *Engine) Store() *Store { return e.store }

func (e *Engine) SetFlusher(f Flusher) { e.flusher = f }

// flush pushes the committed state out. A flush failure never rolls back
// the local commit; it is logged and the next flush carries the state.
func (e *Engine) flush(ctx context.Context) {
	if e.flusher == nil {
		return
	}
	if err := e.flusher.Flush(ctx); err != nil {
		e.log.Error("snapshot_flush_failed", err, nil)
	}
}

func (e *Engine) CreateOrder(ctx context.Context, tableID *string) (domain.Order, error) {
	now := time.Now().UTC()
	o := domain.Order{
		ID:        domain.NewID(),
		TableID:   tableID,
		Status:    domain.OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := e.store.Mutate(func(s *State) error {
		s.Orders = append(s.Orders, o)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	e.log.Debug("order_created", map[string]any{"order_id": o.ID})
	e.flush(ctx)
	return o, nil
}

func (e *Engine) AssignOrderToTable(ctx context.Context, tableID, orderID string) error {
	err := e.store.Mutate(func(s *State) error {
		o := s.Order(orderID)
		if o == nil {
			return ErrOrderNotFound
		}
		t := tableID
		o.TableID = &t
		o.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return err
	}
	e.flush(ctx)
	return nil
}

// AddItem adds quantity of a product to the cart, merging into an existing
// line for the same product.
func (e *Engine) AddItem(ctx context.Context, orderID string, req domain.AddItemRequest) (domain.CartLine, error) {
	if req.Quantity <= 0 {
		return domain.CartLine{}, fmt.Errorf("quantity must be positive, got %d", req.Quantity)
	}
	var out domain.CartLine
	err := e.store.Mutate(func(s *State) error {
		o := s.Order(orderID)
		if o == nil {
			return ErrOrderNotFound
		}
		if o.Status == domain.OrderCompleted {
			return ErrOrderCompleted
		}
		if ln := o.LineByProduct(req.ProductID); ln != nil {
			ln.Quantity += req.Quantity
			if req.Note != "" {
				ln.Note = req.Note
			}
			out = *ln
		} else {
			line := domain.CartLine{
				ID:        domain.NewID(),
				ProductID: req.ProductID,
				Name:      req.Name,
				UnitPrice: req.UnitPrice,
				Quantity:  req.Quantity,
				Note:      req.Note,
			}
			o.Lines = append(o.Lines, line)
			out = line
		}
		o.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return domain.CartLine{}, err
	}
	e.flush(ctx)
	return out, nil
}

// SetItemQuantity raises or lowers a line's quantity. Lowering is routed
// through the cancellation processor so sent quantity is never bypassed:
// a decrease covered by unsent units applies silently, anything deeper is
// rejected with ErrReasonRequired and must go through CancelItem.
func (e *Engine) SetItemQuantity(ctx context.Context, orderID, lineID string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("quantity must not be negative, got %d", quantity)
	}
	var current int
	err := e.store.Mutate(func(s *State) error {
		o := s.Order(orderID)
		if o == nil {
			return ErrOrderNotFound
		}
		if o.Status == domain.OrderCompleted {
			return ErrOrderCompleted
		}
		ln := o.Line(lineID)
		if ln == nil {
			return ErrLineNotFound
		}
		current = ln.Quantity
		if quantity <= current {
			return errNoChange
		}
		ln.Quantity = quantity
		o.UpdatedAt = time.Now().UTC()
		return nil
	})
	switch {
	case err == nil:
		e.flush(ctx)
		return nil
	case errors.Is(err, errNoChange):
		if quantity == current {
			return nil
		}
		return e.CancelItem(ctx, CancelRequest{
			OrderID:    orderID,
			LineItemID: lineID,
			Quantity:   current - quantity,
			Action:     ActionDecrease,
		})
	default:
		return err
	}
}

func (e *Engine) SetItemNote(ctx context.Context, orderID, lineID, note string) error {
	err := e.store.Mutate(func(s *State) error {
		o := s.Order(orderID)
		if o == nil {
			return ErrOrderNotFound
		}
		if o.Status == domain.OrderCompleted {
			return ErrOrderCompleted
		}
		ln := o.Line(lineID)
		if ln == nil {
			return ErrLineNotFound
		}
		if ln.Note == note {
			return errNoChange
		}
		ln.Note = note
		o.UpdatedAt = time.Now().UTC()
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	e.flush(ctx)
	return nil
}

// SendToKitchen reconciles the order's cart against what was already sent
// and emits a new ticket for the delta, if any.
func (e *Engine) SendToKitchen(ctx context.Context, orderID string) (*domain.KitchenTicket, error) {
	t, err := e.reconciler.Reconcile(orderID)
	if err != nil {
		return nil, err
	}
	if t != nil {
		e.log.Info("ticket_created", map[string]any{
			"order_id": orderID, "ticket_id": t.ID, "items": len(t.Items),
		})
	}
	e.flush(ctx)
	return t, nil
}

// CancelItem removes or decreases a line, reconciling already-sent units
// against open tickets. On shortfall the distributed portion is committed
// and flushed before the error is returned.
func (e *Engine) CancelItem(ctx context.Context, req CancelRequest) error {
	if req.Actor == "" {
		req.Actor = e.actor
	}
	err := e.cancels.Cancel(req)
	if err == nil || errors.Is(err, ErrReconciliationShortfall) {
		e.flush(ctx)
	}
	return err
}

func (e *Engine) RequestTransition(ctx context.Context, ticketID string, target domain.TicketStatus) error {
	if err := e.lifecycle.RequestTransition(ticketID, target); err != nil {
		return err
	}
	e.log.Debug("ticket_transition", map[string]any{"ticket_id": ticketID, "status": string(target)})
	e.flush(ctx)
	return nil
}

// MarkOrderCompleted is the payment collaborator's entry point.
func (e *Engine) MarkOrderCompleted(ctx context.Context, orderID string, pay domain.Payment) error {
	if err := e.lifecycle.CompleteOrder(orderID, pay); err != nil {
		return err
	}
	e.log.Info("order_completed", map[string]any{"order_id": orderID, "method": pay.Method})
	e.flush(ctx)
	return nil
}

func (e *Engine) Order(orderID string) (domain.Order, error) {
	orders, _ := e.store.Snapshot()
	for _, o := range orders {
		if o.ID == orderID {
			return o, nil
		}
	}
	return domain.Order{}, ErrOrderNotFound
}

func (e *Engine) Orders() []domain.Order {
	orders, _ := e.store.Snapshot()
	return orders
}

// TicketsByStatus returns tickets filtered by status; empty status means
// all. This is the kitchen display's read path.
func (e *Engine) TicketsByStatus(status domain.TicketStatus) []domain.KitchenTicket {
	_, tickets := e.store.Snapshot()
	if status == "" {
		return tickets
	}
	out := tickets[:0]
	for _, t := range tickets {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

func (e *Engine) OrderEvents(orderID string) ([]domain.OrderEvent, error) {
	o, err := e.Order(orderID)
	if err != nil {
		return nil, err
	}
	return o.Events, nil
}
