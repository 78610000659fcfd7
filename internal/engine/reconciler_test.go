package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchen-sync/internal/common/logger"
	"kitchen-sync/internal/domain"
)

func newTestEngine() *Engine {
	return New(NewStore(), logger.New("test"), "waiter-1")
}

// seedLine creates an order with a single cart line and returns both ids.
func seedLine(t *testing.T, e *Engine, qty int) (orderID, lineID string) {
	t.Helper()
	ctx := context.Background()
	o, err := e.CreateOrder(ctx, nil)
	require.NoError(t, err)
	line, err := e.AddItem(ctx, o.ID, domain.AddItemRequest{
		ProductID: "prod-pho", Name: "Pho Bo", UnitPrice: 9.5, Quantity: qty,
	})
	require.NoError(t, err)
	return o.ID, line.ID
}

func TestReconcile_FirstSend_EmitsFullQuantity(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	orderID, lineID := seedLine(t, e, 3)

	ticket, err := e.SendToKitchen(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, ticket)

	assert.Equal(t, domain.TicketPending, ticket.Status)
	require.Len(t, ticket.Items, 1)
	assert.Equal(t, lineID, ticket.Items[0].BaseLineItemID)
	assert.Equal(t, 3, ticket.Items[0].QuantitySent)

	o, err := e.Order(orderID)
	require.NoError(t, err)
	assert.Equal(t, 3, o.Lines[0].NotifiedQuantity)
}

func TestReconcile_SecondSend_EmitsOnlyDelta(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	orderID, lineID := seedLine(t, e, 3)

	_, err := e.SendToKitchen(ctx, orderID)
	require.NoError(t, err)

	// Raise 3 -> 5; only the 2 unsent units go out.
	require.NoError(t, e.SetItemQuantity(ctx, orderID, lineID, 5))
	ticket, err := e.SendToKitchen(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, ticket)
	require.Len(t, ticket.Items, 1)
	assert.Equal(t, 2, ticket.Items[0].QuantitySent)

	o, err := e.Order(orderID)
	require.NoError(t, err)
	assert.Equal(t, 5, o.Lines[0].NotifiedQuantity)

	_, tickets := e.Store().Snapshot()
	assert.Len(t, tickets, 2)
}

func TestReconcile_NoCartChange_IsIdempotent(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	orderID, _ := seedLine(t, e, 3)

	first, err := e.SendToKitchen(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := e.SendToKitchen(ctx, orderID)
	require.NoError(t, err)
	assert.Nil(t, second)

	_, tickets := e.Store().Snapshot()
	assert.Len(t, tickets, 1)
}

func TestReconcile_NoteOnlyChange_UpdatesTicketItemInPlace(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	orderID, lineID := seedLine(t, e, 2)

	_, err := e.SendToKitchen(ctx, orderID)
	require.NoError(t, err)

	require.NoError(t, e.SetItemNote(ctx, orderID, lineID, "no cilantro"))
	ticket, err := e.SendToKitchen(ctx, orderID)
	require.NoError(t, err)
	assert.Nil(t, ticket, "note-only change must not create a ticket")

	_, tickets := e.Store().Snapshot()
	require.Len(t, tickets, 1)
	assert.Equal(t, "no cilantro", tickets[0].Items[0].Note)
}

func TestReconcile_NoteChange_ReachesEveryOpenTicket(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	orderID, lineID := seedLine(t, e, 3)

	first, err := e.SendToKitchen(ctx, orderID)
	require.NoError(t, err)
	require.NoError(t, e.SetItemQuantity(ctx, orderID, lineID, 5))
	_, err = e.SendToKitchen(ctx, orderID)
	require.NoError(t, err)

	// Two open tickets for the line: the note lands on both.
	require.NoError(t, e.SetItemNote(ctx, orderID, lineID, "no cilantro"))
	ticket, err := e.SendToKitchen(ctx, orderID)
	require.NoError(t, err)
	assert.Nil(t, ticket)

	_, tickets := e.Store().Snapshot()
	require.Len(t, tickets, 2)
	for _, tk := range tickets {
		assert.Equal(t, "no cilantro", tk.Items[0].Note)
	}

	// A served ticket keeps whatever note it went out with.
	for _, st := range []domain.TicketStatus{domain.TicketCooking, domain.TicketCompleted, domain.TicketServed} {
		require.NoError(t, e.RequestTransition(ctx, first.ID, st))
	}
	require.NoError(t, e.SetItemNote(ctx, orderID, lineID, "extra lime"))
	ticket, err = e.SendToKitchen(ctx, orderID)
	require.NoError(t, err)
	assert.Nil(t, ticket)

	_, tickets = e.Store().Snapshot()
	for _, tk := range tickets {
		if tk.ID == first.ID {
			assert.Equal(t, "no cilantro", tk.Items[0].Note)
		} else {
			assert.Equal(t, "extra lime", tk.Items[0].Note)
		}
	}
}

func TestReconcile_NoteChangeBeforeFirstSend_TravelsWithTicket(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	orderID, lineID := seedLine(t, e, 2)

	// Not sent yet: the note rides along on the first ticket instead of
	// being a note-only update.
	require.NoError(t, e.SetItemNote(ctx, orderID, lineID, "extra spicy"))
	ticket, err := e.SendToKitchen(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, "extra spicy", ticket.Items[0].Note)
}

func TestReconcile_NotifiedQuantityNeverDecreases(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	orderID, lineID := seedLine(t, e, 4)

	high := 0
	check := func() {
		o, err := e.Order(orderID)
		require.NoError(t, err)
		require.NotEmpty(t, o.Lines)
		assert.GreaterOrEqual(t, o.Lines[0].NotifiedQuantity, high)
		high = o.Lines[0].NotifiedQuantity
	}

	_, err := e.SendToKitchen(ctx, orderID)
	require.NoError(t, err)
	check()

	_, err = e.SendToKitchen(ctx, orderID)
	require.NoError(t, err)
	check()

	require.NoError(t, e.SetItemQuantity(ctx, orderID, lineID, 7))
	_, err = e.SendToKitchen(ctx, orderID)
	require.NoError(t, err)
	check()
}

func TestReconcile_CompletedOrder_IsFrozen(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	orderID, _ := seedLine(t, e, 2)

	require.NoError(t, e.MarkOrderCompleted(ctx, orderID, domain.Payment{Method: "cash", Amount: 19}))

	_, err := e.SendToKitchen(ctx, orderID)
	assert.ErrorIs(t, err, ErrOrderCompleted)
}

func TestReconcile_UnknownOrder(t *testing.T) {
	e := newTestEngine()
	_, err := e.SendToKitchen(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
