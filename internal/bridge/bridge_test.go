package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchen-sync/internal/common/logger"
	"kitchen-sync/internal/domain"
	"kitchen-sync/internal/engine"
	"kitchen-sync/internal/repository"
)

type memRepo struct {
	mu      sync.Mutex
	payload []byte
	revs    []uint64
	loads   int
	saves   int
}

func (m *memRepo) Save(ctx context.Context, key, originID string, revision uint64, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = append([]byte(nil), payload...)
	m.revs = append(m.revs, revision)
	m.saves++
	return nil
}

func (m *memRepo) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.payload == nil {
		return nil, repository.ErrNotFound
	}
	return append([]byte(nil), m.payload...), nil
}

type memBroadcaster struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (m *memBroadcaster) PublishChange(ctx context.Context, originID string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies = append(m.bodies, append([]byte(nil), body...))
	return nil
}

func newTestBridge(repo repository.Snapshots, pub Broadcaster) (*Bridge, *engine.Store) {
	store := engine.NewStore()
	b := New("venue-1", "proc-a", store, repo, pub, logger.New("test"))
	return b, store
}

func seedStore(t *testing.T, store *engine.Store) {
	t.Helper()
	require.NoError(t, store.Mutate(func(s *engine.State) error {
		s.Orders = []domain.Order{{ID: "o1", Status: domain.OrderPending}}
		s.Tickets = []domain.KitchenTicket{{ID: "t1", OrderID: "o1", Status: domain.TicketPending}}
		return nil
	}))
}

func TestFlush_PersistsStampedSnapshotAndBroadcasts(t *testing.T) {
	repo := &memRepo{}
	pub := &memBroadcaster{}
	b, store := newTestBridge(repo, pub)
	seedStore(t, store)

	require.NoError(t, b.Flush(context.Background()))
	require.NoError(t, b.Flush(context.Background()))

	assert.Equal(t, 2, repo.saves)

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(repo.payload, &snap))
	assert.Equal(t, "proc-a", snap.OriginID)
	assert.EqualValues(t, 2, snap.Revision)
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, "o1", snap.Orders[0].ID)

	require.Len(t, pub.bodies, 2)
	var sig Signal
	require.NoError(t, json.Unmarshal(pub.bodies[1], &sig))
	assert.Equal(t, "venue-1", sig.Key)
	assert.Equal(t, "proc-a", sig.OriginID)
	assert.EqualValues(t, 2, sig.Revision)
}

func TestFlush_ConcurrentCommitsPersistInOrder(t *testing.T) {
	repo := &memRepo{}
	b, store := newTestBridge(repo, &memBroadcaster{})

	// Parallel HTTP handlers: each goroutine commits one order and flushes.
	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("o-%d", i)
			require.NoError(t, store.Mutate(func(s *engine.State) error {
				s.Orders = append(s.Orders, domain.Order{ID: id, Status: domain.OrderPending})
				return nil
			}))
			require.NoError(t, b.Flush(context.Background()))
		}(i)
	}
	wg.Wait()

	// Revisions must reach the medium strictly in order: an older snapshot
	// landing after a newer one would leave the durable row stale.
	require.Len(t, repo.revs, n)
	for i := 1; i < n; i++ {
		assert.Greater(t, repo.revs[i], repo.revs[i-1])
	}

	// The last persisted payload carries the final revision and every
	// committed order.
	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(repo.payload, &snap))
	assert.EqualValues(t, n, snap.Revision)
	assert.Len(t, snap.Orders, n)
}

func TestHandleSignal_IgnoresOwnEcho(t *testing.T) {
	repo := &memRepo{}
	b, _ := newTestBridge(repo, &memBroadcaster{})

	body, _ := json.Marshal(Signal{Key: "venue-1", OriginID: "proc-a", Revision: 7})
	b.HandleSignal(context.Background(), body)

	assert.Equal(t, 0, repo.loads, "echo of own write must not trigger a reload")
}

func TestHandleSignal_IgnoresOtherKeys(t *testing.T) {
	repo := &memRepo{}
	b, _ := newTestBridge(repo, &memBroadcaster{})

	body, _ := json.Marshal(Signal{Key: "venue-2", OriginID: "proc-b", Revision: 1})
	b.HandleSignal(context.Background(), body)

	assert.Equal(t, 0, repo.loads)
}

func TestHandleSignal_ForeignWrite_RefreshesStore(t *testing.T) {
	repo := &memRepo{}
	b, store := newTestBridge(repo, &memBroadcaster{})
	ch := store.Subscribe()

	foreign := domain.Snapshot{
		OriginID: "proc-b",
		Revision: 3,
		Orders:   []domain.Order{{ID: "o-foreign", Status: domain.OrderPending}},
	}
	payload, _ := json.Marshal(foreign)
	require.NoError(t, repo.Save(context.Background(), "venue-1", "proc-b", 3, payload))

	body, _ := json.Marshal(Signal{Key: "venue-1", OriginID: "proc-b", Revision: 3})
	b.HandleSignal(context.Background(), body)

	orders, _ := store.Snapshot()
	require.Len(t, orders, 1)
	assert.Equal(t, "o-foreign", orders[0].ID)

	select {
	case c := <-ch:
		assert.False(t, c.Local, "foreign overwrite fires a non-local refresh")
	default:
		t.Fatal("expected a refreshed signal")
	}
}

func TestHandleSignal_MalformedSnapshot_DiscardedWithoutStateChange(t *testing.T) {
	repo := &memRepo{}
	b, store := newTestBridge(repo, &memBroadcaster{})
	seedStore(t, store)

	// A benign torn write from another process mid-update.
	repo.payload = []byte(`{"orders": [{"id": "o-broken"`)

	body, _ := json.Marshal(Signal{Key: "venue-1", OriginID: "proc-b", Revision: 9})
	b.HandleSignal(context.Background(), body)

	orders, tickets := store.Snapshot()
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0].ID)
	require.Len(t, tickets, 1)
	assert.Equal(t, "t1", tickets[0].ID)
}

func TestApply_IdenticalSnapshot_NoRefresh(t *testing.T) {
	repo := &memRepo{}
	b, store := newTestBridge(repo, &memBroadcaster{})
	seedStore(t, store)

	orders, tickets := store.Snapshot()
	same, _ := json.Marshal(domain.Snapshot{OriginID: "proc-b", Revision: 1, Orders: orders, KitchenTickets: tickets})

	ch := store.Subscribe()
	b.apply(same)

	select {
	case <-ch:
		t.Fatal("identical snapshot must not fire a refresh")
	default:
	}
}

func TestApply_ReplacesOnlyDifferingSlice(t *testing.T) {
	repo := &memRepo{}
	b, store := newTestBridge(repo, &memBroadcaster{})
	seedStore(t, store)

	orders, _ := store.Snapshot()
	foreign, _ := json.Marshal(domain.Snapshot{
		OriginID: "proc-b",
		Revision: 4,
		Orders:   orders, // unchanged
		KitchenTickets: []domain.KitchenTicket{
			{ID: "t1", OrderID: "o1", Status: domain.TicketCooking},
		},
	})
	b.apply(foreign)

	gotOrders, gotTickets := store.Snapshot()
	require.Len(t, gotOrders, 1)
	assert.Equal(t, "o1", gotOrders[0].ID)
	require.Len(t, gotTickets, 1)
	assert.Equal(t, domain.TicketCooking, gotTickets[0].Status)
}

func TestBootstrap_EmptyMediumIsFine(t *testing.T) {
	b, store := newTestBridge(&memRepo{}, &memBroadcaster{})
	require.NoError(t, b.Bootstrap(context.Background()))
	orders, tickets := store.Snapshot()
	assert.Empty(t, orders)
	assert.Empty(t, tickets)
}

func TestBootstrap_LoadsExistingSnapshot(t *testing.T) {
	repo := &memRepo{}
	payload, _ := json.Marshal(domain.Snapshot{
		OriginID: "proc-b",
		Revision: 12,
		Orders:   []domain.Order{{ID: "o-existing"}},
	})
	repo.payload = payload

	b, store := newTestBridge(repo, &memBroadcaster{})
	require.NoError(t, b.Bootstrap(context.Background()))

	orders, _ := store.Snapshot()
	require.Len(t, orders, 1)
	assert.Equal(t, "o-existing", orders[0].ID)
}
