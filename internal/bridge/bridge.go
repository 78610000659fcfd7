package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"kitchen-sync/internal/common/logger"
	"kitchen-sync/internal/domain"
	"kitchen-sync/internal/engine"
	"kitchen-sync/internal/repository"
)

// ErrMalformedSnapshot marks a foreign snapshot that failed to parse. It is
// an expected artifact of multi-field writes racing across processes: the
// bridge logs and discards it, and the next valid write heals the state.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Signal is the broadcast body announcing a snapshot write.
type Signal struct {
	Key      string `json:"key"`
	OriginID string `json:"origin_id"`
	Revision uint64 `json:"revision"`
}

// Broadcaster publishes change signals to the other processes sharing the
// snapshot key. *mq.Client satisfies it.
type Broadcaster interface {
	PublishChange(ctx context.Context, originID string, body []byte) error
}

// Bridge connects the in-process store to the durable shared medium. Local
// commits flow out through Flush (persist, then broadcast); foreign writes
// flow in through HandleSignal (reload, parse, merge slice-by-slice).
type Bridge struct {
	key      string
	originID string
	store    *engine.Store
	repo     repository.Snapshots
	pub      Broadcaster
	log      *logger.Logger

	mu       sync.Mutex
	revision uint64
}

func New(key, originID string, store *engine.Store, repo repository.Snapshots, pub Broadcaster, log *logger.Logger) *Bridge {
	return &Bridge{key: key, originID: originID, store: store, repo: repo, pub: pub, log: log}
}

func (b *Bridge) OriginID() string { return b.originID }

// Flush implements engine.Flusher: serialize the store, stamp it with this
// process's origin id and a fresh revision, persist, then broadcast. The
// whole sequence runs under one mutex so concurrent local commits reach the
// durable medium in revision order — the newest state always lands last and
// the stored revision never regresses. The broadcast is best-effort; the
// durable row is the source of truth and a missed signal heals on the next
// write.
func (b *Bridge) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	orders, tickets := b.store.Snapshot()
	b.revision++
	rev := b.revision

	snap := domain.Snapshot{
		OriginID:       b.originID,
		Revision:       rev,
		WrittenAt:      time.Now().UTC(),
		Orders:         orders,
		KitchenTickets: tickets,
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := b.repo.Save(ctx, b.key, b.originID, rev, payload); err != nil {
		return err
	}

	if b.pub != nil {
		body, _ := json.Marshal(Signal{Key: b.key, OriginID: b.originID, Revision: rev})
		if err := b.pub.PublishChange(ctx, b.originID, body); err != nil {
			b.log.Warn("change_broadcast_failed", map[string]any{"error": err.Error()})
		}
	}
	return nil
}

// Bootstrap pulls the existing snapshot at startup, if any.
func (b *Bridge) Bootstrap(ctx context.Context) error {
	payload, err := b.repo.Load(ctx, b.key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	b.apply(payload)
	return nil
}

// HandleSignal processes one change signal. Echoes of this process's own
// writes and signals for other keys are dropped without touching the store.
func (b *Bridge) HandleSignal(ctx context.Context, body []byte) {
	var sig Signal
	if err := json.Unmarshal(body, &sig); err != nil {
		b.log.Warn("malformed_change_signal", map[string]any{"error": err.Error()})
		return
	}
	if sig.OriginID == b.originID {
		return
	}
	if sig.Key != "" && sig.Key != b.key {
		return
	}
	payload, err := b.repo.Load(ctx, b.key)
	if err != nil {
		b.log.Error("snapshot_load_failed", err, map[string]any{"key": b.key})
		return
	}
	b.apply(payload)
}

// Listen consumes the fanout delivery stream until ctx ends or the channel
// closes.
func (b *Bridge) Listen(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				b.log.Warn("change_stream_closed", nil)
				return
			}
			b.HandleSignal(ctx, d.Body)
		}
	}
}

// apply merges a foreign snapshot into the local store, last-write-wins at
// slice granularity: only the slices that actually differ are overwritten,
// and dependent views recompute from scratch off the refreshed signal.
func (b *Bridge) apply(payload []byte) {
	var snap domain.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		b.log.Warn("snapshot_discarded", map[string]any{
			"error": fmt.Errorf("%w: %v", ErrMalformedSnapshot, err).Error(),
		})
		return
	}

	localOrders, localTickets := b.store.Snapshot()
	replaceOrders := !jsonEqual(localOrders, snap.Orders)
	replaceTickets := !jsonEqual(localTickets, snap.KitchenTickets)
	if !replaceOrders && !replaceTickets {
		return
	}
	b.store.Replace(snap.Orders, snap.KitchenTickets, replaceOrders, replaceTickets)
	b.log.Debug("state_refreshed", map[string]any{
		"origin":   snap.OriginID,
		"revision": snap.Revision,
		"orders":   replaceOrders,
		"tickets":  replaceTickets,
	})
}

func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
