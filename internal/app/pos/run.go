package pos

import (
	"context"
	"strconv"

	"kitchen-sync/internal/bridge"
	"kitchen-sync/internal/common/config"
	"kitchen-sync/internal/common/db"
	"kitchen-sync/internal/common/httpx"
	"kitchen-sync/internal/common/logger"
	"kitchen-sync/internal/common/mq"
	"kitchen-sync/internal/domain"
	"kitchen-sync/internal/engine"
	"kitchen-sync/internal/repository"
)

// Run wires the engine to Postgres (durable snapshot) and RabbitMQ (change
// signals) and serves the collaborator HTTP API until ctx ends.
func Run(ctx context.Context, cfg *config.Config) error {
	lg := logger.New("pos-engine")

	conn, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := repository.EnsureSchema(ctx, conn); err != nil {
		return err
	}

	rmq, err := mq.Dial(cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer rmq.Close()
	if err := rmq.DeclareSyncTopology(); err != nil {
		return err
	}

	originID := cfg.Engine.OriginID
	if originID == "" {
		originID = domain.NewID()
	}

	store := engine.NewStore()
	eng := engine.New(store, lg, cfg.Engine.Actor)
	br := bridge.New(cfg.Engine.SnapshotKey, originID, store, repository.NewSnapshotsPG(conn), rmq, lg)
	eng.SetFlusher(br)

	if err := br.Bootstrap(ctx); err != nil {
		return err
	}

	deliveries, err := rmq.ConsumeChanges("pos-" + originID)
	if err != nil {
		return err
	}
	go br.Listen(ctx, deliveries)

	lg.Info("service_started", map[string]any{
		"port":         cfg.HTTP.Port,
		"snapshot_key": cfg.Engine.SnapshotKey,
		"origin_id":    originID,
	})

	srv := httpx.New(":"+strconv.Itoa(cfg.HTTP.Port), NewHandler(eng, lg))
	return srv.Run(ctx)
}
