package archive

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/Swrve/swrve-smarttv-sdk/internal/clock"
	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"go.uber.org/zap"
)

// DefaultTable is used when no table is configured.
const DefaultTable = "swrve_delivered_events"

// conn is the subset of driver.Conn used by ClickHouseArchive.
type conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

// ClickHouseArchive writes delivered batches to a MergeTree table.
type ClickHouseArchive struct {
	conn     conn
	table    string
	deviceID string
	clock    clock.Clock
	logger   *zap.Logger
}

// NewClickHouseArchive creates an archive writing to table.
func NewClickHouseArchive(c conn, table, deviceID string, clk clock.Clock, logger *zap.Logger) *ClickHouseArchive {
	if table == "" {
		table = DefaultTable
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickHouseArchive{conn: c, table: table, deviceID: deviceID, clock: clk, logger: logger}
}

// EnsureSchema creates the archive table if it does not exist.
func (a *ClickHouseArchive) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		batch_id String,
		user_id String,
		device_id String,
		type LowCardinality(String),
		name String,
		seqnum Int64,
		event_time DateTime64(3),
		payload String,
		archived_at DateTime64(3)
	) ENGINE = MergeTree ORDER BY (user_id, event_time)`, a.table)
	if err := a.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create archive table: %w", err)
	}
	return nil
}

// Archive inserts one batch.
func (a *ClickHouseArchive) Archive(ctx context.Context, userID string, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	now := a.clock.Now()
	batchID := NewBatchID(now)

	batch, err := a.conn.PrepareBatch(ctx, "INSERT INTO "+a.table)
	if err != nil {
		return fmt.Errorf("failed to prepare archive batch: %w", err)
	}
	for _, r := range Rows(batchID, userID, a.deviceID, events, now) {
		if err := batch.Append(r.BatchID, r.UserID, r.DeviceID, r.Type, r.Name, r.SeqNum, r.EventTime, r.Payload, r.ArchivedAt); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append archive row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send archive batch: %w", err)
	}

	a.logger.Debug("batch archived",
		zap.String("batch_id", batchID),
		zap.String("user_id", userID),
		zap.Int("events", len(events)),
	)
	return nil
}
