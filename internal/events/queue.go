package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/metrics"
	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
	"go.uber.org/zap"
)

// MaxQueueSize is the serialized size, in bytes, above which Enqueue asks the
// caller to flush.
const MaxQueueSize = 100 * 1000

// Sender delivers one batch. Any error, including a non-2xx response, means
// the batch was not accepted.
type Sender interface {
	SendBatch(ctx context.Context, userID string, events []models.Event) error
}

// Archiver mirrors delivered batches somewhere durable.
type Archiver interface {
	Archive(ctx context.Context, userID string, events []models.Event) error
}

// Queue buffers events in memory and persists them per user when they cannot
// be delivered. Events are never dropped: a failed batch is written back to
// storage ahead of anything persisted meanwhile.
type Queue struct {
	mu      sync.Mutex
	store   *storage.Store
	sender  Sender
	archive Archiver
	metrics *metrics.Metrics
	logger  *zap.Logger

	queue []models.Event
	size  int
}

// NewQueue creates an empty queue.
func NewQueue(store *storage.Store, sender Sender, logger *zap.Logger, m *metrics.Metrics) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{store: store, sender: sender, logger: logger, metrics: m}
}

// SetArchive attaches an archive that receives every delivered batch.
func (q *Queue) SetArchive(a Archiver) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.archive = a
}

// Enqueue appends e and reports whether the queue has grown past
// MaxQueueSize.
func (q *Queue) Enqueue(e models.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.queue = append(q.queue, e)
	q.size += eventSize(e)
	q.logger.Debug("event queued",
		zap.String("type", string(e.Type)),
		zap.String("name", e.Name),
		zap.Int64("seqnum", e.SeqNum),
		zap.Int("queue_size", q.size),
	)
	if q.metrics != nil {
		q.metrics.RecordEventQueued(string(e.Type), q.size)
	}
	return q.size > MaxQueueSize
}

// Flush sends the persisted events of userID followed by the in-memory queue
// as one batch. It returns true only when the batch was accepted. On failure
// the batch is persisted again, ahead of events stored while it was in
// flight. An empty queue returns false without a request.
func (q *Queue) Flush(ctx context.Context, userID string) bool {
	q.mu.Lock()
	pending := append(q.storedEvents(ctx, userID), q.queue...)
	if err := q.store.Remove(ctx, storage.EventsKey(userID)); err != nil {
		q.logger.Warn("failed to clear stored events", zap.String("user_id", userID), zap.Error(err))
	}
	q.queue = nil
	q.size = 0
	archive := q.archive
	q.mu.Unlock()

	if len(pending) == 0 {
		q.logger.Debug("nothing to send")
		return false
	}

	start := time.Now()
	err := q.sender.SendBatch(ctx, userID, pending)
	if q.metrics != nil {
		q.metrics.RecordFlush(err == nil, len(pending), time.Since(start))
	}

	if err != nil {
		q.logger.Warn("failed to post events, saving queue for later",
			zap.String("user_id", userID),
			zap.Int("events", len(pending)),
			zap.Error(err),
		)
		q.mu.Lock()
		defer q.mu.Unlock()
		q.storeEvents(ctx, userID, append(pending, q.storedEvents(ctx, userID)...))
		q.size += batchSize(pending)
		return false
	}

	q.logger.Info("queue posted", zap.String("user_id", userID), zap.Int("events", len(pending)))
	if archive != nil {
		aerr := archive.Archive(ctx, userID, pending)
		if aerr != nil {
			q.logger.Warn("failed to archive batch", zap.String("user_id", userID), zap.Error(aerr))
		}
		if q.metrics != nil {
			q.metrics.RecordArchiveWrite(aerr == nil)
		}
	}
	return true
}

// PersistAndClear moves the in-memory queue into storage for userID.
func (q *Queue) PersistAndClear(ctx context.Context, userID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queue) == 0 {
		q.logger.Debug("nothing to save")
		return
	}
	all := append(q.storedEvents(ctx, userID), q.queue...)
	q.queue = nil
	q.storeEvents(ctx, userID, all)
	q.size = batchSize(all)
}

// AllQueued returns the persisted events of userID followed by the in-memory
// ones.
func (q *Queue) AllQueued(ctx context.Context, userID string) []models.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append(q.storedEvents(ctx, userID), q.queue...)
}

// ClearAll drops both the in-memory queue and the events stored for userID.
func (q *Queue) ClearAll(ctx context.Context, userID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = nil
	q.size = 0
	if err := q.store.Remove(ctx, storage.EventsKey(userID)); err != nil {
		q.logger.Warn("failed to clear stored events", zap.String("user_id", userID), zap.Error(err))
	}
}

// Len returns the number of in-memory events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Size returns the tracked serialized size in bytes.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *Queue) storedEvents(ctx context.Context, userID string) []models.Event {
	var stored []models.Event
	if !q.store.GetJSON(ctx, storage.EventsKey(userID), &stored) {
		return nil
	}
	return stored
}

func (q *Queue) storeEvents(ctx context.Context, userID string, events []models.Event) {
	if err := q.store.SetJSON(ctx, storage.EventsKey(userID), events); err != nil {
		q.logger.Error("failed to persist events",
			zap.String("user_id", userID),
			zap.Int("events", len(events)),
			zap.Error(err),
		)
		if q.metrics != nil {
			q.metrics.RecordStorageError("persist_events")
		}
	}
}

func eventSize(e models.Event) int {
	b, err := json.Marshal(e)
	if err != nil {
		return 0
	}
	return len(b)
}

func batchSize(events []models.Event) int {
	total := 0
	for _, e := range events {
		total += eventSize(e)
	}
	return total
}
