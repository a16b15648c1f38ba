// Package archive keeps a copy of every batch the backend accepted, for
// replay and offline analysis.
package archive

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/clock"
	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"github.com/oklog/ulid/v2"
)

// Row is one archived event.
type Row struct {
	BatchID    string
	UserID     string
	DeviceID   string
	Type       string
	Name       string
	SeqNum     int64
	EventTime  time.Time
	Payload    string
	ArchivedAt time.Time
}

// Batch is a delivered batch as kept by MemoryArchive.
type Batch struct {
	ID         string
	UserID     string
	Events     []models.Event
	ArchivedAt time.Time
}

// NewBatchID returns a time-ordered batch id.
func NewBatchID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}

// Rows flattens a batch into archive rows. The event itself is kept as JSON
// so every kind fits one schema.
func Rows(batchID, userID, deviceID string, events []models.Event, at time.Time) []Row {
	rows := make([]Row, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			payload = []byte("{}")
		}
		rows = append(rows, Row{
			BatchID:    batchID,
			UserID:     userID,
			DeviceID:   deviceID,
			Type:       string(e.Type),
			Name:       e.Name,
			SeqNum:     e.SeqNum,
			EventTime:  time.UnixMilli(e.Time).UTC(),
			Payload:    string(payload),
			ArchivedAt: at.UTC(),
		})
	}
	return rows
}

// MemoryArchive keeps the most recent batches in memory.
type MemoryArchive struct {
	mu      sync.Mutex
	clock   clock.Clock
	max     int
	batches []Batch
}

// NewMemoryArchive keeps at most max batches. max <= 0 keeps everything.
func NewMemoryArchive(max int, clk clock.Clock) *MemoryArchive {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryArchive{max: max, clock: clk}
}

func (m *MemoryArchive) Archive(_ context.Context, userID string, events []models.Event) error {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batches = append(m.batches, Batch{
		ID:         NewBatchID(now),
		UserID:     userID,
		Events:     append([]models.Event(nil), events...),
		ArchivedAt: now,
	})
	if m.max > 0 && len(m.batches) > m.max {
		m.batches = m.batches[len(m.batches)-m.max:]
	}
	return nil
}

// Batches returns the kept batches, oldest first.
func (m *MemoryArchive) Batches() []Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Batch(nil), m.batches...)
}
