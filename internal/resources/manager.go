package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
	"go.uber.org/zap"
)

// Manager holds the current user's resources indexed by uid. Stored copies
// carry an integrity checksum; a tampered copy is treated as absent.
type Manager struct {
	mu        sync.RWMutex
	store     *storage.Store
	logger    *zap.Logger
	resources []models.Resource
	index     map[string]Resource
}

func NewManager(store *storage.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger}
}

// Store replaces the in-memory resources and persists them for userID.
func (m *Manager) Store(ctx context.Context, userID string, resources []models.Resource) error {
	m.set(resources)
	b, err := json.Marshal(resources)
	if err != nil {
		return fmt.Errorf("failed to encode resources: %w", err)
	}
	return m.store.SetChecked(ctx, storage.ResourcesKey(userID), string(b))
}

// Load reads the stored resources of userID into memory. It returns nil when
// nothing valid is stored.
func (m *Manager) Load(ctx context.Context, userID string) []models.Resource {
	var resources []models.Resource
	raw, err := m.store.GetChecked(ctx, storage.ResourcesKey(userID))
	if err == nil && raw != "" {
		if err := json.Unmarshal([]byte(raw), &resources); err != nil {
			m.logger.Warn("discarding corrupt resources", zap.String("user_id", userID), zap.Error(err))
			resources = nil
		}
	}
	m.set(resources)
	return m.Resources()
}

func (m *Manager) set(resources []models.Resource) {
	index := make(map[string]Resource, len(resources))
	for _, r := range resources {
		index[r["uid"]] = NewResource(r)
	}
	m.mu.Lock()
	m.resources = resources
	m.index = index
	m.mu.Unlock()
}

// Resources returns a copy of all resources, or nil if none were loaded.
func (m *Manager) Resources() []models.Resource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.resources == nil {
		return nil
	}
	out := make([]models.Resource, 0, len(m.resources))
	for _, r := range m.resources {
		out = append(out, NewResource(r).Attributes())
	}
	return out
}

// Resource returns the resource with uid id, or an empty one.
func (m *Manager) Resource(id string) Resource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index[id]
}

func (m *Manager) AttributeAsString(resourceID, attr, def string) string {
	return m.Resource(resourceID).AttributeAsString(attr, def)
}

func (m *Manager) AttributeAsNumber(resourceID, attr string, def float64) float64 {
	return m.Resource(resourceID).AttributeAsNumber(attr, def)
}

func (m *Manager) AttributeAsBool(resourceID, attr string, def bool) bool {
	return m.Resource(resourceID).AttributeAsBool(attr, def)
}
