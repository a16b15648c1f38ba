package resources

import (
	"context"
	"sync"

	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
	"go.uber.org/zap"
)

// personalizationPrefix is prepended to real-time property keys so message
// templates can refer to them as ${user.<name>}.
const personalizationPrefix = "user."

// RealTimeProperties holds the server-computed user properties used for
// message personalization.
type RealTimeProperties struct {
	mu     sync.RWMutex
	store  *storage.Store
	logger *zap.Logger
	props  map[string]string
}

func NewRealTimeProperties(store *storage.Store, logger *zap.Logger) *RealTimeProperties {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealTimeProperties{store: store, logger: logger, props: map[string]string{}}
}

// Store replaces the properties of userID. A nil map leaves them untouched.
func (p *RealTimeProperties) Store(ctx context.Context, userID string, props map[string]string) {
	if props == nil {
		return
	}
	p.mu.Lock()
	p.props = copyProps(props)
	p.mu.Unlock()

	if err := p.store.SetJSON(ctx, storage.RealTimeUserPropertiesKey(userID), props); err != nil {
		p.logger.Warn("failed to store real-time user properties", zap.String("user_id", userID), zap.Error(err))
	}
}

// Load replaces the in-memory properties with the ones stored for userID.
func (p *RealTimeProperties) Load(ctx context.Context, userID string) {
	var props map[string]string
	if !p.store.GetJSON(ctx, storage.RealTimeUserPropertiesKey(userID), &props) || props == nil {
		props = map[string]string{}
	}
	p.mu.Lock()
	p.props = props
	p.mu.Unlock()
}

// All returns a copy of the current properties.
func (p *RealTimeProperties) All() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyProps(p.props)
}

// ForPersonalization returns props with every key prefixed by "user.".
func ForPersonalization(props map[string]string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[personalizationPrefix+k] = v
	}
	return out
}

func copyProps(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
