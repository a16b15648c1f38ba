// Package geo resolves the country and region of the device from its public
// IP when the platform cannot supply them.
package geo

import (
	"sync"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/clock"
	"go.uber.org/zap"
)

// Info holds geographic information for an IP.
type Info struct {
	Country     string
	CountryCode string
	Region      string
	City        string
	Timezone    string
}

// Provider looks up an IP address.
type Provider interface {
	Lookup(ip string) (*Info, error)
	Close() error
}

// Resolver caches provider lookups.
type Resolver struct {
	provider Provider
	clock    clock.Clock
	logger   *zap.Logger

	mu      sync.RWMutex
	data    map[string]cacheEntry
	maxSize int
	ttl     time.Duration
}

type cacheEntry struct {
	info      *Info
	expiresAt time.Time
}

// NewResolver creates a resolver. A nil provider resolves nothing.
func NewResolver(provider Provider, cacheSize int, ttl time.Duration, clk clock.Clock, logger *zap.Logger) *Resolver {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheSize <= 0 {
		cacheSize = 16
	}
	return &Resolver{
		provider: provider,
		clock:    clk,
		logger:   logger,
		data:     make(map[string]cacheEntry),
		maxSize:  cacheSize,
		ttl:      ttl,
	}
}

// Resolve returns the location of ip, or nil when unknown.
func (r *Resolver) Resolve(ip string) *Info {
	if r == nil || ip == "" || r.provider == nil {
		return nil
	}
	if info, ok := r.get(ip); ok {
		return info
	}

	info, err := r.provider.Lookup(ip)
	if err != nil {
		r.logger.Debug("geo lookup failed", zap.String("ip", ip), zap.Error(err))
		return nil
	}
	r.set(ip, info)
	return info
}

// Close releases the provider.
func (r *Resolver) Close() error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close()
}

func (r *Resolver) get(ip string) (*Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.data[ip]
	if !ok || r.clock.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.info, true
}

func (r *Resolver) set(ip string, info *Info) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Evict if at capacity (simple FIFO)
	if len(r.data) >= r.maxSize {
		for k := range r.data {
			delete(r.data, k)
			break
		}
	}
	r.data[ip] = cacheEntry{info: info, expiresAt: r.clock.Now().Add(r.ttl)}
}

// StaticProvider serves fixed entries. Used when no database is configured
// and in tests.
type StaticProvider struct {
	mu      sync.Mutex
	data    map[string]*Info
	lookups int
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{data: make(map[string]*Info)}
}

func (s *StaticProvider) AddEntry(ip string, info *Info) {
	s.mu.Lock()
	s.data[ip] = info
	s.mu.Unlock()
}

func (s *StaticProvider) Lookup(ip string) (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	return s.data[ip], nil
}

// Lookups returns how many lookups reached the provider.
func (s *StaticProvider) Lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func (s *StaticProvider) Close() error {
	return nil
}
