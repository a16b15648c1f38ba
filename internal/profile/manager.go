// Package profile owns the current user's identity and session record: the
// session token, the per-user sequence counter and the QA flags.
package profile

import (
	"context"
	"sync"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/clock"
	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const verifiedMarker = "VERIFIED"

// Options configure a Manager.
type Options struct {
	AppID              int
	APIKey             string
	NewSessionInterval time.Duration
	Clock              clock.Clock
	Logger             *zap.Logger
	// NewID generates anonymous user ids. Defaults to uuid.NewString.
	NewID func() string
}

// Manager holds the current user. All methods are safe for concurrent use;
// sequence numbers are handed out under the manager's lock.
type Manager struct {
	mu       sync.Mutex
	store    *storage.Store
	opts     Options
	user     models.User
	restored bool
}

// NewManager loads userID from storage, or creates a fresh anonymous record.
// A stored session whose end lies within NewSessionInterval is resumed.
func NewManager(ctx context.Context, store *storage.Store, userID string, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	m := &Manager{store: store, opts: opts}
	now := opts.Clock.Now()

	var stored models.User
	if store.GetJSON(ctx, storage.UserKey(userID), &stored) {
		m.user = stored
		m.user.UserID = userID
		if stored.LastSessionEnd != 0 &&
			now.Sub(time.UnixMilli(stored.LastSessionEnd)) <= opts.NewSessionInterval &&
			stored.SessionToken != "" {
			m.restored = true
		} else {
			m.startSession(now)
		}
	} else {
		m.user = models.User{
			UserID:       userID,
			SessionToken: SessionToken(userID, opts.AppID, opts.APIKey, now),
			SessionStart: now.UnixMilli(),
			IsAnonymous:  true,
		}
	}

	m.persist(ctx)
	return m
}

func (m *Manager) startSession(now time.Time) {
	m.user.SessionToken = SessionToken(m.user.UserID, m.opts.AppID, m.opts.APIKey, now)
	m.user.SessionStart = now.UnixMilli()
}

func (m *Manager) persist(ctx context.Context) {
	if err := m.store.SetJSON(ctx, storage.UserKey(m.user.UserID), m.user); err != nil {
		m.opts.Logger.Warn("failed to persist user", zap.String("user_id", m.user.UserID), zap.Error(err))
	}
}

// CurrentUser returns a copy of the current user record.
func (m *Manager) CurrentUser() models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// UserID returns the current user id.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user.UserID
}

// SessionToken returns the current session token.
func (m *Manager) SessionToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user.SessionToken
}

// SessionStart returns the start of the current session.
func (m *Manager) SessionStart() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.UnixMilli(m.user.SessionStart)
}

// HasSessionRestored reports whether the current session was resumed from
// storage rather than started fresh.
func (m *Manager) HasSessionRestored() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restored
}

// NextSequenceNumber increments, persists and returns the user's seqnum.
func (m *Manager) NextSequenceNumber(ctx context.Context) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user.NextSeqNum++
	m.persist(ctx)
	return m.user.NextSeqNum
}

// SetCurrentUser switches to userID, restoring its stored record if any,
// and always starts a new session.
func (m *Manager) SetCurrentUser(ctx context.Context, userID string, anonymous bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Clock.Now()
	var stored models.User
	if m.store.GetJSON(ctx, storage.UserKey(userID), &stored) {
		m.user = stored
		m.user.UserID = userID
	} else {
		m.user = models.User{UserID: userID, NextSeqNum: 1, IsAnonymous: anonymous}
	}
	m.startSession(now)
	m.restored = false

	m.persist(ctx)
	if err := m.store.Set(ctx, storage.KeyUserID, userID); err != nil {
		m.opts.Logger.Warn("failed to store current user id", zap.Error(err))
	}
}

// SetCurrentUserAsNewAnonymous switches to a freshly generated anonymous user.
func (m *Manager) SetCurrentUserAsNewAnonymous(ctx context.Context) string {
	id := m.opts.NewID()
	m.SetCurrentUser(ctx, id, true)
	return id
}

// StoreCurrentUserID records the current user as the one to restore on next launch.
func (m *Manager) StoreCurrentUserID(ctx context.Context) error {
	return m.store.Set(ctx, storage.KeyUserID, m.UserID())
}

// StoredUserID returns the user id of the last run, if any.
func StoredUserID(ctx context.Context, store *storage.Store) (string, bool) {
	id, ok := store.Lookup(ctx, storage.KeyUserID)
	return id, ok && id != ""
}

// SetFirstUse records the time of the user's first session.
func (m *Manager) SetFirstUse(ctx context.Context, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user.FirstUse = t.UnixMilli()
	m.persist(ctx)
}

// SaveBeforeSessionEnd stamps the session end so the next launch can decide
// whether to resume it.
func (m *Manager) SaveBeforeSessionEnd(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user.LastSessionEnd = m.opts.Clock.Now().UnixMilli()
	m.persist(ctx)
}

// SetQAUser flags the current user as a QA user.
func (m *Manager) SetQAUser(ctx context.Context, qa *models.QAUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user.IsQAUser = true
	m.user.QAUser = qa
	m.persist(ctx)
}

// ClearQAUser clears the QA flag. The sequence number is kept.
func (m *Manager) ClearQAUser(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user.IsQAUser = false
	m.persist(ctx)
}

// IsQAUser reports whether the current user is a QA user.
func (m *Manager) IsQAUser() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user.IsQAUser
}

// QAUser returns the QA block of a QA user, or nil.
func (m *Manager) QAUser() *models.QAUser {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.user.IsQAUser {
		return nil
	}
	return m.user.QAUser
}

// StoreETag remembers the campaigns response validator.
func (m *Manager) StoreETag(ctx context.Context, etag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Logger.Debug("new etag", zap.String("etag", etag), zap.String("previous", m.user.ETag))
	m.user.ETag = etag
	m.persist(ctx)
}

// ClearETag forces the next campaigns request to fetch a full response.
func (m *Manager) ClearETag(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user.ETag = ""
	m.persist(ctx)
}

// ETag returns the stored campaigns response validator.
func (m *Manager) ETag() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user.ETag
}

// SwrveIDForExternalID returns the cached user id an external id resolved to.
func (m *Manager) SwrveIDForExternalID(ctx context.Context, externalID string) (string, bool) {
	id, ok := m.store.Lookup(ctx, storage.ExternalIDKey(externalID))
	return id, ok && id != ""
}

// CacheExternalID remembers which user id an external id resolved to.
func (m *Manager) CacheExternalID(ctx context.Context, externalID, swrveID string) {
	if err := m.store.Set(ctx, storage.ExternalIDKey(externalID), swrveID); err != nil {
		m.opts.Logger.Warn("failed to cache external id", zap.Error(err))
	}
}

// IsUserIDVerified reports whether the identity service confirmed userID.
func (m *Manager) IsUserIDVerified(ctx context.Context, userID string) bool {
	_, ok := m.store.Lookup(ctx, storage.VerifiedKey(userID))
	return ok
}

// SetUserIDVerified marks userID as confirmed by the identity service.
func (m *Manager) SetUserIDVerified(ctx context.Context, userID string) {
	if m.IsUserIDVerified(ctx, userID) {
		return
	}
	if err := m.store.Set(ctx, storage.VerifiedKey(userID), verifiedMarker); err != nil {
		m.opts.Logger.Warn("failed to mark user verified", zap.Error(err))
	}
}
