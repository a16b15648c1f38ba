package profile

import (
	"context"
	"testing"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/clock"
	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, store *storage.Store, clk *clock.Manual, userID string) *Manager {
	t.Helper()
	return NewManager(context.Background(), store, userID, Options{
		AppID:              30512,
		APIKey:             "key",
		NewSessionInterval: 30 * time.Minute,
		Clock:              clk,
		NewID:              func() string { return "anon-2" },
	})
}

func TestNewManagerCreatesAnonymousUser(t *testing.T) {
	store := storage.New(storage.NewMemoryBackend(), nil)
	clk := clock.NewManual(epoch)
	m := newTestManager(t, store, clk, "user-1")

	u := m.CurrentUser()
	assert.Equal(t, "user-1", u.UserID)
	assert.True(t, u.IsAnonymous)
	assert.Equal(t, epoch.UnixMilli(), u.SessionStart)
	assert.Equal(t, SessionToken("user-1", 30512, "key", epoch), u.SessionToken)
	assert.False(t, m.HasSessionRestored())

	var stored models.User
	require.True(t, store.GetJSON(context.Background(), storage.UserKey("user-1"), &stored))
	assert.Equal(t, u, stored)
}

func TestSequenceNumbersAreMonotonicAndPersisted(t *testing.T) {
	ctx := context.Background()
	store := storage.New(storage.NewMemoryBackend(), nil)
	clk := clock.NewManual(epoch)
	m := newTestManager(t, store, clk, "user-1")

	assert.Equal(t, int64(1), m.NextSequenceNumber(ctx))
	assert.Equal(t, int64(2), m.NextSequenceNumber(ctx))

	reloaded := newTestManager(t, store, clk, "user-1")
	assert.Equal(t, int64(3), reloaded.NextSequenceNumber(ctx))
}

func TestSessionRestoredWithinInterval(t *testing.T) {
	ctx := context.Background()
	store := storage.New(storage.NewMemoryBackend(), nil)
	clk := clock.NewManual(epoch)

	m := newTestManager(t, store, clk, "user-1")
	token := m.SessionToken()
	m.SaveBeforeSessionEnd(ctx)

	clk.Advance(10 * time.Minute)
	resumed := newTestManager(t, store, clk, "user-1")
	assert.True(t, resumed.HasSessionRestored())
	assert.Equal(t, token, resumed.SessionToken())
	assert.Equal(t, epoch.UnixMilli(), resumed.CurrentUser().SessionStart)

	resumed.SaveBeforeSessionEnd(ctx)
	clk.Advance(31 * time.Minute)
	fresh := newTestManager(t, store, clk, "user-1")
	assert.False(t, fresh.HasSessionRestored())
	assert.NotEqual(t, token, fresh.SessionToken())
	assert.Equal(t, clk.Now().UnixMilli(), fresh.CurrentUser().SessionStart)
}

func TestSetCurrentUser(t *testing.T) {
	ctx := context.Background()
	store := storage.New(storage.NewMemoryBackend(), nil)
	clk := clock.NewManual(epoch)
	m := newTestManager(t, store, clk, "user-1")
	m.NextSequenceNumber(ctx)

	clk.Advance(time.Minute)
	m.SetCurrentUser(ctx, "user-2", false)
	u := m.CurrentUser()
	assert.Equal(t, "user-2", u.UserID)
	assert.False(t, u.IsAnonymous)
	assert.Equal(t, int64(1), u.NextSeqNum)
	assert.Equal(t, clk.Now().UnixMilli(), u.SessionStart)

	id, ok := StoredUserID(ctx, store)
	require.True(t, ok)
	assert.Equal(t, "user-2", id)

	// switching back restores the stored counter with a new session
	clk.Advance(time.Minute)
	m.SetCurrentUser(ctx, "user-1", false)
	assert.Equal(t, int64(2), m.NextSequenceNumber(ctx))
	assert.Equal(t, clk.Now().UnixMilli(), m.CurrentUser().SessionStart)
}

func TestNewAnonymousUser(t *testing.T) {
	ctx := context.Background()
	store := storage.New(storage.NewMemoryBackend(), nil)
	m := newTestManager(t, store, clock.NewManual(epoch), "user-1")

	id := m.SetCurrentUserAsNewAnonymous(ctx)
	assert.Equal(t, "anon-2", id)
	assert.True(t, m.CurrentUser().IsAnonymous)
}

func TestQAAndETag(t *testing.T) {
	ctx := context.Background()
	store := storage.New(storage.NewMemoryBackend(), nil)
	m := newTestManager(t, store, clock.NewManual(epoch), "user-1")

	assert.Nil(t, m.QAUser())
	m.SetQAUser(ctx, &models.QAUser{ResetDeviceState: true, Logging: true})
	assert.True(t, m.IsQAUser())
	require.NotNil(t, m.QAUser())
	assert.True(t, m.QAUser().ResetDeviceState)

	m.ClearQAUser(ctx)
	assert.False(t, m.IsQAUser())
	assert.Nil(t, m.QAUser())

	m.StoreETag(ctx, "abc")
	assert.Equal(t, "abc", m.ETag())
	m.ClearETag(ctx)
	assert.Empty(t, m.ETag())
}

func TestExternalIDsAndVerification(t *testing.T) {
	ctx := context.Background()
	store := storage.New(storage.NewMemoryBackend(), nil)
	m := newTestManager(t, store, clock.NewManual(epoch), "user-1")

	_, ok := m.SwrveIDForExternalID(ctx, "ext")
	assert.False(t, ok)
	m.CacheExternalID(ctx, "ext", "user-9")
	id, ok := m.SwrveIDForExternalID(ctx, "ext")
	assert.True(t, ok)
	assert.Equal(t, "user-9", id)

	assert.False(t, m.IsUserIDVerified(ctx, "user-9"))
	m.SetUserIDVerified(ctx, "user-9")
	assert.True(t, m.IsUserIDVerified(ctx, "user-9"))
}

func TestSessionTokenFormat(t *testing.T) {
	at := time.Unix(1700000000, 0)
	token := SessionToken("u", 1, "k", at)
	// md5("u1700000000k")
	assert.Equal(t, "1=u=1700000000=", token[:15])
	assert.Len(t, token, 15+32)
}
