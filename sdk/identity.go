package sdk

import (
	"context"
	"fmt"

	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"github.com/Swrve/swrve-smarttv-sdk/internal/network"
	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
	"go.uber.org/zap"
)

// Identify switches the SDK to the user known to the backend as externalID.
// An empty externalID starts a new anonymous user. When the identity
// service cannot be reached the call is retried on reconnect and onError,
// if set, receives the failure. Identify is not available in managed mode.
func (s *SDK) Identify(ctx context.Context, externalID string, onError func(error)) {
	if s.cfg.ManagedMode {
		s.logger.Error("Identify cannot be called when managed mode is enabled, use Start instead")
		return
	}

	s.SendQueuedEvents(ctx)
	s.pause()

	previous := s.profile.UserID()

	if externalID == "" {
		s.createAnonymousUser(ctx)
		s.startNewSession(ctx)
		return
	}

	if cached, ok := s.profile.SwrveIDForExternalID(ctx, externalID); ok {
		s.unpause()
		if cached != s.profile.UserID() {
			s.verifyAndSwitchUser(ctx, cached)
		}
		return
	}

	current := s.profile.CurrentUser()
	if s.profile.IsUserIDVerified(ctx, current.UserID) || !current.IsAnonymous {
		s.createAnonymousUser(ctx)
	}
	_, _ = s.makeIdentityCall(ctx, externalID, previous, s.profile.UserID(), onError)
}

// makeIdentityCall resolves externalID and switches user accordingly. It
// reports whether a new session was started.
func (s *SDK) makeIdentityCall(ctx context.Context, externalID, previous, swrveID string,
	onError func(error)) (bool, error) {
	s.mu.Lock()
	s.identifiedOnAnotherDevice = false
	s.mu.Unlock()

	resp, err := s.transport.Identify(ctx, externalID, swrveID)
	if err != nil {
		s.logger.Info("identify failed", zap.String("swrve_id", swrveID), zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordIdentify("error")
		}
		s.handleIdentifyOffline(ctx, externalID, previous, swrveID, onError)
		s.unpause()
		err = fmt.Errorf("failed to identify user: %w", err)
		if onError != nil {
			onError(err)
		}
		return false, err
	}
	if s.metrics != nil {
		s.metrics.RecordIdentify(resp.Status)
	}

	s.profile.CacheExternalID(ctx, externalID, resp.SwrveID)

	switched := false
	switch resp.Status {
	case models.IdentityNewExternalID, models.IdentityExistingExternalIDMatchesSwrve:
		s.unpause()
		if previous != resp.SwrveID {
			s.verifyAndSwitchUser(ctx, resp.SwrveID)
			switched = true
		}
	case models.IdentityExistingExternalID:
		s.mu.Lock()
		s.identifiedOnAnotherDevice = true
		s.mu.Unlock()
		s.verifyAndSwitchUser(ctx, resp.SwrveID)
		switched = true
	default:
		s.logger.Warn("unknown identify status", zap.String("status", resp.Status))
		s.unpause()
	}

	if s.isIdentifyCallPending(ctx) {
		s.cleanUpIdentifyCallPending(ctx)
	}
	s.profile.SetUserIDVerified(ctx, s.profile.UserID())
	return switched, nil
}

// handleIdentifyOffline keeps the events of the unresolved user and records
// the identify call so that it survives a restart.
func (s *SDK) handleIdentifyOffline(ctx context.Context, externalID, previous, swrveID string, onError func(error)) {
	userID := s.profile.UserID()
	if pendingExt, ok := s.store.Lookup(ctx, storage.KeyIdentifyCallPendingExtID); ok && pendingExt != "" && pendingExt != externalID {
		s.queue.ClearAll(ctx, userID)
	} else {
		s.queue.PersistAndClear(ctx, userID)
	}

	s.watchIdentifyRetry(previous, swrveID, onError)

	if err := s.store.Set(ctx, storage.KeyIdentifyCallPending, swrveID); err != nil {
		s.logger.Warn("failed to record pending identify call", zap.Error(err))
	}
	if err := s.store.Set(ctx, storage.KeyIdentifyCallPendingExtID, externalID); err != nil {
		s.logger.Warn("failed to record pending identify call", zap.Error(err))
	}
}

func (s *SDK) watchIdentifyRetry(previous, swrveID string, onError func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identifyRetry != 0 || s.state == StateShutdown {
		return
	}
	s.identifyRetry = s.network.Watch(func(st network.Status) {
		if st != network.Connected {
			return
		}
		s.mu.Lock()
		h := s.identifyRetry
		s.identifyRetry = 0
		s.mu.Unlock()
		if h == 0 {
			return
		}
		s.network.Unwatch(h)

		ext, ok := s.store.Lookup(s.ctx, storage.KeyIdentifyCallPendingExtID)
		if !ok || ext == "" {
			return
		}
		s.logger.Info("network reconnected, retrying identify")
		_, _ = s.makeIdentityCall(s.ctx, ext, previous, swrveID, onError)
	})
}

func (s *SDK) isIdentifyCallPending(ctx context.Context) bool {
	v, ok := s.store.Lookup(ctx, storage.KeyIdentifyCallPending)
	return ok && v != ""
}

// cleanUpIdentifyCallPending delivers what the unresolved user queued and
// forgets the pending call.
func (s *SDK) cleanUpIdentifyCallPending(ctx context.Context) {
	s.mu.Lock()
	h := s.identifyRetry
	s.identifyRetry = 0
	s.mu.Unlock()
	if h != 0 {
		s.network.Unwatch(h)
	}

	if anonID, ok := s.store.Lookup(ctx, storage.KeyIdentifyCallPending); ok && anonID != "" {
		s.sendQueuedEvents(ctx, anonID, false)
	}
	for _, key := range []string{storage.KeyIdentifyCallPending, storage.KeyIdentifyCallPendingExtID} {
		if err := s.store.Remove(ctx, key); err != nil {
			s.logger.Warn("failed to clear pending identify call", zap.String("key", key), zap.Error(err))
		}
	}
}

// ===========================================
// USER SWITCHING
// ===========================================

func (s *SDK) createAnonymousUser(ctx context.Context) {
	id := s.profile.SetCurrentUserAsNewAnonymous(ctx)
	s.campaigns.LoadFromStorage(ctx, id)
	s.realtime.Load(ctx, id)
	s.logger.Info("created anonymous user", zap.String("user_id", id))
}

func (s *SDK) verifyAndSwitchUser(ctx context.Context, userID string) {
	s.profile.SetUserIDVerified(ctx, userID)
	s.switchUser(ctx, userID)
}

// switchUser makes userID current, reloads its stored state and starts a
// new session for it.
func (s *SDK) switchUser(ctx context.Context, userID string) {
	s.logger.Info("switching user", zap.String("from", s.profile.UserID()), zap.String("to", userID))
	s.profile.SetCurrentUser(ctx, userID, false)
	s.realtime.Load(ctx, userID)
	s.campaigns.LoadFromStorage(ctx, userID)
	s.resources.Load(ctx, userID)
	s.startNewSession(ctx)
}
