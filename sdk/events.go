package sdk

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/events"
	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
	"go.uber.org/zap"
)

var reservedName = regexp.MustCompile(`(?i)swrve`)

func validateEventName(name string) error {
	if reservedName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidEventName, name)
	}
	return nil
}

// ===========================================
// PUBLIC EVENTS
// ===========================================

// SendEvent queues a custom event and checks it against the campaign
// triggers. Names containing "swrve" are reserved.
func (s *SDK) SendEvent(ctx context.Context, name string, payload map[string]any) error {
	if s.paused() {
		return nil
	}
	if err := validateEventName(name); err != nil {
		return err
	}

	e := events.Named(name, payload, s.profile.NextSequenceNumber(ctx), s.now())
	s.queuePublicEvent(ctx, e)
	s.checkTriggers(ctx, name, payload)
	return nil
}

// SendUserUpdate queues a user attributes update.
func (s *SDK) SendUserUpdate(ctx context.Context, attributes map[string]any) {
	if s.paused() {
		return
	}
	s.queuePublicEvent(ctx, events.UserUpdate(attributes, s.profile.NextSequenceNumber(ctx), s.now()))
}

// SendUserUpdateWithDate queues a user update setting key to date.
func (s *SDK) SendUserUpdateWithDate(ctx context.Context, key string, date time.Time) {
	if s.paused() {
		return
	}
	s.queuePublicEvent(ctx, events.UserUpdateWithDate(key, date, s.profile.NextSequenceNumber(ctx), s.now()))
}

// SendPurchaseEvent queues a virtual item purchase and flushes.
func (s *SDK) SendPurchaseEvent(ctx context.Context, item, currency string, cost float64, quantity int) error {
	if s.paused() {
		return nil
	}
	if err := validateEventName(item); err != nil {
		return err
	}
	s.queuePublicEvent(ctx, events.Purchase(item, currency, cost, quantity, s.profile.NextSequenceNumber(ctx), s.now()))
	s.SendQueuedEvents(ctx)
	return nil
}

// SendInAppPurchaseWithoutReceipt queues a real-money purchase and flushes.
// Invalid rewards are rejected before anything is queued.
func (s *SDK) SendInAppPurchaseWithoutReceipt(ctx context.Context, quantity int, productID string, price float64,
	currency string, rewards map[string]Reward) error {
	if s.paused() {
		return nil
	}
	if err := validateEventName(productID); err != nil {
		return err
	}
	if err := events.ValidateRewards(rewards); err != nil {
		return err
	}

	e, err := events.InAppPurchaseWithoutReceipt(quantity, productID, price, currency, rewards,
		s.profile.NextSequenceNumber(ctx), s.now())
	if err != nil {
		return err
	}
	s.queuePublicEvent(ctx, e)
	s.SendQueuedEvents(ctx)
	return nil
}

// SendCurrencyGiven queues a currency grant.
func (s *SDK) SendCurrencyGiven(ctx context.Context, currency string, amount float64) {
	if s.paused() {
		return
	}
	s.queuePublicEvent(ctx, events.CurrencyGiven(currency, amount, s.profile.NextSequenceNumber(ctx), s.now()))
}

// SendQueuedEvents flushes the queue of the current user and refreshes the
// campaigns when the batch was accepted.
func (s *SDK) SendQueuedEvents(ctx context.Context) {
	s.sendQueuedEvents(ctx, s.profile.UserID(), false)
}

func (s *SDK) sendQueuedEvents(ctx context.Context, userID string, force bool) {
	if s.paused() {
		return
	}
	ok := s.queue.Flush(ctx, userID)
	if ok || force {
		s.updateCampaignsAndResources(ctx, force)
	}
}

// ===========================================
// QUEUEING
// ===========================================

func (s *SDK) now() int64 {
	return s.clock.Now().UnixMilli()
}

// queueEvent enqueues e and flushes once the queue grows too large.
func (s *SDK) queueEvent(ctx context.Context, e models.Event) {
	if s.queue.Enqueue(e) {
		s.logger.Debug("queue full, sending")
		s.sendQueuedEvents(ctx, s.profile.UserID(), false)
	}
}

// queuePublicEvent enqueues e and, for QA users, its QA mirror, then flushes.
func (s *SDK) queuePublicEvent(ctx context.Context, e models.Event) {
	s.queueEvent(ctx, e)
	if s.profile.IsQAUser() {
		s.queueEvent(ctx, events.WrapForQA(e))
		s.sendQueuedEvents(ctx, s.profile.UserID(), false)
	}
}

// queueWithQA enqueues e and, for QA users, its QA mirror.
func (s *SDK) queueWithQA(ctx context.Context, e models.Event) {
	s.queueEvent(ctx, e)
	if s.profile.IsQAUser() {
		s.queueEvent(ctx, events.WrapForQA(e))
	}
}

func (s *SDK) queueSessionStart(ctx context.Context) {
	s.queueWithQA(ctx, events.SessionStart(s.profile.NextSequenceNumber(ctx), s.now()))
}

// checkFirstUserInitiated stamps the first use of a new user and logs the
// first session, unless the user was already known on another device.
func (s *SDK) checkFirstUserInitiated(ctx context.Context) {
	if s.profile.CurrentUser().FirstUse != 0 {
		return
	}
	now := s.clock.Now()
	s.profile.SetFirstUse(ctx, now)

	s.mu.Lock()
	elsewhere := s.identifiedOnAnotherDevice
	s.mu.Unlock()
	if elsewhere {
		return
	}
	s.queueWithQA(ctx, events.FirstSession(now.UnixMilli(), s.profile.NextSequenceNumber(ctx)))
}

func (s *SDK) queueImpression(ctx context.Context, messageID int, format *models.Format, embedded bool) {
	s.queueWithQA(ctx, events.Impression(messageID, format, embedded, s.profile.NextSequenceNumber(ctx), s.now()))
}

// ===========================================
// DEVICE
// ===========================================

func (s *SDK) queueDeviceProperties(ctx context.Context) {
	s.queueWithQA(ctx, events.DeviceUpdate(s.deviceProperties(), s.profile.NextSequenceNumber(ctx), s.now()))
}

func (s *SDK) deviceProperties() map[string]any {
	d := s.device
	return map[string]any{
		"swrve.device_id":     d.ID,
		"swrve.os":            d.OS,
		"swrve.os_version":    d.OSVersion,
		"swrve.sdk_version":   Version,
		"swrve.language":      d.Language,
		"swrve.country_code":  d.CountryCode,
		"swrve.device_region": d.Region,
		"swrve.timezone_name": d.Timezone,
		"swrve.device_dpi":    d.DPI,
		"swrve.device_height": d.Height,
		"swrve.device_width":  d.Width,
		"swrve.device_name":   d.Name + " " + d.Model,
		"swrve.app_store":     d.AppStore,
		"swrve.install_date":  s.installDate,
		"swrve.device_type":   "tv",
	}
}

// loadInstallDate returns the stored install date, stamping today on the
// first run.
func (s *SDK) loadInstallDate(ctx context.Context) string {
	if date, ok := s.store.Lookup(ctx, storage.KeyFirstInstallDate); ok && date != "" {
		return date
	}
	date := events.InstallDate(s.clock.Now())
	if err := s.store.Set(ctx, storage.KeyFirstInstallDate, date); err != nil {
		s.logger.Warn("failed to store install date", zap.Error(err))
	}
	return date
}
