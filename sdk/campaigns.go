package sdk

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/campaigns"
	"github.com/Swrve/swrve-smarttv-sdk/internal/events"
	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"github.com/Swrve/swrve-smarttv-sdk/internal/network"
	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
	"go.uber.org/zap"
)

var linkPattern = regexp.MustCompile(`^https?://`)

// ===========================================
// SYNC
// ===========================================

// UpdateCampaignsAndResources fetches campaigns, resources and real-time
// properties. A failed refresh is retried once the network comes back.
func (s *SDK) UpdateCampaignsAndResources(ctx context.Context) error {
	return s.updateCampaignsAndResources(ctx, false)
}

// updateCampaignsAndResources refreshes from the backend. With force set, a
// failure falls back to the stored campaigns and resources so the session
// can still show messages.
func (s *SDK) updateCampaignsAndResources(ctx context.Context, force bool) error {
	resp, etag, err := s.transport.Campaigns(ctx)
	if err == nil {
		s.handleCampaignResponse(ctx, resp, etag)
		if s.isCampaignCallPending(ctx) {
			s.cleanUpCampaignCallPending(ctx)
		}
		return nil
	}

	s.logger.Warn("failed to fetch campaigns", zap.Error(err))
	userID := s.profile.UserID()
	s.watchCampaignRetry()
	if serr := s.store.Set(ctx, storage.KeyCampaignCallPending, userID); serr != nil {
		s.logger.Warn("failed to record pending campaign call", zap.Error(serr))
	}

	if force {
		s.realtime.Load(ctx, userID)
		s.campaigns.LoadFromStorage(ctx, userID)
		s.notifyResources(s.resources.Load(ctx, userID))
		s.autoShowMessages(ctx)
	}
	return fmt.Errorf("failed to update campaigns: %w", err)
}

func (s *SDK) handleCampaignResponse(ctx context.Context, resp *models.CampaignsResponse, etag string) {
	userID := s.profile.UserID()

	if !resp.IsEmpty() {
		s.campaigns.ReplaceCampaigns(ctx, resp, func() {
			s.logger.Debug("assets loaded")
			s.autoShowMessages(s.ctx)
		})
		s.realtime.Store(ctx, userID, resp.RealTimeUserProperties)

		if resp.QA != nil {
			s.profile.SetQAUser(ctx, resp.QA)
		} else {
			s.profile.ClearQAUser(ctx)
		}

		s.updateTimer(time.Duration(resp.FlushFrequency) * time.Millisecond)

		if cb := s.hooks().campaignLoaded; cb != nil {
			cb()
		}
		if s.profile.IsQAUser() {
			if ids := s.campaigns.CampaignIDs(); len(ids) > 0 {
				s.queueEvent(ctx, events.CampaignsDownloaded(ids, s.profile.NextSequenceNumber(ctx), s.now()))
			}
		}
	}

	s.handleResources(ctx, resp)

	if etag != "" {
		s.profile.StoreETag(ctx, etag)
	}
}

func (s *SDK) handleResources(ctx context.Context, resp *models.CampaignsResponse) {
	userID := s.profile.UserID()
	if resp != nil && resp.UserResources != nil {
		if err := s.resources.Store(ctx, userID, resp.UserResources); err != nil {
			s.logger.Warn("failed to store resources", zap.String("user_id", userID), zap.Error(err))
		}
		s.notifyResources(s.resources.Resources())
		return
	}
	s.notifyResources(s.resources.Load(ctx, userID))
}

func (s *SDK) notifyResources(res []models.Resource) {
	cb := s.hooks().resourcesLoaded
	if cb == nil {
		return
	}
	if res == nil {
		res = []models.Resource{}
	}
	cb(res)
}

func (s *SDK) isCampaignCallPending(ctx context.Context) bool {
	v, ok := s.store.Lookup(ctx, storage.KeyCampaignCallPending)
	return ok && v != ""
}

// watchCampaignRetry arranges a single refresh on the next reconnect.
func (s *SDK) watchCampaignRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.campaignRetry != 0 || s.state == StateShutdown {
		return
	}
	s.campaignRetry = s.network.Watch(func(st network.Status) {
		if st != network.Connected {
			return
		}
		s.mu.Lock()
		h := s.campaignRetry
		s.campaignRetry = 0
		s.mu.Unlock()
		if h == 0 {
			return
		}
		s.network.Unwatch(h)

		s.logger.Info("network reconnected, retrying campaigns and resources")
		_ = s.updateCampaignsAndResources(s.ctx, false)
	})
}

func (s *SDK) cleanUpCampaignCallPending(ctx context.Context) {
	s.mu.Lock()
	h := s.campaignRetry
	s.campaignRetry = 0
	s.mu.Unlock()
	if h != 0 {
		s.network.Unwatch(h)
	}
	if err := s.store.Remove(ctx, storage.KeyCampaignCallPending); err != nil {
		s.logger.Warn("failed to clear pending campaign call", zap.Error(err))
	}
}

// ===========================================
// TRIGGERS
// ===========================================

// autoShowMessages fires the session start trigger once, while the
// auto-show window is open.
func (s *SDK) autoShowMessages(ctx context.Context) {
	s.mu.Lock()
	enabled := s.autoShow && s.state == StateActive && s.clock.Now().Before(s.autoShowUntil)
	s.autoShow = false
	s.mu.Unlock()

	s.logger.Debug("auto show messages", zap.Bool("enabled", enabled))
	if !enabled {
		return
	}
	s.checkTriggers(ctx, campaigns.AutoShowTrigger, map[string]any{})
}

// checkTriggers evaluates an event against the campaigns, queues the
// impression of whatever is shown and, for QA users, the campaign-triggered
// report.
func (s *SDK) checkTriggers(ctx context.Context, trigger string, payload map[string]any) {
	qa := s.profile.IsQAUser()
	props := s.personalizationProperties(payload, nil)

	d := s.campaigns.CheckTriggers(ctx, trigger, payload, s.profile.SessionStart(), qa, props,
		func(c models.Candidate) { s.queueCandidateImpression(ctx, c) })

	if !qa {
		return
	}
	if d.GlobalStatus.Status != campaigns.Match {
		s.logger.Debug(d.GlobalStatus.Message)
		s.queueEvent(ctx, events.CampaignTriggered(models.TriggerReport{
			EventName:    trigger,
			EventPayload: payload,
			Displayed:    "false",
			Reason:       d.GlobalStatus.Message,
		}, s.profile.NextSequenceNumber(ctx), s.now()))
	}
	if d.CampaignStatus != nil {
		s.logger.Debug(d.CampaignStatus.Message)
		displayed := "false"
		if d.CampaignStatus.Status == campaigns.Match {
			displayed = "true"
		}
		s.queueEvent(ctx, events.CampaignTriggered(models.TriggerReport{
			EventName:    trigger,
			EventPayload: payload,
			Displayed:    displayed,
			Reason:       d.CampaignStatus.Message,
			Campaigns:    d.Trail,
		}, s.profile.NextSequenceNumber(ctx), s.now()))
	}
}

func (s *SDK) queueCandidateImpression(ctx context.Context, c models.Candidate) {
	var format *models.Format
	if c.Message != nil && len(c.Message.Template.Formats) > 0 {
		format = &c.Message.Template.Formats[0]
	}
	s.queueImpression(ctx, c.ID(), format, c.Embedded != nil)
}

// ===========================================
// MESSAGES
// ===========================================

// ShowCampaign displays c directly, ignoring the display rules. It reports
// whether c had anything to show.
func (s *SDK) ShowCampaign(ctx context.Context, c Campaign, props map[string]string) bool {
	merged := s.personalizationProperties(map[string]any{}, props)
	return s.campaigns.ShowCampaign(ctx, c, merged, func(cand models.Candidate) {
		s.queueCandidateImpression(ctx, cand)
	})
}

// MessageCenterCampaigns returns the campaigns flagged for the message
// center.
func (s *SDK) MessageCenterCampaigns() []Campaign {
	return s.campaigns.MessageCenterCampaigns()
}

// HandleButtonClicked reports a press on a button of a message of parent.
// Displayers call it for every button press.
func (s *SDK) HandleButtonClicked(ctx context.Context, button Button, parent Campaign) {
	kind := button.Type.String()
	action := button.Action.String()
	variantID := campaigns.VariantID(&parent)

	s.queueEvent(ctx, events.ButtonClick(variantID, button.Name, false, s.profile.NextSequenceNumber(ctx), s.now()))

	if s.profile.IsQAUser() {
		logType := ""
		switch kind {
		case models.ButtonDismiss:
			logType = "dismiss"
		case models.ButtonCustom:
			logType = "deeplink"
		}
		if logType != "" {
			value := action
			if value == "" {
				value = "No action"
			}
			s.queueEvent(ctx, events.QAButtonClicked(parent.ID, variantID, button.Name, logType, value,
				s.profile.NextSequenceNumber(ctx), s.now()))
			s.SendQueuedEvents(ctx)
		}
	}

	cb := s.hooks()
	switch kind {
	case models.ButtonDismiss:
		if cb.iamDismissed != nil {
			cb.iamDismissed()
		}
	case models.ButtonCustom:
		switch {
		case cb.customButton != nil:
			cb.customButton(action)
		case linkPattern.MatchString(action):
			if err := s.platform.OpenLink(action); err != nil {
				s.logger.Warn("failed to open link", zap.String("url", action), zap.Error(err))
			}
		}
	}
}

// EmbeddedMessageWasShownToUser counts an impression of an embedded message
// the host displayed itself.
func (s *SDK) EmbeddedMessageWasShownToUser(ctx context.Context, msg *EmbeddedMessage) {
	if msg == nil {
		return
	}
	if parent, ok := s.parentOfEmbedded(msg.ID); ok {
		s.campaigns.UpdateCampaignState(ctx, parent)
	}
	s.queueImpression(ctx, msg.ID, nil, true)
}

// EmbeddedMessageButtonWasPressed reports a press on a button of an embedded
// message.
func (s *SDK) EmbeddedMessageButtonWasPressed(ctx context.Context, msg *EmbeddedMessage, buttonName string) {
	if msg == nil {
		return
	}
	s.queueWithQA(ctx, events.ButtonClick(msg.ID, buttonName, true, s.profile.NextSequenceNumber(ctx), s.now()))
}

func (s *SDK) parentOfEmbedded(messageID int) (int, bool) {
	for _, c := range s.campaigns.Campaigns() {
		if c.EmbeddedMessage != nil && c.EmbeddedMessage.ID == messageID {
			return c.ID, true
		}
	}
	return 0, false
}
