package sdk

import (
	"context"
	"errors"
	"fmt"

	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"github.com/Swrve/swrve-smarttv-sdk/internal/resources"
	"github.com/Swrve/swrve-smarttv-sdk/internal/templating"
	"go.uber.org/zap"
)

// ResourceManager gives typed access to the user resources.
type ResourceManager = resources.Manager

// GetResources returns the user resources, fetching them when none are
// stored. It returns an empty list when they cannot be fetched.
func (s *SDK) GetResources(ctx context.Context) []Resource {
	if res := s.resources.Load(ctx, s.profile.UserID()); res != nil {
		s.logger.Debug("resources readily available")
		return res
	}

	s.logger.Debug("resources need to be retrieved")
	s.profile.ClearETag(ctx)
	resp, etag, err := s.transport.Campaigns(ctx)
	if err != nil {
		s.logger.Warn("failed to fetch resources", zap.Error(err))
		return []Resource{}
	}
	s.handleCampaignResponse(ctx, resp, etag)

	res := s.resources.Resources()
	if res == nil {
		res = []Resource{}
	}
	return res
}

// GetUserResourcesDiff returns the A/B test differences of the user
// resources as old and new attribute maps keyed by uid, along with the raw
// diff. The last stored diff is used when the backend cannot be reached.
func (s *SDK) GetUserResourcesDiff(ctx context.Context) (old, updated map[string]Resource, raw []ResourceDiff) {
	userID := s.profile.UserID()

	diffs, err := s.transport.ResourcesDiff(ctx)
	if err != nil {
		s.logger.Warn("failed to fetch resources diff", zap.Error(err))
		diffs = resources.LoadDiff(ctx, s.store, userID)
	} else if serr := resources.StoreDiff(ctx, s.store, userID, diffs); serr != nil {
		s.logger.Warn("failed to store resources diff", zap.String("user_id", userID), zap.Error(serr))
	}
	if diffs == nil {
		diffs = []models.ResourceDiff{}
	}

	old, updated = resources.TransformDiff(diffs)
	return old, updated, diffs
}

// ResourceManager returns the resources of the current user.
func (s *SDK) ResourceManager() *ResourceManager {
	return s.resources
}

// RealTimeUserProperties returns the server-computed properties of the
// current user.
func (s *SDK) RealTimeUserProperties() map[string]string {
	return s.realtime.All()
}

// ===========================================
// PERSONALIZATION
// ===========================================

// PersonalizedText resolves the ${...} placeholders of text.
func (s *SDK) PersonalizedText(text string, props map[string]string) (string, error) {
	out, err := templating.Apply(text, props)
	if err != nil {
		return "", fmt.Errorf("failed to personalize text: %w", err)
	}
	return out, nil
}

// PersonalizedEmbeddedMessageData resolves the placeholders in the data of
// msg. JSON data gets its substituted values escaped.
func (s *SDK) PersonalizedEmbeddedMessageData(msg *EmbeddedMessage, props map[string]string) (string, error) {
	if msg == nil {
		return "", errors.New("failed to personalize embedded message: no message")
	}

	var (
		out string
		err error
	)
	if msg.Type == models.EmbeddedTypeJSON {
		out, err = templating.ApplyJSON(msg.Data, props)
	} else {
		out, err = templating.Apply(msg.Data, props)
	}
	if err != nil {
		s.logger.Error("could not personalize embedded message", zap.Int("message_id", msg.ID), zap.Error(err))
		return "", fmt.Errorf("failed to personalize embedded message %d: %w", msg.ID, err)
	}
	return out, nil
}

// personalizationProperties merges the real-time properties, as user.*, with
// props, or with the provider's answer for payload when props is empty.
func (s *SDK) personalizationProperties(payload map[string]any, props map[string]string) map[string]string {
	out := resources.ForPersonalization(s.realtime.All())

	if len(props) == 0 {
		if provider := s.hooks().personalization; provider != nil {
			if payload == nil {
				payload = map[string]any{}
			}
			for k, v := range provider(payload) {
				out[k] = v
			}
		}
		return out
	}
	for k, v := range props {
		out[k] = v
	}
	return out
}
