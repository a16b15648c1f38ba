package sdk

import (
	"context"

	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
)

// QueueSnapshot describes the events waiting for delivery.
type QueueSnapshot struct {
	UserID   string         `json:"user_id"`
	State    string         `json:"state"`
	InMemory int            `json:"in_memory"`
	Bytes    int            `json:"bytes"`
	Events   []models.Event `json:"events"`
}

// CampaignSnapshot is the display state of one campaign.
type CampaignSnapshot struct {
	ID            int      `json:"id"`
	Status        string   `json:"status"`
	Impressions   int64    `json:"impressions"`
	LastShownTime int64    `json:"last_shown_time"`
	MessageCenter bool     `json:"message_center"`
	Embedded      bool     `json:"embedded"`
	Triggers      []string `json:"triggers"`
}

// CampaignsSnapshot describes the campaigns and throttles of the current
// user.
type CampaignsSnapshot struct {
	UserID                string             `json:"user_id"`
	IsQAUser              bool               `json:"is_qa_user"`
	MaxMessagesPerSession int64              `json:"max_messages_per_session"`
	MinDelaySeconds       float64            `json:"min_delay_seconds"`
	DelayFirstSeconds     float64            `json:"delay_first_message_seconds"`
	MessagesShown         int64              `json:"messages_shown"`
	LastShownMessageTime  int64              `json:"last_shown_message_time"`
	Campaigns             []CampaignSnapshot `json:"campaigns"`
}

// QueueSnapshot returns the stored and in-memory events of the current
// user, oldest first.
func (s *SDK) QueueSnapshot(ctx context.Context) QueueSnapshot {
	userID := s.profile.UserID()
	all := s.queue.AllQueued(ctx, userID)
	if all == nil {
		all = []models.Event{}
	}
	return QueueSnapshot{
		UserID:   userID,
		State:    s.State().String(),
		InMemory: s.queue.Len(),
		Bytes:    s.queue.Size(),
		Events:   all,
	}
}

// CampaignsSnapshot returns the campaigns with their display state.
func (s *SDK) CampaignsSnapshot() CampaignsSnapshot {
	rules := s.campaigns.Rules()
	counters := s.campaigns.RuleState()

	out := CampaignsSnapshot{
		UserID:                s.profile.UserID(),
		IsQAUser:              s.profile.IsQAUser(),
		MaxMessagesPerSession: rules.MaxMessagesPerSession,
		MinDelaySeconds:       rules.MinDelay.Seconds(),
		DelayFirstSeconds:     rules.DelayFirstMessage.Seconds(),
		MessagesShown:         counters.MessagesShownCount,
		LastShownMessageTime:  counters.LastShownMessageTime,
		Campaigns:             []CampaignSnapshot{},
	}
	for _, c := range s.campaigns.Campaigns() {
		st, ok := s.campaigns.State(c.ID)
		if !ok {
			st = models.NewCampaignState()
		}
		triggers := make([]string, 0, len(c.Triggers))
		for _, t := range c.Triggers {
			triggers = append(triggers, t.EventName)
		}
		out.Campaigns = append(out.Campaigns, CampaignSnapshot{
			ID:            c.ID,
			Status:        string(st.Status),
			Impressions:   st.Impressions,
			LastShownTime: st.LastShownTime,
			MessageCenter: c.MessageCenter,
			Embedded:      c.EmbeddedMessage != nil,
			Triggers:      triggers,
		})
	}
	return out
}
