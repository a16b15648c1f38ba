package sdk

import (
	"context"
	"errors"
	"testing"

	"github.com/Swrve/swrve-smarttv-sdk/internal/campaigns"
	"github.com/Swrve/swrve-smarttv-sdk/internal/events"
	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"github.com/Swrve/swrve-smarttv-sdk/internal/network"
	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embeddedCampaign() models.Campaign {
	c := levelUpCampaign()
	c.ID = 2
	c.Messages = nil
	c.EmbeddedMessage = &models.EmbeddedMessage{
		ID:      200,
		Name:    "banner",
		Data:    `{"greeting":"hello ${user.name}"}`,
		Type:    models.EmbeddedTypeJSON,
		Buttons: []string{"ok"},
	}
	return c
}

func findEvent(evts []models.Event, name string) (models.Event, bool) {
	for _, e := range evts {
		if e.Name == name {
			return e, true
		}
	}
	return models.Event{}, false
}

func findQA(evts []models.Event, logType string) []models.Event {
	var out []models.Event
	for _, e := range evts {
		if e.Type == models.EventTypeQALog && e.LogType == logType {
			out = append(out, e)
		}
	}
	return out
}

// ===========================================
// TRIGGERS
// ===========================================

func TestTriggeredCampaignIsShown(t *testing.T) {
	h := newHarness(t)
	h.transport.campaigns = campaignsResponse(levelUpCampaign())
	h.init(t)
	ctx := context.Background()

	require.Len(t, h.sdk.campaigns.Campaigns(), 1)
	assert.Empty(t, h.display.messages())

	require.NoError(t, h.sdk.SendEvent(ctx, "level_up", nil))
	assert.Equal(t, []int{100}, h.display.messages())

	imp, ok := findEvent(h.queued(), events.MessageEventName(100, "impression"))
	require.True(t, ok)
	assert.Equal(t, "false", imp.Payload["embedded"])
	assert.Equal(t, "tv", imp.Payload["format"])
	assert.Equal(t, "landscape", imp.Payload["orientation"])

	st, ok := h.sdk.campaigns.State(1)
	require.True(t, ok)
	assert.EqualValues(t, 1, st.Impressions)
	assert.Equal(t, epoch.UnixMilli(), st.LastShownTime)
	assert.EqualValues(t, 1, h.sdk.campaigns.RuleState().MessagesShownCount)
}

func TestOtherEventsDoNotTrigger(t *testing.T) {
	h := newHarness(t)
	h.transport.campaigns = campaignsResponse(levelUpCampaign())
	h.init(t)

	require.NoError(t, h.sdk.SendEvent(context.Background(), "menu_opened", nil))
	assert.Empty(t, h.display.messages())
	_, ok := findEvent(h.queued(), events.MessageEventName(100, "impression"))
	assert.False(t, ok)
}

func TestMessageListenerReplacesDisplay(t *testing.T) {
	h := newHarness(t)
	h.transport.campaigns = campaignsResponse(levelUpCampaign())
	var got []Candidate
	h.sdk.OnMessage(func(c Candidate) { got = append(got, c) })
	h.init(t)

	require.NoError(t, h.sdk.SendEvent(context.Background(), "level_up", nil))
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].ParentCampaign)
	assert.Equal(t, 100, got[0].ID())
	assert.Empty(t, h.display.messages())
}

func TestGlobalDelayBlocksDisplay(t *testing.T) {
	h := newHarness(t)
	resp := campaignsResponse(levelUpCampaign())
	resp.Campaigns.Rules = nil
	h.transport.campaigns = resp
	h.init(t)

	require.NoError(t, h.sdk.SendEvent(context.Background(), "level_up", nil))
	assert.Empty(t, h.display.messages())

	h.clock.Advance(campaigns.DefaultDelayFirstMessage)
	require.NoError(t, h.sdk.SendEvent(context.Background(), "level_up", nil))
	assert.Equal(t, []int{100}, h.display.messages())
}

func TestQAUserGetsTriggerReports(t *testing.T) {
	h := newHarness(t)
	resp := campaignsResponse(levelUpCampaign())
	resp.QA = &models.QAUser{}
	h.transport.campaigns = resp
	h.init(t)
	ctx := context.Background()

	require.True(t, h.sdk.UserInfo().IsQAUser)
	downloaded := findQA(h.queued(), models.QALogTypeCampaignsDownloaded)
	require.Len(t, downloaded, 1)

	require.NoError(t, h.sdk.SendEvent(ctx, "level_up", map[string]any{"level": "3"}))

	// the public event and its QA copy are flushed straight away
	sent := h.transport.allSent()
	_, ok := findEvent(sent, "level_up")
	assert.True(t, ok)
	assert.NotEmpty(t, findQA(sent, models.QALogTypeEvent))

	reports := findQA(h.queued(), models.QALogTypeCampaignTriggered)
	require.Len(t, reports, 1)
	details := reports[0].LogDetails
	assert.Equal(t, "level_up", details["event_name"])
	assert.Equal(t, "true", details["displayed"])
	trail, ok := details["campaigns"].([]models.CampaignTriggerStatus)
	require.True(t, ok)
	require.Len(t, trail, 1)
	assert.Equal(t, 1, trail[0].ID)
	assert.Equal(t, "true", trail[0].Displayed)
}

func TestQAUserGetsGlobalRejectionReport(t *testing.T) {
	h := newHarness(t)
	resp := campaignsResponse(levelUpCampaign())
	resp.Campaigns.Rules = nil
	resp.QA = &models.QAUser{}
	h.transport.campaigns = resp
	h.init(t)

	require.NoError(t, h.sdk.SendEvent(context.Background(), "level_up", nil))
	reports := findQA(h.queued(), models.QALogTypeCampaignTriggered)
	require.NotEmpty(t, reports)
	assert.Equal(t, "false", reports[0].LogDetails["displayed"])
	assert.NotEmpty(t, reports[0].LogDetails["reason"])
}

func TestAutoShowAtSessionStart(t *testing.T) {
	c := levelUpCampaign()
	c.Triggers = []models.Trigger{{EventName: campaigns.AutoShowTrigger, Conditions: models.EmptyCondition{}}}

	h := newHarness(t)
	h.transport.campaigns = campaignsResponse(c)
	h.init(t)

	assert.Equal(t, []int{100}, h.display.messages())
	_, ok := findEvent(h.queued(), events.MessageEventName(100, "impression"))
	assert.True(t, ok)

	// the window only opens once per session
	require.NoError(t, h.sdk.UpdateCampaignsAndResources(context.Background()))
	h.sdk.campaigns.WaitForAssets()
	assert.Len(t, h.display.messages(), 1)
}

func TestAutoShowIsSpentWhenStartingOffline(t *testing.T) {
	c := levelUpCampaign()
	c.Triggers = []models.Trigger{{EventName: campaigns.AutoShowTrigger, Conditions: models.EmptyCondition{}}}

	h := newHarness(t)
	h.transport.campaigns = campaignsResponse(c)
	h.transport.campaignsErr = errors.New("offline")
	h.init(t)

	h.transport.set(func(f *fakeTransport) { f.campaignsErr = nil })
	require.NoError(t, h.sdk.UpdateCampaignsAndResources(context.Background()))
	h.sdk.campaigns.WaitForAssets()
	require.Len(t, h.sdk.campaigns.Campaigns(), 1)
	assert.Empty(t, h.display.messages())
}

// ===========================================
// SYNC
// ===========================================

func TestCampaignFailureFallsBackAndRetries(t *testing.T) {
	h := newHarness(t)
	h.transport.campaignsErr = errors.New("offline")
	var loaded [][]Resource
	h.sdk.OnResourcesLoaded(func(r []Resource) { loaded = append(loaded, r) })
	h.init(t)
	ctx := context.Background()

	require.Len(t, loaded, 1)
	assert.NotNil(t, loaded[0])
	assert.Empty(t, loaded[0])
	pending, ok := h.sdk.store.Lookup(ctx, storage.KeyCampaignCallPending)
	require.True(t, ok)
	assert.Equal(t, "anon-1", pending)

	h.transport.set(func(f *fakeTransport) {
		f.campaignsErr = nil
		f.campaigns = campaignsResponse(levelUpCampaign())
	})
	h.monitor.Set(network.Disconnected)
	h.monitor.Set(network.Connected)
	h.sdk.campaigns.WaitForAssets()

	assert.Len(t, h.sdk.campaigns.Campaigns(), 1)
	_, ok = h.sdk.store.Lookup(ctx, storage.KeyCampaignCallPending)
	assert.False(t, ok)

	// only one retry per outage
	calls := h.transport.calls()
	h.monitor.Set(network.Disconnected)
	h.monitor.Set(network.Connected)
	assert.Equal(t, calls, h.transport.calls())
}

func TestCampaignsAreRestoredFromStorage(t *testing.T) {
	backend := storage.NewMemoryBackend()
	first := newHarnessOn(t, backend, &fakeTransport{campaigns: campaignsResponse(levelUpCampaign())})
	first.init(t)
	first.sdk.Shutdown(context.Background())

	second := newHarnessOn(t, backend, &fakeTransport{campaignsErr: errors.New("offline")})
	second.init(t)
	assert.Len(t, second.sdk.campaigns.Campaigns(), 1)
}

func TestCampaignLoadedCallback(t *testing.T) {
	h := newHarness(t)
	h.transport.campaigns = campaignsResponse(levelUpCampaign())
	called := 0
	h.sdk.OnCampaignLoaded(func() { called++ })
	h.init(t)
	assert.Equal(t, 1, called)
}

// ===========================================
// MESSAGES
// ===========================================

func TestShowCampaignBypassesRules(t *testing.T) {
	h := newHarness(t)
	resp := campaignsResponse(levelUpCampaign())
	resp.Campaigns.Rules = nil
	h.transport.campaigns = resp
	h.init(t)

	c, ok := h.sdk.campaigns.Campaign(1)
	require.True(t, ok)
	assert.True(t, h.sdk.ShowCampaign(context.Background(), c, nil))
	assert.Equal(t, []int{100}, h.display.messages())
	_, ok = findEvent(h.queued(), events.MessageEventName(100, "impression"))
	assert.True(t, ok)
}

func TestMessageCenterCampaigns(t *testing.T) {
	mc := levelUpCampaign()
	mc.ID = 3
	mc.MessageCenter = true

	h := newHarness(t)
	h.transport.campaigns = campaignsResponse(levelUpCampaign(), mc)
	h.init(t)

	got := h.sdk.MessageCenterCampaigns()
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].ID)
}

func TestDismissButton(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	dismissed := 0
	h.sdk.OnIAMDismissed(func() { dismissed++ })

	parent := levelUpCampaign()
	btn := Button{Name: "close", Type: models.Value{Value: models.ButtonDismiss}}
	h.sdk.HandleButtonClicked(context.Background(), btn, parent)

	assert.Equal(t, 1, dismissed)
	click, ok := findEvent(h.queued(), events.MessageEventName(100, "click"))
	require.True(t, ok)
	assert.Equal(t, "close", click.Payload["name"])
	assert.Equal(t, "false", click.Payload["embedded"])
}

func TestCustomButtonOpensLink(t *testing.T) {
	h := newHarness(t)
	h.init(t)

	btn := Button{
		Name:   "more",
		Type:   models.Value{Value: models.ButtonCustom},
		Action: models.Value{Value: "https://example.com/offer"},
	}
	h.sdk.HandleButtonClicked(context.Background(), btn, levelUpCampaign())
	assert.Equal(t, []string{"https://example.com/offer"}, h.links)

	btn.Action = models.Value{Value: "app://offer"}
	h.sdk.HandleButtonClicked(context.Background(), btn, levelUpCampaign())
	assert.Len(t, h.links, 1)
}

func TestCustomButtonCallbackWins(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	var actions []string
	h.sdk.OnCustomButtonClicked(func(a string) { actions = append(actions, a) })

	btn := Button{
		Name:   "more",
		Type:   models.Value{Value: models.ButtonCustom},
		Action: models.Value{Value: "https://example.com/offer"},
	}
	h.sdk.HandleButtonClicked(context.Background(), btn, levelUpCampaign())
	assert.Equal(t, []string{"https://example.com/offer"}, actions)
	assert.Empty(t, h.links)
}

func TestQAButtonClickIsReported(t *testing.T) {
	h := newHarness(t)
	h.transport.campaigns = &models.CampaignsResponse{QA: &models.QAUser{}}
	h.init(t)
	require.True(t, h.sdk.UserInfo().IsQAUser)

	btn := Button{Name: "close", Type: models.Value{Value: models.ButtonDismiss}}
	h.sdk.HandleButtonClicked(context.Background(), btn, levelUpCampaign())

	clicks := findQA(h.transport.allSent(), models.QALogTypeButtonClicked)
	require.Len(t, clicks, 1)
	assert.Equal(t, "dismiss", clicks[0].LogDetails["action_type"])
	assert.Equal(t, "No action", clicks[0].LogDetails["action_value"])
	assert.Equal(t, 1, clicks[0].LogDetails["campaign_id"])
}

func TestEmbeddedMessageFlow(t *testing.T) {
	h := newHarness(t)
	resp := campaignsResponse(embeddedCampaign())
	resp.RealTimeUserProperties = map[string]string{"name": `Ada "the" Viewer`}
	h.transport.campaigns = resp

	var (
		got   *EmbeddedMessage
		props map[string]string
	)
	h.sdk.OnEmbeddedMessage(func(m *EmbeddedMessage, p map[string]string) {
		got, props = m, p
	})
	h.init(t)
	ctx := context.Background()

	require.NoError(t, h.sdk.SendEvent(ctx, "level_up", nil))
	require.NotNil(t, got)
	assert.Equal(t, 200, got.ID)
	assert.Equal(t, `Ada "the" Viewer`, props["user.name"])

	data, err := h.sdk.PersonalizedEmbeddedMessageData(got, props)
	require.NoError(t, err)
	assert.Equal(t, `{"greeting":"hello Ada \"the\" Viewer"}`, data)

	imp, ok := findEvent(h.queued(), events.MessageEventName(200, "impression"))
	require.True(t, ok)
	assert.Equal(t, "true", imp.Payload["embedded"])

	h.sdk.EmbeddedMessageWasShownToUser(ctx, got)
	st, ok := h.sdk.campaigns.State(2)
	require.True(t, ok)
	assert.EqualValues(t, 2, st.Impressions)

	h.sdk.EmbeddedMessageButtonWasPressed(ctx, got, "ok")
	click, ok := findEvent(h.queued(), events.MessageEventName(200, "click"))
	require.True(t, ok)
	assert.Equal(t, "true", click.Payload["embedded"])
}

func TestCampaignsSnapshot(t *testing.T) {
	h := newHarness(t)
	h.transport.campaigns = campaignsResponse(levelUpCampaign())
	h.init(t)
	require.NoError(t, h.sdk.SendEvent(context.Background(), "level_up", nil))

	snap := h.sdk.CampaignsSnapshot()
	assert.Equal(t, "anon-1", snap.UserID)
	assert.Zero(t, snap.DelayFirstSeconds)
	assert.EqualValues(t, 1, snap.MessagesShown)
	require.Len(t, snap.Campaigns, 1)
	assert.Equal(t, []string{"level_up"}, snap.Campaigns[0].Triggers)
	assert.EqualValues(t, 1, snap.Campaigns[0].Impressions)

	q := h.sdk.QueueSnapshot(context.Background())
	assert.Equal(t, "active", q.State)
	assert.Equal(t, len(q.Events), q.InMemory)
}
