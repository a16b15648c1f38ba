package campaigns

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/clock"
	"github.com/Swrve/swrve-smarttv-sdk/internal/metrics"
	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
	"go.uber.org/zap"
)

// Displayer renders in-app messages.
type Displayer interface {
	ShowMessage(msg *models.Message, c *models.Campaign, imagesCDN string, props map[string]string)
	IsShowing() bool
}

// MessageListener replaces the built-in display when set.
type MessageListener func(c models.Candidate)

// EmbeddedListener receives embedded messages chosen for display.
type EmbeddedListener func(msg *models.EmbeddedMessage, props map[string]string)

// ImpressionFunc is called once for every displayed candidate.
type ImpressionFunc func(c models.Candidate)

// Options configure a Store.
type Options struct {
	Clock     clock.Clock
	Rand      Rand
	Assets    *AssetManager
	Displayer Displayer
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Store owns the campaign list, the per-campaign state and the session
// counters of the current user.
type Store struct {
	mu    sync.Mutex
	store *storage.Store
	opts  Options

	userID    string
	campaigns []models.Campaign
	states    map[int]models.CampaignState
	rules     GlobalRules
	ruleState GlobalRuleState

	onMessage  MessageListener
	onEmbedded EmbeddedListener

	downloads sync.WaitGroup
}

// NewStore creates an empty store. Call LoadFromStorage to restore a user.
func NewStore(store *storage.Store, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Assets == nil {
		opts.Assets = NewAssetManager(nil, 1, opts.Logger, opts.Metrics)
	}
	return &Store{
		store:  store,
		opts:   opts,
		states: make(map[int]models.CampaignState),
		rules:  DefaultGlobalRules(),
	}
}

// Assets returns the asset manager.
func (s *Store) Assets() *AssetManager {
	return s.opts.Assets
}

func (s *Store) OnMessage(l MessageListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = l
}

func (s *Store) OnEmbeddedMessage(l EmbeddedListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEmbedded = l
}

// ===========================================
// SYNC
// ===========================================

// ReplaceCampaigns installs the campaigns of a backend response. Responses
// without a campaigns block are ignored. Missing assets are downloaded in the
// background and onAssetsLoaded runs once they all succeed.
func (s *Store) ReplaceCampaigns(ctx context.Context, resp *models.CampaignsResponse, onAssetsLoaded func()) {
	if resp == nil || resp.Campaigns == nil {
		return
	}
	payload := resp.Campaigns

	switch {
	case payload.CDNRoot != "":
		s.opts.Assets.SetCDN(payload.CDNRoot, "")
	case payload.CDNPaths != nil:
		s.opts.Assets.SetCDN(payload.CDNPaths.MessageImages, payload.CDNPaths.MessageFonts)
	default:
		s.opts.Assets.SetCDN("", "")
	}

	s.mu.Lock()
	s.campaigns = payload.Campaigns
	if s.campaigns == nil {
		s.campaigns = []models.Campaign{}
	}
	s.rules = ParseGlobalRules(payload.Rules)
	s.synchronizeLocked(ctx)
	if err := s.store.SetJSON(ctx, storage.CampaignsKey(s.userID), s.campaigns); err != nil {
		s.opts.Logger.Warn("failed to store campaigns", zap.String("user_id", s.userID), zap.Error(err))
	}
	campaigns := append([]models.Campaign(nil), s.campaigns...)
	rules := s.rules
	s.mu.Unlock()

	s.opts.Logger.Info("campaigns updated",
		zap.Int("campaigns", len(campaigns)),
		zap.Int64("max_messages_per_session", rules.MaxMessagesPerSession),
		zap.Duration("min_delay", rules.MinDelay),
		zap.Duration("delay_first_message", rules.DelayFirstMessage),
	)
	if s.opts.Metrics != nil {
		s.opts.Metrics.UpdateCampaignCount(len(campaigns))
	}

	s.downloads.Add(1)
	go func() {
		defer s.downloads.Done()
		if err := s.opts.Assets.Manage(context.WithoutCancel(ctx), campaigns); err != nil {
			s.opts.Logger.Info("error downloading assets", zap.Error(err))
			return
		}
		s.opts.Logger.Debug("asset download complete")
		if onAssetsLoaded != nil {
			onAssetsLoaded()
		}
	}()
}

// WaitForAssets blocks until background asset downloads have finished.
func (s *Store) WaitForAssets() {
	s.downloads.Wait()
}

// LoadFromStorage resets the store and loads the campaigns and state stored
// for userID. Unreadable data loads as empty. Campaigns without a stored state
// get a default one in memory only.
func (s *Store) LoadFromStorage(ctx context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	s.userID = userID

	var campaigns []models.Campaign
	if s.store.GetJSON(ctx, storage.CampaignsKey(userID), &campaigns) && campaigns != nil {
		s.campaigns = campaigns
	}
	states := map[int]models.CampaignState{}
	if s.store.GetJSON(ctx, storage.CampaignStateKey(userID), &states) && states != nil {
		s.states = states
	}
	// every known campaign has a state, even when the stored map was lost
	for _, c := range s.campaigns {
		if _, ok := s.states[c.ID]; !ok {
			s.states[c.ID] = models.NewCampaignState()
		}
	}
}

// ResetState clears campaigns, their state and the session counters.
func (s *Store) ResetState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Store) resetLocked() {
	s.campaigns = []models.Campaign{}
	s.states = make(map[int]models.CampaignState)
	s.ruleState = GlobalRuleState{}
}

// SynchronizeState keeps state only for known campaigns, gives new campaigns
// a default state and persists the result.
func (s *Store) SynchronizeState(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synchronizeLocked(ctx)
}

func (s *Store) synchronizeLocked(ctx context.Context) {
	next := make(map[int]models.CampaignState, len(s.campaigns))
	for _, c := range s.campaigns {
		if st, ok := s.states[c.ID]; ok {
			next[c.ID] = st
		} else {
			next[c.ID] = models.NewCampaignState()
		}
	}
	s.states = next
	s.persistStateLocked(ctx)
}

func (s *Store) persistStateLocked(ctx context.Context) {
	if err := s.store.SetJSON(ctx, storage.CampaignStateKey(s.userID), s.states); err != nil {
		s.opts.Logger.Warn("failed to store campaign state", zap.String("user_id", s.userID), zap.Error(err))
		if s.opts.Metrics != nil {
			s.opts.Metrics.RecordStorageError("campaign_state")
		}
	}
}

// ===========================================
// QUERIES
// ===========================================

// Campaigns returns a copy of the campaign list.
func (s *Store) Campaigns() []models.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Campaign(nil), s.campaigns...)
}

// Campaign returns the campaign with the given id.
func (s *Store) Campaign(id int) (models.Campaign, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.campaigns {
		if c.ID == id {
			return c, true
		}
	}
	return models.Campaign{}, false
}

// State returns the display state of a campaign.
func (s *Store) State(id int) (models.CampaignState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	return st, ok
}

// Rules returns the global rules in force.
func (s *Store) Rules() GlobalRules {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules
}

// RuleState returns the session counters.
func (s *Store) RuleState() GlobalRuleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ruleState
}

// CampaignIDs describes the campaigns for the QA campaigns-downloaded log.
func (s *Store) CampaignIDs() []models.CampaignDownload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CampaignDownload, 0, len(s.campaigns))
	for i := range s.campaigns {
		c := &s.campaigns[i]
		kind := "unknown"
		if c.Messages != nil {
			kind = "iam"
		}
		out = append(out, models.CampaignDownload{ID: c.ID, VariantID: VariantID(c), Type: kind})
	}
	return out
}

// VariantID is the id of the first message of c, or 0.
func VariantID(c *models.Campaign) int {
	if len(c.Messages) > 0 {
		return c.Messages[0].ID
	}
	return 0
}

// MessageCenterCampaigns returns the message center campaigns that have
// something to show.
func (s *Store) MessageCenterCampaigns() []models.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Campaign
	for _, c := range s.campaigns {
		if !c.MessageCenter {
			continue
		}
		if len(c.Messages) > 0 || (c.EmbeddedMessage != nil && c.EmbeddedMessage.Data != "") {
			out = append(out, c)
		}
	}
	return out
}

// ===========================================
// DISPLAY
// ===========================================

// CheckTriggers evaluates an event against the campaigns and applies the
// decision. The chosen candidate is shown unless a message is already on
// screen; its impression is recorded and reported exactly once either way.
func (s *Store) CheckTriggers(ctx context.Context, trigger string, payload map[string]any, sessionStart time.Time,
	qa bool, props map[string]string, impression ImpressionFunc) Decision {
	s.mu.Lock()
	decision := Evaluate(EvaluationInput{
		Campaigns:    s.campaigns,
		States:       s.states,
		Rules:        s.rules,
		State:        s.ruleState,
		SessionStart: sessionStart,
		Now:          s.opts.Clock.Now(),
		Trigger:      trigger,
		Payload:      payload,
		QA:           qa,
		Assets:       s.opts.Assets,
		Rand:         s.opts.Rand,
	})

	var parent *models.Campaign
	if decision.Selected != nil {
		s.ruleState = decision.State
		for i := range s.campaigns {
			if s.campaigns[i].ID == decision.Selected.ParentCampaign {
				c := s.campaigns[i]
				parent = &c
				break
			}
		}
		s.recordImpressionLocked(ctx, decision.Selected.ParentCampaign)
	}
	onMessage, onEmbedded := s.onMessage, s.onEmbedded
	s.mu.Unlock()

	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordTriggerCheck(int(decision.CampaignFailCode))
		for _, t := range decision.Trail {
			if t.Displayed != "true" {
				s.opts.Metrics.RecordCampaignRejection(t.ID, Status(t.Code).String())
			}
		}
	}

	if decision.Selected == nil {
		return decision
	}
	cand := *decision.Selected

	if s.opts.Displayer == nil || !s.opts.Displayer.IsShowing() {
		switch {
		case onMessage != nil:
			onMessage(cand)
		case cand.Message != nil && parent != nil:
			if s.opts.Displayer != nil {
				s.opts.Displayer.ShowMessage(cand.Message, parent, s.opts.Assets.ImagesCDN(), props)
			}
		case cand.Embedded != nil && cand.Embedded.Data != "":
			if onEmbedded != nil {
				onEmbedded(cand.Embedded, props)
			}
		}
	} else {
		s.opts.Logger.Debug("message already showing, display suppressed", zap.Int("campaign_id", cand.ParentCampaign))
	}

	if impression != nil {
		impression(cand)
	}
	return decision
}

// ShowCampaign displays the first message of c directly, bypassing the
// rules. Embedded campaigns go to the embedded listener and are not counted
// until the host reports them shown.
func (s *Store) ShowCampaign(ctx context.Context, c models.Campaign, props map[string]string, impression ImpressionFunc) bool {
	if len(c.Messages) > 0 {
		msg := &c.Messages[0]
		if s.opts.Displayer != nil {
			s.opts.Displayer.ShowMessage(msg, &c, s.opts.Assets.ImagesCDN(), props)
		}
		cand := models.Candidate{ParentCampaign: c.ID, Message: msg}
		if impression != nil {
			impression(cand)
		}
		s.UpdateCampaignState(ctx, c.ID)
		return true
	}

	if c.EmbeddedMessage != nil && c.EmbeddedMessage.Data != "" {
		s.mu.Lock()
		onEmbedded := s.onEmbedded
		s.mu.Unlock()
		if onEmbedded != nil {
			onEmbedded(c.EmbeddedMessage, props)
		}
		return true
	}
	return false
}

// UpdateCampaignState counts an impression of campaignID.
func (s *Store) UpdateCampaignState(ctx context.Context, campaignID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordImpressionLocked(ctx, campaignID)
}

func (s *Store) recordImpressionLocked(ctx context.Context, campaignID int) {
	st, ok := s.states[campaignID]
	if !ok {
		known := false
		for _, c := range s.campaigns {
			if c.ID == campaignID {
				known = true
				break
			}
		}
		if !known {
			return
		}
		st = models.NewCampaignState()
	}

	st.Impressions++
	st.Status = models.CampaignStatusSeen
	st.LastShownTime = s.opts.Clock.Now().UnixMilli()
	s.states[campaignID] = st
	s.persistStateLocked(ctx)

	s.ruleState.MessagesShownCount++
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordImpression(campaignID)
	}
}

// ClearStoredState removes the persisted campaign state of userID.
func (s *Store) ClearStoredState(ctx context.Context, userID string) {
	if err := s.store.Remove(ctx, storage.CampaignStateKey(userID)); err != nil {
		s.opts.Logger.Warn("failed to clear campaign state", zap.String("user_id", userID), zap.Error(err))
	}
}
