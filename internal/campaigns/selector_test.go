package campaigns

import (
	"math/rand"
	"testing"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow     = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	testSession = testNow.Add(-time.Hour)
)

type fixedRand int

func (r fixedRand) Intn(n int) int { return int(r) % n }

type readyAssets bool

func (r readyAssets) AssetsReady(*models.Campaign) bool { return bool(r) }

func int64p(v int64) *int64 { return &v }

func campaign(id int, trigger string, priorities ...int) models.Campaign {
	c := models.Campaign{
		ID:        id,
		StartDate: testNow.Add(-24 * time.Hour).UnixMilli(),
		EndDate:   testNow.Add(24 * time.Hour).UnixMilli(),
		Triggers:  []models.Trigger{{EventName: trigger, Conditions: models.EmptyCondition{}}},
	}
	for i, p := range priorities {
		c.Messages = append(c.Messages, models.Message{ID: id*100 + i, Priority: p})
	}
	return c
}

func input(campaigns ...models.Campaign) EvaluationInput {
	return EvaluationInput{
		Campaigns:    campaigns,
		States:       map[int]models.CampaignState{},
		Rules:        DefaultGlobalRules(),
		SessionStart: testSession,
		Now:          testNow,
		Trigger:      "level_up",
		Assets:       readyAssets(true),
		Rand:         fixedRand(0),
	}
}

func TestEvaluatePicksLowestPriority(t *testing.T) {
	d := Evaluate(input(campaign(1, "level_up", 5), campaign(2, "level_up", 2), campaign(3, "other", 0)))

	require.NotNil(t, d.Selected)
	assert.Equal(t, 2, d.Selected.ParentCampaign)
	assert.Equal(t, 200, d.Selected.ID())
	assert.Equal(t, Match, d.GlobalStatus.Status)
	assert.Equal(t, testNow.UnixMilli(), d.State.LastShownMessageTime)
}

func TestEvaluateTieBreakUsesRand(t *testing.T) {
	in := input(campaign(1, "level_up", 1), campaign(2, "level_up", 1), campaign(3, "level_up", 4))

	picked := map[int]bool{}
	for i := 0; i < 4; i++ {
		in.Rand = fixedRand(i)
		d := Evaluate(in)
		require.NotNil(t, d.Selected)
		picked[d.Selected.ParentCampaign] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true}, picked)
}

func TestEvaluateTieBreakIsUniform(t *testing.T) {
	in := input(campaign(1, "level_up", 1), campaign(2, "level_up", 1), campaign(3, "level_up", 1), campaign(4, "level_up", 5))
	in.Rand = rand.New(rand.NewSource(42))

	const runs = 10000
	counts := map[int]int{}
	for i := 0; i < runs; i++ {
		d := Evaluate(in)
		require.NotNil(t, d.Selected)
		counts[d.Selected.ParentCampaign]++
	}

	assert.Zero(t, counts[4])
	for _, id := range []int{1, 2, 3} {
		assert.InDelta(t, 1.0/3, float64(counts[id])/runs, 0.03, "campaign %d picked %d times", id, counts[id])
	}
}

func TestEvaluateGlobalRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EvaluationInput)
		want   Status
	}{
		{"max per session", func(in *EvaluationInput) {
			in.Rules.MaxMessagesPerSession = 2
			in.State.MessagesShownCount = 2
		}, GlobalThrottleMaxImpressions},
		{"launch delay", func(in *EvaluationInput) {
			in.SessionStart = testNow.Add(-time.Minute)
		}, GlobalThrottleLaunchTime},
		{"min delay", func(in *EvaluationInput) {
			in.State.LastShownMessageTime = testNow.Add(-10 * time.Second).UnixMilli()
		}, GlobalThrottleRecent},
		{"min delay elapsed", func(in *EvaluationInput) {
			in.State.LastShownMessageTime = testNow.Add(-time.Minute).UnixMilli()
		}, Match},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := input(campaign(1, "level_up", 1))
			tt.mutate(&in)
			d := Evaluate(in)
			assert.Equal(t, tt.want, d.GlobalStatus.Status)
			assert.Equal(t, tt.want, d.CampaignFailCode)
			assert.Equal(t, tt.want == Match, d.Selected != nil)
		})
	}
}

func TestEvaluateAutoShowBypassesLaunchDelay(t *testing.T) {
	c := campaign(1, AutoShowTrigger, 1)
	c.Rules.DelayFirstMessage = int64p(600)
	in := input(c)
	in.Trigger = AutoShowTrigger
	in.SessionStart = testNow

	d := Evaluate(in)
	require.NotNil(t, d.Selected)

	in.Trigger = "level_up"
	in.Campaigns[0].Triggers[0].EventName = "level_up"
	d = Evaluate(in)
	assert.Nil(t, d.Selected)
	assert.Equal(t, GlobalThrottleLaunchTime, d.GlobalStatus.Status)
}

func TestEvaluateAutoShowStillThrottled(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EvaluationInput)
		global Status
		want   Status
	}{
		{"max per session", func(in *EvaluationInput) {
			in.Rules.MaxMessagesPerSession = 1
			in.State.MessagesShownCount = 1
		}, GlobalThrottleMaxImpressions, GlobalThrottleMaxImpressions},
		{"global min delay", func(in *EvaluationInput) {
			in.State.LastShownMessageTime = testNow.Add(-10 * time.Second).UnixMilli()
		}, GlobalThrottleRecent, GlobalThrottleRecent},
		{"dismiss after views", func(in *EvaluationInput) {
			in.Campaigns[0].Rules.DismissAfterViews = int64p(2)
			in.States[1] = models.CampaignState{Status: models.CampaignStatusSeen, Impressions: 2}
		}, NoMatch, ThrottleMaxImpressions},
		{"campaign min delay", func(in *EvaluationInput) {
			in.Campaigns[0].Rules.MinDelayBetweenMessages = int64p(300)
			in.States[1] = models.CampaignState{Impressions: 1, LastShownTime: testNow.Add(-time.Minute).UnixMilli()}
		}, NoMatch, ThrottleRecent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := campaign(1, AutoShowTrigger, 1)
			c.Rules.DelayFirstMessage = int64p(600)
			in := input(c)
			in.Trigger = AutoShowTrigger
			in.SessionStart = testNow
			in.QA = true
			tt.mutate(&in)

			d := Evaluate(in)
			assert.Nil(t, d.Selected)
			assert.Equal(t, tt.global, d.GlobalStatus.Status)
			if tt.global == NoMatch {
				require.NotNil(t, d.CampaignStatus)
				assert.Equal(t, tt.want, d.CampaignStatus.Status)
			} else {
				assert.Equal(t, tt.want, d.CampaignFailCode)
			}
		})
	}
}

func TestEvaluateCampaignRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EvaluationInput)
		want   Status
	}{
		{"future start", func(in *EvaluationInput) {
			in.Campaigns[0].StartDate = testNow.Add(time.Hour).UnixMilli()
		}, NotActive},
		{"ended", func(in *EvaluationInput) {
			in.Campaigns[0].EndDate = testNow.Add(-time.Hour).UnixMilli()
		}, NotActive},
		{"campaign launch delay", func(in *EvaluationInput) {
			in.Campaigns[0].Rules.DelayFirstMessage = int64p(7200)
		}, ThrottleLaunchTime},
		{"dismiss after views", func(in *EvaluationInput) {
			in.Campaigns[0].Rules.DismissAfterViews = int64p(3)
			in.States[1] = models.CampaignState{Status: models.CampaignStatusSeen, Impressions: 3}
		}, ThrottleMaxImpressions},
		{"campaign min delay", func(in *EvaluationInput) {
			in.Campaigns[0].Rules.MinDelayBetweenMessages = int64p(300)
			in.States[1] = models.CampaignState{Impressions: 1, LastShownTime: testNow.Add(-time.Minute).UnixMilli()}
		}, ThrottleRecent},
		{"assets missing", func(in *EvaluationInput) {
			in.Assets = readyAssets(false)
		}, NotDownloaded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := input(campaign(1, "level_up", 1))
			in.QA = true
			tt.mutate(&in)

			d := Evaluate(in)
			assert.Nil(t, d.Selected)
			assert.Equal(t, NoMatch, d.GlobalStatus.Status)
			require.NotEmpty(t, d.Trail)
			assert.Equal(t, "false", d.Trail[0].Displayed)
			require.NotNil(t, d.CampaignStatus)
			assert.Equal(t, tt.want, d.CampaignStatus.Status)
		})
	}
}

func TestEvaluateDismissAfterViewsBelowLimit(t *testing.T) {
	in := input(campaign(1, "level_up", 1))
	in.Campaigns[0].Rules.DismissAfterViews = int64p(3)
	in.States[1] = models.CampaignState{Impressions: 2}

	assert.NotNil(t, Evaluate(in).Selected)
}

func TestEvaluateQATrail(t *testing.T) {
	noTriggers := campaign(4, "level_up", 1)
	noTriggers.Triggers = nil
	in := input(campaign(1, "level_up", 1), campaign(2, "level_up", 1), campaign(3, "purchase", 1), noTriggers)
	in.QA = true
	in.Rand = fixedRand(1)

	d := Evaluate(in)
	require.NotNil(t, d.Selected)
	assert.Equal(t, 2, d.Selected.ParentCampaign)

	byID := map[int]models.CampaignTriggerStatus{}
	for _, s := range d.Trail {
		byID[s.ID] = s
	}
	assert.Equal(t, "true", byID[2].Displayed)
	assert.Equal(t, "false", byID[1].Displayed)
	assert.Contains(t, byID[1].Reason, "was selected for display ahead")
	assert.Contains(t, byID[3].Reason, "does not match")
	assert.Contains(t, byID[4].Reason, "no triggers")
	assert.Equal(t, Match, d.CampaignFailCode)
}

func TestEvaluateWithoutQAHasNoTrail(t *testing.T) {
	in := input(campaign(1, "purchase", 1))
	d := Evaluate(in)
	assert.Nil(t, d.Selected)
	assert.Empty(t, d.Trail)
	assert.Equal(t, Match, d.GlobalStatus.Status)

	in.QA = true
	d = Evaluate(in)
	assert.Equal(t, NoMatch, d.GlobalStatus.Status)
	assert.Equal(t, "No matching campaigns.", d.GlobalStatus.Message)
}

func TestEvaluateEmbeddedCandidate(t *testing.T) {
	c := campaign(1, "level_up")
	c.EmbeddedMessage = &models.EmbeddedMessage{ID: 9, Priority: 3, Data: "{}", Type: models.EmbeddedTypeJSON}

	d := Evaluate(input(c))
	require.NotNil(t, d.Selected)
	assert.NotNil(t, d.Selected.Embedded)
	assert.Equal(t, 9, d.Selected.ID())
}

func TestEvaluateConditions(t *testing.T) {
	c := campaign(1, "level_up", 1)
	c.Triggers[0].Conditions = models.AndCondition{Args: []models.Condition{
		models.EqCondition{Key: "level", Value: float64(5)},
		models.EqCondition{Key: "mode", Value: "hard"},
	}}
	in := input(c)

	in.Payload = map[string]any{"level": 5, "mode": "hard"}
	assert.NotNil(t, Evaluate(in).Selected)

	in.Payload = map[string]any{"level": "5", "mode": "hard"}
	assert.Nil(t, Evaluate(in).Selected)

	in.Payload = map[string]any{"level": 5}
	assert.Nil(t, Evaluate(in).Selected)
}

func TestMatches(t *testing.T) {
	payload := map[string]any{"a": "x", "n": 3, "b": true}

	assert.True(t, Matches(nil, payload))
	assert.True(t, Matches(models.EmptyCondition{}, nil))
	assert.True(t, Matches(models.EqCondition{Key: "a", Value: "x"}, payload))
	assert.True(t, Matches(models.EqCondition{Key: "n", Value: float64(3)}, payload))
	assert.True(t, Matches(models.EqCondition{Key: "b", Value: true}, payload))
	assert.False(t, Matches(models.EqCondition{Key: "b", Value: "true"}, payload))
	assert.False(t, Matches(models.EqCondition{Key: "missing", Value: nil}, payload))
	assert.False(t, Matches(models.UnknownCondition{Op: "or"}, payload))
	assert.True(t, Matches(models.AndCondition{}, payload))
}

func TestParseGlobalRules(t *testing.T) {
	rules := ParseGlobalRules(&models.GlobalRulesPayload{MinDelayBetweenMessages: int64p(10)})
	assert.Equal(t, int64(DefaultMaxMessagesPerSession), rules.MaxMessagesPerSession)
	assert.Equal(t, 10*time.Second, rules.MinDelay)
	assert.Equal(t, DefaultDelayFirstMessage, rules.DelayFirstMessage)
	assert.Equal(t, DefaultGlobalRules(), ParseGlobalRules(nil))
}
