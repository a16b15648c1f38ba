package campaigns

import (
	"fmt"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
)

// AutoShowTrigger is the synthetic trigger fired at session start. It skips
// the launch-time throttles.
const AutoShowTrigger = "Swrve.Messages.showAtSessionStart"

// Global rule defaults used until the server overrides them.
const (
	DefaultMaxMessagesPerSession = 99999
	DefaultMinDelay              = 55 * time.Second
	DefaultDelayFirstMessage     = 150 * time.Second
)

// GlobalRules are the app-wide display throttles.
type GlobalRules struct {
	MaxMessagesPerSession int64
	MinDelay              time.Duration
	DelayFirstMessage     time.Duration
}

// DefaultGlobalRules returns the rules used before any server override.
func DefaultGlobalRules() GlobalRules {
	return GlobalRules{
		MaxMessagesPerSession: DefaultMaxMessagesPerSession,
		MinDelay:              DefaultMinDelay,
		DelayFirstMessage:     DefaultDelayFirstMessage,
	}
}

// ParseGlobalRules applies the server overrides present in p on top of the
// defaults. Absent fields keep their default.
func ParseGlobalRules(p *models.GlobalRulesPayload) GlobalRules {
	rules := DefaultGlobalRules()
	if p == nil {
		return rules
	}
	if p.MaxMessagesPerSession != nil {
		rules.MaxMessagesPerSession = *p.MaxMessagesPerSession
	}
	if p.MinDelayBetweenMessages != nil {
		rules.MinDelay = time.Duration(*p.MinDelayBetweenMessages) * time.Second
	}
	if p.DelayFirstMessage != nil {
		rules.DelayFirstMessage = time.Duration(*p.DelayFirstMessage) * time.Second
	}
	return rules
}

// GlobalRuleState is the session counter behind the global throttles. It is
// not persisted.
type GlobalRuleState struct {
	MessagesShownCount   int64
	LastShownMessageTime int64 // ms since epoch, 0 if nothing shown yet
}

func applyGlobalRules(rules GlobalRules, state GlobalRuleState, trigger string, sessionStart, now time.Time) RuleStatus {
	if state.MessagesShownCount >= rules.MaxMessagesPerSession {
		return RuleStatus{GlobalThrottleMaxImpressions, "{App Throttle limit} Too many messages shown."}
	}

	readyAt := sessionStart.Add(rules.DelayFirstMessage)
	if trigger != AutoShowTrigger && readyAt.After(now) {
		return RuleStatus{GlobalThrottleLaunchTime,
			fmt.Sprintf("{App Throttle limit} Too soon after launch. Wait until %d", readyAt.UnixMilli())}
	}

	if state.LastShownMessageTime != 0 {
		nextAt := time.UnixMilli(state.LastShownMessageTime).Add(rules.MinDelay)
		if nextAt.After(now) {
			return RuleStatus{GlobalThrottleRecent,
				fmt.Sprintf("{App Throttle limit} Too soon after last message. Wait until %d", nextAt.UnixMilli())}
		}
	}

	return RuleStatus{Match, "Global display rules passing."}
}

func applyCampaignRules(c *models.Campaign, state models.CampaignState, trigger string,
	sessionStart, now time.Time, assets AssetChecker) RuleStatus {
	nowMs := now.UnixMilli()
	if c.StartDate > nowMs || c.EndDate < nowMs {
		return RuleStatus{NotActive, fmt.Sprintf("Campaign %d not active.", c.ID)}
	}

	rules := c.Rules
	if rules.DelayFirstMessage != nil && trigger != AutoShowTrigger {
		readyAt := sessionStart.Add(time.Duration(*rules.DelayFirstMessage) * time.Second)
		if readyAt.After(now) {
			return RuleStatus{ThrottleLaunchTime,
				fmt.Sprintf("{Campaign throttle limit} Too soon after launch. Wait until %d", readyAt.UnixMilli())}
		}
	}

	if rules.DismissAfterViews != nil && state.Impressions >= *rules.DismissAfterViews {
		return RuleStatus{ThrottleMaxImpressions,
			fmt.Sprintf("{Campaign throttle limit} Campaign %d has been shown %d times already", c.ID, *rules.DismissAfterViews)}
	}

	if rules.MinDelayBetweenMessages != nil && state.LastShownTime != 0 {
		nextAt := time.UnixMilli(state.LastShownTime).Add(time.Duration(*rules.MinDelayBetweenMessages) * time.Second)
		if nextAt.After(now) {
			return RuleStatus{ThrottleRecent,
				fmt.Sprintf("{Campaign throttle limit} Too soon after last campaign. Wait until %d", nextAt.UnixMilli())}
		}
	}

	if assets != nil && !assets.AssetsReady(c) {
		return RuleStatus{NotDownloaded, fmt.Sprintf("Assets not loaded for Campaign %d", c.ID)}
	}

	return RuleStatus{Match, fmt.Sprintf("Campaign %d passes display rules", c.ID)}
}
