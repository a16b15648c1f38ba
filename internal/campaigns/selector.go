package campaigns

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
)

// Rand picks the winner among equally ranked candidates.
type Rand interface {
	Intn(n int) int
}

// AssetChecker reports whether every asset a campaign needs is cached.
type AssetChecker interface {
	AssetsReady(c *models.Campaign) bool
}

// EvaluationInput is everything a trigger decision depends on.
type EvaluationInput struct {
	Campaigns    []models.Campaign
	States       map[int]models.CampaignState
	Rules        GlobalRules
	State        GlobalRuleState
	SessionStart time.Time
	Now          time.Time
	Trigger      string
	Payload      map[string]any
	QA           bool
	Assets       AssetChecker
	Rand         Rand
}

// Decision is the outcome of Evaluate. State is the global rule state to
// keep if the decision is applied.
type Decision struct {
	Selected         *models.Candidate
	GlobalStatus     RuleStatus
	CampaignStatus   *RuleStatus
	CampaignFailCode Status
	Trail            []models.CampaignTriggerStatus
	State            GlobalRuleState
}

// Evaluate decides which candidate, if any, an event should display. It has
// no side effects. The QA trail is only collected when in.QA is set.
func Evaluate(in EvaluationInput) Decision {
	d := Decision{State: in.State}
	d.GlobalStatus = applyGlobalRules(in.Rules, in.State, in.Trigger, in.SessionStart, in.Now)

	logStatus := func(campaignID int, displayed bool, reason string, code Status) {
		d.CampaignStatus = &RuleStatus{Status: code, Message: reason}
		d.Trail = append(d.Trail, models.CampaignTriggerStatus{
			ID:        campaignID,
			Displayed: fmt.Sprint(displayed),
			Type:      "iam",
			Reason:    reason,
			Code:      int(code),
		})
	}

	if d.GlobalStatus.Status == Match {
		candidates := collectCandidates(in, logStatus)

		if len(candidates) > 0 {
			sort.SliceStable(candidates, func(i, j int) bool {
				return candidates[i].Priority() < candidates[j].Priority()
			})

			byID := indexCampaigns(in.Campaigns)
			passed := candidates[:0:0]
			for _, cand := range candidates {
				c, ok := byID[cand.ParentCampaign]
				if !ok {
					continue
				}
				status := applyCampaignRules(c, stateOf(in.States, c.ID), in.Trigger, in.SessionStart, in.Now, in.Assets)
				if status.Status == Match {
					passed = append(passed, cand)
				} else if in.QA {
					logStatus(c.ID, false, status.Message, status.Status)
				}
			}

			if len(passed) > 0 {
				minPriority := passed[0].Priority()
				top := passed[:0:0]
				for _, cand := range passed {
					if cand.Priority() <= minPriority {
						top = append(top, cand)
					}
				}

				pick := 0
				if len(top) > 1 && in.Rand != nil {
					pick = in.Rand.Intn(len(top))
				}
				selected := top[pick]

				if in.QA {
					for i, cand := range top {
						if i == pick {
							continue
						}
						logStatus(cand.ParentCampaign, false,
							fmt.Sprintf("Campaign %d was selected for display ahead of this campaign.", selected.ParentCampaign),
							EligibleButOtherChosen)
					}
					logStatus(selected.ParentCampaign, true,
						fmt.Sprintf("Campaign [%d], Trigger [%s], matches %s & payload %s.",
							selected.ParentCampaign, in.Trigger, in.Trigger, payloadString(in.Payload)),
						Match)
				}

				d.Selected = &selected
				d.State.LastShownMessageTime = in.Now.UnixMilli()
			} else if in.QA {
				d.GlobalStatus = RuleStatus{NoMatch, "No matching campaigns."}
			}
		} else if in.QA {
			d.GlobalStatus = RuleStatus{NoMatch, "No matching campaigns."}
		}
	}

	d.CampaignFailCode = d.GlobalStatus.Status
	if d.GlobalStatus.Status == Match && d.CampaignStatus != nil {
		d.CampaignFailCode = d.CampaignStatus.Status
	}
	return d
}

func collectCandidates(in EvaluationInput, logStatus func(int, bool, string, Status)) []models.Candidate {
	var candidates []models.Candidate
	for i := range in.Campaigns {
		c := &in.Campaigns[i]
		if len(c.Triggers) == 0 {
			if in.QA {
				logStatus(c.ID, false,
					fmt.Sprintf("Campaign [%d], no triggers (could be message centre). Skipping this campaign", c.ID),
					ErrorInvalidTriggers)
			}
			continue
		}

		for _, t := range c.Triggers {
			if t.EventName != in.Trigger || !Matches(t.Conditions, in.Payload) {
				if in.QA {
					logStatus(c.ID, false,
						fmt.Sprintf("Campaign [%d], Trigger [%s], does not match eventName[%s] & payload[%s]. Skipping this trigger.",
							c.ID, t.EventName, in.Trigger, payloadString(in.Payload)),
						NoMatch)
				}
				continue
			}

			if len(c.Messages) > 0 {
				for j := range c.Messages {
					candidates = append(candidates, models.Candidate{ParentCampaign: c.ID, Message: &c.Messages[j]})
				}
			} else if c.EmbeddedMessage != nil {
				candidates = append(candidates, models.Candidate{ParentCampaign: c.ID, Embedded: c.EmbeddedMessage})
			}
			break
		}
	}
	return candidates
}

func indexCampaigns(campaigns []models.Campaign) map[int]*models.Campaign {
	out := make(map[int]*models.Campaign, len(campaigns))
	for i := range campaigns {
		if _, dup := out[campaigns[i].ID]; !dup {
			out[campaigns[i].ID] = &campaigns[i]
		}
	}
	return out
}

func stateOf(states map[int]models.CampaignState, id int) models.CampaignState {
	if s, ok := states[id]; ok {
		return s
	}
	return models.NewCampaignState()
}

func payloadString(payload map[string]any) string {
	if payload == nil {
		return "{}"
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(b)
}
