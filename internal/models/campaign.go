package models

import (
	"encoding/json"
	"fmt"
)

// CampaignStatus is the per-user display status of a campaign.
type CampaignStatus string

const (
	CampaignStatusUnseen  CampaignStatus = "unseen"
	CampaignStatusSeen    CampaignStatus = "seen"
	CampaignStatusDeleted CampaignStatus = "deleted"
)

// EmbeddedMessageType distinguishes plain embedded payloads from JSON ones.
type EmbeddedMessageType string

const (
	EmbeddedTypeOther EmbeddedMessageType = "other"
	EmbeddedTypeJSON  EmbeddedMessageType = "json"
)

// Campaign is a server-defined unit bundling candidate messages, display rules
// and optional triggers. Campaigns are replaced wholesale on every sync.
type Campaign struct {
	ID              int              `json:"id"`
	StartDate       int64            `json:"start_date"` // ms since epoch
	EndDate         int64            `json:"end_date"`   // ms since epoch
	Rules           CampaignRules    `json:"rules"`
	Triggers        []Trigger        `json:"triggers,omitempty"`
	MessageCenter   bool             `json:"message_center"`
	Messages        []Message        `json:"messages,omitempty"`
	EmbeddedMessage *EmbeddedMessage `json:"embedded_message,omitempty"`
	Subject         *string          `json:"subject,omitempty"`
}

// CampaignRules are the per-campaign throttles. A nil field means the rule is
// not configured and is skipped.
type CampaignRules struct {
	DelayFirstMessage       *int64 `json:"delay_first_message,omitempty"` // seconds
	DismissAfterViews       *int64 `json:"dismiss_after_views,omitempty"`
	MinDelayBetweenMessages *int64 `json:"min_delay_between_messages,omitempty"` // seconds
	DisplayOrder            string `json:"display_order,omitempty"`
}

// GlobalRulesPayload carries the server overrides for the app-wide throttles.
type GlobalRulesPayload struct {
	DelayFirstMessage       *int64 `json:"delay_first_message,omitempty"`
	MinDelayBetweenMessages *int64 `json:"min_delay_between_messages,omitempty"`
	MaxMessagesPerSession   *int64 `json:"max_messages_per_session,omitempty"`
}

// Trigger is an event name plus a condition tree that makes a campaign eligible.
type Trigger struct {
	EventName  string    `json:"event_name"`
	Conditions Condition `json:"-"`
}

type triggerJSON struct {
	EventName  string          `json:"event_name"`
	Conditions json.RawMessage `json:"conditions,omitempty"`
}

func (t *Trigger) UnmarshalJSON(data []byte) error {
	var raw triggerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cond, err := DecodeCondition(raw.Conditions)
	if err != nil {
		return fmt.Errorf("trigger %q: %w", raw.EventName, err)
	}
	t.EventName = raw.EventName
	t.Conditions = cond
	return nil
}

func (t Trigger) MarshalJSON() ([]byte, error) {
	cond := t.Conditions
	if cond == nil {
		cond = EmptyCondition{}
	}
	b, err := json.Marshal(cond)
	if err != nil {
		return nil, err
	}
	return json.Marshal(triggerJSON{EventName: t.EventName, Conditions: b})
}

// Value is the server's typed value wrapper ({"type": ..., "value": ...}).
type Value struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// String renders the wrapped value.
func (v Value) String() string {
	if v.Value == nil {
		return ""
	}
	switch x := v.Value.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

// Message is a renderable in-app message.
type Message struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Priority int             `json:"priority"`
	Rules    MessageRules    `json:"rules"`
	Template MessageTemplate `json:"template"`
}

type MessageRules struct {
	Orientations string `json:"orientations,omitempty"`
}

type MessageTemplate struct {
	Formats []Format `json:"formats"`
}

// Format is one rendering of a message for an orientation/language.
type Format struct {
	Name        string   `json:"name"`
	Orientation string   `json:"orientation"`
	Language    string   `json:"language"`
	Size        Size     `json:"size"`
	Images      []Image  `json:"images,omitempty"`
	Buttons     []Button `json:"buttons,omitempty"`
	Scale       float64  `json:"scale,omitempty"`
	Color       string   `json:"color,omitempty"`
}

type Size struct {
	W Value `json:"w"`
	H Value `json:"h"`
}

// Button types sent by the server.
const (
	ButtonDismiss = "DISMISS"
	ButtonCustom  = "CUSTOM"
)

type Button struct {
	Name            string `json:"name"`
	X               Value  `json:"x"`
	Y               Value  `json:"y"`
	W               Value  `json:"w"`
	H               Value  `json:"h"`
	Type            Value  `json:"type"`
	Action          Value  `json:"action"`
	GameID          Value  `json:"game_id"`
	ImageUp         Value  `json:"image_up"`
	DynamicImageURL string `json:"dynamic_image_url,omitempty"`
	Text            *Value `json:"text,omitempty"`
}

type Image struct {
	Name            string `json:"name,omitempty"`
	X               Value  `json:"x"`
	Y               Value  `json:"y"`
	W               Value  `json:"w"`
	H               Value  `json:"h"`
	Image           Value  `json:"image"`
	DynamicImageURL string `json:"dynamic_image_url,omitempty"`
	Text            *Value `json:"text,omitempty"`
}

// EmbeddedMessage is a non-visual payload handed to the host app as raw data.
type EmbeddedMessage struct {
	ID       int                 `json:"id"`
	Name     string              `json:"name"`
	Priority int                 `json:"priority"`
	Data     string              `json:"data"`
	Buttons  []string            `json:"buttons,omitempty"`
	Type     EmbeddedMessageType `json:"type"`
}

// Candidate is a message or embedded message made eligible by a trigger,
// tagged with the campaign it came from.
type Candidate struct {
	ParentCampaign int
	Message        *Message
	Embedded       *EmbeddedMessage
}

// ID returns the id of the wrapped message.
func (c Candidate) ID() int {
	if c.Message != nil {
		return c.Message.ID
	}
	if c.Embedded != nil {
		return c.Embedded.ID
	}
	return 0
}

// Priority returns the priority of the wrapped message; lower wins.
func (c Candidate) Priority() int {
	if c.Message != nil {
		return c.Message.Priority
	}
	if c.Embedded != nil {
		return c.Embedded.Priority
	}
	return 0
}

// CampaignState is the mutable per-user record kept for each known campaign.
type CampaignState struct {
	Status        CampaignStatus `json:"status"`
	Impressions   int64          `json:"impressions"`
	LastShownTime int64          `json:"lastShownTime"` // ms since epoch, 0 if never
	Next          int64          `json:"next"`
}

// NewCampaignState returns the default state for a campaign never shown.
func NewCampaignState() CampaignState {
	return CampaignState{Status: CampaignStatusUnseen}
}

// CampaignDownload describes a campaign in the QA "campaigns-downloaded" log.
type CampaignDownload struct {
	ID        int    `json:"id"`
	VariantID int    `json:"variant_id"`
	Type      string `json:"type"`
}
