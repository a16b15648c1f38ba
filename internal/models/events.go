package models

// EventType is the "type" discriminator of an outgoing event.
type EventType string

const (
	EventTypeNamed         EventType = "event"
	EventTypeUser          EventType = "user"
	EventTypeDeviceUpdate  EventType = "device_update"
	EventTypePurchase      EventType = "purchase"
	EventTypeIAP           EventType = "iap"
	EventTypeCurrencyGiven EventType = "currency_given"
	EventTypeSessionStart  EventType = "session_start"
	EventTypeQALog         EventType = "qa_log_event"
)

// QA log types.
const (
	QALogTypeEvent               = "event"
	QALogTypeCampaignsDownloaded = "campaigns-downloaded"
	QALogTypeCampaignTriggered   = "campaign-triggered"
	QALogTypeButtonClicked       = "campaign-button-clicked"
)

// ===========================================
// EVENT
// ===========================================

// Event is a single entry of an outgoing batch. Every kind shares Type, Time
// and SeqNum; the remaining fields are set per kind. Events are never mutated
// after creation.
type Event struct {
	Type   EventType `json:"type"`
	Time   int64     `json:"time"` // ms since epoch
	SeqNum int64     `json:"seqnum,omitempty"`

	// Named events, button clicks and impressions
	Name    string         `json:"name,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`

	// User and device updates
	Attributes map[string]any `json:"attributes,omitempty"`

	// Purchase
	Quantity int     `json:"quantity,omitempty"`
	Item     string  `json:"item,omitempty"`
	Cost     float64 `json:"cost,omitempty"`
	Currency string  `json:"currency,omitempty"`

	// In-app purchase without receipt
	ProductID     string            `json:"product_id,omitempty"`
	AppStore      string            `json:"app_store,omitempty"`
	LocalCurrency string            `json:"local_currency,omitempty"`
	Rewards       map[string]Reward `json:"rewards,omitempty"`

	// Currency given
	GivenAmount   float64 `json:"given_amount,omitempty"`
	GivenCurrency string  `json:"given_currency,omitempty"`

	// QA log events
	LogSource  string         `json:"log_source,omitempty"`
	LogType    string         `json:"log_type,omitempty"`
	LogDetails map[string]any `json:"log_details,omitempty"`
}

// Reward is an item granted with an in-app purchase.
type Reward struct {
	Type   string  `json:"type"` // "item" or "currency"
	Amount float64 `json:"amount"`
}

// ===========================================
// QA TRIGGER REPORT
// ===========================================

// CampaignTriggerStatus is one entry of the per-campaign QA trail.
type CampaignTriggerStatus struct {
	ID        int    `json:"id"`
	Displayed string `json:"displayed"`
	Type      string `json:"type"`
	Reason    string `json:"reason"`
	Code      int    `json:"-"` // rule status behind the entry
}

// TriggerReport is the log_details body of a campaign-triggered QA event.
type TriggerReport struct {
	EventName    string                  `json:"event_name"`
	EventPayload map[string]any          `json:"event_payload"`
	Displayed    string                  `json:"displayed"`
	Reason       string                  `json:"reason"`
	Campaigns    []CampaignTriggerStatus `json:"campaigns"`
}
