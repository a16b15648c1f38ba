// Package events builds the events the SDK reports and queues them for
// delivery in batches.
package events

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
)

// ErrInvalidReward is returned for in-app purchase rewards with an empty name
// or a non-positive amount.
var ErrInvalidReward = errors.New("invalid reward")

// Reserved event names.
const (
	FirstSessionEventName = "Swrve.first_session"
	messageEventPrefix    = "Swrve.Messages.Message-"

	// Purchases without receipts use an unknown store so the backend skips
	// receipt validation.
	unknownAppStore = "unknown_store"
)

// ===========================================
// PUBLIC EVENTS
// ===========================================

// Named builds a custom event.
func Named(name string, payload map[string]any, seqnum, at int64) models.Event {
	return models.Event{Type: models.EventTypeNamed, Time: at, SeqNum: seqnum, Name: name, Payload: payload}
}

// UserUpdate builds a user attributes update.
func UserUpdate(attributes map[string]any, seqnum, at int64) models.Event {
	return models.Event{Type: models.EventTypeUser, Time: at, SeqNum: seqnum, Attributes: attributes}
}

// UserUpdateWithDate builds a user update carrying a single date attribute.
func UserUpdateWithDate(key string, date time.Time, seqnum, at int64) models.Event {
	return UserUpdate(map[string]any{key: ISODate(date)}, seqnum, at)
}

// DeviceUpdate builds a device properties update.
func DeviceUpdate(attributes map[string]any, seqnum, at int64) models.Event {
	return models.Event{Type: models.EventTypeDeviceUpdate, Time: at, SeqNum: seqnum, Attributes: attributes}
}

// Purchase builds a virtual item purchase.
func Purchase(item, currency string, cost float64, quantity int, seqnum, at int64) models.Event {
	return models.Event{
		Type:     models.EventTypePurchase,
		Time:     at,
		SeqNum:   seqnum,
		Quantity: quantity,
		Item:     item,
		Cost:     cost,
		Currency: currency,
	}
}

// InAppPurchaseWithoutReceipt builds a real-money purchase. Rewards are
// validated first.
func InAppPurchaseWithoutReceipt(quantity int, productID string, price float64, currency string,
	rewards map[string]models.Reward, seqnum, at int64) (models.Event, error) {
	if err := ValidateRewards(rewards); err != nil {
		return models.Event{}, err
	}
	return models.Event{
		Type:          models.EventTypeIAP,
		Time:          at,
		SeqNum:        seqnum,
		Quantity:      quantity,
		ProductID:     productID,
		AppStore:      unknownAppStore,
		Cost:          price,
		LocalCurrency: currency,
		Rewards:       rewards,
	}, nil
}

// ValidateRewards rejects rewards with empty names or amounts that are not
// finite and positive.
func ValidateRewards(rewards map[string]models.Reward) error {
	for name, reward := range rewards {
		if name == "" {
			return fmt.Errorf("%w: reward resource name cannot be empty", ErrInvalidReward)
		}
		if math.IsNaN(reward.Amount) || math.IsInf(reward.Amount, 0) || reward.Amount <= 0 {
			return fmt.Errorf("%w: amount of %q must be a positive number", ErrInvalidReward, name)
		}
	}
	return nil
}

// CurrencyGiven builds a currency grant.
func CurrencyGiven(currency string, amount float64, seqnum, at int64) models.Event {
	return models.Event{
		Type:          models.EventTypeCurrencyGiven,
		Time:          at,
		SeqNum:        seqnum,
		GivenAmount:   amount,
		GivenCurrency: currency,
	}
}

// ===========================================
// SDK EVENTS
// ===========================================

// SessionStart marks the start of a session.
func SessionStart(seqnum, at int64) models.Event {
	return models.Event{Type: models.EventTypeSessionStart, Time: at, SeqNum: seqnum}
}

// FirstSession is logged once per user, stamped with the first use time.
func FirstSession(firstUse, seqnum int64) models.Event {
	return models.Event{Type: models.EventTypeNamed, Time: firstUse, SeqNum: seqnum, Name: FirstSessionEventName}
}

// Impression records that a message was shown.
func Impression(messageID int, format *models.Format, embedded bool, seqnum, at int64) models.Event {
	payload := map[string]any{"embedded": fmt.Sprint(embedded)}
	if format != nil {
		payload["orientation"] = format.Orientation
		payload["size"] = format.Size.W.String() + "x" + format.Size.H.String()
		payload["format"] = format.Name
	}
	return Named(MessageEventName(messageID, "impression"), payload, seqnum, at)
}

// ButtonClick records a press on a message button.
func ButtonClick(messageID int, buttonName string, embedded bool, seqnum, at int64) models.Event {
	payload := map[string]any{"name": buttonName, "embedded": fmt.Sprint(embedded)}
	return Named(MessageEventName(messageID, "click"), payload, seqnum, at)
}

// MessageEventName is "Swrve.Messages.Message-<id>.<action>".
func MessageEventName(messageID int, action string) string {
	return fmt.Sprintf("%s%d.%s", messageEventPrefix, messageID, action)
}

// ISODate formats t the way user date attributes are reported.
func ISODate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// InstallDate formats t as YYYYMMDD.
func InstallDate(t time.Time) string {
	return t.UTC().Format("20060102")
}
