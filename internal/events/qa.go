package events

import "github.com/Swrve/swrve-smarttv-sdk/internal/models"

const qaLogSource = "sdk"

// WrapForQA returns the qa_log_event mirror of a public event. QA users get
// both the event and its mirror queued.
func WrapForQA(e models.Event) models.Event {
	detailType := string(e.Type)
	params := map[string]any{}

	switch e.Type {
	case models.EventTypeNamed:
		params["name"] = e.Name
		if e.Payload != nil {
			params["payload"] = e.Payload
		}
	case models.EventTypeUser, models.EventTypeDeviceUpdate:
		params["attributes"] = e.Attributes
	case models.EventTypePurchase:
		params["quantity"] = e.Quantity
		params["item"] = e.Item
		params["cost"] = e.Cost
		params["currency"] = e.Currency
	case models.EventTypeIAP:
		detailType = string(models.EventTypePurchase)
		params["product_id"] = e.ProductID
		params["app_store"] = e.AppStore
		params["rewards"] = e.Rewards
		params["cost"] = e.Cost
		params["local_currency"] = e.LocalCurrency
	case models.EventTypeCurrencyGiven:
		params["given_amount"] = e.GivenAmount
		params["given_currency"] = e.GivenCurrency
	}

	return models.Event{
		Type:      models.EventTypeQALog,
		Time:      e.Time,
		LogSource: qaLogSource,
		LogType:   models.QALogTypeEvent,
		LogDetails: map[string]any{
			"type":        detailType,
			"parameters":  params,
			"seqnum":      e.SeqNum,
			"client_time": e.Time,
		},
	}
}

// QAButtonClicked reports a button press to the QA log.
func QAButtonClicked(campaignID, variantID int, buttonName, actionType, actionValue string, seqnum, at int64) models.Event {
	return qaLog(models.QALogTypeButtonClicked, map[string]any{
		"campaign_id":  campaignID,
		"variant_id":   variantID,
		"button_name":  buttonName,
		"action_type":  actionType,
		"action_value": actionValue,
	}, seqnum, at)
}

// CampaignsDownloaded reports the campaigns received in a sync.
func CampaignsDownloaded(campaigns []models.CampaignDownload, seqnum, at int64) models.Event {
	if campaigns == nil {
		campaigns = []models.CampaignDownload{}
	}
	return qaLog(models.QALogTypeCampaignsDownloaded, map[string]any{"campaigns": campaigns}, seqnum, at)
}

// CampaignTriggered reports the outcome of a trigger evaluation.
func CampaignTriggered(report models.TriggerReport, seqnum, at int64) models.Event {
	if report.Campaigns == nil {
		report.Campaigns = []models.CampaignTriggerStatus{}
	}
	if report.EventPayload == nil {
		report.EventPayload = map[string]any{}
	}
	return qaLog(models.QALogTypeCampaignTriggered, map[string]any{
		"event_name":    report.EventName,
		"event_payload": report.EventPayload,
		"displayed":     report.Displayed,
		"reason":        report.Reason,
		"campaigns":     report.Campaigns,
	}, seqnum, at)
}

func qaLog(logType string, details map[string]any, seqnum, at int64) models.Event {
	return models.Event{
		Type:       models.EventTypeQALog,
		Time:       at,
		SeqNum:     seqnum,
		LogSource:  qaLogSource,
		LogType:    logType,
		LogDetails: details,
	}
}
