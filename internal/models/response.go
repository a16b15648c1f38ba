package models

// CampaignsResponse is the body of the user_resources_and_campaigns endpoint.
type CampaignsResponse struct {
	RealTimeUserProperties map[string]string `json:"real_time_user_properties,omitempty"`
	UserResources          []Resource        `json:"user_resources,omitempty"`
	Campaigns              *CampaignsPayload `json:"campaigns,omitempty"`
	QA                     *QAUser           `json:"qa,omitempty"`
	FlushFrequency         int64             `json:"flush_frequency,omitempty"`     // ms
	FlushRefreshDelay      int64             `json:"flush_refresh_delay,omitempty"` // ms
}

// IsEmpty reports whether the backend returned nothing new (e.g. an ETag hit).
func (r *CampaignsResponse) IsEmpty() bool {
	return r == nil || (r.RealTimeUserProperties == nil && r.UserResources == nil &&
		r.Campaigns == nil && r.QA == nil && r.FlushFrequency == 0 && r.FlushRefreshDelay == 0)
}

// CampaignsPayload is the "campaigns" block of a campaigns response.
type CampaignsPayload struct {
	Campaigns []Campaign          `json:"campaigns"`
	Rules     *GlobalRulesPayload `json:"rules,omitempty"`
	CDNRoot   string              `json:"cdn_root,omitempty"`
	CDNPaths  *CDNPaths           `json:"cdn_paths,omitempty"`
	Version   int                 `json:"version,omitempty"`
}

type CDNPaths struct {
	MessageImages string `json:"message_images"`
	MessageFonts  string `json:"message_fonts"`
}

// Resource is a user resource: a flat attribute map indexed by its "uid".
type Resource map[string]string

// ResourceDiff is one entry of the user_resources_diff endpoint.
type ResourceDiff struct {
	UID       string                       `json:"uid"`
	ItemClass string                       `json:"item_class,omitempty"`
	Diff      map[string]ResourceDiffValue `json:"diff"`
}

type ResourceDiffValue struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// IdentityStatus values returned by the identify endpoint.
const (
	IdentityNewExternalID                  = "new_external_id"
	IdentityExistingExternalID             = "existing_external_id"
	IdentityExistingExternalIDMatchesSwrve = "existing_external_id_with_matching_swrve_id"
)

// IdentityResponse is the body returned by the identify endpoint.
type IdentityResponse struct {
	Status  string `json:"status"`
	SwrveID string `json:"swrve_id"`
}
