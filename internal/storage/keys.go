package storage

// KeyPrefix namespaces every key this SDK writes.
const KeyPrefix = "swrve."

// Global keys.
const (
	KeyUserID                   = "user_id"
	KeyFirstInstallDate         = "firstInstallDate"
	KeyIdentifyCallPending      = "identifyCallPending"
	KeyIdentifyCallPendingExtID = "identifyCallPendingExternalID"
	KeyCampaignCallPending      = "campaignCallPending"
	KeyDeviceID                 = "deviceid"
)

// UserKey is the key of the persisted user record.
func UserKey(userID string) string { return userID }

// CampaignsKey is the key of the stored campaign list for a user.
func CampaignsKey(userID string) string { return "campaigns." + userID }

// CampaignStateKey is the key of the stored campaign state map for a user.
func CampaignStateKey(userID string) string { return "campaignState." + userID }

// EventsKey is the key of the persisted event queue for a user.
func EventsKey(userID string) string { return "events" + userID }

// ResourcesKey is the key of the checksummed resource cache for a user.
func ResourcesKey(userID string) string { return "resources" + userID }

// ResourcesDiffKey is the key of the checksummed resource diff cache for a user.
func ResourcesDiffKey(userID string) string { return "resourcesDiff" + userID }

// RealTimeUserPropertiesKey is the key of the stored real-time properties for a user.
func RealTimeUserPropertiesKey(userID string) string { return "real_time_user_properties." + userID }

// ExternalIDKey maps an external (third-party) id to its resolved user id.
func ExternalIDKey(externalID string) string { return "ext-" + externalID }

// VerifiedKey marks a user id as verified by the identity service.
func VerifiedKey(userID string) string { return "verified-" + userID }

func hashKey(key string) string { return key + ".hash" }
