// Package campaigns stores the campaigns received from the backend and
// decides, locally, which message to show when an event fires.
package campaigns

// Status is the outcome code of a rule check. The values are part of the QA
// log protocol.
type Status int

const (
	ThrottleRecent               Status = 0
	ThrottleMaxImpressions       Status = 1
	ThrottleLaunchTime           Status = 2
	NotActive                    Status = 4
	ErrorInvalidTriggers         Status = 5
	NoMatch                      Status = 6
	Match                        Status = 7
	NotDownloaded                Status = 8
	EligibleButOtherChosen       Status = 10
	GlobalThrottleMaxImpressions Status = 11
	GlobalThrottleRecent         Status = 12
	GlobalThrottleLaunchTime     Status = 13
)

func (s Status) String() string {
	switch s {
	case ThrottleRecent:
		return "throttle_recent"
	case ThrottleMaxImpressions:
		return "throttle_max_impressions"
	case ThrottleLaunchTime:
		return "throttle_launch_time"
	case NotActive:
		return "not_active"
	case ErrorInvalidTriggers:
		return "invalid_triggers"
	case NoMatch:
		return "no_match"
	case Match:
		return "match"
	case NotDownloaded:
		return "not_downloaded"
	case EligibleButOtherChosen:
		return "other_chosen"
	case GlobalThrottleMaxImpressions:
		return "global_throttle_max_impressions"
	case GlobalThrottleRecent:
		return "global_throttle_recent"
	case GlobalThrottleLaunchTime:
		return "global_throttle_launch_time"
	default:
		return "unknown"
	}
}

// RuleStatus is a status code with its human readable reason.
type RuleStatus struct {
	Status  Status
	Message string
}
