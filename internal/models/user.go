package models

// User is the persisted identity and session record of one SDK user.
type User struct {
	UserID         string  `json:"userId"`
	SessionToken   string  `json:"sessionToken"`
	SessionStart   int64   `json:"sessionStart"`   // ms since epoch
	LastSessionEnd int64   `json:"lastSessionEnd"` // ms since epoch, 0 if never ended
	IsQAUser       bool    `json:"isQAUser"`
	QAUser         *QAUser `json:"qaUser,omitempty"`
	NextSeqNum     int64   `json:"nextSeqNum"`
	FirstUse       int64   `json:"firstUse"` // ms since epoch, 0 until the first session is logged
	IsAnonymous    bool    `json:"isAnonymous"`
	ETag           string  `json:"etag,omitempty"`
}

// QAUser is the QA block the backend sends for users flagged for diagnostics.
type QAUser struct {
	ResetDeviceState bool       `json:"reset_device_state"`
	Logging          bool       `json:"logging"`
	LoggingURL       string     `json:"logging_url,omitempty"`
	Campaigns        []Campaign `json:"campaigns,omitempty"`
}

// UserInfo is the subset of the user record exposed to the host app.
type UserInfo struct {
	UserID       string `json:"userId"`
	FirstUse     int64  `json:"firstUse"`
	SessionStart int64  `json:"sessionStart"`
	IsQAUser     bool   `json:"isQAUser"`
}
