package profile

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// SessionToken builds the token sent with every batch:
// "<appId>=<userId>=<unix seconds>=<md5(userId+seconds+apiKey)>".
func SessionToken(userID string, appID int, apiKey string, at time.Time) string {
	seconds := strconv.FormatInt(at.Round(time.Second).Unix(), 10)
	sum := md5.Sum([]byte(userID + seconds + apiKey))
	return fmt.Sprintf("%d=%s=%s=%s", appID, userID, seconds, hex.EncodeToString(sum[:]))
}
