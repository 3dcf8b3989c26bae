package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// sign returns the hex HMAC-SHA256 of payload keyed by secret.
func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
