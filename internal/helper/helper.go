package helper

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash8 is a short stable fingerprint, used to keep emails out of logs and redis keys.
func Hash8(s string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(s))))
	return hex.EncodeToString(sum[:8])
}
