package core

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// NewID returns the identifier sweep records are keyed by: 32 lowercase hex
// characters from crypto/rand. A nanosecond timestamp stands in if the
// random source fails.
func NewID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return strconv.FormatInt(time.Now().UTC().UnixNano(), 10)
	}
	return hex.EncodeToString(buf[:])
}
