package service

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/shopscout/shopscout/internal/apperr"
)

// DataMode tells the caller where a response came from, and with what
// confidence: a live provider fetch, a cache hit, or static seed data.
type DataMode string

const (
	DataModeLive  DataMode = "live"
	DataModeCache DataMode = "cache"
	DataModeSeed  DataMode = "seed"
)

// CacheState qualifies a cache-served payload.
type CacheState string

const (
	CacheFresh CacheState = "fresh"
	CacheStale CacheState = "stale"
)

var upcPattern = regexp.MustCompile(`^[0-9]{8,14}$`)

func validateUPC(upc string) error {
	if !upcPattern.MatchString(upc) {
		return apperr.ErrInvalidUPC
	}
	return nil
}

// normalizeQuery collapses whitespace and lowercases, so equivalent inputs
// share a cache key.
func normalizeQuery(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func hashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:24]
}
