package redis

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mcoot/biogames-go/internal/model"
)

// Key prefix for all client session data
const keyPrefix = "biogames"

// identityKey returns the Redis key for the identity bound to a session
func identityKey(key model.SessionKey) string {
	return fmt.Sprintf("%s:identity:%s", keyPrefix, key)
}

// imageKey returns the Redis key for a cached image.
// URLs are hashed so query strings never leak into key names.
func imageKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%s:image:%s", keyPrefix, hex.EncodeToString(sum[:]))
}

// imageIndexKey returns the Redis key for the SET of cached image URLs
func imageIndexKey() string {
	return fmt.Sprintf("%s:idx:images", keyPrefix)
}
