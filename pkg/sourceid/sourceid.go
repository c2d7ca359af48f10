// Package sourceid derives stable mirror keys for remote media servers.
// Two accounts pointing at the same server address share one key, and
// therefore one mirror and one sync status row.
package sourceid

import (
	"crypto/sha256"
	"encoding/hex"
)

// KeyLength is the length of a derived source key in hex characters.
const KeyLength = 12

// DeriveKey maps a server base URL to a short stable key. It hashes the
// exact bytes it is given; callers are responsible for normalizing the URL
// first, since "http://host:32400" and "http://host:32400/" derive
// different keys.
func DeriveKey(baseURL string) string {
	sum := sha256.Sum256([]byte(baseURL))
	return hex.EncodeToString(sum[:])[:KeyLength]
}
