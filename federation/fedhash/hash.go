// Package fedhash computes the SHA1-based identifiers used throughout the
// federation domain to key rows in the object store's table service:
// federation hashes, pool hashes, and per-target row keys.
package fedhash

import (
	"crypto/sha1"
	"encoding/hex"
)

// HashString returns the lowercase hex SHA1 digest of s, matching the
// original implementation's hash_string helper.
func HashString(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Federation returns the federation hash for a federation id.
func Federation(federationID string) string {
	return HashString(federationID)
}

// Pool returns the pool hash for a (service_url, pool_id) pair, matching
// JobLocationEntity's row_key=SHA1(service_url$pool_id) construction.
func Pool(serviceURL, poolID string) string {
	return HashString(serviceURL + "$" + poolID)
}

// Target returns the row key for a job/job-schedule target id, used by both
// SequenceEntity and BlockedActionEntity.
func Target(targetID string) string {
	return HashString(targetID)
}
