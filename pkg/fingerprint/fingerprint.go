// Package fingerprint computes content fingerprints for uploaded photos and
// tracks which fingerprints have already been stored, both within a single
// submission and across runs via tags embedded in remote filenames.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sync"
)

// TagLength is the number of hex characters of the digest embedded in stored
// filenames. The tag is the durable dedup key scanned on subsequent runs, so
// its length is a contract with previously uploaded files.
const TagLength = 12

// tagRegex matches the fingerprint tag embedded in a stored filename,
// eg 251215-0FF480_camera_20250114_103000_123456__sha256_a1b2c3d4e5f6.png
var tagRegex = regexp.MustCompile(`__sha256_([0-9a-f]{12})`)

// Fingerprint returns the tag for the provided bytes: the full sha256 digest
// is computed, then truncated to the first TagLength hex characters. The hash
// is always taken over the original bytes as uploaded, never the normalized
// re-encode, so re-submitting the same source photo dedups correctly.
func Fingerprint(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:TagLength]
}

// ParseTag extracts the fingerprint tag from a stored filename. Returns the
// tag and true if the filename carries one, or "" and false otherwise.
func ParseTag(filename string) (string, bool) {

	m := tagRegex.FindStringSubmatch(filename)
	if m == nil {
		return "", false
	}

	return m[1], true
}

// Registry tracks fingerprints seen across two scopes: those already present
// in the remote folder (existing) and those registered during the current
// submission (run). A fingerprint is new only if it appears in neither.
type Registry struct {
	mu       sync.Mutex
	existing map[string]struct{}
	run      map[string]struct{}
}

// NewRegistry creates a registry pre-populated with the tags already present
// in the remote folder listing.
func NewRegistry(existing []string) *Registry {

	e := make(map[string]struct{}, len(existing))
	for _, tag := range existing {
		e[tag] = struct{}{}
	}

	return &Registry{
		existing: e,
		run:      make(map[string]struct{}),
	}
}

// IsNew reports whether the fingerprint has been seen in neither the remote
// folder nor the current run. When the fingerprint is new it is registered
// into both sets in the same critical section, so two photos with equal
// fingerprints in one submission can never both be treated as new.
func (r *Registry) IsNew(tag string) bool {

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.existing[tag]; ok {
		return false
	}

	if _, ok := r.run[tag]; ok {
		return false
	}

	r.existing[tag] = struct{}{}
	r.run[tag] = struct{}{}

	return true
}
