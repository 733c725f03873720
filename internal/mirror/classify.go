// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mirror

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/pdiddy/kb-sync/pkg/types"
)

// nonWordPattern matches runs of characters that cannot appear in a slug.
var nonWordPattern = regexp.MustCompile(`[^\w]+`)

// Fingerprint returns the hex SHA-256 digest of a raw article body.
// Hashing raw markup keeps classification stable across renderer changes.
func Fingerprint(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Classify compares an article against the ledger snapshot taken at run
// start and returns its change status together with the content hash.
// Articles without an id cannot be tracked and classify as unchanged.
func Classify(a types.Article, ledger types.Ledger) (types.ChangeStatus, string) {
	if a.ID == "" {
		return types.ChangeUnchanged, ""
	}
	hash := Fingerprint(a.Body)
	entry, ok := ledger[a.ID]
	switch {
	case !ok:
		return types.ChangeNew, hash
	case entry.ContentHash != hash:
		return types.ChangeUpdated, hash
	default:
		return types.ChangeUnchanged, hash
	}
}

// Slug derives a filesystem-safe file name stem from an article title.
// Runs of non-word characters collapse to a single hyphen. Two titles may
// slugify identically; the per-id article directory keeps them apart.
func Slug(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = nonWordPattern.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "untitled"
	}
	return s
}
