// Package fileid derives deterministic identifiers from content and file paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

const (
	contentPrefix  = "sha256:"
	templatePrefix = "tpl-"
)

// ContentRef returns the content-addressed reference of b. Equal bytes always yield the
// same reference.
func ContentRef(b []byte) string {
	sum := sha256.Sum256(b)
	return contentPrefix + hex.EncodeToString(sum[:])
}

// ParseContentRef returns the hex digest of ref, or false when ref is not a valid
// content reference.
func ParseContentRef(ref string) (string, bool) {
	digest, ok := strings.CutPrefix(ref, contentPrefix)
	if !ok || len(digest) != sha256.Size*2 {
		return "", false
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", false
	}
	return digest, true
}

// TemplateID returns a stable template ID for a watched source file. Same path always
// yields the same ID, so re-importing an edited file updates the same template.
func TemplateID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return templatePrefix + hex.EncodeToString(hash[:10])
}
