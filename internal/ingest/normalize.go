package ingest

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeName canonicalizes a free-text place name: Unicode NFC,
// trimmed whitespace. Admin names arrive from several sources with
// inconsistent composition, and region keys must compare equal across
// all of them.
func normalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
