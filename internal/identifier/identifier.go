// Package identifier implements the compound task identifier used to
// name a runtime task uniquely within one run and to derive both a
// human-readable string and a filesystem-safe string from it.
package identifier

import (
	"fmt"
	"regexp"
	"strings"
)

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ID is a compound task identifier: a suite name, a sequence number
// within that suite, the runnable's URI, and the number of digits to
// zero-pad the sequence number to when rendering.
type ID struct {
	SuiteName string
	Sequence  int
	URI       string
	NoDigits  int
}

// New creates an ID, deriving NoDigits from total so that every sequence
// number in a run of that size renders with the same width.
func New(suiteName string, sequence, total int) ID {
	digits := 1
	for n := total; n >= 10; n /= 10 {
		digits++
	}
	return ID{SuiteName: suiteName, Sequence: sequence, NoDigits: digits}
}

// WithURI returns a copy of id carrying the given runnable URI.
func (id ID) WithURI(uri string) ID {
	id.URI = uri
	return id
}

// String renders the human-readable form: "<suite>-<padded-seq>-<uri>".
func (id ID) String() string {
	seq := fmt.Sprintf("%0*d", id.NoDigits, id.Sequence)
	if id.SuiteName == "" {
		return fmt.Sprintf("%s-%s", seq, id.URI)
	}
	return fmt.Sprintf("%s-%s-%s", id.SuiteName, seq, id.URI)
}

// FilesystemID renders a string safe to use as a single path component:
// every run of characters outside [a-zA-Z0-9._-] is collapsed to a
// single underscore, and leading or trailing underscores are trimmed.
func (id ID) FilesystemID() string {
	safe := unsafePathChars.ReplaceAllString(id.String(), "_")
	return strings.Trim(safe, "_")
}
