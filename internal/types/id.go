// README: Identifier types and generators.
package types

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type ID string

const (
	QuotePrefix   = "q_"
	BookingPrefix = "b_"
)

// NewID returns a lowercase ULID with the given prefix, e.g. "q_01j9...".
func NewID(prefix string, now time.Time) ID {
	id := ulid.MustNew(ulid.Timestamp(now), rand.Reader)
	return ID(prefix + strings.ToLower(id.String()))
}

// HasPrefix reports whether id is a well formed identifier with the prefix.
func (id ID) HasPrefix(prefix string) bool {
	s := string(id)
	if !strings.HasPrefix(s, prefix) {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(strings.TrimPrefix(s, prefix)))
	return err == nil
}
