package messaging

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a new ULID string (26 chars) used for conversation and
// message ids. ULIDs are lexicographically sortable, which makes them a
// stable tiebreaker for messages created in the same timestamp tick.
func NewID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
