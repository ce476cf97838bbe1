package session

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/starfield/server/internal/procedural"
	"github.com/starfield/server/internal/streaming"
)

// MaxNameLength bounds stored session names.
const MaxNameLength = 64

var (
	// ErrInvalidName is returned for names that are empty after sanitizing.
	ErrInvalidName = errors.New("session name is required")
	// ErrInvalidPose is returned for poses with non-finite components.
	ErrInvalidPose = errors.New("camera pose must be finite")
)

var unsafeNameChars = regexp.MustCompile(`[^0-9A-Za-z._-]`)

// State is everything a session restores.
type State struct {
	Pose     streaming.CameraPose `json:"pose"`
	Selected *procedural.Star     `json:"selected,omitempty"`
	Seed     string               `json:"seed"`
}

// Record is a named, timestamped State.
type Record struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	State     State  `json:"state"`
	Timestamp int64  `json:"timestamp"`
}

// Store persists session records.
type Store interface {
	// Save stores rec and returns it with its assigned ID.
	Save(ctx context.Context, rec Record) (*Record, error)
	// Find returns the best match for query, or nil when nothing matches.
	Find(ctx context.Context, query string) (*Record, error)
	// List returns every record, newest first.
	List(ctx context.Context) ([]Record, error)
	// Delete removes all records named name and reports how many went.
	Delete(ctx context.Context, name string) (int, error)
}

// SanitizeName replaces characters outside [0-9A-Za-z._-] with '_' and
// truncates to MaxNameLength.
func SanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	safe := unsafeNameChars.ReplaceAllString(name, "_")
	if len(safe) > MaxNameLength {
		safe = safe[:MaxNameLength]
	}
	return safe, nil
}

// NormalizeQuery maps a lookup string onto the stored name alphabet, so a
// session saved as "my session" is found again by "my session". It returns
// "" for blank queries.
func NormalizeQuery(query string) string {
	safe, err := SanitizeName(query)
	if err != nil {
		return ""
	}
	return safe
}

// Match picks the record for query: the newest exact name match, otherwise
// the newest record whose name contains query, ignoring case. The query is
// normalized with NormalizeQuery first.
func Match(records []Record, query string) *Record {
	query = NormalizeQuery(query)
	if query == "" {
		return nil
	}

	var exact, partial *Record
	lowered := strings.ToLower(query)
	for i := range records {
		r := &records[i]
		if r.Name == query {
			if exact == nil || newer(r, exact) {
				exact = r
			}
			continue
		}
		if strings.Contains(strings.ToLower(r.Name), lowered) {
			if partial == nil || newer(r, partial) {
				partial = r
			}
		}
	}

	best := exact
	if best == nil {
		best = partial
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

func newer(a, b *Record) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return a.ID > b.ID
}
