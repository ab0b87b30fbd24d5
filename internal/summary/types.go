package summary

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"courtcast/internal/fetch"
)

// Fetcher is the single external dependency of a summarizer.
type Fetcher interface {
	Fetch(ctx context.Context, q fetch.Query) ([]json.RawMessage, error)
}

// Request describes one summarization run.
type Request struct {
	ClubID string
	Sport  string

	// UTC fetch window.
	Start time.Time
	End   time.Time

	// Optional variant selector (category-specific).
	Variant string
	// Optional pinned source event id (competitions category).
	EventID string

	// Club zone used for date display in blocks.
	Location *time.Location
}

func (r Request) location() *time.Location {
	if r.Location != nil {
		return r.Location
	}
	return time.UTC
}

// Result is the ephemeral output of one summarizer run.
type Result struct {
	Text  string
	Count int
}

// Summarizer is implemented once per schedule category.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (Result, error)
}

// Known "nothing available" texts. A summary matching one of these is a
// skip condition even if a non-zero count slipped through upstream.
var emptySentinels = []string{
	"No bookable slots",
	"No open matches",
	"No upcoming events",
}

// IsEmpty reports whether text is one of the known empty-summary sentinels.
func IsEmpty(text string) bool {
	t := strings.TrimSpace(text)
	for _, s := range emptySentinels {
		if strings.HasPrefix(t, s) {
			return true
		}
	}
	return false
}
