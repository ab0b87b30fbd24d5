package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "courtcast/pkg/logx"
)

// Kind selects an upstream inventory endpoint.
type Kind string

const (
	KindAvailability Kind = "availability"
	KindMatches      Kind = "matches"
	KindTournaments  Kind = "tournaments"
	KindLessons      Kind = "lessons"
	KindClasses      Kind = "classes"
)

// Query is one windowed inventory fetch.
type Query struct {
	ClubID string
	Kind   Kind
	Sport  string
	Start  time.Time
	End    time.Time

	// HasPlayers asks the matches endpoint to pre-filter matches with at
	// least one registered player.
	HasPlayers bool
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client fetches raw inventory items from the upstream club API.
//
// Items are returned undecoded; each summarizer owns the shape of its
// category and applies its own defaults for missing fields.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

func (c *Client) Fetch(ctx context.Context, q Query) ([]json.RawMessage, error) {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	u, err := url.Parse(base + "/v1/" + string(q.Kind))
	if err != nil {
		return nil, err
	}
	vals := url.Values{}
	vals.Set("club_id", q.ClubID)
	if q.Sport != "" {
		vals.Set("sport", q.Sport)
	}
	vals.Set("start", q.Start.UTC().Format(time.RFC3339))
	vals.Set("end", q.End.UTC().Format(time.RFC3339))
	if q.HasPlayers {
		vals.Set("has_players", "true")
	}
	u.RawQuery = vals.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inventory fetch %s: %w", q.Kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("inventory fetch %s: http=%d", q.Kind, resp.StatusCode)
	}

	var out struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("inventory fetch %s: decode: %w", q.Kind, err)
	}

	c.log.Debug("inventory fetched",
		logx.String("kind", string(q.Kind)),
		logx.String("club", q.ClubID),
		logx.Int("items", len(out.Items)),
		logx.Duration("dur", time.Since(start)),
	)
	return out.Items, nil
}
