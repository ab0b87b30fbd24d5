package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"courtcast/internal/fetch"
)

const (
	playerMarker = "●"
	emptyMarker  = "○"
)

// Variant selectors narrowing partial matches to an exact registered
// player count.
const (
	VariantOnePlayer    = "one_player"
	VariantTwoPlayers   = "two_players"
	VariantThreePlayers = "three_players"
)

const (
	joinStatusOpen  = "OPEN"
	modeCompetitive = "COMPETITIVE"
)

type rawMatch struct {
	ID                string      `json:"id"`
	Venue             rawVenue    `json:"venue"`
	StartTime         string      `json:"start_time"`
	Duration          int         `json:"duration_minutes"`
	Cancelled         bool        `json:"cancelled"`
	JoinRequestStatus string      `json:"join_request_status"`
	CompetitionMode   string      `json:"competition_mode"`
	MatchType         string      `json:"match_type"`
	MinLevel          float64     `json:"min_level"`
	MaxLevel          float64     `json:"max_level"`
	MaxPlayers        int         `json:"max_players"`
	Players           []rawPlayer `json:"players"`
	Link              string      `json:"link"`
}

type rawPlayer struct {
	Name  string  `json:"name"`
	Level float64 `json:"level"`
}

// match is the normalized shape used for filtering and rendering.
type match struct {
	venue      string
	city       string
	start      time.Time
	duration   int
	minLevel   float64
	maxLevel   float64
	players    []rawPlayer
	maxPlayers int
	link       string
}

// Matches summarizes open competitive matches still looking for players.
type Matches struct {
	f Fetcher
}

func NewMatches(f Fetcher) *Matches { return &Matches{f: f} }

func (m *Matches) Summarize(ctx context.Context, req Request) (Result, error) {
	items, err := m.f.Fetch(ctx, fetch.Query{
		ClubID:     req.ClubID,
		Kind:       fetch.KindMatches,
		Sport:      req.Sport,
		Start:      req.Start,
		End:        req.End,
		HasPlayers: true,
	})
	if err != nil {
		return Result{}, err
	}

	loc := req.location()
	want := variantPlayerCount(req.Variant)

	var kept []match
	for _, raw := range items {
		var rm rawMatch
		if err := json.Unmarshal(raw, &rm); err != nil {
			continue
		}
		if rm.Cancelled ||
			rm.JoinRequestStatus != joinStatusOpen ||
			rm.CompetitionMode != modeCompetitive ||
			rm.MatchType != modeCompetitive {
			continue
		}
		n := len(rm.Players)
		if n < 1 || n > 3 {
			continue
		}
		if want > 0 && n != want {
			continue
		}
		start, ok := parseStamp(rm.StartTime, loc)
		if !ok {
			continue
		}
		start = start.Add(time.Duration(rm.Venue.MinuteOffset) * time.Minute)
		dur := rm.Duration
		if dur <= 0 {
			dur = 90
		}
		maxPlayers := rm.MaxPlayers
		if maxPlayers <= 0 {
			maxPlayers = 4
		}
		kept = append(kept, match{
			venue:      rm.Venue.Name,
			city:       rm.Venue.City,
			start:      start,
			duration:   dur,
			minLevel:   rm.MinLevel,
			maxLevel:   rm.MaxLevel,
			players:    rm.Players,
			maxPlayers: maxPlayers,
			link:       rm.Link,
		})
	}

	if len(kept) == 0 {
		return Result{Text: "No open matches right now"}, nil
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].start.Before(kept[j].start) })

	blocks := make([]string, 0, len(kept))
	for _, mt := range kept {
		blocks = append(blocks, renderMatch(mt))
	}

	header := fmt.Sprintf("%s: %d", variantLabel(req.Variant), len(kept))
	return Result{
		Text:  header + "\n\n" + strings.Join(blocks, "\n\n"),
		Count: len(kept),
	}, nil
}

func renderMatch(mt match) string {
	var b strings.Builder
	b.WriteString(mt.venue)
	b.WriteString("\n")
	end := mt.start.Add(time.Duration(mt.duration) * time.Minute)
	fmt.Fprintf(&b, "%s, %s (%d min)", dateShort(mt.start), timeRange(mt.start, end), mt.duration)
	if mt.city != "" {
		b.WriteString("\n")
		b.WriteString(mt.city)
	}
	if lvl := levelRange(mt); lvl != "" {
		b.WriteString("\n")
		b.WriteString(lvl)
	}
	for _, p := range mt.players {
		b.WriteString("\n")
		b.WriteString(playerMarker + " " + p.Name)
	}
	for i := len(mt.players); i < mt.maxPlayers; i++ {
		b.WriteString("\n")
		b.WriteString(emptyMarker + " Available")
	}
	if mt.link != "" {
		b.WriteString("\n")
		b.WriteString(mt.link)
	}
	return b.String()
}

// levelRange prefers the match-level min/max; otherwise it derives the
// range from the registered players' own levels.
func levelRange(mt match) string {
	if mt.minLevel > 0 || mt.maxLevel > 0 {
		return fmt.Sprintf("Level %.2f–%.2f", mt.minLevel, mt.maxLevel)
	}
	lo, hi, found := 0.0, 0.0, false
	for _, p := range mt.players {
		if p.Level <= 0 {
			continue
		}
		if !found || p.Level < lo {
			lo = p.Level
		}
		if !found || p.Level > hi {
			hi = p.Level
		}
		found = true
	}
	if !found {
		return ""
	}
	return fmt.Sprintf("Level %.1f–%.1f", lo, hi)
}

func variantPlayerCount(v string) int {
	switch v {
	case VariantOnePlayer:
		return 1
	case VariantTwoPlayers:
		return 2
	case VariantThreePlayers:
		return 3
	default:
		return 0
	}
}

func variantLabel(v string) string {
	switch n := variantPlayerCount(v); n {
	case 1:
		return "Open matches (1 player in)"
	case 2, 3:
		return fmt.Sprintf("Open matches (%d players in)", n)
	default:
		return "Open matches"
	}
}
