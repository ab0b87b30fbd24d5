// Package render substitutes summary values into message templates.
package render

import (
	"strconv"
	"strings"
)

// Vars is the fixed token set available to templates.
type Vars struct {
	Summary          string
	ClubName         string
	DateDisplayShort string
	Sport            string
	CountSlots       int
}

// Render replaces {summary}, {club_name}, {date_display_short}, {sport}
// and {count_slots} in template. Unresolved tokens are left verbatim;
// rendering never fails.
func Render(template string, v Vars) string {
	r := strings.NewReplacer(
		"{summary}", v.Summary,
		"{club_name}", v.ClubName,
		"{date_display_short}", v.DateDisplayShort,
		"{sport}", v.Sport,
		"{count_slots}", strconv.Itoa(v.CountSlots),
	)
	return r.Replace(template)
}
