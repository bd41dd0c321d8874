package extract

import (
	"sort"
	"strings"
	"time"

	"carpooltally/internal/model"
)

// LocationRules validates raw event locations against the known carpool
// departure points. Morning and afternoon trips leave from different
// places, so the valid list is picked by the trip's start hour.
type LocationRules struct {
	ValidAM []string
	ValidPM []string

	// UnknownAM / UnknownPM are returned when nothing matches.
	UnknownAM string
	UnknownPM string
}

// Normalize maps a raw LOCATION string to a validated departure
// location. Matching is case-insensitive substring search, first valid
// location found wins.
func (r LocationRules) Normalize(raw string, start time.Time) string {
	valid := r.ValidPM
	unknown := r.UnknownPM
	if start.Hour() < 12 {
		valid = r.ValidAM
		unknown = r.UnknownAM
	}

	loc := strings.ToLower(raw)
	for _, v := range valid {
		if v == "" {
			continue
		}
		if strings.Contains(loc, strings.ToLower(v)) {
			return v
		}
	}
	return unknown
}

// MatchDestinations fills in each trip's Destination as the departure
// location of the same driver's next later trip. A driver typically
// departs from X in the morning and from Y in the afternoon, so the
// morning trip was X->Y. The last known trip per driver keeps an empty
// destination. Trips are modified in place; input order is preserved.
func MatchDestinations(trips []model.Trip) {
	// Index trips per driver, ordered by start time.
	byDriver := make(map[string][]int)
	for i, t := range trips {
		byDriver[t.Driver] = append(byDriver[t.Driver], i)
	}

	for _, idxs := range byDriver {
		sort.SliceStable(idxs, func(a, b int) bool {
			return trips[idxs[a]].Start.Before(trips[idxs[b]].Start)
		})
		for k := 0; k+1 < len(idxs); k++ {
			trips[idxs[k]].Destination = trips[idxs[k+1]].Location
		}
	}
}
