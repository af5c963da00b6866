package dataset

import (
	"sort"
	"strings"

	"github.com/i474232898/electricity-map/internal/common"
)

// DefaultRankLimit is the number of entries shown in the ranked list.
const DefaultRankLimit = 20

// RankEntry is one row of the ranked zone list.
type RankEntry struct {
	Country   string  `json:"country"`
	ZoneName  string  `json:"zoneName"`
	ZoneID    string  `json:"zoneId"`
	Intensity float64 `json:"intensity"`
	Record    Record  `json:"record"`
}

// Rank keeps the first record seen for each (country, zone name) pair among
// those matching query, then orders them by intensity for mode, highest first.
// query matches country or zone name case-insensitively; empty matches all.
func Rank(records []Record, mode Mode, query string, limit int) []RankEntry {
	if limit <= 0 {
		limit = DefaultRankLimit
	}
	query = strings.TrimSpace(query)

	seen := make(map[string]struct{})
	entries := make([]RankEntry, 0)
	for _, r := range records {
		if query != "" && !common.ContainsFold(r.Country, query) && !common.ContainsFold(r.ZoneName, query) {
			continue
		}
		key := r.Country + "-" + r.ZoneName
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, RankEntry{
			Country:   r.Country,
			ZoneName:  r.ZoneName,
			ZoneID:    r.ZoneID,
			Intensity: r.Intensity(mode),
			Record:    r,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Intensity > entries[j].Intensity
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
