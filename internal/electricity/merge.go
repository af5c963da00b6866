package electricity

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RejectReason explains why an upstream entry was left out of the merge.
type RejectReason string

const (
	ReasonInvalidDatetime  RejectReason = "invalid_datetime"
	ReasonMissingIntensity RejectReason = "missing_carbon_intensity"
)

// Rejection describes a single dropped upstream entry.
type Rejection struct {
	Series   string       `json:"series"`
	Index    int          `json:"index"`
	Datetime string       `json:"datetime"`
	Reason   RejectReason `json:"reason"`
}

// MergeReport summarizes what MergeSeries did with its input.
type MergeReport struct {
	PowerAccepted  int         `json:"powerAccepted"`
	CarbonAccepted int         `json:"carbonAccepted"`
	Duplicates     int         `json:"duplicates"`
	Rejected       []Rejection `json:"rejected,omitempty"`
}

func (r MergeReport) String() string {
	return fmt.Sprintf("power=%d carbon=%d duplicates=%d rejected=%d",
		r.PowerAccepted, r.CarbonAccepted, r.Duplicates, len(r.Rejected))
}

// MergeSeries combines the power-breakdown and carbon-intensity histories into one
// record per timestamp and returns the snapshot with history sorted newest first.
//
// Entries whose datetime does not parse are rejected. Within a series a repeated
// timestamp replaces the earlier entry (keep-last) and is counted in Duplicates.
// Carbon entries without an intensity value are rejected.
func MergeSeries(b Bundle) (Snapshot, MergeReport) {
	var report MergeReport
	byTime := make(map[int64]*Record, len(b.PowerHistory))

	for i, e := range b.PowerHistory {
		ts, err := parseDatetime(e.Datetime)
		if err != nil {
			report.Rejected = append(report.Rejected, Rejection{
				Series: "power", Index: i, Datetime: e.Datetime, Reason: ReasonInvalidDatetime,
			})
			continue
		}
		key := ts.UnixNano()
		if _, dup := byTime[key]; dup {
			report.Duplicates++
		} else {
			report.PowerAccepted++
		}
		byTime[key] = projectPower(ts, e)
	}

	seenCarbon := make(map[int64]struct{}, len(b.CarbonHistory))
	for i, e := range b.CarbonHistory {
		ts, err := parseDatetime(e.Datetime)
		if err != nil {
			report.Rejected = append(report.Rejected, Rejection{
				Series: "carbon", Index: i, Datetime: e.Datetime, Reason: ReasonInvalidDatetime,
			})
			continue
		}
		if e.CarbonIntensity == nil {
			report.Rejected = append(report.Rejected, Rejection{
				Series: "carbon", Index: i, Datetime: e.Datetime, Reason: ReasonMissingIntensity,
			})
			continue
		}

		key := ts.UnixNano()
		if _, dup := seenCarbon[key]; dup {
			report.Duplicates++
		} else {
			seenCarbon[key] = struct{}{}
			report.CarbonAccepted++
		}

		rec, ok := byTime[key]
		if !ok {
			rec = &Record{Datetime: ts}
			byTime[key] = rec
		}
		v := *e.CarbonIntensity
		rec.CarbonIntensity = &v
	}

	history := make([]Record, 0, len(byTime))
	for _, rec := range byTime {
		history = append(history, *rec)
	}
	sort.Slice(history, func(i, j int) bool {
		return history[i].Datetime.After(history[j].Datetime)
	})

	return Snapshot{
		Latest: Latest{
			Power:           b.LatestPower,
			CarbonIntensity: b.LatestCarbon,
		},
		History: history,
	}, report
}

func projectPower(ts time.Time, e PowerEntry) *Record {
	return &Record{
		Datetime:  ts,
		UpdatedAt: e.UpdatedAt,
		CreatedAt: e.CreatedAt,
		PowerData: &PowerData{
			Consumption: e.PowerConsumptionBreakdown,
			Production:  e.PowerProductionBreakdown,
			Imports:     e.PowerImportBreakdown,
			Exports:     e.PowerExportBreakdown,
			Totals: Totals{
				Consumption: e.PowerConsumptionTotal,
				Production:  e.PowerProductionTotal,
				Imports:     e.PowerImportTotal,
				Exports:     e.PowerExportTotal,
			},
		},
		Percentages: &Percentages{
			FossilFree: e.FossilFreePercentage,
			Renewable:  e.RenewablePercentage,
		},
	}
}

// parseDatetime accepts the upstream ISO-8601 forms, with or without seconds.
func parseDatetime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty datetime")
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04Z07:00"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}
