package dataset

import "time"

// Match is the result of a nearest-date lookup.
type Match struct {
	Date        time.Time `json:"date"`
	DiffMinutes int64     `json:"diffMinutes"`
}

// Nearest returns the entry of dates closest to target, with the distance in
// whole minutes (rounded down). On a tie the earliest entry in dates wins.
// ok is false only when dates is empty.
func Nearest(dates []time.Time, target time.Time) (Match, bool) {
	if len(dates) == 0 {
		return Match{}, false
	}

	best := 0
	for i := 1; i < len(dates); i++ {
		if closer(dates[i], dates[best], target) {
			best = i
		}
	}
	return Match{
		Date:        dates[best],
		DiffMinutes: distance(dates[best], target).Milliseconds() / 60000,
	}, true
}

// distance is |a-b|, saturating at the largest Duration instead of wrapping.
func distance(a, b time.Time) time.Duration {
	if a.Before(b) {
		return b.Sub(a)
	}
	return a.Sub(b)
}

// closer reports whether a is strictly nearer to target than b. Distances
// beyond the Duration range saturate, so those are ordered by position instead.
func closer(a, b, target time.Time) bool {
	da, db := distance(a, target), distance(b, target)
	if da != db || da != maxDuration {
		return da < db
	}
	if target.After(a) && target.After(b) {
		return a.After(b)
	}
	if target.Before(a) && target.Before(b) {
		return a.Before(b)
	}
	return false
}

const maxDuration = time.Duration(1<<63 - 1)

// Step moves from the calendar day of current to the previous (delta < 0) or
// next (delta > 0) available date. ok is false when current is not an
// available date or there is nothing further in that direction.
func Step(dates []time.Time, current time.Time, delta int) (time.Time, bool) {
	key := DayKey(current)
	idx := -1
	for i, d := range dates {
		if DayKey(d) == key {
			idx = i
			break
		}
	}
	if idx < 0 || delta == 0 {
		return time.Time{}, false
	}
	next := idx + delta
	if next < 0 || next >= len(dates) {
		return time.Time{}, false
	}
	return dates[next], true
}

// Resolution is what a requested point in time maps to.
type Resolution struct {
	Live        bool       `json:"live"`
	Date        *time.Time `json:"date,omitempty"`
	DiffMinutes int64      `json:"diffMinutes"`
	Snapped     bool       `json:"snapped"`
}

// Resolve maps a requested time onto the dataset: before the data range it
// clamps to the range start; after the range it is kept as-is unless it lies
// in the future, which means live; inside the range it snaps to the nearest
// available date.
func (d *Dataset) Resolve(target, now time.Time) Resolution {
	if len(d.Records) == 0 {
		if target.After(now) {
			return Resolution{Live: true}
		}
		return Resolution{Date: &target}
	}
	if target.Before(d.Bounds.Start) {
		start := d.Bounds.Start
		return Resolution{Date: &start}
	}
	if target.After(d.Bounds.End) {
		if target.After(now) {
			return Resolution{Live: true}
		}
		return Resolution{Date: &target}
	}
	m, ok := Nearest(d.Dates, target)
	if !ok {
		return Resolution{Date: &target}
	}
	return Resolution{Date: &m.Date, DiffMinutes: m.DiffMinutes, Snapped: true}
}

// StepOrLive is Step over the dataset's dates, except that stepping forward
// from the last available date goes live once now is past that date.
func (d *Dataset) StepOrLive(current time.Time, delta int, now time.Time) (Resolution, bool) {
	if next, ok := Step(d.Dates, current, delta); ok {
		return Resolution{Date: &next}, true
	}
	if delta > 0 && len(d.Dates) > 0 {
		last := d.Dates[len(d.Dates)-1]
		if DayKey(current) == DayKey(last) && now.After(last) {
			return Resolution{Live: true}, true
		}
	}
	return Resolution{}, false
}

// OnDay returns, per zone id, the latest record whose date falls on the same
// calendar day as day in loc.
func (d *Dataset) OnDay(day time.Time, loc *time.Location) map[string]Record {
	if loc == nil {
		loc = time.Local
	}
	y, m, dd := day.In(loc).Date()
	out := make(map[string]Record)
	for _, r := range d.Records {
		ry, rm, rd := r.Date.In(loc).Date()
		if ry != y || rm != m || rd != dd {
			continue
		}
		if prev, ok := out[r.ZoneID]; !ok || r.Date.After(prev.Date) {
			out[r.ZoneID] = r
		}
	}
	return out
}

// LatestPerZone returns the most recent record of each zone.
func (d *Dataset) LatestPerZone() map[string]Record {
	out := make(map[string]Record)
	for _, r := range d.Records {
		if prev, ok := out[r.ZoneID]; !ok || r.Date.After(prev.Date) {
			out[r.ZoneID] = r
		}
	}
	return out
}
