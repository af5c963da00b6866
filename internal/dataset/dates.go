package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// isoLocalLayouts carry no offset and are read in the configured location.
var isoLocalLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDate reads a CSV timestamp. "DD/MM/YYYY HH:mm" is interpreted in loc;
// otherwise ISO-8601 forms are tried: with an offset as given, date-time
// without offset in loc, and a bare date as midnight UTC.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if loc == nil {
		loc = time.Local
	}

	if strings.Contains(s, "/") {
		if t, err := parseSlashDate(s, loc); err == nil {
			return t, nil
		}
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range isoLocalLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseSlashDate handles "D/M/YYYY H:mm"; minutes may be omitted.
func parseSlashDate(s string, loc *time.Location) (time.Time, error) {
	datePart, timePart, _ := strings.Cut(s, " ")
	dmy := strings.Split(datePart, "/")
	if len(dmy) != 3 || strings.TrimSpace(timePart) == "" {
		return time.Time{}, fmt.Errorf("malformed slash date %q", s)
	}

	day, err1 := strconv.Atoi(dmy[0])
	month, err2 := strconv.Atoi(dmy[1])
	year, err3 := strconv.Atoi(dmy[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("malformed slash date %q", s)
	}

	hm := strings.Split(strings.TrimSpace(timePart), ":")
	hour, err := strconv.Atoi(hm[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed slash time %q", s)
	}
	minute := 0
	if len(hm) > 1 && hm[1] != "" {
		if minute, err = strconv.Atoi(hm[1]); err != nil {
			return time.Time{}, fmt.Errorf("malformed slash time %q", s)
		}
	}

	if month < 1 || month > 12 || day < 1 || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("slash date out of range %q", s)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("slash date out of range %q", s)
	}
	return t, nil
}

// DayKey formats the UTC calendar day of t.
func DayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// startOfUTCDay truncates t to midnight UTC.
func startOfUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
