package archive

import (
	"strings"
	"time"
)

// TimePolicy controls how a zone designator on a key timestamp is handled.
type TimePolicy int

const (
	// TimeUTC converts instants carrying an offset to UTC, then drops the zone.
	TimeUTC TimePolicy = iota
	// TimeWall drops the zone designator and keeps the wall clock as written.
	TimeWall
)

// KeyLayout is how key timestamps are rendered in an archive.
// Fractional seconds are only written when present.
const KeyLayout = "2006-01-02 15:04:05.999999999"

// Layouts tried in order. time.Parse accepts a fractional second after the
// seconds field even when the layout does not spell it out.
var keyLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339, true},
	{"2006-01-02 15:04:05Z07:00", true},
	{"2006-01-02T15:04:05-0700", true},
	{"2006-01-02 15:04:05-0700", true},
	{"2006-01-02 15:04:05 -0700", true},
	{"2006-01-02 15:04:05 UTC", true},
	{"2006-01-02T15:04:05 UTC", true},
	{"2006-01-02 15:04:05 GMT", true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02T15:04Z07:00", true},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04", false},
	{"2006-01-02", false},
}

// TimeColumnCandidates are the column names recognised as a temporal key
// when a source does not declare one. Matching is case-insensitive.
var TimeColumnCandidates = []string{"time_tag", "timestamp", "time", "date"}

// ParseTime parses a key timestamp into a zone-less instant (UTC location,
// wall clock per policy). ok is false when no layout matches.
func ParseTime(s string, policy TimePolicy) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range keyLayouts {
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		if l.zoned {
			if policy == TimeUTC {
				t = t.UTC()
			} else {
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
			}
		}
		return t, true
	}
	return time.Time{}, false
}

// FormatTime renders a normalized key timestamp.
func FormatTime(t time.Time) string {
	return t.Format(KeyLayout)
}

// DetectTimeColumn returns the first column whose lower-cased name is one of
// TimeColumnCandidates.
func DetectTimeColumn(columns []string) (string, bool) {
	for _, c := range columns {
		lc := strings.ToLower(c)
		for _, cand := range TimeColumnCandidates {
			if lc == cand {
				return c, true
			}
		}
	}
	return "", false
}
