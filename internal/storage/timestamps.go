package storage

import "time"

// timeLayout is how timestamps are written to TEXT columns, always in UTC.
// It matches SQLite's datetime('now') so column defaults sort alongside
// values written from Go.
const timeLayout = "2006-01-02 15:04:05"

// readLayouts are tried in order when reading a TEXT timestamp back.
var readLayouts = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime returns the zero time for values no layout accepts.
func parseTime(s string) time.Time {
	for _, layout := range readLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// parseTimePtr is parseTime for nullable columns.
func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t := parseTime(*s)
	if t.IsZero() {
		return nil
	}
	return &t
}
