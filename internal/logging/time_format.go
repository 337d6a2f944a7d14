package logging

import "time"

// logTimestampLayout matches the UTC RFC3339 timestamp the console header
// writes, so a time.Time attribute logged alongside a record (e.g. a
// Source's processed_at) reads the same way the record's own header does.
const logTimestampLayout = time.RFC3339

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(logTimestampLayout)
}
