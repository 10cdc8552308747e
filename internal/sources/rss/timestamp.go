package rss

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the RFC-822 style layout used by RSS 2.0 (pubDate, lastBuildDate).
const TimestampLayout = time.RFC1123

var timestampLayouts = []string{
	time.RFC1123,
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	time.RFC822,
	time.RFC822Z,
	time.RFC3339,
	time.RFC3339Nano,
}

// NormalizeTime converts t to UTC at second precision, the resolution RSS timestamps carry.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Second)
}

// FormatTimestamp renders t with TimestampLayout. The zero time renders as "".
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return NormalizeTime(t).Format(TimestampLayout)
}

// ParseTimestamp accepts RFC-822 style dates and a few variants seen in the wild.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("timestamp is required")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return NormalizeTime(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
