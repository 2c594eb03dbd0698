package record

import (
	"strings"
	"time"
)

// Markers that open each line type in a record file.
const (
	RequestMarker   = "<-"
	ResponseMarker  = "->"
	TimestampMarker = "--TIM:"
)

// TimestampLayout is the layout of --TIM: lines. Its values sort
// chronologically as plain strings.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// FormatEntry renders one record file entry. Every entry ends in exactly one
// newline added here, so text keeps its own trailing newlines.
func FormatEntry(isResponse bool, tag, text string) string {
	marker := RequestMarker
	if isResponse {
		marker = ResponseMarker
	}
	var sb strings.Builder
	sb.Grow(len(marker) + len(tag) + len(text) + 2)
	sb.WriteString(marker)
	sb.WriteString(tag)
	sb.WriteByte(':')
	sb.WriteString(text)
	sb.WriteByte('\n')
	return sb.String()
}

// FormatTimestamp renders the metadata line pinning the next entry's time.
func FormatTimestamp(t time.Time) string {
	return TimestampMarker + t.Format(TimestampLayout) + "\n"
}
