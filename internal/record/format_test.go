package record

import (
	"os"
	"testing"
	"time"
)

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

func TestFormatEntry(t *testing.T) {
	tests := []struct {
		isResponse bool
		tag, text  string
		want       string
	}{
		{false, "CMD", "ls -l", "<-CMD:ls -l\n"},
		{true, "OUT", "a\nb\n", "->OUT:a\nb\n\n"},
		{true, "EXC", "1", "->EXC:1\n"},
	}
	for _, tt := range tests {
		if got := FormatEntry(tt.isResponse, tt.tag, tt.text); got != tt.want {
			t.Errorf("FormatEntry(%v, %q, %q) = %q, want %q", tt.isResponse, tt.tag, tt.text, got, tt.want)
		}
	}
}

func TestFormatTimestampSortsAsText(t *testing.T) {
	early := time.Date(2024, 3, 1, 9, 5, 0, 1000, time.UTC)
	late := early.Add(1500 * time.Microsecond)
	a, b := FormatTimestamp(early), FormatTimestamp(late)
	if a != "--TIM:2024-03-01T09:05:00.000001\n" {
		t.Errorf("FormatTimestamp = %q", a)
	}
	if !(a < b) {
		t.Errorf("%q should sort before %q", a, b)
	}
}
