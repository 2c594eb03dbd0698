// Package replay reads recorded traces and serves their stored responses back
// to live requests.
package replay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fakeyudi/replaymock/internal/record"
)

// Entry is one request or response line group in a record file.
type Entry struct {
	IsResponse bool
	Tag        string
	Text       string
	// Timestamp is the value of a --TIM: line directly before the entry.
	Timestamp string
	// Line is the 1-based line the entry starts on.
	Line int
}

// Exchange is a request entry and the response entries recorded after it.
type Exchange struct {
	Request   Entry
	Responses []Entry
}

// Trace is the parsed, read-only content of a record file.
type Trace struct {
	Entries []Entry
}

// ReadTrace parses the record file at path.
func ReadTrace(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace: %w", err)
	}
	defer f.Close()
	t, err := ParseTrace(f)
	if err != nil {
		return nil, fmt.Errorf("parsing trace %s: %w", path, err)
	}
	return t, nil
}

// ParseTrace splits a record file into entries. Lines that open with neither
// marker continue the previous entry's text.
func ParseTrace(r io.Reader) (*Trace, error) {
	br := bufio.NewReader(r)
	t := &Trace{}
	var (
		current   *Entry
		text      strings.Builder
		timestamp string
		lineNo    int
	)
	finish := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimSuffix(text.String(), "\n")
		t.Entries = append(t.Entries, *current)
		current = nil
		text.Reset()
	}

	for {
		line, err := br.ReadString('\n')
		if line != "" {
			lineNo++
			switch {
			case strings.HasPrefix(line, record.TimestampMarker):
				finish()
				timestamp = strings.TrimSpace(strings.TrimPrefix(line, record.TimestampMarker))
			case strings.HasPrefix(line, record.RequestMarker), strings.HasPrefix(line, record.ResponseMarker):
				finish()
				body := line[len(record.RequestMarker):]
				tag, rest, ok := strings.Cut(body, ":")
				if !ok {
					tag, rest = strings.TrimSuffix(body, "\n"), ""
				}
				current = &Entry{
					IsResponse: strings.HasPrefix(line, record.ResponseMarker),
					Tag:        tag,
					Timestamp:  timestamp,
					Line:       lineNo,
				}
				timestamp = ""
				text.WriteString(rest)
			default:
				if current != nil {
					text.WriteString(line)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	finish()
	return t, nil
}

// Exchanges groups entries into request/response blocks. Responses recorded
// before the first request are attached to an exchange with an empty request.
func (t *Trace) Exchanges() []Exchange {
	var exchanges []Exchange
	for _, e := range t.Entries {
		if !e.IsResponse {
			exchanges = append(exchanges, Exchange{Request: e})
			continue
		}
		if len(exchanges) == 0 {
			exchanges = append(exchanges, Exchange{})
		}
		last := &exchanges[len(exchanges)-1]
		last.Responses = append(last.Responses, e)
	}
	return exchanges
}

// CountByTag returns how many entries carry each tag.
func (t *Trace) CountByTag() map[string]int {
	counts := make(map[string]int)
	for _, e := range t.Entries {
		counts[e.Tag]++
	}
	return counts
}
