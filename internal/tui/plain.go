package tui

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fakeyudi/replaymock/internal/replay"
	"github.com/fakeyudi/replaymock/internal/traffic"
)

// WritePlain writes the viewer's sections as uncolored text, for output that
// is not a terminal.
func WritePlain(w io.Writer, trace *replay.Trace, reg *traffic.Registry, filename string) error {
	exchanges := trace.Exchanges()
	edits := collectEdits(exchanges, reg)
	st := summarize(trace, exchanges)

	var sb strings.Builder
	sb.WriteString("## Summary\n")
	fmt.Fprintf(&sb, "  File:        %s\n", filepath.Base(filename))
	fmt.Fprintf(&sb, "  Requests:    %d\n", st.requests)
	fmt.Fprintf(&sb, "  Responses:   %d\n", st.responses)
	fmt.Fprintf(&sb, "  File edits:  %d\n", len(edits))
	if st.first != "" {
		fmt.Fprintf(&sb, "  Stamps:      %s .. %s\n", st.first, st.last)
	}
	for _, tc := range st.tags {
		label := kindLabel(tc.tag, reg)
		if label != "" {
			label = " (" + label + ")"
		}
		fmt.Fprintf(&sb, "  %-3s%s: %d\n", tc.tag, label, tc.count)
	}
	sb.WriteString("\n## Exchanges\n")
	if len(exchanges) == 0 {
		sb.WriteString("  (none)\n")
	}
	for i, ex := range exchanges {
		fmt.Fprintf(&sb, "  %d. %s %s\n", i+1, ex.Request.Tag, firstLine(ex.Request.Text))
		for _, r := range ex.Responses {
			fmt.Fprintf(&sb, "       %s %s\n", r.Tag, indentTail(r.Text, "           "))
		}
	}
	sb.WriteString("\n## File Edits\n")
	if len(edits) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, e := range edits {
		fmt.Fprintf(&sb, "  %s  (after %s %s)\n", e.edit.Text, e.request.Tag, firstLine(e.request.Text))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
