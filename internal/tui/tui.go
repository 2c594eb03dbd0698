// Package tui provides a Bubble Tea viewer for recorded replaymock traces.
package tui

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/replaymock/internal/replay"
	"github.com/fakeyudi/replaymock/internal/traffic"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	timeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))

	requestTagStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	responseTagStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	editTagStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

// ── Tabs ─────────────────

type tabID int

const (
	tabSummary tabID = iota
	tabExchanges
	tabFileEdits
	tabTimeline
	tabCount
)

var tabNames = [tabCount]string{"Summary", "Exchanges", "File Edits", "Timeline"}

// editRow is a stored file edit together with the request that produced it.
type editRow struct {
	request replay.Entry
	edit    replay.Entry
}

// ── Model ────────────────────

// Model is the root Bubble Tea model of the trace viewer.
type Model struct {
	trace     *replay.Trace
	reg       *traffic.Registry
	filename  string
	exchanges []replay.Exchange
	edits     []editRow

	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	sortAsc   bool

	cursor   int
	expanded map[int]bool
}

// New creates a viewer for trace. reg labels record tags with kind names and
// may be nil.
func New(trace *replay.Trace, reg *traffic.Registry, filename string) Model {
	m := Model{
		trace:     trace,
		reg:       reg,
		filename:  filepath.Base(filename),
		exchanges: trace.Exchanges(),
		sortAsc:   true,
		expanded:  make(map[int]bool),
	}
	m.edits = collectEdits(m.exchanges, reg)
	return m
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		case "1", "2", "3", "4":
			m.activeTab = tabID(msg.String()[0] - '1')
		case "s":
			if m.activeTab == tabTimeline {
				m.sortAsc = !m.sortAsc
				m.refresh(tabTimeline)
				m.viewports[tabTimeline].GotoTop()
			}
		case "up", "k":
			if m.activeTab == tabExchanges && m.cursor > 0 {
				m.cursor--
				m.refresh(tabExchanges)
				return m, nil
			}
		case "down", "j":
			if m.activeTab == tabExchanges && m.cursor < len(m.exchanges)-1 {
				m.cursor++
				m.refresh(tabExchanges)
				return m, nil
			}
		case "enter", " ":
			if m.activeTab == tabExchanges && len(m.exchanges) > 0 {
				if m.expanded[m.cursor] {
					delete(m.expanded, m.cursor)
				} else {
					m.expanded[m.cursor] = true
				}
				m.refresh(tabExchanges)
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  replaymock  " + m.filename)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-4 jump  q quit"
	switch m.activeTab {
	case tabTimeline:
		dir := "newest first"
		if m.sortAsc {
			dir = "oldest first"
		}
		hint += "  s sort (" + dir + ")"
	case tabExchanges:
		hint += "  ↑/↓ select  enter expand/collapse"
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := m.width - lipgloss.Width(hint) - len(pct) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + pct)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

func (m *Model) initViewports() {
	// title, tab row and status bar take one row each
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Model) refresh(t tabID) {
	m.viewports[t].SetContent(m.renderTab(t))
}

// ── Tab renderers ────────────────

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabSummary:
		return m.renderSummary()
	case tabExchanges:
		return m.renderExchanges()
	case tabFileEdits:
		return m.renderFileEdits()
	case tabTimeline:
		return m.renderTimeline()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func (m *Model) renderSummary() string {
	var sb strings.Builder
	sb.WriteString(heading("Trace Summary"))
	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	st := summarize(m.trace, m.exchanges)
	row("File", m.filename)
	row("Requests", fmt.Sprint(st.requests))
	row("Responses", fmt.Sprint(st.responses))
	row("File edits", fmt.Sprint(len(m.edits)))
	if st.first != "" {
		row("First stamp", timeStyle.Render(st.first))
		row("Last stamp", timeStyle.Render(st.last))
	} else {
		row("Timestamps", dimStyle.Render("(none recorded)"))
	}

	sb.WriteString(heading("Entries by Tag"))
	for _, tc := range st.tags {
		sb.WriteString(fmt.Sprintf("  %s  %-18s %d\n",
			tagStyle(tc.tag, m.reg).Render(fmt.Sprintf("%-3s", tc.tag)),
			dimStyle.Render(kindLabel(tc.tag, m.reg)), tc.count))
	}
	return sb.String()
}

func (m *Model) renderExchanges() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Exchanges (%d)", len(m.exchanges))))
	if len(m.exchanges) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i, ex := range m.exchanges {
		marker := "▸"
		if m.expanded[i] {
			marker = "▾"
		}
		line := fmt.Sprintf(" %s %3d  %-3s  %s  %s", marker, i+1, ex.Request.Tag,
			firstLine(ex.Request.Text), dimStyle.Render(fmt.Sprintf("(%d responses)", len(ex.Responses))))
		if i == m.cursor {
			line = selectedRowStyle.Render(line)
		}
		sb.WriteString(line + "\n")
		if !m.expanded[i] {
			continue
		}
		for _, r := range ex.Responses {
			sb.WriteString("        " + tagStyle(r.Tag, m.reg).Render(r.Tag) + "  " +
				indentTail(r.Text, "             ") + "\n")
		}
	}
	return sb.String()
}

func (m *Model) renderFileEdits() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("File Edits (%d)", len(m.edits))))
	if len(m.edits) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for _, e := range m.edits {
		sb.WriteString("  " + editTagStyle.Render(e.edit.Text) + "\n")
		sb.WriteString(dimStyle.Render(fmt.Sprintf("      after %s %s (line %d)",
			e.request.Tag, firstLine(e.request.Text), e.edit.Line)) + "\n")
	}
	return sb.String()
}

func (m *Model) renderTimeline() string {
	entries := timeline(m.trace, m.sortAsc)
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Timeline (%d)", len(entries))))
	if len(entries) == 0 {
		sb.WriteString(dimStyle.Render("  (no timestamped requests)") + "\n")
		return sb.String()
	}
	for _, e := range entries {
		sb.WriteString("  " + timeStyle.Render(e.Timestamp) + "  " +
			tagStyle(e.Tag, m.reg).Render(fmt.Sprintf("%-3s", e.Tag)) + "  " + firstLine(e.Text) + "\n")
	}
	return sb.String()
}

// ── Shared helpers ────────────────

type tagCount struct {
	tag   string
	count int
}

type stats struct {
	requests, responses int
	first, last         string
	tags                []tagCount
}

func summarize(t *replay.Trace, exchanges []replay.Exchange) stats {
	var st stats
	for _, ex := range exchanges {
		if ex.Request.Tag != "" {
			st.requests++
		}
		st.responses += len(ex.Responses)
	}
	for _, e := range t.Entries {
		if e.Timestamp == "" {
			continue
		}
		if st.first == "" || e.Timestamp < st.first {
			st.first = e.Timestamp
		}
		if e.Timestamp > st.last {
			st.last = e.Timestamp
		}
	}
	for tag, n := range t.CountByTag() {
		st.tags = append(st.tags, tagCount{tag: tag, count: n})
	}
	sort.Slice(st.tags, func(i, j int) bool {
		if st.tags[i].count != st.tags[j].count {
			return st.tags[i].count > st.tags[j].count
		}
		return st.tags[i].tag < st.tags[j].tag
	})
	return st
}

func collectEdits(exchanges []replay.Exchange, reg *traffic.Registry) []editRow {
	var rows []editRow
	for _, ex := range exchanges {
		for _, r := range ex.Responses {
			if isEditTag(r.Tag, reg) {
				rows = append(rows, editRow{request: ex.Request, edit: r})
			}
		}
	}
	return rows
}

// timeline returns the timestamped entries ordered by stamp. Stamps share one
// fixed-width layout, so string order is time order.
func timeline(t *replay.Trace, asc bool) []replay.Entry {
	var entries []replay.Entry
	for _, e := range t.Entries {
		if e.Timestamp != "" {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if asc {
			return entries[i].Timestamp < entries[j].Timestamp
		}
		return entries[i].Timestamp > entries[j].Timestamp
	})
	return entries
}

func isEditTag(tag string, reg *traffic.Registry) bool {
	if reg == nil {
		return tag == "FIL"
	}
	b, ok := reg.ByTag(tag)
	return ok && b.Kind == traffic.KindFileEdit
}

func kindLabel(tag string, reg *traffic.Registry) string {
	if reg == nil {
		return ""
	}
	b, ok := reg.ByTag(tag)
	if !ok {
		return "unknown"
	}
	return b.Kind.String()
}

func tagStyle(tag string, reg *traffic.Registry) lipgloss.Style {
	if isEditTag(tag, reg) {
		return editTagStyle
	}
	if reg != nil {
		if b, ok := reg.ByTag(tag); ok && b.ResponseOnly {
			return responseTagStyle
		}
	}
	return requestTagStyle
}

func firstLine(s string) string {
	line, _, more := strings.Cut(s, "\n")
	if more {
		line += " …"
	}
	return line
}

func indentTail(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}

// Run starts the viewer for trace in the alternate screen.
func Run(trace *replay.Trace, reg *traffic.Registry, filename string) error {
	p := tea.NewProgram(New(trace, reg, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
