// Package merge combines independently captured record files into a set of
// files whose two-digit prefixes give the order to replay them in.
package merge

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fakeyudi/replaymock/internal/record"
)

// ParseFunc extracts the client and server identity from a record file name.
// Empty strings mean unknown.
type ParseFunc func(name string) (client, server string)

// Options configures AddPrefixByTimestamp.
type Options struct {
	// OutDir receives the prefixed files. Empty means the current directory.
	OutDir string
	// Sep follows the two-digit prefix. Default "-".
	Sep string
	// Ext replaces the extension of every output file when set.
	Ext string
	// Ignored prefix numbers are skipped.
	Ignored map[int]bool
	// Parse enables client/server grouping.
	Parse ParseFunc
}

// RegexParser builds a ParseFunc from a regular expression with named groups
// "client" and "server", matched against the base name of each file.
func RegexParser(expr string) (ParseFunc, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling name pattern: %w", err)
	}
	ci, si := re.SubexpIndex("client"), re.SubexpIndex("server")
	if ci < 0 || si < 0 {
		return nil, errors.New("name pattern needs named groups \"client\" and \"server\"")
	}
	return func(name string) (string, string) {
		m := re.FindStringSubmatch(filepath.Base(name))
		if m == nil {
			return "", ""
		}
		return m[ci], m[si]
	}, nil
}

// chunk is the text of one request and its responses from one source file.
type chunk struct {
	file string
	text string
}

// AddPrefixByTimestamp splits every file into request blocks, orders the
// blocks by the --TIM: line pinning each one and writes them to numbered
// output files. Blocks without a timestamp sort first, in reading order. It
// returns the output files in the order they were created.
func AddPrefixByTimestamp(files []string, opts Options) ([]string, error) {
	if opts.Sep == "" {
		opts.Sep = "-"
	}
	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	byStamp, err := readChunks(files)
	if err != nil {
		return nil, err
	}
	stamps := make([]string, 0, len(byStamp))
	for ts := range byStamp {
		stamps = append(stamps, ts)
	}
	sort.Strings(stamps)

	w := &writer{opts: opts, ctx: &prefixContext{parse: opts.Parse}, created: map[string]bool{}}
	for _, ts := range stamps {
		for _, c := range byStamp[ts] {
			if err := w.write(c); err != nil {
				return nil, err
			}
		}
	}
	return w.outputs, nil
}

// readChunks groups the blocks of all files by timestamp. Blocks of one file
// sharing a timestamp are concatenated.
func readChunks(files []string) (map[string][]chunk, error) {
	byStamp := make(map[string][]chunk)
	synthetic := 0
	add := func(ts, file, text string) {
		if text == "" {
			return
		}
		if ts == "" {
			synthetic++
			ts = syntheticStamp(synthetic)
		}
		group := byStamp[ts]
		for i := range group {
			if group[i].file == file {
				group[i].text += text
				return
			}
		}
		byStamp[ts] = append(group, chunk{file: file, text: text})
	}

	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("reading record file: %w", err)
		}
		var (
			text      strings.Builder
			stamp     string
			nextStamp string
		)
		br := bufio.NewReader(f)
		for {
			line, err := br.ReadString('\n')
			switch {
			case line == "":
			case strings.HasPrefix(line, record.RequestMarker):
				add(stamp, file, text.String())
				text.Reset()
				stamp, nextStamp = nextStamp, ""
				text.WriteString(line)
			case strings.HasPrefix(line, record.TimestampMarker):
				nextStamp = strings.TrimSpace(strings.TrimPrefix(line, record.TimestampMarker))
			default:
				text.WriteString(line)
			}
			if err != nil {
				break
			}
		}
		f.Close()
		add(stamp, file, text.String())
	}
	return byStamp, nil
}

// syntheticStamp returns the i-th placeholder timestamp. Placeholders count
// days up from year 1 so they sort before any real timestamp.
func syntheticStamp(i int) string {
	return time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i-1).Format("2006-01-02T15:04:05")
}

type writer struct {
	opts    Options
	ctx     *prefixContext
	index   int
	outputs []string
	created map[string]bool
}

func (w *writer) write(c chunk) error {
	out, ok := w.ctx.get(c.file)
	if !ok {
		out = w.newName(c.file)
		if out == c.file {
			if err := os.Rename(c.file, c.file+".orig"); err != nil {
				return fmt.Errorf("backing up %s: %w", c.file, err)
			}
		}
		w.outputs = append(w.outputs, out)
		renames, err := w.ctx.add(c.file, out)
		if err != nil {
			return err
		}
		w.applyRenames(renames)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if !w.created[out] {
		flags |= os.O_TRUNC
		w.created[out] = true
	}
	f, err := os.OpenFile(out, flags, 0o644)
	if err != nil {
		return fmt.Errorf("writing merged file: %w", err)
	}
	if _, err := f.WriteString(c.text); err != nil {
		f.Close()
		return fmt.Errorf("writing merged file: %w", err)
	}
	return f.Close()
}

var numberedName = regexp.MustCompile(`^[0-9]{2}-`)

func (w *writer) newName(file string) string {
	w.index++
	for w.opts.Ignored[w.index] {
		w.index++
	}
	base := filepath.Base(file)
	if numberedName.MatchString(base) {
		base = base[3:]
	}
	name := fmt.Sprintf("%02d%s%s", w.index, w.opts.Sep, base)
	if w.opts.Ext != "" {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + "." + w.opts.Ext
	}
	return filepath.Join(w.opts.OutDir, name)
}

func (w *writer) applyRenames(renames map[string]string) {
	if len(renames) == 0 {
		return
	}
	for i, out := range w.outputs {
		if to, ok := renames[out]; ok {
			w.outputs[i] = to
		}
	}
	created := make(map[string]bool, len(w.created))
	for out := range w.created {
		if to, ok := renames[out]; ok {
			out = to
		}
		created[out] = true
	}
	w.created = created
}

type member struct {
	file, out      string
	client, server string
}

// prefixContext tracks the source files whose output file is still open for
// appending, and keeps blocks of one client numbered by name.
type prefixContext struct {
	parse   ParseFunc
	members []member
}

func (p *prefixContext) get(file string) (string, bool) {
	for _, m := range p.members {
		if m.file == file {
			return m.out, true
		}
	}
	return "", false
}

// add registers a new output file and returns any renames it triggered.
func (p *prefixContext) add(file, out string) (map[string]string, error) {
	var (
		client, server string
		renames        map[string]string
		err            error
	)
	if p.parse != nil {
		client, server = p.parse(file)
		if n := len(p.members); n > 0 {
			last := p.members[n-1]
			switch {
			case client == last.client:
				p.members = p.keep(func(m member) bool { return m.client == client })
			case server == last.server:
				removed := p.remove(func(m member) bool { return m.server != server })
				renames, err = sortClients(removed)
			default:
				if p.allSameServer() {
					renames, err = sortClients(p.members)
				}
				p.members = nil
			}
		}
	}
	p.members = append(p.members, member{file: file, out: out, client: client, server: server})
	return renames, err
}

func (p *prefixContext) keep(f func(member) bool) []member {
	var kept []member
	for _, m := range p.members {
		if f(m) {
			kept = append(kept, m)
		}
	}
	return kept
}

func (p *prefixContext) remove(f func(member) bool) []member {
	var removed, kept []member
	for _, m := range p.members {
		if f(m) {
			removed = append(removed, m)
		} else {
			kept = append(kept, m)
		}
	}
	p.members = kept
	return removed
}

func (p *prefixContext) allSameServer() bool {
	if len(p.members) == 0 {
		return false
	}
	for _, m := range p.members[1:] {
		if m.server != p.members[0].server {
			return false
		}
	}
	return true
}

// sortClients renumbers a block of output files so that their numbers follow
// the order of their names, starting from the first file's number.
func sortClients(block []member) (map[string]string, error) {
	if len(block) < 2 {
		return nil, nil
	}
	base, err := strconv.Atoi(filepath.Base(block[0].out)[:2])
	if err != nil {
		return nil, fmt.Errorf("renumbering %s: %w", block[0].out, err)
	}
	tails := make([]string, len(block))
	for i, m := range block {
		tails[i] = filepath.Base(m.out)[2:]
	}
	sorted := append([]string(nil), tails...)
	sort.Strings(sorted)

	renames := make(map[string]string)
	for i, m := range block {
		index := sort.SearchStrings(sorted, tails[i]) + base
		to := filepath.Join(filepath.Dir(m.out), fmt.Sprintf("%02d%s", index, tails[i]))
		if to != m.out {
			renames[m.out] = to
		}
	}
	// Move through temporary names so swapped numbers never clobber a file.
	for from := range renames {
		if err := os.Rename(from, from+".renumber"); err != nil {
			return nil, fmt.Errorf("renumbering %s: %w", from, err)
		}
	}
	for from, to := range renames {
		if err := os.Rename(from+".renumber", to); err != nil {
			return nil, fmt.Errorf("renumbering %s: %w", from, err)
		}
	}
	return renames, nil
}
