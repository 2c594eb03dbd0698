package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"

	"github.com/fakeyudi/replaymock/internal/fileedit"
	"github.com/fakeyudi/replaymock/internal/logging"
	"github.com/fakeyudi/replaymock/internal/metrics"
	"github.com/fakeyudi/replaymock/internal/record"
	"github.com/fakeyudi/replaymock/internal/replay"
	"github.com/fakeyudi/replaymock/internal/traffic"
)

// Options configures a Server.
type Options struct {
	Mode       replay.Mode
	RecordFile string
	ReplayFile string
	// RecordEditDir receives copies of files edited while recording.
	RecordEditDir string
	// ReplayEditDir holds the copies restored while replaying.
	ReplayEditDir string

	// Multithreaded runs one worker per request. Otherwise requests are
	// handled one at a time on the accept loop.
	Multithreaded    bool
	RecordTimestamps bool
	// Verify compares the recording with the replayed trace at shutdown.
	Verify bool

	Exclude      []traffic.Kind
	IgnoreEdits  []string
	Command      traffic.CommandOptions
	ClientServer traffic.ClientServerOptions
	// Kinds are registered after the built-in kinds.
	Kinds []traffic.Behavior

	Fs      afero.Fs
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Server accepts one request per connection, answers it live or from the
// replayed trace and records the interaction in arrival order.
type Server struct {
	opts    Options
	session *Session
	logger  *logging.Logger
	metrics *metrics.Metrics

	reg     *traffic.Registry
	matcher *replay.Matcher
	tracker *fileedit.Tracker
	edits   *fileedit.Store
	seq     *record.Sequencer
	file    *record.File

	listener net.Listener
	workers  conc.WaitGroup

	mu      sync.Mutex
	nextSeq uint64
	closing bool
	done    chan struct{}
	stop    sync.Once
}

// NewServer prepares a server and creates its record file. A replay file that
// does not exist leaves the server recording only.
func NewServer(opts Options, logger *logging.Logger) (*Server, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	edits := fileedit.NewStore(opts.Fs, opts.RecordEditDir, opts.ReplayEditDir)
	reg := traffic.NewDefaultRegistry(traffic.Options{
		Command:      opts.Command,
		ClientServer: opts.ClientServer,
		Edits:        edits,
	})
	for _, b := range opts.Kinds {
		if err := reg.Register(b); err != nil {
			return nil, err
		}
	}

	var trace *replay.Trace
	if opts.Mode != replay.ModeRecord && opts.ReplayFile != "" {
		t, err := replay.ReadTrace(opts.ReplayFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logger.Warn("replay file not found, recording only", "replay_file", opts.ReplayFile)
			opts.Mode = replay.ModeRecord
		case err != nil:
			return nil, err
		default:
			trace = t
		}
	} else if opts.Mode != replay.ModeRecord {
		opts.Mode = replay.ModeRecord
	}

	s := &Server{
		opts: opts,
		session: &Session{
			ID:         uuid.NewString(),
			Mode:       opts.Mode.String(),
			PID:        os.Getpid(),
			RecordFile: opts.RecordFile,
			ReplayFile: opts.ReplayFile,
			StartTime:  opts.Now(),
		},
		metrics: opts.Metrics,
		reg:     reg,
		matcher: replay.NewMatcher(trace, reg, opts.Mode, opts.Exclude),
		tracker: fileedit.NewTracker(opts.Fs, opts.IgnoreEdits),
		edits:   edits,
		nextSeq: 1,
		done:    make(chan struct{}),
	}
	s.logger = logger.WithSession(s.session.ID)

	var sink io.Writer = io.Discard
	if opts.RecordFile != "" {
		f, err := record.CreateFile(opts.RecordFile)
		if err != nil {
			return nil, err
		}
		s.file = f
		sink = f
	}
	s.seq = record.NewSequencer(sink)
	return s, nil
}

// Session returns the description of this server run.
func (s *Server) Session() *Session {
	return s.session
}

// Registry returns the kinds this server understands.
func (s *Server) Registry() *traffic.Registry {
	return s.reg
}

// Listen binds the server to addr. Port 0 picks a free port.
func (s *Server) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = l
	s.session.Address = l.Addr().String()
	return nil
}

// Addr returns the bound address as host:port.
func (s *Server) Addr() string {
	return s.session.Address
}

// Serve accepts requests until Shutdown, a TERMINATE_SERVER message or the
// cancellation of ctx. Requests already accepted run to completion before
// Serve closes the record file and returns.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	s.logger.Info("server started", "addr", s.Addr(), "mode", s.session.Mode,
		"record_file", s.opts.RecordFile, "replay_file", s.opts.ReplayFile)

	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-s.done:
		}
	}()
	work := context.WithoutCancel(ctx)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosing() {
				break
			}
			s.logger.Error("accept failed", "error", err)
			s.Shutdown()
			break
		}
		seq, ok := s.assign()
		received := s.opts.Now()
		if !ok {
			conn.Close()
			s.seq.RequestComplete(seq)
			continue
		}
		if s.opts.Multithreaded {
			s.workers.Go(func() { s.handle(work, conn, seq, received) })
		} else {
			s.handle(work, conn, seq, received)
		}
	}

	s.workers.Wait()
	return s.finish()
}

// Shutdown stops accepting requests. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.stop.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		if s.listener != nil {
			s.listener.Close()
		}
		close(s.done)
	})
}

// assign hands out the next arrival sequence. It reports false once the
// server is closing; the sequence is still consumed.
func (s *Server) assign() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextSeq
	s.nextSeq++
	return seq, !s.closing
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// handle serves one connection. received is the arrival time taken when the
// sequence was assigned; it stamps the recorded request.
func (s *Server) handle(ctx context.Context, conn net.Conn, seq uint64, received time.Time) {
	defer conn.Close()

	data, err := io.ReadAll(conn)
	if err != nil {
		s.logger.Warn("reading request failed", "seq", seq, "error", err)
		s.seq.RequestComplete(seq)
		return
	}
	text := string(data)
	if strings.HasPrefix(text, traffic.TerminateMessage) {
		s.logger.Info("terminate requested", "seq", seq)
		s.seq.RequestComplete(seq)
		s.Shutdown()
		return
	}

	// Only reachable on a registry without an empty-prefix kind; the default
	// client kind accepts any text.
	u, err := s.reg.Decode(text)
	if err != nil {
		s.metrics.ProtocolErrors.Inc()
		s.logger.Warn("undecodable request", "seq", seq, "error", err)
		_ = traffic.WriteFrame(conn, traffic.ErrorPrefix+":"+err.Error())
		s.seq.RequestComplete(seq)
		return
	}
	u.Sequence = seq
	s.process(ctx, u, conn, received)
	s.metrics.RequestDuration.WithLabelValues(u.Kind.String()).Observe(s.opts.Now().Sub(received).Seconds())
}

// process handles one top-level request and completes its sequence.
func (s *Server) process(ctx context.Context, u traffic.Unit, w io.Writer, received time.Time) {
	log := s.logger.WithRequest(u.Sequence, u.Kind.String())
	log.Debug("request received", "payload", u.Payload)

	if !s.matcher.IsActiveFor(u) {
		// Edits that landed since the last request, typically from an
		// asynchronous command, are attributed before the new request runs.
		for _, e := range s.tracker.LatestEdits() {
			s.respond(ctx, s.recordedEdit(e, u.Sequence), w, true, log)
		}
	}
	var stamp time.Time
	if s.opts.RecordTimestamps {
		stamp = received
	}
	s.processUnit(ctx, u, w, stamp, log)

	s.seq.RequestComplete(u.Sequence)
	s.metrics.PendingRecords.Set(float64(len(s.seq.Pending())))
	if !u.IsAsynchronous {
		s.tracker.Reset()
	}
	log.Debug("request complete")
}

// processUnit answers u, records it with its responses and processes any units
// the responses chain to under the same sequence. A non-zero stamp is recorded
// as a --TIM: line before the request.
func (s *Server) processUnit(ctx context.Context, u traffic.Unit, w io.Writer, stamp time.Time, log *logging.Logger) {
	hasEdits := s.tracker.AddRoots(s.reg.FileEdits(u), !s.matcher.IsActiveForAll())
	responses := s.responses(ctx, u, hasEdits, log)

	shouldRecord := !s.reg.EnquiryOnly(u, responses)
	if shouldRecord {
		if !stamp.IsZero() {
			s.seq.Record(record.FormatTimestamp(stamp), u.Sequence)
		}
		s.seq.Record(record.FormatEntry(u.IsResponse, s.reg.Tag(u.Kind), s.reg.RecordText(u)), u.Sequence)
	} else {
		log.Debug("enquiry only, not recorded")
	}
	for _, r := range responses {
		r.Sequence = u.Sequence
		s.respond(ctx, r, w, shouldRecord, log)
	}
}

// respond records a response, hands it to its destination and processes
// whatever it chains to.
func (s *Server) respond(ctx context.Context, r traffic.Unit, w io.Writer, shouldRecord bool, log *logging.Logger) {
	if shouldRecord {
		s.seq.Record(record.FormatEntry(true, s.reg.Tag(r.Kind), s.reg.RecordText(r)), r.Sequence)
	}
	chained, err := s.reg.Deliver(ctx, r, w)
	if err != nil {
		log.Warn("delivering response failed", "response_kind", r.Kind.String(), "error", err)
	}
	for _, c := range chained {
		c.Sequence = r.Sequence
		s.processUnit(ctx, c, w, time.Time{}, log)
	}
}

func (s *Server) responses(ctx context.Context, u traffic.Unit, hasEdits bool, log *logging.Logger) []traffic.Unit {
	if s.matcher.IsActiveFor(u) {
		s.metrics.Requests.WithLabelValues(u.Kind.String(), "replay").Inc()
		stored, found := s.matcher.ReadResponses(u, nil)
		if !found {
			s.metrics.ReplayMisses.WithLabelValues(u.Kind.String()).Inc()
			log.Warn("no unread request in the replay trace matches", "text", s.reg.RecordText(u))
			return nil
		}
		claimed := make(map[string]bool)
		var out []traffic.Unit
		for _, r := range stored {
			if r.Kind == traffic.KindFileEdit {
				if e, ok := s.replayedEdit(r.Text, claimed, log); ok {
					out = append(out, e)
				}
				continue
			}
			out = append(out, s.reg.NewUnit(r.Kind, r.Text))
		}
		return out
	}

	s.metrics.Requests.WithLabelValues(u.Kind.String(), "live").Inc()
	live, err := s.reg.Forward(ctx, u)
	if err != nil {
		s.metrics.ForwardingErrors.WithLabelValues(u.Kind.String()).Inc()
		log.Warn("forwarding failed", "error", err)
	}
	if !hasEdits {
		return live
	}
	var out []traffic.Unit
	for _, e := range s.tracker.LatestEdits() {
		out = append(out, s.recordedEdit(e, u.Sequence))
	}
	return append(out, live...)
}

func (s *Server) recordedEdit(e fileedit.Edit, seq uint64) traffic.Unit {
	s.metrics.FileEdits.Inc()
	u := s.reg.NewUnit(traffic.KindFileEdit, s.edits.StoredName(e.Root))
	u.Sequence = seq
	u.Edit = &traffic.EditTarget{Root: e.Root, Changed: e.Changed}
	return u
}

// replayedEdit maps a stored edit named in the trace onto a live path. Edits
// with no stored copy or no live candidate are dropped.
func (s *Server) replayedEdit(name string, claimed map[string]bool, log *logging.Logger) (traffic.Unit, bool) {
	name = strings.TrimSpace(name)
	stored, fileType, ok := s.edits.Lookup(name)
	if !ok {
		log.Debug("no stored copy for replayed edit", "name", name)
		return traffic.Unit{}, false
	}
	target, err := s.tracker.Correlate(name, fileType, claimed)
	if err != nil {
		s.metrics.CorrelationMisses.Inc()
		log.Info("replayed edit dropped", "name", name, "error", err)
		return traffic.Unit{}, false
	}
	log.Debug("restoring edit", "name", name, "target", target, "stored", stored)
	s.metrics.FileEdits.Inc()
	u := s.reg.NewUnit(traffic.KindFileEdit, name)
	u.Edit = &traffic.EditTarget{Root: target, Stored: stored, Restore: true}
	return u, true
}

// finish flushes the recording and reports anything left over.
func (s *Server) finish() error {
	var errs []error
	if err := s.seq.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing record file: %w", err))
		}
	}

	if unread := s.matcher.Unread(); len(unread) > 0 {
		s.logger.Warn("replay trace not fully used", "unread", len(unread), "misses", s.matcher.Misses())
		for _, ex := range unread {
			s.logger.Debug("unread request", "tag", ex.Request.Tag, "text", ex.Request.Text, "line", ex.Request.Line)
		}
	}

	if s.opts.Verify && s.opts.Mode == replay.ModeReplay && s.opts.RecordFile != "" && s.opts.ReplayFile != "" {
		if err := replay.Verify(s.opts.RecordFile, s.opts.ReplayFile); err != nil {
			errs = append(errs, err)
		}
	}
	s.logger.Info("server stopped")
	return errors.Join(errs...)
}
