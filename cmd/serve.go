package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/replaymock/internal/metrics"
	"github.com/fakeyudi/replaymock/internal/replay"
	"github.com/fakeyudi/replaymock/internal/session"
	"github.com/fakeyudi/replaymock/internal/traffic"
)

var serveFlags struct {
	mode        string
	record      string
	replay      string
	recordEdits string
	replayEdits string
	addr        string
	verify      bool
	metricsAddr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the record/replay server until it is stopped",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewStateStore()
		if err != nil {
			return err
		}
		if s, err := store.Load(); err == nil {
			if serverAlive(s.Address) {
				return fmt.Errorf("server already running at %s (started at %s)", s.Address, s.StartTime.Format(time.RFC3339))
			}
		} else if !errors.Is(err, session.ErrNoServer) {
			return err
		}

		mode, err := replay.ParseMode(serveFlags.mode)
		if err != nil {
			return err
		}
		c := GetConfig()
		exclude, err := c.ExcludedKinds()
		if err != nil {
			return err
		}
		m := metrics.New()
		srv, err := session.NewServer(session.Options{
			Mode:             mode,
			RecordFile:       serveFlags.record,
			ReplayFile:       serveFlags.replay,
			RecordEditDir:    serveFlags.recordEdits,
			ReplayEditDir:    serveFlags.replayEdits,
			Multithreaded:    c.General.Multithreaded,
			RecordTimestamps: c.General.RecordTimestamps,
			Verify:           serveFlags.verify,
			Exclude:          exclude,
			IgnoreEdits:      c.FileEdits.Ignore,
			Command: traffic.CommandOptions{
				InterceptDir: c.CommandLine.InterceptDir,
				Asynchronous: c.CommandLine.Asynchronous,
				Enquiry:      c.CommandLine.Enquiry,
			},
			ClientServer: traffic.ClientServerOptions{
				Address:  c.General.ServerAddress,
				Protocol: c.General.ServerProtocol,
			},
			Metrics: m,
		}, GetLogger())
		if err != nil {
			return err
		}
		if err := srv.Listen(serveFlags.addr); err != nil {
			return err
		}
		if err := store.Save(srv.Session()); err != nil {
			return err
		}
		defer func() {
			if err := store.Delete(); err != nil {
				GetLogger().Warn("removing server state failed", "error", err)
			}
		}()

		if serveFlags.metricsAddr != "" {
			ms := &http.Server{Addr: serveFlags.metricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					GetLogger().Error("metrics server failed", "error", err)
				}
			}()
			defer ms.Close()
		}

		// The program under test reads the address from the first output line.
		fmt.Fprintln(cmd.OutOrStdout(), srv.Addr())

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Serve(ctx)
	},
}

// serverAlive reports whether something still accepts connections at addr.
func serverAlive(addr string) bool {
	if addr == "" {
		return false
	}
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// commandContext returns the command's context, or a background one when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.mode, "mode", replay.ModeRecord.String(), "record, replay or replay-old-record-new")
	f.StringVar(&serveFlags.record, "record", "", "record file written in arrival order")
	f.StringVar(&serveFlags.replay, "replay", "", "trace to answer requests from")
	f.StringVar(&serveFlags.recordEdits, "record-edits", "", "directory receiving copies of edited files")
	f.StringVar(&serveFlags.replayEdits, "replay-edits", "", "directory holding the edited files to restore")
	f.StringVar(&serveFlags.addr, "addr", "127.0.0.1:0", "listen address; port 0 picks a free port")
	f.BoolVar(&serveFlags.verify, "verify", false, "compare the recording with the replayed trace at shutdown")
	f.StringVar(&serveFlags.metricsAddr, "metrics-addr", "", "serve prometheus metrics at this address")
	rootCmd.AddCommand(serveCmd)
}
