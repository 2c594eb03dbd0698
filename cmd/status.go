package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/replaymock/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewStateStore()
		if err != nil {
			return err
		}
		s, err := store.Load()
		if err != nil {
			if errors.Is(err, session.ErrNoServer) {
				fmt.Fprintln(cmd.OutOrStdout(), "no running server")
				return nil
			}
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Session: %s\n", s.ID)
		fmt.Fprintf(out, "Mode: %s\n", s.Mode)
		fmt.Fprintf(out, "Address: %s\n", s.Address)
		fmt.Fprintf(out, "PID: %d\n", s.PID)
		if s.RecordFile != "" {
			fmt.Fprintf(out, "Record file: %s\n", s.RecordFile)
		}
		if s.ReplayFile != "" {
			fmt.Fprintf(out, "Replay file: %s\n", s.ReplayFile)
		}
		fmt.Fprintf(out, "Started: %s\n", s.StartTime.Format(time.RFC3339))
		fmt.Fprintf(out, "Uptime: %s\n", time.Since(s.StartTime).Round(time.Second))
		if !serverAlive(s.Address) {
			fmt.Fprintln(out, "Warning: server is not answering; the state file may be stale")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
