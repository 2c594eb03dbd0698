package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/replaymock/internal/session"
	"github.com/fakeyudi/replaymock/internal/traffic"
)

var stopAddr string

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the running server to finish and write its recording",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := serverAddress(stopAddr)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(commandContext(cmd), 10*time.Second)
		defer cancel()
		if _, err := traffic.Send(ctx, addr, traffic.TerminateMessage); err != nil {
			return fmt.Errorf("stopping server: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Server at %s stopped.\n", addr)
		return nil
	},
}

// serverAddress returns flagAddr when set, otherwise the address of the server
// recorded in the state file.
func serverAddress(flagAddr string) (string, error) {
	if flagAddr != "" {
		return flagAddr, nil
	}
	store, err := session.NewStateStore()
	if err != nil {
		return "", err
	}
	s, err := store.Load()
	if err != nil {
		if errors.Is(err, session.ErrNoServer) {
			return "", fmt.Errorf("no running server (start one with \"replaymock serve\" or pass --addr)")
		}
		return "", err
	}
	return s.Address, nil
}

func init() {
	stopCmd.Flags().StringVar(&stopAddr, "addr", "", "server address (default: the running server)")
	rootCmd.AddCommand(stopCmd)
}
