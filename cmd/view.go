package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/replaymock/internal/replay"
	"github.com/fakeyudi/replaymock/internal/traffic"
	"github.com/fakeyudi/replaymock/internal/tui"
)

var plainOutput bool

var viewCmd = &cobra.Command{
	Use:   "view <record-file>",
	Short: "Browse a recorded trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		trace, err := replay.ReadTrace(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("file not found: %s", path)
			}
			return err
		}
		reg := traffic.NewDefaultRegistry(traffic.Options{})

		if plainOutput || !term.IsTerminal(os.Stdout.Fd()) {
			return tui.WritePlain(cmd.OutOrStdout(), trace, reg, path)
		}
		return tui.Run(trace, reg, path)
	},
}

func init() {
	viewCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	rootCmd.AddCommand(viewCmd)
}
