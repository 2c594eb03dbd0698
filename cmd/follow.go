package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/replaymock/internal/follow"
)

var followFromStart bool

var followCmd = &cobra.Command{
	Use:   "follow <record-file>",
	Short: "Print lines as a running server appends them to its record file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
		defer stop()
		out := cmd.OutOrStdout()
		return follow.Follow(ctx, args[0], followFromStart, func(line string) {
			fmt.Fprintln(out, line)
		})
	},
}

func init() {
	followCmd.Flags().BoolVar(&followFromStart, "from-start", false, "print the existing content first")
	rootCmd.AddCommand(followCmd)
}
