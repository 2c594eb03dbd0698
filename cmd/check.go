package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/replaymock/internal/replay"
)

var checkCmd = &cobra.Command{
	Use:   "check <recording> <trace>",
	Short: "Verify that a recording made during replay matches the replayed trace",
	Long: "check compares a fresh recording with the trace it replayed. A match removes\n" +
		"the recording. A mismatch keeps it next to the trace as <trace>.tmp.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := replay.Verify(args[0], args[1])
		var mismatch *replay.MismatchError
		if errors.As(err, &mismatch) {
			GetLogger().Warn("replay verification failed", "expected", mismatch.Expected, "actual", mismatch.Actual)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s matches %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
