package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/replaymock/internal/replay"
	"github.com/fakeyudi/replaymock/internal/traffic"
)

var interceptsReplay string

var interceptsCmd = &cobra.Command{
	Use:   "intercepts [command]...",
	Short: "List the commands worth intercepting",
	Long: "intercepts prints the configured command intercepts, or the commands given as\n" +
		"arguments. With --replay only those that the trace can answer are kept.",
	RunE: func(cmd *cobra.Command, args []string) error {
		commands := args
		if len(commands) == 0 {
			commands = GetConfig().CommandLine.Intercepts
		}
		if interceptsReplay != "" {
			trace, err := replay.ReadTrace(interceptsReplay)
			if err != nil {
				return err
			}
			commands = replay.FilterIntercepts(commands, trace, traffic.NewDefaultRegistry(traffic.Options{}))
		}
		for _, c := range commands {
			fmt.Fprintln(cmd.OutOrStdout(), c)
		}
		return nil
	},
}

func init() {
	interceptsCmd.Flags().StringVar(&interceptsReplay, "replay", "", "keep only commands present in this trace")
	rootCmd.AddCommand(interceptsCmd)
}
