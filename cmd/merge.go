package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/replaymock/internal/merge"
)

var mergeFlags struct {
	out    string
	sep    string
	ext    string
	ignore []string
	parse  string
}

var mergeCmd = &cobra.Command{
	Use:   "merge <record-file>...",
	Short: "Interleave record files by timestamp into numbered files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := merge.Options{
			OutDir:  mergeFlags.out,
			Sep:     mergeFlags.sep,
			Ext:     mergeFlags.ext,
			Ignored: make(map[int]bool, len(mergeFlags.ignore)),
		}
		for _, s := range mergeFlags.ignore {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > 99 {
				return fmt.Errorf("--ignore takes prefix numbers from 1 to 99, got %q", s)
			}
			opts.Ignored[n] = true
		}
		if mergeFlags.parse != "" {
			parse, err := merge.RegexParser(mergeFlags.parse)
			if err != nil {
				return err
			}
			opts.Parse = parse
		}

		outputs, err := merge.AddPrefixByTimestamp(args, opts)
		if err != nil {
			return err
		}
		GetLogger().Info("merged record files", "inputs", len(args), "outputs", len(outputs))
		for _, out := range outputs {
			fmt.Fprintln(cmd.OutOrStdout(), out)
		}
		return nil
	},
}

func init() {
	f := mergeCmd.Flags()
	f.StringVar(&mergeFlags.out, "out", "", "directory for the numbered files (default: current directory)")
	f.StringVar(&mergeFlags.sep, "sep", "-", "separator after the two-digit prefix")
	f.StringVar(&mergeFlags.ext, "ext", "", "replace the extension of every output file")
	f.StringSliceVar(&mergeFlags.ignore, "ignore", nil, "prefix numbers to skip")
	f.StringVar(&mergeFlags.parse, "parse", "", "regexp with named groups client and server matched against file names")
	rootCmd.AddCommand(mergeCmd)
}
