package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/replaymock/internal/traffic"
)

var execAddr string

var execCmd = &cobra.Command{
	Use:   "exec -- <program> [args...]",
	Short: "Run a command line through the server and reproduce its output and exit status",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := serverAddress(execAddr)
		if err != nil {
			return err
		}
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		reg := traffic.NewDefaultRegistry(traffic.Options{})
		request := reg.Encode(reg.NewUnit(traffic.KindCommand, traffic.CommandLine{Args: args, Dir: dir}.Payload()))

		frames, err := traffic.Send(commandContext(cmd), addr, request)
		if err != nil {
			return err
		}
		return replayCommandOutput(reg, frames, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// replayCommandOutput writes stdout and stderr frames to their streams and
// turns an exit status frame into an *exitError.
func replayCommandOutput(reg *traffic.Registry, frames []string, stdout, stderr io.Writer) error {
	code := 0
	for _, frame := range frames {
		if traffic.IsErrorFrame(frame) {
			return fmt.Errorf("server rejected command: %s", strings.TrimPrefix(frame, traffic.ErrorPrefix+":"))
		}
		u, err := reg.Decode(frame)
		if err != nil {
			return err
		}
		switch u.Kind {
		case traffic.KindStdout:
			io.WriteString(stdout, u.Payload)
		case traffic.KindStderr:
			io.WriteString(stderr, u.Payload)
		case traffic.KindExitCode:
			n, err := strconv.Atoi(strings.TrimSpace(u.Payload))
			if err != nil {
				return fmt.Errorf("bad exit status %q", u.Payload)
			}
			code = n
		}
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func init() {
	execCmd.Flags().StringVar(&execAddr, "addr", "", "server address (default: the running server)")
	rootCmd.AddCommand(execCmd)
}
