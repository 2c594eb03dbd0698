package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/replaymock/internal/traffic"
)

var sendFlags struct {
	addr    string
	timeout time.Duration
}

var sendCmd = &cobra.Command{
	Use:   "send <message>...",
	Short: "Send one wire message to the server and print the frames it returns",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := serverAddress(sendFlags.addr)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(commandContext(cmd), sendFlags.timeout)
		defer cancel()
		frames, err := traffic.Send(ctx, addr, strings.Join(args, " "))
		if err != nil {
			return err
		}
		for _, frame := range frames {
			if traffic.IsErrorFrame(frame) {
				return fmt.Errorf("server rejected message: %s", strings.TrimPrefix(frame, traffic.ErrorPrefix+":"))
			}
			fmt.Fprintln(cmd.OutOrStdout(), frame)
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendFlags.addr, "addr", "", "server address (default: the running server)")
	sendCmd.Flags().DurationVar(&sendFlags.timeout, "timeout", time.Minute, "give up waiting for the reply after this long")
	rootCmd.AddCommand(sendCmd)
}
