package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newConnectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect [host:port]",
		Short: "Open the dashboard against a running tilawa server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := resolveServerTarget(opts)
			if len(args) > 0 {
				target = args[0]
			}
			if target == "" {
				port := readActivePort()
				if port <= 0 {
					return errors.New("no running tilawa server found locally; usage: tilawa connect <host:port>")
				}
				target = fmt.Sprintf("127.0.0.1:%d", port)
			}

			baseURL, err := resolveConnectBaseURL(target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Connecting to %s...\n", baseURL)

			b := remoteBackend(baseURL)
			defer b.Close()
			if _, err := b.Downloads.List(); err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			return runDashboard(cmd.Context(), b)
		},
	}
}
