package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tilawa-app/tilawa/internal/core"
	"github.com/tilawa-app/tilawa/internal/download"
)

func newDownloadsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "downloads",
		Aliases: []string{"ls"},
		Short:   "List and manage tracked downloads",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listDownloads(cmd, opts)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tracked downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listDownloads(cmd, opts)
		},
	}

	var noWait bool
	retry := &cobra.Command{
		Use:   "retry <id>",
		Short: "Retry a failed download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, func(ctx context.Context, b *backend, out io.Writer) error {
				if noWait && b.Remote() {
					it, err := b.Downloads.Retry(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Queued: %s [%s]\n", it.DisplayName, it.ID)
					return nil
				}
				log := out
				if opts.jsonOut {
					log = io.Discard
				}
				it, err := retryAndFollow(ctx, b.Downloads, args[0], log)
				if opts.jsonOut && it.ID != "" {
					if jerr := printJSON(out, it); jerr != nil {
						return jerr
					}
				}
				return err
			})
		},
	}
	retry.Flags().BoolVarP(&noWait, "detach", "d", false, "Return once the retry is queued")

	cancel := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Stop a queued or running download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, func(ctx context.Context, b *backend, out io.Writer) error {
				if err := b.Downloads.Cancel(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Canceled %s\n", args[0])
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a download and its files",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, func(ctx context.Context, b *backend, out io.Writer) error {
				if err := b.Downloads.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted %s\n", args[0])
				return nil
			})
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every download and all offline data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("this removes every download and all saved text; pass --yes to confirm")
			}
			return withBackend(cmd, opts, func(ctx context.Context, b *backend, out io.Writer) error {
				if err := b.Downloads.ClearAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Cleared all downloads and offline data.")
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm removal")

	cmd.AddCommand(list, retry, cancel, del, clearCmd)
	return cmd
}

// withBackend opens the backend for the duration of fn.
func withBackend(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, b *backend, out io.Writer) error) error {
	b, err := openBackend(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(cmd.Context(), b, cmd.OutOrStdout())
}

func listDownloads(cmd *cobra.Command, opts *rootOptions) error {
	return withBackend(cmd, opts, func(ctx context.Context, b *backend, out io.Writer) error {
		items, err := b.Downloads.List()
		if err != nil {
			return err
		}
		if opts.jsonOut {
			if items == nil {
				items = []download.Item{}
			}
			return printJSON(out, items)
		}
		printDownloads(out, items)
		return nil
	})
}

func retryAndFollow(ctx context.Context, svc core.DownloadService, id string, w io.Writer) (download.Item, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, cleanup, err := svc.StreamEvents(ctx)
	if err != nil {
		return download.Item{}, fmt.Errorf("subscribe to events: %w", err)
	}
	defer cleanup()

	if _, err := svc.Retry(ctx, id); err != nil {
		return download.Item{}, err
	}
	return followDownload(ctx, svc, id, stream, w, false)
}
