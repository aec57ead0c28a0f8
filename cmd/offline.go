package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tilawa-app/tilawa/internal/offline"
)

func newOfflineCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offline",
		Short: "Show or remove what is available offline",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List saved surahs, recitations and translations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, func(ctx context.Context, b *backend, out io.Writer) error {
				m, err := b.Content.OfflineStatus(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(out, m)
				}
				printManifest(out, m)
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <surah>",
		Short: "Delete a surah's saved text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSurahArg(args[0])
			if err != nil {
				return err
			}
			return withBackend(cmd, opts, func(ctx context.Context, b *backend, out io.Writer) error {
				if err := b.Content.RemoveOffline(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed saved text for surah %d\n", id)
				return nil
			})
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all offline text and audio",
		Long:  "Remove all offline text and audio. Tracked downloads are removed with their files.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("this removes all offline data; pass --yes to confirm")
			}
			return withBackend(cmd, opts, func(ctx context.Context, b *backend, out io.Writer) error {
				if err := b.Downloads.ClearAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Offline data cleared.")
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm removal")

	cmd.AddCommand(status, remove, clearCmd)
	return cmd
}

func printManifest(w io.Writer, m offline.Manifest) {
	if len(m.Entries) == 0 && len(m.Media) == 0 {
		fmt.Fprintln(w, "Nothing saved offline.")
		return
	}
	fmt.Fprintf(w, "Total: %s", humanize.IBytes(uint64(max(m.TotalBytes, 0))))
	if !m.LastUpdated.IsZero() {
		fmt.Fprintf(w, " (updated %s)", humanize.Time(m.LastUpdated))
	}
	fmt.Fprintln(w)

	if len(m.Entries) > 0 {
		fmt.Fprintf(w, "Text: %d surah(s):", len(m.Entries))
		for _, id := range m.Entries {
			fmt.Fprintf(w, " %d", id)
		}
		fmt.Fprintln(w)
	}
	if len(m.TranslationsAvailable) > 0 {
		var eds []string
		for ed, ok := range m.TranslationsAvailable {
			if ok {
				eds = append(eds, ed)
			}
		}
		slices.Sort(eds)
		fmt.Fprintf(w, "Translations: %v\n", eds)
	}
	if len(m.Media) > 0 {
		ids := make([]int, 0, len(m.Media))
		for id := range m.Media {
			ids = append(ids, id)
		}
		slices.Sort(ids)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SURAH\tRECITER\tFILES\tSIZE\tPATH")
		for _, id := range ids {
			rec := m.Media[id]
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", id, rec.VariantID, len(rec.Files),
				humanize.IBytes(uint64(max(rec.SizeBytes, 0))), rec.FilePath)
		}
		_ = tw.Flush()
	}
}

func newStorageCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "storage",
		Short: "Show offline storage use against the quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, func(ctx context.Context, b *backend, out io.Writer) error {
				u, err := b.Content.StorageUsage(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(out, u)
				}
				fmt.Fprintf(out, "Used:  %s of %s (%.1f%%)\n",
					humanize.IBytes(uint64(max(u.UsedBytes, 0))),
					humanize.IBytes(uint64(max(u.QuotaBytes, 0))),
					u.PercentUsed)
				if u.ManifestBytes != u.UsedBytes {
					fmt.Fprintf(out, "Recorded: %s\n", humanize.IBytes(uint64(max(u.ManifestBytes, 0))))
				}
				return nil
			})
		},
	}
}

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the response cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cached entry count and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, func(ctx context.Context, b *backend, out io.Writer) error {
				st, err := b.Content.CacheStats(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(out, st)
				}
				fmt.Fprintf(out, "Entries: %d (%d in memory)\nSize:    %s\n",
					st.Entries, st.HotLen, humanize.IBytes(uint64(max(st.SizeBytes, 0))))
				return nil
			})
		},
	})
	return cmd
}
