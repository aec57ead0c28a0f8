package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tilawa-app/tilawa/internal/core"
	"github.com/tilawa-app/tilawa/internal/download"
	"github.com/tilawa-app/tilawa/internal/events"
)

// statusPollInterval backs up the event stream while following a download.
const statusPollInterval = time.Second

func newDownloadCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download recitations or surah text for offline use",
	}
	cmd.AddCommand(newDownloadSurahCmd(opts), newDownloadVerseCmd(opts), newDownloadTextCmd(opts))
	return cmd
}

type downloadFlags struct {
	reciter  string
	detach   bool
	progress bool
}

func (f *downloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.reciter, "reciter", "r", "", "Reciter edition (default from settings)")
	cmd.Flags().BoolVarP(&f.detach, "detach", "d", false, "Queue the download and return without waiting")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "Print a line for every progress update")
}

func newDownloadSurahCmd(opts *rootOptions) *cobra.Command {
	var f downloadFlags
	cmd := &cobra.Command{
		Use:   "surah <number>",
		Short: "Download the recitation of a whole surah",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSurahArg(args[0])
			if err != nil {
				return err
			}
			return runDownload(cmd, opts, f, core.AddRequest{Surah: id, Reciter: f.reciter})
		},
	}
	f.register(cmd)
	return cmd
}

func newDownloadVerseCmd(opts *rootOptions) *cobra.Command {
	var f downloadFlags
	cmd := &cobra.Command{
		Use:   "verse <surah:verse>",
		Short: "Download the recitation of one verse",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			surah, verse, err := parseVerseArg(args[0])
			if err != nil {
				return err
			}
			return runDownload(cmd, opts, f, core.AddRequest{Surah: surah, Verse: verse, Reciter: f.reciter})
		},
	}
	f.register(cmd)
	return cmd
}

// parseVerseArg checks the shape of a "surah:verse" key. The service checks
// the verse against the surah's length.
func parseVerseArg(arg string) (int, int, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(arg), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%q is not a verse reference (want surah:verse, e.g. 2:255)", arg)
	}
	surah, err := parseSurahArg(left)
	if err != nil {
		return 0, 0, err
	}
	verse, err := strconv.Atoi(right)
	if err != nil || verse < 1 {
		return 0, 0, fmt.Errorf("%q is not a verse number", right)
	}
	return surah, verse, nil
}

func runDownload(cmd *cobra.Command, opts *rootOptions, f downloadFlags, req core.AddRequest) error {
	ctx := cmd.Context()
	b, err := openBackend(ctx, opts)
	if err != nil {
		return err
	}
	defer b.Close()
	out := cmd.OutOrStdout()

	// A local backend has no other process to run the job, so it always waits.
	if f.detach && b.Remote() {
		it, err := b.Downloads.Add(ctx, req)
		if err != nil {
			return err
		}
		if opts.jsonOut {
			return printJSON(out, it)
		}
		fmt.Fprintf(out, "Queued: %s [%s]\n", it.DisplayName, it.ID)
		return nil
	}

	log := out
	if opts.jsonOut {
		log = io.Discard
	}
	it, err := addAndFollow(ctx, b.Downloads, req, log, f.progress)
	if opts.jsonOut && it.ID != "" {
		if jerr := printJSON(out, it); jerr != nil {
			return jerr
		}
	}
	return err
}

// addAndFollow queues req and blocks until the job finishes, printing its
// lifecycle events. The subscription is opened before the add so no event
// is missed on a local backend; remote streams are also backed by polling.
func addAndFollow(ctx context.Context, svc core.DownloadService, req core.AddRequest, w io.Writer, showProgress bool) (download.Item, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, cleanup, err := svc.StreamEvents(ctx)
	if err != nil {
		return download.Item{}, fmt.Errorf("subscribe to events: %w", err)
	}
	defer cleanup()

	it, err := svc.Add(ctx, req)
	if err != nil {
		return download.Item{}, err
	}
	return followDownload(ctx, svc, it.ID, stream, w, showProgress)
}

func followDownload(ctx context.Context, svc core.DownloadService, id string, stream <-chan any, w io.Writer, showProgress bool) (download.Item, error) {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return download.Item{}, ctx.Err()
		case msg, ok := <-stream:
			if !ok {
				stream = nil
				continue
			}
			if eventID(msg) != id {
				continue
			}
			printEvent(w, msg, showProgress)
			if !isTerminal(msg) {
				continue
			}
		case <-ticker.C:
		}

		cur, err := svc.GetStatus(id)
		if err != nil {
			return download.Item{}, err
		}
		if cur.Status.IsFinished() {
			return *cur, finishedError(*cur)
		}
	}
}

func finishedError(it download.Item) error {
	if it.Status == download.StatusFailed {
		reason := it.Error
		if reason == "" {
			reason = "unknown error"
		}
		return fmt.Errorf("download %s failed: %s", it.ID, reason)
	}
	return nil
}

// eventID returns the download a lifecycle event belongs to.
func eventID(msg any) string {
	switch m := msg.(type) {
	case events.ProgressMsg:
		return m.DownloadID
	case events.DownloadQueuedMsg:
		return m.DownloadID
	case events.DownloadRejectedMsg:
		return m.DownloadID
	case events.DownloadStartedMsg:
		return m.DownloadID
	case events.FileSkippedMsg:
		return m.DownloadID
	case events.DownloadCompleteMsg:
		return m.DownloadID
	case events.DownloadErrorMsg:
		return m.DownloadID
	case events.DownloadCanceledMsg:
		return m.DownloadID
	case events.DownloadRemovedMsg:
		return m.DownloadID
	}
	return ""
}

func isTerminal(msg any) bool {
	switch msg.(type) {
	case events.DownloadCompleteMsg, events.DownloadErrorMsg, events.DownloadCanceledMsg, events.DownloadRemovedMsg:
		return true
	}
	return false
}

func newDownloadTextCmd(opts *rootOptions) *cobra.Command {
	var edition string
	cmd := &cobra.Command{
		Use:   "text <surah>",
		Short: "Save a surah's text and translation for offline reading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSurahArg(args[0])
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer b.Close()

			text, err := b.Content.SaveSurahOffline(cmd.Context(), id, edition)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("saving surah %d timed out", id)
				}
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), text)
			}
			usage, err := b.Content.StorageUsage(cmd.Context())
			line := fmt.Sprintf("Saved %s (%d verses, %s)", text.Surah.EnglishName, len(text.Verses), text.Edition)
			if err == nil {
				line += fmt.Sprintf("; offline storage now %s", humanize.IBytes(uint64(max(usage.UsedBytes, 0))))
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
			return nil
		},
	}
	cmd.Flags().StringVarP(&edition, "edition", "e", "", "Translation edition (default from settings)")
	return cmd
}
