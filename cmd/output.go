package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tilawa-app/tilawa/internal/content"
	"github.com/tilawa-app/tilawa/internal/download"
	"github.com/tilawa-app/tilawa/internal/events"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// sourceNote marks results that did not come fresh from the network.
func sourceNote(src content.Source) string {
	switch src {
	case content.SourceCache:
		return "(cached)"
	case content.SourceFallback:
		return "(offline fallback)"
	case content.SourceOffline:
		return "(saved offline)"
	}
	return ""
}

func printVerse(w io.Writer, v content.Verse) {
	fmt.Fprintf(w, "[%s]\n%s\n", v.Key, v.Text)
	if v.Translation != "" {
		fmt.Fprintf(w, "%s\n", v.Translation)
	}
}

func printSurahHeader(w io.Writer, s content.Surah, note string) {
	line := fmt.Sprintf("%d. %s (%s) - %s, %d verses, %s", s.Number, s.EnglishName, s.Name,
		s.EnglishNameTranslation, s.NumberOfAyahs, s.RevelationType)
	if note != "" {
		line += " " + note
	}
	fmt.Fprintln(w, line)
}

func printDownloads(w io.Writer, items []download.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No downloads.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPROGRESS\tSIZE\tUPDATED")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
			it.ID, it.DisplayName, statusLabel(it), it.Progress,
			humanize.IBytes(uint64(max(it.SizeBytes, 0))), humanize.Time(it.UpdatedAt))
	}
	_ = tw.Flush()
}

func statusLabel(it download.Item) string {
	switch {
	case it.PartialFailure():
		return fmt.Sprintf("completed (%d missing)", len(it.FailedFiles))
	case it.Status == download.StatusFailed && it.Error != "":
		return "failed: " + it.Error
	}
	return string(it.Status)
}

func shortID(id string) string {
	if len(id) > 24 {
		return id[:24]
	}
	return id
}

// printEvent writes one line per lifecycle event. Progress lines are written
// only when showProgress is set.
func printEvent(w io.Writer, msg any, showProgress bool) {
	switch m := msg.(type) {
	case events.DownloadQueuedMsg:
		fmt.Fprintf(w, "Queued: %s [%s]\n", m.DisplayName, shortID(m.DownloadID))
	case events.DownloadRejectedMsg:
		fmt.Fprintf(w, "Rejected: %s [%s]: %s\n", m.DisplayName, shortID(m.DownloadID), m.Reason)
	case events.DownloadStartedMsg:
		fmt.Fprintf(w, "Started: %s [%s] %d file(s) -> %s\n", m.DisplayName, shortID(m.DownloadID), m.FileCount, m.DestPath)
	case events.ProgressMsg:
		if showProgress {
			fmt.Fprintf(w, "  %3d%%  %s (%d/%d) %s/s\n", m.Progress, m.File, m.FileIndex+1, m.FileCount,
				humanize.IBytes(uint64(max(m.Speed, 0))))
		}
	case events.FileSkippedMsg:
		fmt.Fprintf(w, "Skipped: %s [%s]: %s\n", m.File, shortID(m.DownloadID), m.Reason)
	case events.DownloadCompleteMsg:
		line := fmt.Sprintf("Completed: %s [%s] %s in %s", m.DisplayName, shortID(m.DownloadID),
			humanize.IBytes(uint64(max(m.Total, 0))), m.Elapsed.Round(time.Millisecond))
		if len(m.FailedFiles) > 0 {
			line += fmt.Sprintf(", missing %s", strings.Join(m.FailedFiles, ", "))
		}
		fmt.Fprintln(w, line)
	case events.DownloadErrorMsg:
		fmt.Fprintf(w, "Error: %s [%s]: %v\n", m.DisplayName, shortID(m.DownloadID), m.Err)
	case events.DownloadCanceledMsg:
		fmt.Fprintf(w, "Canceled: %s [%s]\n", m.DisplayName, shortID(m.DownloadID))
	case events.DownloadRemovedMsg:
		fmt.Fprintf(w, "Removed: %s [%s]\n", m.DisplayName, shortID(m.DownloadID))
	case events.DownloadsClearedMsg:
		fmt.Fprintf(w, "Cleared %d download(s)\n", m.Removed)
	}
}
