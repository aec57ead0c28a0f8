package cmd

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tilawa-app/tilawa/internal/config"
	"github.com/tilawa-app/tilawa/internal/tui"
	"github.com/tilawa-app/tilawa/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	server  string
	noColor bool
	jsonOut bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "tilawa",
		Short: "Read, listen to and keep the Quran offline from your terminal",
		Long: `Tilawa reads surahs, verses and tafsir from a Quran content API, caches
what it fetches, and downloads recitations for offline listening.

Run without arguments to open the download dashboard.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.EnsureDirs(); err != nil {
				return err
			}
			settings, err := config.LoadSettings()
			if err != nil {
				settings = config.DefaultSettings()
			}
			if err := utils.ConfigureDebug(config.GetLogsDir(), settings.General.LogRetentionCount); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: debug log unavailable: %v\n", err)
			}
			if opts.noColor || os.Getenv("NO_COLOR") != "" {
				tui.DisableColor()
			}
			utils.Debug("tilawa %s: %s", Version, cmd.CommandPath())
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			utils.CloseDebug()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer b.Close()
			if b.local != nil {
				b.local.Downloads.ResumePending()
			}
			return runDashboard(cmd.Context(), b)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("tilawa %s (built %s)\n", Version, BuildTime))

	pf := root.PersistentFlags()
	pf.StringVar(&opts.server, "server", "", "URL of a running `tilawa serve` (default: discovered from the port file)")
	pf.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	pf.BoolVar(&opts.jsonOut, "json", false, "Print results as JSON")

	root.AddCommand(
		newSurahCmd(opts),
		newVersesCmd(opts),
		newVerseCmd(opts),
		newRandomCmd(opts),
		newTafsirCmd(opts),
		newAudioCmd(opts),
		newDownloadCmd(opts),
		newDownloadsCmd(opts),
		newOfflineCmd(opts),
		newStorageCmd(opts),
		newCacheCmd(opts),
		newConfigCmd(opts),
		newServeCmd(opts),
		newConnectCmd(opts),
	)
	return root
}

// Execute runs the command tree and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", userError(err))
		os.Exit(1)
	}
}

// runDashboard runs the TUI until the user quits.
func runDashboard(ctx context.Context, b *backend) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, cleanup, err := b.Downloads.StreamEvents(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to events: %w", err)
	}
	defer cleanup()

	m := tui.InitialRootModel(b.Downloads, stream, b.settings, Version)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running dashboard: %w", err)
	}
	return nil
}
