package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tilawa-app/tilawa/internal/config"
	"github.com/tilawa-app/tilawa/internal/core"
	"github.com/tilawa-app/tilawa/internal/server"
	"github.com/tilawa-app/tilawa/internal/utils"
)

const defaultServePort = 8080

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		port     int
		noResume bool
	)
	cmd := &cobra.Command{
		Use:   "serve [surah|surah:verse]...",
		Short: "Run the download queue and content API as a headless server",
		Long: `Run the download queue and content API as a headless server.

Other tilawa commands on this machine find the server through its port file
and forward their work to it. Arguments are queued as downloads on start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := make([]core.AddRequest, 0, len(args))
			for _, a := range args {
				req, err := parseAddArg(a)
				if err != nil {
					return err
				}
				reqs = append(reqs, req)
			}
			return runServe(cmd.Context(), cmd.OutOrStdout(), port, !noResume, reqs)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, fmt.Sprintf("Port to listen on (default: first free port from %d)", defaultServePort))
	cmd.Flags().BoolVar(&noResume, "no-resume", false, "Do not start pending downloads on startup")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether a server is running",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if baseURL := discoverServer(); baseURL != "" {
				fmt.Fprintf(out, "tilawa server is running at %s\n", baseURL)
				return
			}
			fmt.Fprintln(out, "tilawa server is NOT running.")
		},
	})
	return cmd
}

func parseAddArg(arg string) (core.AddRequest, error) {
	if strings.Contains(arg, ":") {
		surah, verse, err := parseVerseArg(arg)
		if err != nil {
			return core.AddRequest{}, err
		}
		return core.AddRequest{Surah: surah, Verse: verse}, nil
	}
	surah, err := parseSurahArg(arg)
	if err != nil {
		return core.AddRequest{}, err
	}
	return core.AddRequest{Surah: surah}, nil
}

func runServe(ctx context.Context, out io.Writer, port int, resume bool, initial []core.AddRequest) error {
	lock, err := acquireInstanceLock()
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			utils.Debug("Error releasing lock: %v", err)
		}
	}()

	var ln net.Listener
	if port > 0 {
		ln, err = net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return fmt.Errorf("could not bind to port %d: %w", port, err)
		}
	} else {
		port, ln = findAvailablePort(defaultServePort)
		if ln == nil {
			return fmt.Errorf("could not find an available port from %d", defaultServePort)
		}
	}

	settings, err := config.LoadSettings()
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("load settings: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := core.New(ctx, settings)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() {
		if err := svc.Shutdown(); err != nil {
			utils.Debug("serve: shutdown: %v", err)
		}
	}()

	if err := saveActivePort(port); err != nil {
		utils.Debug("Error writing port file: %v", err)
	}
	defer removeActivePort()

	stream, cleanup, err := svc.StreamEvents(ctx)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer cleanup()
	go startHeadlessConsumer(out, stream)

	if resume {
		if n := svc.Downloads.ResumePending(); n > 0 {
			fmt.Fprintf(out, "Resumed %d pending download(s)\n", n)
		}
	}
	for _, req := range initial {
		if _, err := svc.Add(ctx, req); err != nil {
			fmt.Fprintf(out, "Could not queue %d:%d: %s\n", req.Surah, req.Verse, userError(err))
		}
	}

	fmt.Fprintf(out, "tilawa %s serving on http://127.0.0.1:%d\n", Version, port)
	return server.New(svc).Serve(ctx, ln)
}

// startHeadlessConsumer logs lifecycle events until stream closes.
func startHeadlessConsumer(w io.Writer, stream <-chan any) {
	for msg := range stream {
		printEvent(w, msg, false)
	}
}
