package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/tilawa-app/tilawa/internal/content"
)

func parseSurahArg(arg string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || id < 1 || id > content.SurahCount {
		return 0, fmt.Errorf("%q is not a surah number (1-%d)", arg, content.SurahCount)
	}
	return id, nil
}

func newSurahCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "surah [number]",
		Short: "Show surah metadata, or list every surah",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer b.Close()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				res, err := b.Content.SurahList(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(out, res)
				}
				for _, s := range res.Data {
					printSurahHeader(out, s, "")
				}
				if note := sourceNote(res.Source); note != "" {
					fmt.Fprintln(out, note)
				}
				return nil
			}

			id, err := parseSurahArg(args[0])
			if err != nil {
				return err
			}
			res, err := b.Content.Surah(cmd.Context(), id)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(out, res)
			}
			printSurahHeader(out, res.Data, sourceNote(res.Source))
			return nil
		},
	}
}

func newVersesCmd(opts *rootOptions) *cobra.Command {
	var edition string
	cmd := &cobra.Command{
		Use:   "verses <surah>",
		Short: "Print every verse of a surah with its translation",
		Long:  "Print every verse of a surah with its translation. Text saved with `tilawa download text` is read from disk.",
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

			res, err := b.Content.Verses(cmd.Context(), id, edition)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, res)
			}
			printSurahHeader(out, res.Data.Surah, sourceNote(res.Source))
			for _, v := range res.Data.Verses {
				fmt.Fprintln(out)
				printVerse(out, v)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&edition, "edition", "e", "", "Translation edition (default from settings)")
	return cmd
}

func newVerseCmd(opts *rootOptions) *cobra.Command {
	var (
		edition string
		copyOut bool
	)
	cmd := &cobra.Command{
		Use:     "verse <surah:verse>",
		Short:   "Print one verse with its translation",
		Example: "  tilawa verse 2:255\n  tilawa verse 112:1 --copy",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer b.Close()

			res, err := b.Content.Verse(cmd.Context(), args[0], edition)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else {
				printVerse(out, res.Data)
				if note := sourceNote(res.Source); note != "" {
					fmt.Fprintln(out, note)
				}
			}
			if copyOut {
				if err := clipboard.WriteAll(verseClipboardText(res.Data)); err != nil {
					return fmt.Errorf("copy to clipboard: %w", err)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Copied to clipboard.")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&edition, "edition", "e", "", "Translation edition (default from settings)")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "Copy the verse to the clipboard")
	return cmd
}

func verseClipboardText(v content.Verse) string {
	parts := []string{v.Text}
	if v.Translation != "" {
		parts = append(parts, v.Translation)
	}
	parts = append(parts, fmt.Sprintf("(Quran %s)", v.Key))
	return strings.Join(parts, "\n")
}

func newRandomCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "random",
		Short: "Print a random verse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer b.Close()

			res := b.Content.RandomVerse(cmd.Context())
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, res)
			}
			printVerse(out, res.Data)
			if note := sourceNote(res.Source); note != "" {
				fmt.Fprintln(out, note)
			}
			return nil
		},
	}
}

func newTafsirCmd(opts *rootOptions) *cobra.Command {
	var edition string
	cmd := &cobra.Command{
		Use:   "tafsir <surah:verse>",
		Short: "Print commentary for a verse",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer b.Close()

			res, err := b.Content.Tafsir(cmd.Context(), args[0], edition)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "[%s] %s %s\n%s\n", res.Data.Key, res.Data.Edition, sourceNote(res.Source), res.Data.Text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&edition, "edition", "e", "", "Tafsir edition (default from settings)")
	return cmd
}

func newAudioCmd(opts *rootOptions) *cobra.Command {
	var reciter string
	cmd := &cobra.Command{
		Use:   "audio <surah:verse>",
		Short: "Print the recitation URL for a verse",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer b.Close()

			res, err := b.Content.AudioURL(cmd.Context(), args[0], reciter)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Data)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reciter, "reciter", "r", "", "Reciter edition (default from settings)")
	return cmd
}
