package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tilawa-app/tilawa/internal/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
		Long: `Show or change settings stored in settings.json.

Changes take effect the next time tilawa (or tilawa serve) starts.`,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print every setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.LoadSettings()
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), s)
			}
			printSettings(cmd.OutOrStdout(), s)
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.LoadSettings()
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			v, ok := s.Values()[args[0]]
			if !ok {
				return fmt.Errorf("unknown setting %q", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}

	set := &cobra.Command{
		Use:     "set <key> <value>",
		Short:   "Change one setting",
		Example: "  tilawa config set default_reciter ar.husary\n  tilawa config set ttl 2h",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateSetting(cmd.OutOrStdout(), args[0], func(s *config.Settings) error {
				return s.Apply(args[0], args[1])
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset <key>",
		Short: "Restore one setting to its default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, ok := config.DefaultSettings().Values()[args[0]]
			if !ok {
				return fmt.Errorf("unknown setting %q", args[0])
			}
			return updateSetting(cmd.OutOrStdout(), args[0], func(s *config.Settings) error {
				return s.Apply(args[0], def)
			})
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the settings file location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetSettingsPath())
		},
	}

	cmd.AddCommand(show, get, set, reset, path)
	return cmd
}

func updateSetting(w io.Writer, key string, fn func(*config.Settings) error) error {
	s, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if err := fn(s); err != nil {
		return err
	}
	if err := config.SaveSettings(s); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	fmt.Fprintf(w, "%s = %s\n", key, s.Values()[key])
	return nil
}

func printSettings(w io.Writer, s *config.Settings) {
	values := s.Values()
	meta := config.GetSettingsMetadata()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, cat := range config.CategoryOrder() {
		fmt.Fprintf(tw, "[%s]\t\t\n", cat)
		for _, m := range meta[cat] {
			v := values[m.Key]
			if v == "" {
				v = "(default)"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", m.Key, v, m.Description)
		}
	}
	_ = tw.Flush()
}
