package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/glitch.report/internal/scope"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Apply the default glitch setup to the scope",
	Long: `Connect to the scope, apply the baseline configuration for its profile
and wait for the glitch clock to lock, then print the resulting settings.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

var getCmd = &cobra.Command{
	Use:   "get [name|group]",
	Short: "Read scope settings",
	Long: `Print one setting, every setting in a group ("glitch", "adc", "clock",
"io") or, with no argument, every setting.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGet,
}

var setCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Write one scope setting",
	Args:  cobra.ExactArgs(2),
	RunE:  runSet,
}

func init() {
	for _, c := range []*cobra.Command{setupCmd, getCmd, setCmd} {
		addRigFlags(c)
		rootCmd.AddCommand(c)
	}
}

func runSetup(cmd *cobra.Command, args []string) error {
	r, err := openRig(false, nil)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.session.DefaultSetup(); err != nil {
		return fmt.Errorf("default setup: %w", err)
	}
	return printSettings(cmd.OutOrStdout(), r.session, r.session.Config().Names(""))
}

func runGet(cmd *cobra.Command, args []string) error {
	r, err := openRig(false, nil)
	if err != nil {
		return err
	}
	defer r.Close()

	names := r.session.Config().Names("")
	if len(args) == 1 {
		if group := r.session.Config().Names(args[0]); len(group) > 0 {
			names = group
		} else {
			names = []string{args[0]}
		}
	}
	return printSettings(cmd.OutOrStdout(), r.session, names)
}

func runSet(cmd *cobra.Command, args []string) error {
	r, err := openRig(false, nil)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.session.Set(args[0], parseValue(args[1])); err != nil {
		return err
	}
	return printSettings(cmd.OutOrStdout(), r.session, []string{args[0]})
}

func printSettings(w io.Writer, s *scope.Session, names []string) error {
	for _, name := range names {
		v, err := s.Get(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-22s %v\n", name, v)
	}
	return nil
}

// parseValue turns a command-line word into the value type a setting
// domain expects: bool for flags, float64 for ranges, string for enums.
func parseValue(s string) interface{} {
	switch strings.ToLower(s) {
	case "true", "on":
		return true
	case "false", "off":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
