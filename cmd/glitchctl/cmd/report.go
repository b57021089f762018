package cmd

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/banshee-data/glitch.report/internal/db"
	"github.com/banshee-data/glitch.report/internal/report"
)

var (
	reportPNG  string
	reportHTML string
	reportCSV  string
	reportX    string
	reportY    string
	reportJSON bool
)

var reportCmd = &cobra.Command{
	Use:   "report <campaign-id>",
	Short: "Summarise and render a stored campaign",
	Long: `Print outcome counts and per-axis success statistics for a stored
campaign, and optionally render it as a PNG scatter plot, an interactive
HTML page or a CSV file.

Examples:
  glitchctl report 3f1c... --png glitch.png --x width --y offset
  glitchctl report 3f1c... --json`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportPNG, "png", "", "write a scatter plot PNG to this path")
	reportCmd.Flags().StringVar(&reportHTML, "html", "", "write an HTML report to this path")
	reportCmd.Flags().StringVar(&reportCSV, "csv", "", "write the trials as CSV to this path")
	reportCmd.Flags().StringVar(&reportX, "x", "", "axis on the horizontal plot axis; default the first")
	reportCmd.Flags().StringVar(&reportY, "y", "", "axis on the vertical plot axis; default the second")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print the summary as JSON")
}

func runReport(cmd *cobra.Command, args []string) error {
	store, err := db.NewDB(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := store.LoadResult(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	summary := report.Summarize(res)
	if reportJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	} else {
		printSummary(out, summary)
	}

	if reportCSV != "" {
		if err := writeFile(reportCSV, func(w io.Writer) error { return report.WriteCSV(w, res) }); err != nil {
			return err
		}
	}
	if reportPNG != "" {
		if err := writeFile(reportPNG, func(w io.Writer) error { return report.WritePlotPNG(w, res, reportX, reportY) }); err != nil {
			return err
		}
	}
	if reportHTML != "" {
		if err := writeFile(reportHTML, func(w io.Writer) error { return report.WriteHTML(w, res, reportX, reportY) }); err != nil {
			return err
		}
	}
	return nil
}
