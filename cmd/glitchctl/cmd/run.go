package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/glitch.report/internal/campaign"
	"github.com/banshee-data/glitch.report/internal/config"
	"github.com/banshee-data/glitch.report/internal/db"
	"github.com/banshee-data/glitch.report/internal/monitoring"
	"github.com/banshee-data/glitch.report/internal/report"
	"github.com/banshee-data/glitch.report/internal/target"
)

var (
	runConfigPath string
	runCSVPath    string
	runListen     string
	runID         string
	runProgress   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a glitch campaign",
	Long: `Load a campaign document, connect the scope and target, sweep every
setting in the parameter space and store each classified trial.

The campaign stops at the first instrument fault or on interrupt; trials
recorded up to that point are kept.

Examples:
  # Sweep the simulated target with the example campaign
  glitchctl run --config config/campaign.example.json --simulate

  # Hardware run with a live status page on :8080/debug/campaign
  glitchctl run --config sweep.json --port /dev/ttyUSB0 --listen :8080`,
	Args: cobra.NoArgs,
	RunE: runCampaign,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRigFlags(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "campaign document (.json)")
	runCmd.Flags().StringVar(&runCSVPath, "csv", "", "also write the trials to this CSV file")
	runCmd.Flags().StringVar(&runListen, "listen", "", "serve /debug/ admin routes on this address; default $GLITCH_LISTEN")
	runCmd.Flags().StringVar(&runID, "id", "", "campaign identifier; default a random UUID")
	runCmd.Flags().IntVar(&runProgress, "progress", 100, "print progress every N trials (0 disables)")
	_ = runCmd.MarkFlagRequired("config")
}

func runCampaign(cmd *cobra.Command, args []string) error {
	doc, raw, err := config.LoadCampaignDocument(runConfigPath)
	if err != nil {
		return err
	}
	cfg, err := doc.Campaign()
	if err != nil {
		return err
	}
	framing, err := target.FramingByName(doc.GetFraming())
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := monitoring.SetupTracing(ctx, "glitchctl", environ.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			monitoring.Logf("flush traces: %v", err)
		}
	}()

	store, err := db.NewDB(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := openRig(true, framing)
	if err != nil {
		return err
	}
	defer r.Close()

	if doc.GetDefaultSetup() {
		if err := r.session.DefaultSetup(); err != nil {
			return fmt.Errorf("default setup: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	tracker := campaign.NewTracker()
	cfg.ID = runID
	cfg.Sink = store.Recorder(raw, cfg.Repeat)
	cfg.Tracker = tracker
	if runProgress > 0 {
		cfg.Progress = func(done, total int, rec campaign.Record) {
			if done%runProgress == 0 || done == total {
				fmt.Fprintf(out, "%d/%d trials\n", done, total)
			}
		}
	}

	listen := runListen
	if listen == "" {
		listen = environ.Listen
	}
	if listen != "" {
		srv := serveAdmin(listen, tracker, store)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				monitoring.Logf("HTTP server shutdown error: %v", err)
				srv.Close()
			}
		}()
	}

	ctrl, err := campaign.NewController(r.session, r.link, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "campaign %s: %d trials\n", ctrl.ID(), ctrl.Total())

	res, runErr := ctrl.Run(ctx)
	if res != nil {
		printSummary(out, report.Summarize(res))
		if runCSVPath != "" {
			if err := writeFile(runCSVPath, func(w io.Writer) error { return report.WriteCSV(w, res) }); err != nil {
				return errors.Join(runErr, err)
			}
		}
	}
	return runErr
}

func serveAdmin(addr string, tracker *campaign.Tracker, store *db.DB) *http.Server {
	mux := http.NewServeMux()
	tracker.AttachAdminRoutes(mux)
	store.AttachAdminRoutes(mux)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("admin server: %v", err)
		}
	}()
	monitoring.Logf("admin routes on http://%s/debug/", addr)
	return srv
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(w io.Writer, s report.Summary) {
	fmt.Fprintf(w, "campaign %s: %d trials recorded\n", s.ID, s.Trials)
	for _, o := range campaign.Outcomes {
		fmt.Fprintf(w, "  %-8s %d\n", o, s.Counts[o])
	}
	if s.Trials > 0 {
		fmt.Fprintf(w, "  success rate %.2f%%\n", 100*s.SuccessRate)
	}
	for _, a := range s.Axes {
		if !math.IsNaN(a.SuccessMean) {
			fmt.Fprintf(w, "  %s: successes at %.3g ± %.3g\n", a.Name, a.SuccessMean, a.SuccessStdDev)
		}
	}
}
