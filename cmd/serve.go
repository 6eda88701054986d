package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom/internal/assistant"
	cfgpkg "github.com/KaramelBytes/vizloom/internal/config"
	"github.com/KaramelBytes/vizloom/internal/dashboard"
	"github.com/KaramelBytes/vizloom/internal/history"
	"github.com/KaramelBytes/vizloom/internal/surface"
)

var (
	serveData        datasetFlags
	serveModel       modelFlags
	serveAddr        string
	serveMaxUploadMB int
	serveMaxSessions int
	serveTimeoutSec  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web dashboard",
	Long: `serve starts a local web UI: upload a CSV/XLSX file, then ask for
recommendations, anomalies or charts. Model flags apply to every session; an
API key typed in the upload form overrides them for that session.`,
	Example: `  vizloom serve
  vizloom serve --addr :8080 --provider ollama --model qwen2.5-coder:7b`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		load, err := serveData.options()
		if err != nil {
			return err
		}
		// fail at startup rather than on the first request
		probe, err := newAssistant(c, surface.Discard, nil)
		if err != nil {
			return err
		}
		if err := withModel(cmd, probe, c, serveModel, ""); err != nil {
			return err
		}

		store, closeHistory := openHistory(c)
		defer closeHistory()

		srv, err := dashboard.New(dashboard.Options{
			Logger:         logger,
			NewAssistant:   dashboardFactory(cmd, c, serveModel, store),
			Load:           load,
			MaxUploadBytes: int64(serveMaxUploadMB) << 20,
			MaxSessions:    serveMaxSessions,
			RequestTimeout: time.Duration(serveTimeoutSec) * time.Second,
		})
		if err != nil {
			return err
		}
		addr := serveAddr
		if addr == "" {
			addr = c.DashboardAddr
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Dashboard on http://%s (Ctrl-C to stop)\n", addr)
		return srv.ListenAndServe(cmd.Context(), addr)
	},
}

// dashboardFactory builds one assistant per dashboard request.
func dashboardFactory(cmd *cobra.Command, c *cfgpkg.Global, f modelFlags, store *history.Store) dashboard.AssistantFactory {
	return func(s surface.Surface, apiKey string) (*assistant.Assistant, error) {
		a, err := newAssistant(c, s, store)
		if err != nil {
			return nil, err
		}
		if err := withModel(cmd, a, c, f, apiKey); err != nil {
			return nil, err
		}
		return a, nil
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addDatasetFlags(serveCmd, &serveData)
	addModelFlags(serveCmd, &serveModel)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config dashboard_addr)")
	serveCmd.Flags().IntVar(&serveMaxUploadMB, "max-upload-mb", 32, "largest accepted upload in MiB")
	serveCmd.Flags().IntVar(&serveMaxSessions, "max-sessions", 32, "live sessions kept in memory; the oldest is dropped first")
	serveCmd.Flags().IntVar(&serveTimeoutSec, "request-timeout", 120, "seconds allowed for each model call")
}
