package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wallet-engine/pkg/health"
)

var serveAddr string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of every configured chain and RPC node",
	Long: `Ping every chain adapter and Solana RPC node and report latency and
error statistics.

With --serve the report is available at /healthz and prometheus metrics at
/metrics until interrupted.

Examples:
  wallet-engine health
  wallet-engine health --serve :9100`,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().StringVar(&serveAddr, "serve", "", "Serve /healthz and /metrics on this address")
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		if serveAddr != "" {
			return serveHealth(cmd, a)
		}

		var report health.Report
		_ = spin(cmd, "Checking chains...", func() error {
			report = a.engine.CheckHealth(ctx)
			return nil
		})
		if jsonOutput(cmd) {
			if err := printJSON(report); err != nil {
				return err
			}
		} else {
			displayHealth(report)
		}
		if !report.Healthy {
			return errors.New("one or more chains are unhealthy")
		}
		return nil
	})
}

func serveHealth(cmd *cobra.Command, a *app) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.monitor.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		report := a.engine.CheckHealth(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !report.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})

	srv := &http.Server{Addr: serveAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	fmt.Printf("\nServing health on %s (Ctrl+C to stop)\n", color.CyanString(serveAddr))

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func displayHealth(report health.Report) {
	banner("HEALTH", 90)

	overall := color.GreenString("healthy")
	if !report.Healthy {
		overall = color.RedString("unhealthy")
	}
	fmt.Printf("\n  Overall: %s  (%s)\n", overall, report.CheckedAt.Local().Format("2006-01-02 15:04:05"))

	section := func(title string, rows []health.TargetReport) {
		if len(rows) == 0 {
			return
		}
		color.Cyan("\n%s", title)
		fmt.Println(strings.Repeat("-", 90))
		for _, t := range rows {
			state := color.GreenString("ok")
			if !t.Healthy {
				state = color.RedString("down")
			}
			fmt.Printf("  %-10s  %-40s  %-6s  %-8s  %s\n", t.Chain, t.Name, state, t.Latency, color.HiBlackString(t.Message))
		}
	}
	section("ADAPTERS", report.Adapters)
	section("TARGETS", report.Targets)

	fmt.Println("\n" + strings.Repeat("=", 90) + "\n")
}
