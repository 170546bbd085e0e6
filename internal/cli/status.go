package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/feedguard/feedguard/internal/core/config"
	"github.com/feedguard/feedguard/internal/health"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current health of all monitored endpoints",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	url := fmt.Sprintf("http://localhost:%d/health/detailed", cfg.Server.Port)

	resp, err := client.Get(url)
	if err != nil {
		slog.Error("Failed to reach engine", "url", url, "error", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var reports []health.EndpointReport
	if err := json.NewDecoder(resp.Body).Decode(&reports); err != nil {
		slog.Error("Failed to decode response", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ENDPOINT\tSTATUS\tUPTIME\tCRITICALITY\tALERT")

	for _, r := range reports {
		alert := "-"
		if r.OpenAlert != nil {
			alert = string(r.OpenAlert.Level)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%s\t%s\n",
			r.EndpointKey, r.Status, r.UptimePercentage, r.Criticality, alert)
	}
	_ = w.Flush()
}
