package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/snowops/discovery-agent/internal/config"
	"github.com/snowops/discovery-agent/internal/logging"
	"github.com/snowops/discovery-agent/internal/snow"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify instance connectivity and credentials",
	Long: `Load the configuration, connect to the instance and run a single
probe query. Exits non-zero when the instance is unreachable or the
credentials are rejected.`,
	Run: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	HandleError(err, "Failed to load configuration")

	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	logging.Initialize(cfg.LogLevel)

	HandleError(cfg.Validate(), "Invalid configuration")

	metrics := snow.NewMetrics(prometheus.NewRegistry())
	client := snow.NewClient(cfg, metrics)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	HandleError(client.TestConnection(ctx), "Connectivity check failed")
	fmt.Printf("OK: connected to %s as %s\n", cfg.InstanceURL, cfg.Username)
}
