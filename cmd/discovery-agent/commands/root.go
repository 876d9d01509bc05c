package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var (
	logLevelFlag string
	configPath   string
)

var rootCmd = &cobra.Command{
	Use:   "discovery-agent",
	Short: "ServiceNow Discovery orchestration agent",
	Long: `discovery-agent exposes ServiceNow Discovery operations as MCP tools:
scan status, schedules, IP ranges, credential metadata, classification
patterns, result analysis, failure remediation, run comparison and
instance health scoring.`,
	Version: Version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info",
		"Log level: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to YAML config file (optional, SNOW_* environment variables override)")

	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(checkCmd)
}

// HandleError prints error and exits
func HandleError(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}
