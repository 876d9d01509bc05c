package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/snowops/discovery-agent/internal/config"
	"github.com/snowops/discovery-agent/internal/logging"
	"github.com/snowops/discovery-agent/internal/mcp"
	"github.com/snowops/discovery-agent/internal/snow"
	"github.com/snowops/discovery-agent/internal/tracing"
)

var (
	httpAddr        string
	transportType   string
	mcpEndpointPath string
	skipProbe       bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol (MCP) server that exposes
ServiceNow Discovery operations as MCP tools for AI assistants.

Supports two transport modes:
  - http: HTTP server mode (default, suitable for independent deployment)
  - stdio: Standard input/output mode (for subprocess-based MCP clients)

HTTP mode includes /health and /metrics endpoints.`,
	Run: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&httpAddr, "http-addr", getEnv("MCP_HTTP_ADDR", ""), "HTTP server address (host:port), overrides config")
	mcpCmd.Flags().StringVar(&transportType, "transport", "http", "Transport type: http or stdio")
	mcpCmd.Flags().StringVar(&mcpEndpointPath, "mcp-endpoint", getEnv("MCP_ENDPOINT", "/mcp"), "HTTP endpoint path for MCP requests")
	mcpCmd.Flags().BoolVar(&skipProbe, "skip-probe", false, "Skip the startup connectivity probe against the instance")
}

func runMCP(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	HandleError(err, "Failed to load configuration")

	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	logging.Initialize(cfg.LogLevel)
	if transportType == "stdio" {
		// stdout carries the MCP protocol in stdio mode
		logging.UseStderr()
	}
	logger := logging.GetLogger("mcp")

	HandleError(cfg.Validate(), "Invalid configuration")
	logger.Info("Starting Discovery MCP Server (transport: %s)", transportType)
	logger.Info("Instance: %s", cfg.InstanceURL)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := snow.NewMetrics(registry)
	snowClient := snow.NewClient(cfg, metrics)

	if !skipProbe {
		probeCtx, probeCancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := snowClient.TestConnection(probeCtx)
		probeCancel()
		HandleError(err, "Failed to connect to the instance")
		logger.Info("Successfully connected to the instance")
	}

	tracingProvider, err := tracing.NewProvider(tracing.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.TracingEndpoint,
		ServiceName: "discovery-agent",
		Version:     Version,
	})
	HandleError(err, "Failed to initialize tracing")

	agentServer := mcp.NewAgentServer(snowClient, Version)
	mcpServer := agentServer.GetMCPServer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received signal: %v, shutting down gracefully...", sig)
		cancel()
	}()

	switch transportType {
	case "http":
		addr := httpAddr
		if addr == "" {
			addr = cfg.HTTPAddr
		}
		endpointPath := mcpEndpointPath
		if endpointPath == "" {
			endpointPath = "/mcp"
		} else if endpointPath[0] != '/' {
			endpointPath = "/" + endpointPath
		}

		logger.Info("Starting HTTP server on %s (endpoint: %s)", addr, endpointPath)

		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		httpSrv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second, // Prevent Slowloris attacks
		}

		streamableServer := server.NewStreamableHTTPServer(
			mcpServer,
			server.WithEndpointPath(endpointPath),
			server.WithStateLess(true), // stateless mode for clients without session management
			server.WithStreamableHTTPServer(httpSrv),
		)
		mux.Handle(endpointPath, streamableServer)

		errCh := make(chan error, 1)
		go func() {
			if err := streamableServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()

			if err := streamableServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("Error during shutdown: %v", err)
			}
			if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
				logger.Error("Error shutting down tracing: %v", err)
			}
		case err := <-errCh:
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}

	case "stdio":
		logger.Info("Starting stdio transport")
		if err := server.ServeStdio(mcpServer); err != nil {
			logger.Error("Stdio transport error: %v", err)
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down tracing: %v", err)
		}

	default:
		logger.Fatal("Invalid transport type: %s (must be 'http' or 'stdio')", transportType)
	}

	logger.Info("Server stopped")
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
