package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/snowops/discovery-agent/internal/mcp/tools"
	"github.com/snowops/discovery-agent/internal/snow"
)

// Tool defines the interface for our tool implementations
type Tool interface {
	Execute(ctx context.Context, input json.RawMessage) (interface{}, error)
}

// AgentServer wraps the mcp-go server with the discovery tool surface
type AgentServer struct {
	mcpServer  *server.MCPServer
	snowClient *snow.Client
	tools      map[string]Tool
	version    string
}

// NewAgentServer creates the MCP server and registers all discovery tools
func NewAgentServer(snowClient *snow.Client, version string) *AgentServer {
	mcpServer := server.NewMCPServer(
		"ServiceNow Discovery MCP Server",
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s := &AgentServer{
		mcpServer:  mcpServer,
		snowClient: snowClient,
		tools:      make(map[string]Tool),
		version:    version,
	}
	s.registerTools()
	return s
}

func (s *AgentServer) registerTools() {
	actionProp := func(description string, values ...string) map[string]interface{} {
		return map[string]interface{}{
			"type":        "string",
			"description": description,
			"enum":        values,
		}
	}
	stringProp := func(description string) map[string]interface{} {
		return map[string]interface{}{"type": "string", "description": description}
	}
	intProp := func(description string) map[string]interface{} {
		return map[string]interface{}{"type": "integer", "description": description}
	}
	boolProp := func(description string) map[string]interface{} {
		return map[string]interface{}{"type": "boolean", "description": description}
	}

	s.registerTool(
		"get_discovery_status",
		"Get the status of discovery scans: single scan, filtered list, full details with logs, or a poll snapshot for completion checking",
		tools.NewStatusTool(s.snowClient),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"action":  actionProp("Operation to perform (default list)", "get", "list", "details", "poll"),
				"scan_id": stringProp("Scan sys_id (required for get, details, poll)"),
				"state":   stringProp("Optional: filter by raw scan state (e.g. 'Active', 'Completed', 'Error')"),
				"source":  stringProp("Optional: filter by scan source (schedule sys_id)"),
				"since":   stringProp("Optional: only scans started after this time (Unix seconds or a date like 'yesterday')"),
				"limit":   intProp("Optional: max scans to return (default 20, max 100)"),
			},
			"required": []string{"action"},
		},
	)

	s.registerTool(
		"list_discovery_schedules",
		"List discovery schedules, fetch one by id, or summarize the schedule population by state and type",
		tools.NewSchedulesTool(s.snowClient),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"action":      actionProp("Operation to perform (default list)", "list", "get", "summary"),
				"schedule_id": stringProp("Schedule sys_id (required for get)"),
				"active_only": boolProp("Optional: only list active schedules"),
				"limit":       intProp("Optional: max schedules to return (default 20, max 100)"),
			},
			"required": []string{"action"},
		},
	)

	s.registerTool(
		"schedule_discovery_scan",
		"Trigger an existing discovery schedule for an immediate scan, or create a new schedule",
		tools.NewTriggerTool(s.snowClient),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"action":        actionProp("Operation to perform", "trigger", "create"),
				"schedule_id":   stringProp("Schedule sys_id (required for trigger)"),
				"name":          stringProp("Name for the new schedule (required for create)"),
				"discover_type": stringProp("Discovery type for create: IP, CI, Network, Cloud, or Configuration"),
				"ip_ranges": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Optional: discovery_range sys_ids to attach to the new schedule",
				},
				"mid_server":   stringProp("Optional: MID server to pin the schedule to"),
				"max_run_time": stringProp("Optional: max run time as HH:MM:SS (default 02:00:00)"),
			},
			"required": []string{"action"},
		},
	)

	s.registerTool(
		"manage_discovery_ranges",
		"Manage discovery IP ranges: list, get, create, update, delete, or validate a range definition without creating it",
		tools.NewRangesTool(s.snowClient),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"action":      actionProp("Operation to perform (default list)", "list", "get", "create", "update", "delete", "validate"),
				"range_id":    stringProp("Range sys_id (required for get, update, delete)"),
				"name":        stringProp("Range name (required for create)"),
				"range_type":  stringProp("Range type: 'IP Range', 'IP Network', or 'IP Address'"),
				"range_start": stringProp("Start address, single IP, or CIDR depending on range_type"),
				"range_end":   stringProp("End address (required for 'IP Range')"),
				"active":      boolProp("Optional: active flag (default true on create)"),
				"include":     boolProp("Optional: include flag, false means exclusion range (default true on create)"),
				"filter_type": stringProp("Optional: filter list by range type"),
				"active_only": boolProp("Optional: only list active ranges"),
				"limit":       intProp("Optional: max ranges to return (default 100)"),
			},
			"required": []string{"action"},
		},
	)

	s.registerTool(
		"manage_discovery_credentials",
		"Manage discovery credential metadata: list, get, create, update, delete. Secret values are never read, written, or returned.",
		tools.NewCredentialsTool(s.snowClient),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"action":          actionProp("Operation to perform (default list)", "list", "get", "create", "update", "delete"),
				"credential_id":   stringProp("Credential sys_id (required for get, update, delete)"),
				"name":            stringProp("Credential name (required for create)"),
				"credential_type": stringProp("Credential type, e.g. ssh_password, snmp, windows (required for create)"),
				"tag":             stringProp("Optional: credential tag"),
				"order":           intProp("Optional: evaluation order, lower tried first"),
				"active":          boolProp("Optional: active flag (default true on create)"),
				"active_only":     boolProp("Optional: only list active credentials"),
				"filter_type":     stringProp("Optional: filter list by credential type"),
				"limit":           intProp("Optional: max credentials to return (default 100)"),
			},
			"required": []string{"action"},
		},
	)

	s.registerTool(
		"get_discovery_patterns",
		"Inspect CI classification patterns: list, get, analyze one CI type for conflicts, or report coverage across CI types",
		tools.NewPatternsTool(s.snowClient),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"action":      actionProp("Operation to perform (default list)", "list", "get", "analyze", "coverage"),
				"pattern_id":  stringProp("Pattern sys_id (required for get)"),
				"ci_type":     stringProp("CI type to analyze (required for analyze, optional filter for list)"),
				"active":      boolProp("Optional: filter list by active status"),
				"name_filter": stringProp("Optional: filter list by name substring"),
				"limit":       intProp("Optional: max patterns to return (default 100, max 500)"),
			},
			"required": []string{"action"},
		},
	)

	s.registerTool(
		"analyze_discovery_results",
		"Analyze discovery results: per-scan summary, categorized errors, trend across scans, or IP coverage for a schedule",
		tools.NewAnalyzeTool(s.snowClient),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"action":       actionProp("Operation to perform (default analyze)", "analyze", "errors", "trend", "coverage"),
				"scan_id":      stringProp("Scan sys_id (required for analyze and errors)"),
				"schedule_id":  stringProp("Schedule sys_id (required for coverage, optional filter for trend)"),
				"last_n_scans": intProp("Optional: number of scans in the trend window (default 10, max 100)"),
				"date_from":    stringProp("Optional: trend window start (Unix seconds or a date like 'last monday')"),
				"date_to":      stringProp("Optional: trend window end"),
			},
			"required": []string{"action"},
		},
	)

	s.registerTool(
		"remediate_discovery_failures",
		"Diagnose failed scans and apply conservative fixes. All fix actions are dry-run previews unless confirm=true; writes only reactivate existing inactive records.",
		tools.NewRemediateTool(s.snowClient),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"action":  actionProp("Operation to perform (default diagnose)", "diagnose", "credential_fix", "network_fix", "classification_fix", "bulk_remediate"),
				"scan_id": stringProp("Scan sys_id (required for all actions except bulk_remediate)"),
				"confirm": boolProp("Set true to actually apply changes; false (default) previews the plan without writing"),
				"limit":   intProp("Optional: max failed scans for bulk_remediate (default 5, max 20)"),
			},
			"required": []string{"action"},
		},
	)

	s.registerTool(
		"compare_discovery_runs",
		"Compare two discovery scans (CI sets, errors, headline metrics) or walk the last N scans of a schedule sequentially",
		tools.NewCompareTool(s.snowClient),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"action":      actionProp("Operation to perform (default compare)", "compare", "sequential"),
				"scan_a":      stringProp("Baseline scan sys_id (required for compare)"),
				"scan_b":      stringProp("Comparison scan sys_id (required for compare)"),
				"schedule_id": stringProp("Schedule sys_id (required for sequential)"),
				"last_n":      intProp("Optional: number of recent scans to compare sequentially (default 5, max 20)"),
			},
			"required": []string{"action"},
		},
	)

	s.registerTool(
		"get_discovery_health",
		"Compute a composite discovery health score (0-100) over a trailing window: scan success, schedule, credential and range health, top errors, recommendations",
		tools.NewHealthTool(s.snowClient),
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"period":                  actionProp("Trailing window (default week)", "day", "week", "month"),
				"include_recommendations": boolProp("Optional: include actionable recommendations (default true)"),
			},
		},
	)
}

func (s *AgentServer) registerTool(name, description string, tool Tool, inputSchema map[string]interface{}) {
	s.tools[name] = tool

	schemaJSON, err := json.Marshal(inputSchema)
	if err != nil {
		// Schemas are static literals; a marshal failure is a programming error
		panic(fmt.Sprintf("Failed to marshal schema for tool %s: %v", name, err))
	}

	mcpTool := mcp.NewToolWithRawSchema(name, description, schemaJSON)
	s.mcpServer.AddTool(mcpTool, s.createToolHandler(tool))
}

func (s *AgentServer) createToolHandler(tool Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Tool execution failed: %v", err)), nil
		}

		resultJSON, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
		}

		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

// GetMCPServer returns the underlying mcp-go server for transport setup
func (s *AgentServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
