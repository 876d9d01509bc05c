package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/snowops/discovery-agent/internal/discovery"
	"github.com/snowops/discovery-agent/internal/snow"
)

const maxPatternFetch = 500

// PatternsInput is the parameter shape of get_discovery_patterns.
type PatternsInput struct {
	Action     string `json:"action"`
	PatternID  string `json:"pattern_id,omitempty"`
	CIType     string `json:"ci_type,omitempty"`
	Active     *bool  `json:"active,omitempty"`
	NameFilter string `json:"name_filter,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// PatternsTool reads and analyzes cmdb_ci_pattern classification rules.
type PatternsTool struct {
	client TableClient
}

func NewPatternsTool(client TableClient) *PatternsTool {
	return &PatternsTool{client: client}
}

func (t *PatternsTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var params PatternsInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail("", snow.InvalidParameter("invalid input: %v", err)), nil
	}

	action := normalizeAction(params.Action)
	switch action {
	case "list", "":
		return t.list(ctx, params), nil
	case "get":
		return t.get(ctx, params), nil
	case "analyze":
		return t.analyze(ctx, params), nil
	case "coverage":
		return t.coverage(ctx), nil
	default:
		return invalidAction(action, []string{"list", "get", "analyze", "coverage"}), nil
	}
}

func (t *PatternsTool) list(ctx context.Context, params PatternsInput) *Response {
	q := snow.NewQuery().OrderBy("name")
	if params.CIType != "" {
		q = q.Where("ci_type", snow.OpEquals, params.CIType)
	}
	if params.Active != nil {
		q = q.Where("active", snow.OpEquals, strconv.FormatBool(*params.Active))
	}
	if params.NameFilter != "" {
		q = q.Where("name", snow.OpLike, params.NameFilter)
	}
	limit := clampLimit(params.Limit, maxListLimit, maxPatternFetch)
	patterns, err := fetchPatterns(ctx, t.client, q, limit)
	if err != nil {
		return fail("list", err)
	}
	return ok("list", fmt.Sprintf("Found %s", fmtCount(len(patterns), "pattern", "patterns")), map[string]interface{}{
		"patterns": patternViews(patterns),
		"count":    len(patterns),
	})
}

func (t *PatternsTool) get(ctx context.Context, params PatternsInput) *Response {
	sysID, err := requireSysID(params.PatternID, "pattern_id")
	if err != nil {
		return fail("get", err)
	}
	rec, err := t.client.Get(ctx, discovery.TablePattern, sysID, patternFields)
	if err != nil {
		return fail("get", err)
	}
	pattern := discovery.PatternFromRecord(rec)
	return ok("get", fmt.Sprintf("Retrieved pattern %q (%s)", pattern.Name, sysID), patternView(pattern))
}

// PatternConflict is a pair of active patterns targeting the same CI type.
// Conflicts are reported, not rejected; which pattern wins is an instance
// ordering concern.
type PatternConflict struct {
	PatternA string `json:"pattern_a"`
	PatternB string `json:"pattern_b"`
	Reason   string `json:"reason"`
}

// PatternAnalysis is the analyze action payload for one CI type.
type PatternAnalysis struct {
	CIType           string            `json:"ci_type"`
	TotalPatterns    int               `json:"total_patterns"`
	ActivePatterns   int               `json:"active_patterns"`
	InactivePatterns int               `json:"inactive_patterns"`
	Conflicts        []PatternConflict `json:"conflicts"`
	Patterns         []PatternView     `json:"patterns"`
}

func (t *PatternsTool) analyze(ctx context.Context, params PatternsInput) *Response {
	ciType := strings.TrimSpace(params.CIType)
	if ciType == "" {
		return fail("analyze", snow.InvalidParameter("ci_type is required for the analyze action"))
	}

	patterns, err := fetchPatterns(ctx, t.client,
		snow.NewQuery().Where("ci_type", snow.OpEquals, ciType).OrderBy("name"), maxListLimit)
	if err != nil {
		return fail("analyze", err)
	}

	var active []discovery.Pattern
	for _, p := range patterns {
		if p.Active {
			active = append(active, p)
		}
	}

	analysis := PatternAnalysis{
		CIType:           ciType,
		TotalPatterns:    len(patterns),
		ActivePatterns:   len(active),
		InactivePatterns: len(patterns) - len(active),
		Conflicts:        []PatternConflict{},
		Patterns:         patternViews(patterns),
	}
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			analysis.Conflicts = append(analysis.Conflicts, PatternConflict{
				PatternA: active[i].Name,
				PatternB: active[j].Name,
				Reason:   fmt.Sprintf("Both active patterns target CI type %q", ciType),
			})
		}
	}

	return ok("analyze",
		fmt.Sprintf("Analysis for %q: %s, %s", ciType,
			fmtCount(len(patterns), "pattern", "patterns"),
			fmtCount(len(analysis.Conflicts), "conflict", "conflicts")),
		analysis)
}

// TypeCoverage tallies the patterns covering one CI type.
type TypeCoverage struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

// PatternCoverage is the coverage action payload.
type PatternCoverage struct {
	TotalPatterns   int                     `json:"total_patterns"`
	TotalCITypes    int                     `json:"total_ci_types"`
	CoveredTypes    int                     `json:"covered_types"`
	UncoveredTypes  int                     `json:"uncovered_types"`
	ByType          map[string]TypeCoverage `json:"by_type"`
	TypesWithoutAny []string                `json:"types_without_active_patterns"`
}

func (t *PatternsTool) coverage(ctx context.Context) *Response {
	patterns, err := fetchPatterns(ctx, t.client, snow.NewQuery().OrderBy("ci_type"), maxPatternFetch)
	if err != nil {
		return fail("coverage", err)
	}

	byType := make(map[string]TypeCoverage)
	for _, p := range patterns {
		ciType := p.CIType
		if ciType == "" {
			ciType = "Unknown"
		}
		entry := byType[ciType]
		entry.Total++
		if p.Active {
			entry.Active++
		} else {
			entry.Inactive++
		}
		byType[ciType] = entry
	}

	coverage := PatternCoverage{
		TotalPatterns:   len(patterns),
		TotalCITypes:    len(byType),
		ByType:          byType,
		TypesWithoutAny: []string{},
	}
	for ciType, entry := range byType {
		if entry.Active > 0 {
			coverage.CoveredTypes++
		} else {
			coverage.UncoveredTypes++
			coverage.TypesWithoutAny = append(coverage.TypesWithoutAny, ciType)
		}
	}
	sort.Strings(coverage.TypesWithoutAny)

	return ok("coverage",
		fmt.Sprintf("Coverage: %d/%d CI types have active patterns", coverage.CoveredTypes, coverage.TotalCITypes),
		coverage)
}
