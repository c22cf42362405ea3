package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/catalog"
	"github.com/rmax-ai/auditsim/pkg/config"
	"github.com/rmax-ai/auditsim/pkg/logging"
	"github.com/rmax-ai/auditsim/pkg/scenario"
	"github.com/rmax-ai/auditsim/pkg/simulation"
	"github.com/rmax-ai/auditsim/pkg/telemetry"
)

// Limits for simulations started over MCP. Runs are virtual-paced, so
// they finish as fast as the host allows.
const (
	MaxPopulation = 200
	MaxDuration   = 7 * 24 * 60 * 60 // seconds
)

// Server exposes the simulator to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	registry  *scenario.Registry
	catalog   *catalog.Catalog
	model     *behavior.Model
	logger    *slog.Logger
}

// NewServer creates a new MCP server instance.
func NewServer(version string, logger *slog.Logger) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"auditsim",
			version,
		),
		registry: scenario.Builtin(),
		catalog:  catalog.Default(),
		model:    behavior.DefaultModel(),
		logger:   logging.OrDefault(logger).With("component", "mcp"),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		"auditsim://scenarios",
		"Scenario Library",
		mcp.WithResourceDescription("Built-in multi-stage suspicious behavior scenarios"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadScenarios)

	s.mcpServer.AddResource(mcp.NewResource(
		"auditsim://roles",
		"Roles and Access",
		mcp.WithResourceDescription("Simulated roles with their departments, clearances and reachable entities"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadRoles)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"list_scenarios",
		mcp.WithDescription("List the built-in scenarios with their stages and eligible roles."),
	), s.handleListScenarios)

	s.mcpServer.AddTool(mcp.NewTool(
		"list_roles",
		mcp.WithDescription("List simulated roles, their departments, clearance and behavior states."),
	), s.handleListRoles)

	s.mcpServer.AddTool(mcp.NewTool(
		"run_simulation",
		mcp.WithDescription("Run a deterministic virtual-time simulation against a mock sink and return its report."),
		mcp.WithNumber("population", mcp.Description("Number of agents (default 20, max 200)")),
		mcp.WithNumber("duration_seconds", mcp.Description("Simulated duration in seconds (default 28800)")),
		mcp.WithNumber("seed", mcp.Description("RNG seed (default 1)")),
		mcp.WithString("start_time", mcp.Description("RFC3339 start of simulated time")),
		mcp.WithString("scenarios", mcp.Description("Comma-separated scenario names to enable (default all)")),
		mcp.WithNumber("scenario_fraction", mcp.Description("Share of agents assigned a scenario (default 0.1)")),
		mcp.WithNumber("error_rate", mcp.Description("Share of actions the mock target rejects (default 0.02)")),
	), s.handleRunSimulation)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"auditsim-analyst",
		mcp.WithPromptDescription("Explains the simulator's concepts for building audit-log datasets"),
	), s.handleGetPrompt)
}

// --- Handlers ---

type scenarioView struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Roles       []string `json:"roles"`
	Stages      []string `json:"stages"`
}

func (s *Server) scenarios() []scenarioView {
	defs := s.registry.Definitions()
	out := make([]scenarioView, 0, len(defs))
	for _, d := range defs {
		v := scenarioView{Name: d.Name, Description: d.Description}
		for _, r := range behavior.AllRoles() {
			if d.AllowsRole(r) {
				v.Roles = append(v.Roles, string(r))
			}
		}
		for _, st := range d.Stages {
			v.Stages = append(v.Stages, fmt.Sprintf("%s (%s %s, when %s)", st.Name, st.Operation, st.Target, st.When))
		}
		out = append(out, v)
	}
	return out
}

type roleView struct {
	Role       string   `json:"role"`
	Department string   `json:"department"`
	Human      bool     `json:"human"`
	Clearance  string   `json:"clearance"`
	Entities   []string `json:"entities"`
	States     []string `json:"states"`
}

func (s *Server) roles() []roleView {
	var out []roleView
	for _, r := range behavior.AllRoles() {
		v := roleView{
			Role:       string(r),
			Department: r.Department(),
			Human:      r.Human(),
			Clearance:  s.catalog.Clearance(r).String(),
			Entities:   s.catalog.Access(r),
		}
		for _, st := range s.model.States(r) {
			v.States = append(v.States, string(st))
		}
		sort.Strings(v.Entities)
		out = append(out, v)
	}
	return out
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleReadScenarios(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(request.Params.URI, s.scenarios())
}

func (s *Server) handleReadRoles(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(request.Params.URI, s.roles())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleListScenarios(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.scenarios())
}

func (s *Server) handleListRoles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.roles())
}

// runSummary is the part of the report returned to MCP clients; per-agent
// detail is left out to keep the reply small.
type runSummary struct {
	RunID           string           `json:"run_id"`
	Agents          int              `json:"agents"`
	Actions         int64            `json:"actions"`
	Succeeded       int64            `json:"succeeded"`
	Failed          int64            `json:"failed"`
	Retries         int64            `json:"retries"`
	ScenarioActions int64            `json:"scenario_actions"`
	TierUsage       map[string]int64 `json:"tier_usage"`
	ErrorKinds      map[string]int64 `json:"error_kinds"`
	Scenarios       scenario.Stats   `json:"scenarios"`
	Sample          []string         `json:"sample_payloads"`
}

func (s *Server) handleRunSimulation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	population := mcp.ParseInt(request, "population", 20)
	duration := mcp.ParseFloat64(request, "duration_seconds", 8*60*60)
	if population <= 0 || population > MaxPopulation {
		return mcp.NewToolResultError(fmt.Sprintf("population must be within 1..%d", MaxPopulation)), nil
	}
	if duration <= 0 || duration > MaxDuration {
		return mcp.NewToolResultError(fmt.Sprintf("duration_seconds must be within 1..%d", MaxDuration)), nil
	}

	raw := map[string]any{
		"population_size":    population,
		"speed_multiplier":   1,
		"simulated_duration": duration,
		"pacing":             string(simulation.PacingVirtual),
		"rng_seed":           mcp.ParseInt64(request, "seed", 1),
		"scenario_fraction":  mcp.ParseFloat64(request, "scenario_fraction", 0.1),
		"grace_period":       "2s",
		"sink": map[string]any{
			"kind":       config.SinkMock,
			"error_rate": mcp.ParseFloat64(request, "error_rate", 0.02),
		},
	}
	if start := mcp.ParseString(request, "start_time", ""); start != "" {
		raw["start_time"] = start
	}
	if names := strings.TrimSpace(mcp.ParseString(request, "scenarios", "")); names != "" {
		raw["scenarios"] = names
	}

	cfg, err := config.FromMap(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	run, err := cfg.Build(s.logger, config.WithRecordCopy())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer run.Close()

	report, err := run.Scheduler.Run(ctx, run.Population)
	if err != nil && report == nil {
		return mcp.NewToolResultError(fmt.Sprintf("simulation failed: %v", err)), nil
	}

	sum := runSummary{
		RunID:           report.RunID,
		Agents:          report.Agents,
		Actions:         report.Actions,
		Succeeded:       report.Succeeded,
		Failed:          report.Failed,
		Retries:         report.Retries,
		ScenarioActions: report.ScenarioActions,
		TierUsage:       make(map[string]int64, len(report.TierUsage)),
		ErrorKinds:      report.ErrorKinds,
		Scenarios:       report.Scenarios,
	}
	for tier, n := range report.TierUsage {
		sum.TierUsage[string(tier)] = n
	}
	for i, r := range telemetry.Canonical(run.Memory.Records()) {
		if i == 5 {
			break
		}
		sum.Sample = append(sum.Sample, r.Payload)
	}
	return jsonResult(sum)
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "auditsim-analyst" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are working with auditsim, a simulator that produces synthetic database audit events.

Concepts:
- Agent: a simulated employee or service account with a role, expertise and work schedule.
- Role: the department an agent belongs to; it decides which tables the agent may touch.
- State: what the agent is doing (idle, query, update, export, admin, break, offline).
- Action: one SQL statement with its target, operation and outcome.
- Scenario: a scripted multi-stage suspicious sequence (for example off-hours exfiltration)
  that a small share of agents run on top of their normal behavior.

Use 'list_scenarios' and 'list_roles' to explore, and 'run_simulation' to generate a
small labelled dataset. Scenario-driven actions carry a scenario id and stage index.
`

	return mcp.NewGetPromptResult(
		"auditsim-analyst",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
