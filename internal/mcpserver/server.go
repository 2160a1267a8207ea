// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes replayd's targets, macros and playback engine for LLM
// integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/verho/replayd/internal/models"
	"github.com/verho/replayd/internal/player"
	"github.com/verho/replayd/internal/registry"
)

// Server wraps the MCP server with replayd tools.
type Server struct {
	mcp     *server.MCPServer
	targets *registry.TargetService
	macros  *registry.MacroService
	pl      *player.Player
}

// New creates a new MCP server with all replayd tools registered.
func New(targets *registry.TargetService, macros *registry.MacroService, pl *player.Player) *Server {
	s := &Server{targets: targets, macros: macros, pl: pl}

	s.mcp = server.NewMCPServer(
		"Replayd",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_targets",
		mcp.WithDescription("List all named click targets with their display-relative coordinates."),
	), s.listTargets)

	s.mcp.AddTool(mcp.NewTool("click_target",
		mcp.WithDescription("Perform a named target's configured click at its current desktop position."),
		mcp.WithString("target_id", mcp.Required(), mcp.Description("ID of the target to click")),
	), s.clickTarget)

	s.mcp.AddTool(mcp.NewTool("list_macros",
		mcp.WithDescription("List all stored macros with their step counts."),
	), s.listMacros)

	s.mcp.AddTool(mcp.NewTool("create_macro",
		mcp.WithDescription("Create a macro from a JSON step list. "+
			"Steps MUST follow the canonical macro format. Read the contract first via "+
			"the get_macro_contract tool or the replayd://macro-format resource."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Macro name")),
		mcp.WithString("description", mcp.Description("Optional free-text description")),
		mcp.WithString("steps", mcp.Required(), mcp.Description("JSON array of steps following the macro format contract")),
	), s.createMacro)

	s.mcp.AddTool(mcp.NewTool("get_macro_contract",
		mcp.WithDescription("Returns the canonical replayd macro format contract. "+
			"Call this before creating macros to ensure correct structure."),
	), s.getMacroContract)

	s.mcp.AddTool(mcp.NewTool("play_macro",
		mcp.WithDescription("Start playback of a stored macro. Playback runs in the background; "+
			"poll get_playback_state for progress."),
		mcp.WithString("macro_id", mcp.Required(), mcp.Description("ID of the macro to play")),
		mcp.WithNumber("speed", mcp.Description("Playback speed multiplier, clamped to [0.25, 4.0] (default 1.0)")),
		mcp.WithBoolean("repeat", mcp.Description("Repeat the macro for repeat_count iterations")),
		mcp.WithNumber("repeat_count", mcp.Description("Number of iterations when repeat is set (default 1; values below 1 run once)")),
	), s.playMacro)

	s.mcp.AddTool(mcp.NewTool("get_playback_state",
		mcp.WithDescription("Return the current playback state (active, paused, step progress, speed)."),
	), s.getPlaybackState)

	s.mcp.AddTool(mcp.NewTool("stop_playback",
		mcp.WithDescription("Stop the current playback. The stop is cooperative; the current step finishes first."),
	), s.stopPlayback)

	// Resource: macro format contract.
	s.mcp.AddResource(
		mcp.NewResource("replayd://macro-format", "Macro Format Contract",
			mcp.WithResourceDescription("Canonical macro JSON format that all macros must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readMacroFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listTargets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, _ := json.MarshalIndent(s.targets.GetAll(), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) clickTarget(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("target_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.targets.Test(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("clicked target: %s", id)), nil
}

func (s *Server) listMacros(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type item struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Steps       int    `json:"steps"`
	}
	var out []item
	for _, m := range s.macros.GetAll() {
		out = append(out, item{ID: m.ID, Name: m.Name, Description: m.Description, Steps: len(m.Steps)})
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) createMacro(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stepsJSON, err := req.RequireString("steps")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	description := req.GetString("description", "")

	var steps []models.MacroStep
	if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid steps JSON: %v", err)), nil
	}

	m, err := s.macros.Create(name, description, steps)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created macro %s with %d steps", m.ID, len(m.Steps))), nil
}

func (s *Server) getMacroContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MacroFormatContract), nil
}

func (s *Server) readMacroFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "replayd://macro-format",
			MIMEType: "text/markdown",
			Text:     MacroFormatContract,
		},
	}, nil
}

func (s *Server) playMacro(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("macro_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.macros.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("macro not found: %s", id)), nil
	}
	if len(m.Steps) == 0 {
		return mcp.NewToolResultError("macro has no steps"), nil
	}
	if s.pl.State().Active {
		return mcp.NewToolResultError("engine is busy"), nil
	}

	opts := player.Options{
		Speed:       req.GetFloat("speed", 0),
		Repeat:      req.GetBool("repeat", false),
		RepeatCount: int(req.GetFloat("repeat_count", 0)),
	}
	go func() {
		if _, err := s.pl.Play(context.Background(), m, opts); err != nil {
			slog.Error("mcp playback failed to start",
				slog.String("macro_id", m.ID),
				slog.String("error", err.Error()))
		}
	}()

	return mcp.NewToolResultText(fmt.Sprintf("playback started: %s (%d steps)", m.Name, len(m.Steps))), nil
}

func (s *Server) getPlaybackState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, _ := json.MarshalIndent(s.pl.State(), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) stopPlayback(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.pl.Stop(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("stop requested"), nil
}
