package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/verho/replayd/internal/hostinput"
	"github.com/verho/replayd/internal/models"
	"github.com/verho/replayd/internal/player"
	"github.com/verho/replayd/internal/registry"
	"github.com/verho/replayd/internal/simulate"
	"github.com/verho/replayd/internal/testutil"
)

func testServer(t *testing.T) (*Server, *testutil.FakeBackend) {
	t.Helper()

	_, provider := testutil.TestStore(t)
	backend := testutil.NewFakeBackend()
	sup := &hostinput.Suppressor{}
	sim := simulate.New(backend, sup)
	sim.SetSleep(func(time.Duration) {})
	displays := registry.DisplaysFunc(backend.Displays)
	logger := testutil.DiscardLogger()

	targets := registry.NewTargetService(provider, sim, displays, logger)
	macros := registry.NewMacroService(provider, logger)
	pl := player.New(targets, sim, displays, nil, logger)

	return New(targets, macros, pl), backend
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so tool handlers
	// are called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_targets":
		result, err = srv.listTargets(ctx, req)
	case "click_target":
		result, err = srv.clickTarget(ctx, req)
	case "list_macros":
		result, err = srv.listMacros(ctx, req)
	case "create_macro":
		result, err = srv.createMacro(ctx, req)
	case "get_macro_contract":
		result, err = srv.getMacroContract(ctx, req)
	case "play_macro":
		result, err = srv.playMacro(ctx, req)
	case "get_playback_state":
		result, err = srv.getPlaybackState(ctx, req)
	case "stop_playback":
		result, err = srv.stopPlayback(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndListMacros(t *testing.T) {
	srv, _ := testServer(t)

	steps := `[{"order":1,"action":{"type":"text","text":"hi"}},{"order":2,"action":{"type":"delay","duration_ms":5}}]`
	r := callTool(t, srv, "create_macro", map[string]interface{}{
		"name":  "typing",
		"steps": steps,
	})
	if r.IsError {
		t.Fatalf("create failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "2 steps") {
		t.Errorf("create result = %q", resultText(r))
	}

	r = callTool(t, srv, "list_macros", map[string]interface{}{})
	if !strings.Contains(resultText(r), `"typing"`) {
		t.Errorf("list result = %q", resultText(r))
	}
}

func TestCreateMacroInvalidSteps(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_macro", map[string]interface{}{
		"name":  "bad",
		"steps": `[{"order":1,"action":{"type":"warp"}}]`,
	})
	if !r.IsError {
		t.Fatal("expected error for unknown action type")
	}
}

func TestClickTarget(t *testing.T) {
	srv, backend := testServer(t)

	tgt, err := srv.targets.Create("btn", models.Coordinates{X: 5, Y: 6, DisplayID: "0"}, models.ClickLeft, 1)
	if err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "click_target", map[string]interface{}{"target_id": tgt.ID})
	if r.IsError {
		t.Fatalf("click failed: %s", resultText(r))
	}
	if got := backend.CallsLike("click"); len(got) != 1 {
		t.Errorf("clicks = %v, want 1", got)
	}
}

func TestClickTargetMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "click_target", map[string]interface{}{"target_id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing target")
	}
}

func TestPlayMacroAndState(t *testing.T) {
	srv, backend := testServer(t)

	m, err := srv.macros.Create("typing", "", []models.MacroStep{
		{Order: 1, Action: models.TextAction{Text: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "play_macro", map[string]interface{}{"macro_id": m.ID})
	if r.IsError {
		t.Fatalf("play failed: %s", resultText(r))
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.pl.State().Active {
		if time.Now().After(deadline) {
			t.Fatal("playback never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := backend.CallsLike("type"); len(got) != 1 {
		t.Errorf("typed calls = %v", got)
	}

	r = callTool(t, srv, "get_playback_state", map[string]interface{}{})
	var state player.State
	if err := json.Unmarshal([]byte(resultText(r)), &state); err != nil {
		t.Fatalf("state not JSON: %q", resultText(r))
	}
	if state.Active {
		t.Error("state should be idle after run")
	}
}

func TestPlayMacroRepeatCountZeroRunsOnce(t *testing.T) {
	srv, backend := testServer(t)

	m, err := srv.macros.Create("typing", "", []models.MacroStep{
		{Order: 1, Action: models.TextAction{Text: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "play_macro", map[string]interface{}{
		"macro_id":     m.ID,
		"repeat":       true,
		"repeat_count": 0,
	})
	if r.IsError {
		t.Fatalf("play failed: %s", resultText(r))
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.pl.State().Active {
		if time.Now().After(deadline) {
			t.Fatal("playback never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := backend.CallsLike("type"); len(got) != 1 {
		t.Errorf("typed calls = %v, a repeat count below one runs a single iteration", got)
	}
}

func TestPlayMacroEmpty(t *testing.T) {
	srv, _ := testServer(t)
	m, err := srv.macros.Create("empty", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	r := callTool(t, srv, "play_macro", map[string]interface{}{"macro_id": m.ID})
	if !r.IsError {
		t.Error("expected error for empty macro")
	}
}

func TestStopWithoutPlayback(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "stop_playback", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error when nothing is playing")
	}
}

func TestMacroContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_macro_contract", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "Macro Format Contract") || !strings.Contains(text, `"type": "click"`) {
		t.Errorf("contract missing expected content")
	}
}
