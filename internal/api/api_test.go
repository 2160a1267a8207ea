package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/verho/replayd/internal/history"
	"github.com/verho/replayd/internal/hook"
	"github.com/verho/replayd/internal/hostinput"
	"github.com/verho/replayd/internal/models"
	"github.com/verho/replayd/internal/player"
	"github.com/verho/replayd/internal/recorder"
	"github.com/verho/replayd/internal/registry"
	"github.com/verho/replayd/internal/simulate"
	"github.com/verho/replayd/internal/testutil"
)

type testEnv struct {
	router  http.Handler
	backend *testutil.FakeBackend
	source  *testutil.FakeSource
	targets *registry.TargetService
	macros  *registry.MacroService
	pl      *player.Player
}

func newTestEnv(t *testing.T) *testEnv {
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
	source := testutil.NewFakeSource()
	rec := recorder.New(targets, macros, source, displays, logger)
	hist := testutil.TestHistory(t)
	sink := player.RunSinkFunc(func(r player.Run) error {
		return hist.RecordRun(history.Run{
			MacroID:       r.MacroID,
			MacroName:     r.MacroName,
			StartedAt:     r.StartedAt,
			FinishedAt:    r.FinishedAt,
			Iterations:    r.Iterations,
			StepsExecuted: r.StepsExecuted,
			Outcome:       r.Outcome,
			Error:         r.Error,
		})
	})
	pl := player.New(targets, sim, displays, sink, logger)

	h := NewHandler(targets, macros, rec, pl, hist, displays, nil)
	return &testEnv{
		router:  NewRouter(h, false, "", nil),
		backend: backend,
		source:  source,
		targets: targets,
		macros:  macros,
		pl:      pl,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestTargetCRUD(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/targets", CreateTargetRequest{
		Name:        "ok-button",
		Coordinates: models.Coordinates{X: 50, Y: 60, DisplayID: "0"},
		ClickType:   models.ClickLeft,
		ClickCount:  1,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	created := decode[models.Target](t, w)
	if created.ID == "" || created.Name != "ok-button" {
		t.Fatalf("unexpected created target: %+v", created)
	}

	w = e.do(t, http.MethodGet, "/targets", nil)
	list := decode[TargetListResponse](t, w)
	if list.Total != 1 || len(list.Targets) != 1 {
		t.Fatalf("list = %+v, want 1 target", list)
	}

	w = e.do(t, http.MethodGet, "/targets/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	name := "cancel-button"
	w = e.do(t, http.MethodPut, "/targets/"+created.ID, UpdateTargetRequest{Name: &name})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", w.Code, w.Body.String())
	}
	updated := decode[models.Target](t, w)
	if updated.Name != "cancel-button" {
		t.Errorf("name = %q after update", updated.Name)
	}
	if updated.Coordinates.X != 50 {
		t.Errorf("coordinates should be unchanged, got %+v", updated.Coordinates)
	}

	w = e.do(t, http.MethodDelete, "/targets/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = e.do(t, http.MethodGet, "/targets/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", w.Code)
	}
}

func TestCreateTargetValidation(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/targets", CreateTargetRequest{
		Name:        "",
		Coordinates: models.Coordinates{X: 1, Y: 1, DisplayID: "0"},
		ClickType:   models.ClickLeft,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body %s", w.Code, w.Body.String())
	}
}

func TestTestTargetClicksResolvedPosition(t *testing.T) {
	e := newTestEnv(t)

	// Display "1" has its origin at (1920, 0); local (50, 50) resolves
	// to desktop-global (1970, 50).
	w := e.do(t, http.MethodPost, "/targets", CreateTargetRequest{
		Name:        "second-screen",
		Coordinates: models.Coordinates{X: 50, Y: 50, DisplayID: "1"},
		ClickType:   models.ClickLeft,
		ClickCount:  1,
	})
	created := decode[models.Target](t, w)

	w = e.do(t, http.MethodPost, "/targets/"+created.ID+"/test", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("test status = %d, body %s", w.Code, w.Body.String())
	}

	moves := e.backend.CallsLike("move")
	if len(moves) == 0 || moves[len(moves)-1] != "move 1970 50" {
		t.Errorf("final move = %v, want move 1970 50", moves)
	}
	clicks := e.backend.CallsLike("click")
	if len(clicks) != 1 || clicks[0] != "click left" {
		t.Errorf("clicks = %v, want one left click", clicks)
	}
}

func TestTestTargetNotFound(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/targets/nope/test", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func sampleSteps() []models.MacroStep {
	return []models.MacroStep{
		{Order: 1, Action: models.ClickAction{X: 10, Y: 20, DisplayID: "0", ClickType: models.ClickLeft, ClickCount: 1}},
		{Order: 2, Action: models.DelayAction{DurationMs: 10}},
		{Order: 3, Action: models.TextAction{Text: "hello"}},
	}
}

func TestMacroCRUD(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/macros", CreateMacroRequest{
		Name:  "greeting",
		Steps: sampleSteps(),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	created := decode[models.Macro](t, w)
	if len(created.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(created.Steps))
	}
	for _, s := range created.Steps {
		if s.ID == "" {
			t.Errorf("step %d has no assigned ID", s.Order)
		}
	}

	w = e.do(t, http.MethodGet, "/macros", nil)
	list := decode[MacroListResponse](t, w)
	if list.Total != 1 {
		t.Fatalf("list total = %d", list.Total)
	}

	desc := "types a greeting"
	w = e.do(t, http.MethodPut, "/macros/"+created.ID, UpdateMacroRequest{Description: &desc})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", w.Code, w.Body.String())
	}
	updated := decode[models.Macro](t, w)
	if updated.Description != desc {
		t.Errorf("description = %q", updated.Description)
	}

	w = e.do(t, http.MethodDelete, "/macros/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
}

func TestCreateMacroDuplicateOrder(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/macros", CreateMacroRequest{
		Name: "bad",
		Steps: []models.MacroStep{
			{Order: 1, Action: models.DelayAction{DurationMs: 1}},
			{Order: 1, Action: models.DelayAction{DurationMs: 2}},
		},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body %s", w.Code, w.Body.String())
	}
}

func TestRecordingFlow(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/recording/start", StartRecordingRequest{Name: "captured"})
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", w.Code, w.Body.String())
	}
	state := decode[recorder.State](t, w)
	if !state.Active || state.MacroName != "captured" {
		t.Fatalf("state = %+v", state)
	}

	// Second start conflicts.
	w = e.do(t, http.MethodPost, "/recording/start", StartRecordingRequest{Name: "again"})
	if w.Code != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", w.Code)
	}

	// A user click on the second display lands as a display-relative step.
	e.source.FireClick(hook.ClickEvent{X: 1970, Y: 50, Button: models.ClickLeft, Clicks: 1, At: time.Now()})

	w = e.do(t, http.MethodPost, "/recording/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop status = %d, body %s", w.Code, w.Body.String())
	}
	var res struct {
		Macro models.Macro `json:"macro"`
		Empty bool         `json:"empty"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Empty || len(res.Macro.Steps) != 1 {
		t.Fatalf("stop result = %+v", res)
	}
	click, ok := res.Macro.Steps[0].Action.(models.ClickAction)
	if !ok {
		t.Fatalf("step action = %T, want ClickAction", res.Macro.Steps[0].Action)
	}
	if click.X != 50 || click.Y != 50 || click.DisplayID != "1" {
		t.Errorf("captured click = %+v, want local (50,50) on display 1", click)
	}

	// Recorder is idle again and the macro is stored.
	w = e.do(t, http.MethodGet, "/recording/state", nil)
	if decode[recorder.State](t, w).Active {
		t.Error("recorder still active after stop")
	}
	w = e.do(t, http.MethodGet, "/macros", nil)
	if decode[MacroListResponse](t, w).Total != 1 {
		t.Error("recorded macro not listed")
	}
}

func TestStopRecordingWithoutSession(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/recording/stop", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	w = e.do(t, http.MethodPost, "/recording/cancel", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("cancel status = %d, want 409", w.Code)
	}
}

func TestPlaybackFlow(t *testing.T) {
	e := newTestEnv(t)

	m, err := e.macros.Create("typing", "", []models.MacroStep{
		{Order: 1, Action: models.TextAction{Text: "hi"}},
		{Order: 2, Action: models.DelayAction{DurationMs: 5}},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := e.do(t, http.MethodPost, "/playback/play", PlayRequest{MacroID: m.ID})
	if w.Code != http.StatusAccepted {
		t.Fatalf("play status = %d, body %s", w.Code, w.Body.String())
	}

	waitIdle(t, e)

	if got := e.backend.CallsLike("type"); len(got) != 1 || got[0] != "type hi" {
		t.Errorf("typed calls = %v", got)
	}

	// The finished run is in the history.
	deadline := time.Now().Add(2 * time.Second)
	for {
		w = e.do(t, http.MethodGet, "/runs", nil)
		var runs struct {
			Total int `json:"total"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
			t.Fatal(err)
		}
		if runs.Total == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run never recorded, body %s", w.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitIdle(t *testing.T, e *testEnv) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for e.pl.State().Active {
		if time.Now().After(deadline) {
			t.Fatal("playback never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPlayUnknownMacro(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/playback/play", PlayRequest{MacroID: "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestPlayEmptyMacro(t *testing.T) {
	e := newTestEnv(t)
	m, err := e.macros.Create("empty", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	w := e.do(t, http.MethodPost, "/playback/play", PlayRequest{MacroID: m.ID})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body %s", w.Code, w.Body.String())
	}
}

func TestSpeedWithoutPlayback(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPut, "/playback/speed", SpeedRequest{Speed: 2})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body %s", w.Code, w.Body.String())
	}
}

func TestListDisplays(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/displays", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	list := decode[DisplayListResponse](t, w)
	if len(list.Displays) != 2 {
		t.Fatalf("displays = %d, want 2", len(list.Displays))
	}
	if !list.Displays[0].IsPrimary {
		t.Error("first display should be primary")
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := newTestEnv(t)
	// Rebuild the router with auth enabled over the same handler set.
	h := NewHandler(e.targets, e.macros, nil, nil, nil, registry.DisplaysFunc(e.backend.Displays), nil)
	router := NewRouter(h, true, "secret", nil)

	req := httptest.NewRequest(http.MethodGet, "/targets", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/targets", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/targets", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid token status = %d, want 200", w.Code)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/targets", strings.NewReader("{nope"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var body errResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Error == "" {
		t.Errorf("expected error body, got %q", w.Body.String())
	}
}

func TestRunsEmptyList(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, fmt.Sprintf("/runs?limit=%d&macro_id=%s", 5, "m-x"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var runs struct {
		Runs  []any `json:"runs"`
		Total int   `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if runs.Total != 0 || runs.Runs == nil {
		t.Errorf("expected empty runs array, got %s", w.Body.String())
	}
}
