package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/mediaout/internal/api/models"
	"github.com/smazurov/mediaout/internal/config"
	"github.com/smazurov/mediaout/internal/engine"
	"github.com/smazurov/mediaout/internal/logging"
	"github.com/smazurov/mediaout/internal/sinks"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	return testEngineWith(t, nil)
}

func testEngineWith(t *testing.T, edit func(*config.EngineConfig)) *engine.Engine {
	t.Helper()
	cfg := config.DefaultEngine()
	cfg.Encoders["h264"] = config.EncoderConfig{Type: "video"}
	cfg.Encoders["aac"] = config.EncoderConfig{Type: "audio"}
	cfg.Outputs["recorder"] = config.OutputConfig{
		Type:         sinks.NullOutputID,
		VideoEncoder: "h264",
		AudioEncoder: "aac",
		Settings:     map[string]any{sinks.SettingHistory: 8},
	}
	cfg.Outputs["monitor"] = config.OutputConfig{Type: sinks.RawMonitorID}
	if edit != nil {
		edit(cfg)
	}

	types, err := engine.DefaultTypes()
	if err != nil {
		t.Fatal(err)
	}
	e, err := engine.New(types, cfg)
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func newTestAPI(t *testing.T, opts *Options) humatest.TestAPI {
	t.Helper()
	_, api := humatest.New(t)
	s := newServer(api, opts)
	s.registerRoutes()
	return api
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return v
}

func TestHealth(t *testing.T) {
	e := testEngine(t)
	api := newTestAPI(t, &Options{Engine: e})

	resp := api.Get("/api/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	got := decode[models.HealthData](t, resp.Body.Bytes())
	if got.Outputs != 2 || got.Active != 0 {
		t.Errorf("health = %+v", got)
	}
}

func TestListTypes(t *testing.T) {
	api := newTestAPI(t, &Options{Engine: testEngine(t)})

	resp := api.Get("/api/types")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	got := decode[models.TypeListData](t, resp.Body.Bytes())
	if got.Count != 2 {
		t.Fatalf("count = %d", got.Count)
	}
	// IDs are sorted.
	if got.Types[0].ID != sinks.NullOutputID || got.Types[1].ID != sinks.RawMonitorID {
		t.Errorf("types = %+v", got.Types)
	}
	if got.Types[0].Flags != "encoded|video|audio" {
		t.Errorf("null_output flags = %q", got.Types[0].Flags)
	}
	if len(got.Types[0].Properties) == 0 {
		t.Error("null_output has no properties")
	}
}

func TestListEncoders(t *testing.T) {
	api := newTestAPI(t, &Options{Engine: testEngine(t)})

	got := decode[models.EncoderListData](t, api.Get("/api/encoders").Body.Bytes())
	if got.Count != 2 {
		t.Fatalf("count = %d", got.Count)
	}
	for _, enc := range got.Encoders {
		if enc.Outputs != 1 || enc.Active {
			t.Errorf("encoder %+v", enc)
		}
	}
}

func TestOutputLifecycle(t *testing.T) {
	e := testEngine(t)
	api := newTestAPI(t, &Options{Engine: e})

	got := decode[models.OutputData](t, api.Get("/api/outputs/recorder").Body.Bytes())
	if got.Type != sinks.NullOutputID || got.VideoEncoder != "h264" || got.AudioEncoder != "aac" {
		t.Errorf("recorder = %+v", got)
	}
	if !got.CanPause || len(got.Procs) != 2 {
		t.Errorf("recorder pause/procs = %v %v", got.CanPause, got.Procs)
	}

	// Lookup by ID works too.
	if resp := api.Get("/api/outputs/" + got.ID); resp.Code != http.StatusOK {
		t.Errorf("get by id status = %d", resp.Code)
	}

	resp := api.Post("/api/outputs/recorder/start")
	if resp.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", resp.Code, resp.Body.String())
	}
	if !decode[models.OutputActionData](t, resp.Body.Bytes()).Active {
		t.Error("recorder not active after start")
	}
	if resp := api.Post("/api/outputs/recorder/start"); resp.Code != http.StatusConflict {
		t.Errorf("second start status = %d", resp.Code)
	}

	resp = api.Post("/api/outputs/recorder/stop")
	if resp.Code != http.StatusOK || decode[models.OutputActionData](t, resp.Body.Bytes()).Active {
		t.Errorf("stop = %d %s", resp.Code, resp.Body.String())
	}
	if e.Output("recorder").IsActive() {
		t.Error("recorder still active")
	}
}

func TestOutputSchedule(t *testing.T) {
	e := testEngineWith(t, func(cfg *config.EngineConfig) {
		oc := cfg.Outputs["monitor"]
		oc.Schedule = &config.ScheduleConfig{Start: "0 9 * * *"}
		cfg.Outputs["monitor"] = oc
	})
	api := newTestAPI(t, &Options{Engine: e})

	got := decode[models.OutputData](t, api.Get("/api/outputs/monitor").Body.Bytes())
	if got.NextStart == "" || got.NextStop != "" {
		t.Errorf("schedule = %q / %q", got.NextStart, got.NextStop)
	}
	next, err := time.Parse(time.RFC3339, got.NextStart)
	if err != nil || next.Hour() != 9 {
		t.Errorf("next start = %v, %v", next, err)
	}
}

func TestStartWithoutProducersConflicts(t *testing.T) {
	e := testEngine(t)
	e.Output("recorder").SetVideoEncoder(nil)
	e.Output("recorder").SetAudioEncoder(nil)
	api := newTestAPI(t, &Options{Engine: e})

	if resp := api.Post("/api/outputs/recorder/start"); resp.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.Code)
	}
}

func TestOutputErrors(t *testing.T) {
	api := newTestAPI(t, &Options{Engine: testEngine(t)})

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"unknown output", http.MethodGet, "/api/outputs/missing", http.StatusNotFound},
		{"start unknown output", http.MethodPost, "/api/outputs/missing/start", http.StatusNotFound},
		{"pause unsupported", http.MethodPost, "/api/outputs/monitor/pause", http.StatusBadRequest},
		{"unknown proc", http.MethodPost, "/api/outputs/recorder/procs/rewind", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *httptest.ResponseRecorder
			if tt.method == http.MethodGet {
				resp = api.Get(tt.path)
			} else {
				resp = api.Post(tt.path)
			}
			if resp.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", resp.Code, tt.want, resp.Body.String())
			}
		})
	}
}

func TestPauseOutput(t *testing.T) {
	e := testEngine(t)
	api := newTestAPI(t, &Options{Engine: e})

	if resp := api.Post("/api/outputs/recorder/pause"); resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	res, err := e.Output("recorder").Procs().Call(context.Background(), "stats", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res["paused"] != true {
		t.Errorf("stats = %v", res)
	}
}

func TestUpdateSettings(t *testing.T) {
	e := testEngine(t)

	var saved map[string]any
	var savedFor string
	api := newTestAPI(t, &Options{
		Engine: e,
		OnSettingsChanged: func(name string, values map[string]any) error {
			savedFor, saved = name, values
			return nil
		},
	})

	resp := api.Patch("/api/outputs/recorder/settings", map[string]any{sinks.SettingFailCode: -5})
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	got := decode[models.SettingsData](t, resp.Body.Bytes())
	if got.Settings[sinks.SettingFailCode] != float64(-5) {
		t.Errorf("fail_code = %v", got.Settings[sinks.SettingFailCode])
	}
	if got.Settings[sinks.SettingHistory] != float64(8) {
		t.Errorf("history = %v, want 8 kept", got.Settings[sinks.SettingHistory])
	}

	if savedFor != "recorder" || saved[sinks.SettingFailCode] == nil {
		t.Errorf("persisted %q %v", savedFor, saved)
	}

	s := e.Output("recorder").Settings()
	defer s.Release()
	if s.Int(sinks.SettingFailCode) != -5 {
		t.Errorf("output fail_code = %d", s.Int(sinks.SettingFailCode))
	}
}

func TestUpdateSettingsPersistFailure(t *testing.T) {
	api := newTestAPI(t, &Options{
		Engine: testEngine(t),
		OnSettingsChanged: func(string, map[string]any) error {
			return errors.New("disk full")
		},
	})

	resp := api.Patch("/api/outputs/recorder/settings", map[string]any{sinks.SettingHistory: 2})
	if resp.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", resp.Code)
	}
}

func TestOutputProperties(t *testing.T) {
	api := newTestAPI(t, &Options{Engine: testEngine(t)})

	got := decode[models.PropertiesData](t, api.Get("/api/outputs/recorder/properties").Body.Bytes())
	if got.Locale != "en-US" {
		t.Errorf("locale = %q", got.Locale)
	}
	var history any
	for _, p := range got.Properties {
		if p.Name == sinks.SettingHistory {
			history = p.Value
		}
	}
	if history != float64(8) {
		t.Errorf("history property = %v", history)
	}
}

func TestCallProc(t *testing.T) {
	api := newTestAPI(t, &Options{Engine: testEngine(t)})

	resp := api.Post("/api/outputs/recorder/procs/stats", map[string]any{})
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	got := decode[models.ProcData](t, resp.Body.Bytes())
	if got.Proc != "stats" || got.Result["packets"] != float64(0) {
		t.Errorf("proc = %+v", got)
	}
}

func TestBasicAuth(t *testing.T) {
	s := NewServer(&Options{
		Engine:       testEngine(t),
		AuthUsername: "admin",
		AuthPassword: "secret",
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	tests := []struct {
		name string
		path string
		user string
		pass string
		want int
	}{
		{"health is public", "/api/health", "", "", http.StatusOK},
		{"missing credentials", "/api/outputs", "", "", http.StatusUnauthorized},
		{"wrong password", "/api/outputs", "admin", "nope", http.StatusUnauthorized},
		{"valid credentials", "/api/outputs", "admin", "secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL+tt.path, nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	s := NewServer(&Options{Engine: testEngine(t)})
	req := httptest.NewRequest(http.MethodOptions, "/api/outputs", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing allow-origin header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := NewServer(&Options{Engine: testEngine(t), PrometheusHandler: promhttp.Handler()})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing runtime collectors")
	}
}

// readEvent returns the next SSE event name and data line.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			return name, data
		}
	}
}

func TestEventStream(t *testing.T) {
	e := testEngine(t)
	s := NewServer(&Options{Engine: e})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	r := bufio.NewReader(resp.Body)

	if name, _ := readEvent(t, r); name != "connected" {
		t.Fatalf("first event = %q", name)
	}

	if !e.Output("recorder").Start() {
		t.Fatal("start failed")
	}

	name, data := readEvent(t, r)
	if name != "output-start" {
		t.Fatalf("event = %q %s", name, data)
	}
	if !strings.Contains(data, `"output":"recorder"`) || !strings.Contains(data, `"code":0`) {
		t.Errorf("start event data = %s", data)
	}
}

func TestLogsEndpoint(t *testing.T) {
	api := newTestAPI(t, &Options{Engine: testEngine(t)})

	resp := api.Get(fmt.Sprintf("/api/logs?tail=%d&module=%s", 1, "output"))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	got := decode[models.LogsData](t, resp.Body.Bytes())
	if got.Count > 1 {
		t.Errorf("tail=1 returned %d entries", got.Count)
	}
	for _, entry := range got.Entries {
		if entry.Module != "output" {
			t.Errorf("entry from module %q", entry.Module)
		}
	}
}

func TestLogsAfter(t *testing.T) {
	logging.Initialize(logging.Config{Level: "info"})
	api := newTestAPI(t, &Options{Engine: testEngine(t)})

	logger := logging.GetLogger("sinks")
	logger.Info("logs-after first")
	logger.Info("logs-after second")

	seqOf := func(entries []models.LogEntryData, msg string) uint64 {
		for _, e := range entries {
			if e.Message == msg {
				return e.Seq
			}
		}
		return 0
	}

	all := decode[models.LogsData](t, api.Get("/api/logs?module=sinks&tail=0").Body.Bytes())
	first := seqOf(all.Entries, "logs-after first")
	if first == 0 {
		t.Fatalf("first entry not buffered: %+v", all.Entries)
	}

	resp := api.Get(fmt.Sprintf("/api/logs?module=sinks&tail=0&after=%d", first))
	after := decode[models.LogsData](t, resp.Body.Bytes())
	if seqOf(after.Entries, "logs-after first") != 0 {
		t.Error("after still returned the first entry")
	}
	if seqOf(after.Entries, "logs-after second") <= first {
		t.Errorf("second entry missing after %d: %+v", first, after.Entries)
	}
}

func TestWebSocket(t *testing.T) {
	e := testEngine(t)
	s := NewServer(&Options{Engine: e, AuthUsername: "admin", AuthPassword: "secret"})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without credentials: %v", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "connected" {
		t.Fatalf("first message = %+v, %v", msg, err)
	}

	if err := conn.WriteJSON(wsMessage{Type: "start", Output: "recorder"}); err != nil {
		t.Fatal(err)
	}

	// The start signal and the command result may arrive in either order.
	seen := map[string]wsMessage{}
	for len(seen) < 2 {
		var m wsMessage
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		seen[m.Type] = m
	}
	if r, ok := seen["result"]; !ok || r.Error != "" {
		t.Errorf("result = %+v", r)
	}
	if _, ok := seen["output-start"]; !ok {
		t.Errorf("no output-start event: %v", seen)
	}
	if !e.Output("recorder").IsActive() {
		t.Error("recorder not started over WebSocket")
	}

	if err := conn.WriteJSON(wsMessage{Type: "pause", Output: "monitor"}); err != nil {
		t.Fatal(err)
	}
	var reply wsMessage
	if err := conn.ReadJSON(&reply); err != nil || reply.Type != "result" || reply.Error == "" {
		t.Errorf("pause on monitor = %+v, %v", reply, err)
	}
}
