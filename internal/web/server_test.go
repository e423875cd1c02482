package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/hrv-controller/internal/controller"
	"github.com/sweeney/hrv-controller/internal/inputs"
	"github.com/sweeney/hrv-controller/internal/logic"
	"github.com/sweeney/hrv-controller/internal/modes"
	"github.com/sweeney/hrv-controller/internal/status"
)

var start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeCommander struct {
	mu  sync.Mutex
	got []controller.Command
	err error
}

func (f *fakeCommander) Submit(_ context.Context, cmd controller.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, cmd)
	return f.err
}

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker, *inputs.Store, *fakeCommander) {
	t.Helper()
	tr := status.NewTracker(start, status.Config{
		Broker:      "tcp://192.168.1.200:1883",
		TopicPrefix: "hrv",
		HTTPAddr:    ":80",
		HeartbeatMs: 900000,
	})
	store := inputs.NewStore()
	cmd := &fakeCommander{}
	srv := New(":0", tr, store, cmd, zap.NewNop())
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr, store, cmd
}

func getStatus(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _, _ := newTestServer(t)
	tr.RecordEvaluation(status.Evaluation{
		At:             start,
		Rule:           logic.RuleCO2Low,
		Outputs:        logic.OutputSnapshot{Power: 15, Intake: 16, Exhaust: 14},
		SourceGpio18:   logic.SourceIntake,
		SourceGpio19:   logic.SourceExhaust,
		ControlEnabled: true,
	}, modes.State{ManualMode: true})
	tr.SetMQTTConnected(true)

	sj := getStatus(t, ts.URL)

	if !sj.Status.Ready {
		t.Error("expected Ready=true after an evaluation")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if !sj.Status.Modes.ManualMode {
		t.Error("expected manual mode in JSON")
	}
	ev := sj.Status.Evaluation
	if ev == nil {
		t.Fatal("expected evaluation in JSON")
	}
	if ev.Outputs[logic.FieldIntake] != "16" {
		t.Errorf("intake: got %q, want 16", ev.Outputs[logic.FieldIntake])
	}
	if ev.Sources[logic.FieldGpio18] != "INTAKE" {
		t.Errorf("gpio18 source: got %q", ev.Sources[logic.FieldGpio18])
	}
}

func TestJSONBeforeFirstEvaluation(t *testing.T) {
	ts, _, _, _ := newTestServer(t)
	sj := getStatus(t, ts.URL)
	if sj.Status.Ready {
		t.Error("expected Ready=false before first evaluation")
	}
	if sj.Status.Evaluation != nil {
		t.Error("expected no evaluation block")
	}
}

func TestHTMLEndpoints(t *testing.T) {
	ts, tr, _, _ := newTestServer(t)
	tr.RecordEvaluation(status.Evaluation{At: start, Rule: logic.RuleHumidity, Outputs: logic.OutputSnapshot{Power: 95, Bypass: true}}, modes.State{})
	tr.SetCurrent("hrv", 42)
	tr.SetCO2(812, 23, start)

	for _, path := range []string{"/", "/index.html"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		body := string(data)
		if resp.StatusCode != 200 {
			t.Errorf("%s status: got %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s Content-Type: got %q", path, ct)
		}
		for _, want := range []string{"95%", "current hrv", "42 W", "812 ppm"} {
			if !strings.Contains(body, want) {
				t.Errorf("%s: page missing %q", path, want)
			}
		}
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestInputsEndpoint(t *testing.T) {
	ts, _, store, _ := newTestServer(t)
	store.Put("sensors/room1/co2", "640", start)
	store.Put("sensors/room1/temp", "21.5", start.Add(time.Second))

	resp, err := http.Get(ts.URL + "/api/inputs")
	if err != nil {
		t.Fatalf("GET /api/inputs: %v", err)
	}
	defer resp.Body.Close()

	var got InputsJSON
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Inputs) != 2 {
		t.Fatalf("inputs: got %d, want 2", len(got.Inputs))
	}
	if got.Inputs[0].Key != "sensors/room1/co2" || got.Inputs[0].Value != "640" {
		t.Errorf("first input: got %+v", got.Inputs[0])
	}
	if got.Inputs[0].Updated != "2026-01-01T12:00:00Z" {
		t.Errorf("updated: got %q", got.Inputs[0].Updated)
	}
}

func TestModeCommand(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		body     string
		err      error
		wantCode int
		wantCmd  bool
	}{
		{"manual on", "manualMode", "ON", nil, 200, true},
		{"boost off trims payload", "temporaryBoostMode", " OFF\n", nil, 200, true},
		{"manual power", "manualPower", "40", nil, 200, true},
		{"unknown mode", "turbo", "ON", nil, 404, false},
		{"invalid payload", "manualMode", "maybe", fmt.Errorf("%w: maybe", controller.ErrInvalidPayload), 400, true},
		{"queue full", "manualMode", "ON", controller.ErrBusy, 503, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _, _, cmd := newTestServer(t)
			cmd.err = tt.err

			resp, err := http.Post(ts.URL+"/api/modes/"+tt.mode, "text/plain", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.wantCode)
			}
			var cr commandResponse
			if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if cr.OK != (tt.wantCode == 200) {
				t.Errorf("ok: got %v", cr.OK)
			}
			if got := len(cmd.got); (got == 1) != tt.wantCmd {
				t.Fatalf("commands submitted: got %d", got)
			}
			if tt.wantCmd && cmd.got[0].Payload != strings.TrimSpace(tt.body) {
				t.Errorf("payload: got %q", cmd.got[0].Payload)
			}
		})
	}
}

func TestModeCommandRequiresPost(t *testing.T) {
	ts, _, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/modes/manualMode")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}
