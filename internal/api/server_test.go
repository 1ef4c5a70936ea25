package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rackbridge/rackbridge-core/internal/command"
	"github.com/rackbridge/rackbridge-core/internal/infrastructure/config"
	"github.com/rackbridge/rackbridge-core/internal/model"
	"github.com/rackbridge/rackbridge-core/internal/shadow"
)

type fakeSender struct {
	err  error
	last model.CommandRequest
}

func (f *fakeSender) Send(cmd model.CommandRequest) error {
	f.last = cmd
	return f.err
}

type fakeBroker struct{ connected bool }

func (f fakeBroker) IsConnected() bool { return f.connected }

func newTestServer(t *testing.T, sender *fakeSender) (*Server, *shadow.Cache) {
	t.Helper()
	cfg := config.Default()
	cfg.Broker.Auth.Password = "secret"

	cache := shadow.New()
	s := New(Deps{
		Config:  cfg,
		Cache:   cache,
		Sender:  sender,
		Broker:  fakeBroker{connected: true},
		Version: "test",
	})
	return s, cache
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func TestHealthOK(t *testing.T) {
	s, _ := newTestServer(t, &fakeSender{})

	rec := doRequest(s, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" || resp.Broker != "connected" || resp.Database != "disabled" {
		t.Errorf("health = %+v", resp)
	}
}

func TestHealthDegradedWhenBrokerDown(t *testing.T) {
	s, _ := newTestServer(t, &fakeSender{})
	s.deps.Broker = fakeBroker{connected: false}

	rec := doRequest(s, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestConfigRedactsSecrets(t *testing.T) {
	s, _ := newTestServer(t, &fakeSender{})

	rec := doRequest(s, http.MethodGet, "/api/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "secret") {
		t.Error("config response leaks broker password")
	}
	if !strings.Contains(body, config.Redacted) {
		t.Error("config response has no redaction marker")
	}
}

func TestTopology(t *testing.T) {
	s, cache := newTestServer(t, &fakeSender{})
	now := time.Now().UTC()
	slots := []model.HeartbeatRecord{{ModuleIndex: 1, ModuleID: "A", UTotal: 42}}
	cache.UpdateHeartbeat("GW-1", model.FamilyB, slots[0], now)
	cache.Reconcile("GW-1", model.FamilyB, slots, now)

	rec := doRequest(s, http.MethodGet, "/api/live/topology", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var devices []shadow.DeviceView
	if err := json.Unmarshal(rec.Body.Bytes(), &devices); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(devices) != 1 || devices[0].DeviceID != "GW-1" {
		t.Fatalf("topology = %+v", devices)
	}
	if len(devices[0].Modules) != 1 || !devices[0].Modules[0].IsOnline {
		t.Errorf("modules = %+v", devices[0].Modules)
	}
}

func TestModuleLookup(t *testing.T) {
	s, cache := newTestServer(t, &fakeSender{})
	cache.UpdateHeartbeat("GW-1", model.FamilyB, model.HeartbeatRecord{ModuleIndex: 2, ModuleID: "B"}, time.Now().UTC())

	rec := doRequest(s, http.MethodGet, "/api/live/devices/GW-1/modules/2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, http.MethodGet, "/api/live/devices/GW-1/modules/3", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown module status = %d, want 404", rec.Code)
	}

	rec = doRequest(s, http.MethodGet, "/api/live/devices/GW-1/modules/two", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad index status = %d, want 400", rec.Code)
	}
}

func TestDeviceLookup(t *testing.T) {
	s, cache := newTestServer(t, &fakeSender{})
	now := time.Now().UTC()
	cache.UpdateHeartbeat("GW-1", model.FamilyB, model.HeartbeatRecord{ModuleIndex: 1, ModuleID: "A"}, now)
	cache.UpdateHeartbeat("GW-1", model.FamilyB, model.HeartbeatRecord{ModuleIndex: 3, ModuleID: "C"}, now)

	rec := doRequest(s, http.MethodGet, "/api/live/devices/GW-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var entries []shadow.TelemetryEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(entries) != 2 || entries[0].ModuleIndex != 1 || entries[1].ModuleIndex != 3 {
		t.Errorf("entries = %+v", entries)
	}

	rec = doRequest(s, http.MethodGet, "/api/live/devices/GW-9", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}
}

func TestMetaLookup(t *testing.T) {
	s, cache := newTestServer(t, &fakeSender{})
	cache.Merge("GW-1", model.FamilyB, &model.DeviceInfo{IP: "10.0.0.5"}, nil, time.Now().UTC())

	rec := doRequest(s, http.MethodGet, "/api/meta/GW-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = doRequest(s, http.MethodGet, "/api/meta/GW-9", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}
}

func TestCommandAccepted(t *testing.T) {
	sender := &fakeSender{}
	s, _ := newTestServer(t, sender)

	body := `{"deviceId":"GW-1","deviceFamily":"B","kind":"QRY_TEMP_HUM","payload":{"moduleIndex":1}}`
	rec := doRequest(s, http.MethodPost, "/api/commands", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "sent" || resp["commandId"] == "" {
		t.Errorf("response = %v", resp)
	}
	if sender.last.CommandID != resp["commandId"] {
		t.Error("commandId in response does not match dispatched command")
	}
}

func TestCommandRejected(t *testing.T) {
	s, _ := newTestServer(t, &fakeSender{err: fmt.Errorf("%w: moduleIndex 99 for QRY_TEMP_HUM", command.ErrMissingField)})

	body := `{"deviceId":"GW-1","deviceFamily":"B","kind":"QRY_TEMP_HUM","payload":{"moduleIndex":99}}`
	rec := doRequest(s, http.MethodPost, "/api/commands", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCommandPublishFailureIsInternal(t *testing.T) {
	s, _ := newTestServer(t, &fakeSender{err: errors.New("publish QRY_TEMP_HUM to GW-1: not connected to broker")})

	body := `{"deviceId":"GW-1","deviceFamily":"B","kind":"QRY_TEMP_HUM","payload":{"moduleIndex":1}}`
	rec := doRequest(s, http.MethodPost, "/api/commands", body)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "broker") {
		t.Error("internal error detail leaked to the client")
	}
}

func TestCommandInvalidJSON(t *testing.T) {
	s, _ := newTestServer(t, &fakeSender{})

	rec := doRequest(s, http.MethodPost, "/api/commands", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCommandsDisabledWithoutManagement(t *testing.T) {
	s, _ := newTestServer(t, &fakeSender{})
	s.deps.Config.APIServer.Features.Management = false

	body := `{"deviceId":"GW-1","deviceFamily":"B","kind":"QRY_TEMP_HUM","payload":{"moduleIndex":1}}`
	rec := doRequest(s, http.MethodPost, "/api/commands", body)
	if rec.Code == http.StatusAccepted {
		t.Error("commands accepted with management disabled")
	}
}

func TestHistoryDisabledWithoutStorage(t *testing.T) {
	s, _ := newTestServer(t, &fakeSender{})

	rec := doRequest(s, http.MethodGet, "/api/history/temp_hum", "")
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}
