package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/rackbridge/rackbridge-core/internal/command"
	"github.com/rackbridge/rackbridge-core/internal/model"
	"github.com/rackbridge/rackbridge-core/internal/persist"
)

// healthResponse is the GET /api/health body.
type healthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	UptimeSec int64             `json:"uptimeSec"`
	MemoryMB  float64           `json:"memoryMb"`
	Broker    string            `json:"broker"`
	Database  string            `json:"database"`
	BusDrops  map[string]uint64 `json:"busDrops,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Version:   s.deps.Version,
		UptimeSec: int64(time.Since(s.started).Seconds()),
		Broker:    "disconnected",
		Database:  "disabled",
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := p.MemoryInfo(); err == nil {
			resp.MemoryMB = float64(mem.RSS) / (1024 * 1024)
		}
	}

	if s.deps.Broker != nil && s.deps.Broker.IsConnected() {
		resp.Broker = "connected"
	} else {
		resp.Status = "degraded"
	}

	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.HealthCheck(ctx); err != nil {
			resp.Database = "unreachable"
			resp.Status = "degraded"
		} else {
			resp.Database = "ok"
		}
	}

	if s.deps.Drops != nil {
		if drops := s.deps.Drops.Drops(); len(drops) > 0 {
			resp.BusDrops = drops
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Config.Redacted())
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Cache.Topology())
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")

	entries := s.deps.Cache.DeviceTelemetry(deviceID)
	if len(entries) == 0 {
		respondError(w, http.StatusNotFound, "unknown device")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleModule(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	moduleIndex, err := strconv.Atoi(chi.URLParam(r, "moduleIndex"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "moduleIndex must be an integer")
		return
	}

	entry, ok := s.deps.Cache.TelemetrySnapshot(deviceID, moduleIndex)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown device or module")
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")

	entry, ok := s.deps.Cache.MetadataSnapshot(deviceID)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown device")
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// commandBody is the POST /api/commands request. Command parameters
// ride in a nested payload object.
type commandBody struct {
	DeviceID string         `json:"deviceId"`
	Family   string         `json:"deviceFamily"`
	Kind     string         `json:"kind"`
	Payload  commandPayload `json:"payload"`
}

type commandPayload struct {
	ModuleIndex int                     `json:"moduleIndex"`
	ModuleID    string                  `json:"moduleId,omitempty"`
	SensorIndex int                     `json:"sensorIndex,omitempty"`
	Colors      []model.ColorAssignment `json:"colors,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sender == nil {
		respondError(w, http.StatusServiceUnavailable, "command path unavailable")
		return
	}

	var body commandBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cmd := model.CommandRequest{
		DeviceID:    body.DeviceID,
		Family:      model.Family(body.Family),
		Kind:        model.Kind(body.Kind),
		ModuleIndex: body.Payload.ModuleIndex,
		ModuleID:    body.Payload.ModuleID,
		SensorIndex: body.Payload.SensorIndex,
		Colors:      body.Payload.Colors,
		CommandID:   uuid.NewString(),
	}

	if err := s.deps.Sender.Send(cmd); err != nil {
		if errors.Is(err, command.ErrMissingField) || errors.Is(err, command.ErrUnsupported) {
			s.logger.Warn("command rejected", "device_id", cmd.DeviceID, "kind", cmd.Kind, "error", err)
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("command dispatch failed", "device_id", cmd.DeviceID, "kind", cmd.Kind, "error", err)
		respondError(w, http.StatusInternalServerError, "command dispatch failed")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":    "sent",
		"commandId": cmd.CommandID,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil || !s.deps.Config.APIServer.Features.History {
		respondError(w, http.StatusNotImplemented, "history is disabled")
		return
	}

	table := chi.URLParam(r, "table")
	deviceID := r.URL.Query().Get("deviceId")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.deps.History.Query(r.Context(), table, deviceID, limit)
	if err != nil {
		if errors.Is(err, persist.ErrUnknownTable) {
			respondError(w, http.StatusNotFound, "unknown table")
			return
		}
		s.logger.Error("history query failed", "table", table, "error", err)
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, records)
}
