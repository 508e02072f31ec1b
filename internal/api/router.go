package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-shelly/internal/bridge"
	"github.com/nerrad567/gray-logic-shelly/internal/registry"
)

// registryTimeout bounds registry reads issued by inventory handlers.
const registryTimeout = 5 * time.Second

// healthResponse is the body of GET /api/v1/health.
type healthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	DevicesManaged int    `json:"devices_managed"`
	DevicesOnline  int    `json:"devices_online"`
}

// deviceResponse merges live coordinator state with the persisted
// registry row for one device. Registry fields are empty until the
// device has been seen at least once.
type deviceResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	MAC        string     `json:"mac,omitempty"`
	Model      string     `json:"model,omitempty"`
	Generation int        `json:"generation"`
	Firmware   string     `json:"firmware,omitempty"`
	Host       string     `json:"host,omitempty"`
	Online     bool       `json:"online"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
}

// otaRequest is the body of POST /api/v1/devices/{id}/ota.
type otaRequest struct {
	Channel string `json:"channel"`
}

// actionResponse acknowledges an accepted asynchronous action.
type actionResponse struct {
	DeviceID string `json:"device_id"`
	Action   string `json:"action"`
	Status   string `json:"status"`
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/devices", s.handleListDevices)
		r.Get("/devices/{id}", s.handleGetDevice)
		r.Post("/devices/{id}/refresh", s.handleRefreshDevice)
		r.Post("/devices/{id}/ota", s.handleOTAUpdate)
	})

	return r
}

// handleHealth reports bridge liveness and fleet counts.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		Version:        s.version,
		DevicesManaged: s.bridge.DeviceCount(),
		DevicesOnline:  s.bridge.OnlineCount(),
	})
}

// handleListDevices returns every managed device, merged with its
// registry row when one exists.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	rows := s.registryRows(r.Context())

	managed := s.bridge.Devices()
	devices := make([]deviceResponse, 0, len(managed))
	for _, md := range managed {
		devices = append(devices, s.deviceView(md, rows[md.ID]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single managed device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	md, ok := s.bridge.Device(id)
	if !ok {
		writeNotFound(w, "device not found: "+id)
		return
	}

	rows := s.registryRows(r.Context())
	writeJSON(w, http.StatusOK, s.deviceView(md, rows[id]))
}

// handleRefreshDevice forces an out-of-band refresh of one device.
// The refresh runs asynchronously; the response only acknowledges dispatch.
func (s *Server) handleRefreshDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.bridge.TriggerRefresh(id); err != nil {
		if errors.Is(err, bridge.ErrDeviceNotManaged) {
			writeNotFound(w, "device not found: "+id)
			return
		}
		writeInternalError(w, "refresh failed")
		return
	}

	writeJSON(w, http.StatusAccepted, actionResponse{
		DeviceID: id,
		Action:   "refresh",
		Status:   "accepted",
	})
}

// handleOTAUpdate starts a firmware update on one device.
// Defaults to the stable channel when the body omits one.
func (s *Server) handleOTAUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	channel := "stable"
	if r.ContentLength != 0 {
		var req otaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
		if req.Channel != "" {
			channel = req.Channel
		}
	}
	if channel != "stable" && channel != "beta" {
		writeBadRequest(w, "channel must be stable or beta")
		return
	}

	if err := s.bridge.TriggerOTAUpdate(id, channel); err != nil {
		if errors.Is(err, bridge.ErrDeviceNotManaged) {
			writeNotFound(w, "device not found: "+id)
			return
		}
		writeInternalError(w, "ota trigger failed")
		return
	}

	writeJSON(w, http.StatusAccepted, actionResponse{
		DeviceID: id,
		Action:   "ota_update",
		Status:   "accepted",
	})
}

// registryRows loads all persisted device rows keyed by ID.
// Returns an empty map when the registry is unavailable so inventory
// endpoints still serve live state.
func (s *Server) registryRows(ctx context.Context) map[string]*registry.Device {
	rows := make(map[string]*registry.Device)
	if s.registry == nil {
		return rows
	}

	ctx, cancel := context.WithTimeout(ctx, registryTimeout)
	defer cancel()

	persisted, err := s.registry.List(ctx)
	if err != nil {
		s.logger.Warn("registry list failed, serving live state only", "error", err)
		return rows
	}
	for i := range persisted {
		rows[persisted[i].ID] = &persisted[i]
	}
	return rows
}

// deviceView builds the merged response for one managed device.
func (s *Server) deviceView(md bridge.ManagedDevice, row *registry.Device) deviceResponse {
	view := deviceResponse{
		ID:         md.ID,
		Name:       md.Name,
		Generation: int(md.Generation),
		Online:     md.Coordinator.LastUpdateSucceeded(),
	}
	if row != nil {
		view.MAC = row.MAC
		view.Model = row.Model
		view.Firmware = row.Firmware
		view.Host = row.Host
		view.LastSeen = row.LastSeen
		if view.Name == "" {
			view.Name = row.Name
		}
	}
	return view
}
