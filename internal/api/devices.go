package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/azoula-gateway/internal/audit"
	"github.com/nerrad567/azoula-gateway/internal/device"
)

// handleListDevices returns the devices found by the last discovery.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	out := device.Snapshots(s.gw.Devices())
	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.gw.Device(chi.URLParam(r, "id"))
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Snapshot())
}

// handleDiscover runs a discovery cycle and replaces the device list.
//
// Query parameters:
//   - tsl: when true, fetch each device's TSL after discovery
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	loadTSL := false
	if v := r.URL.Query().Get("tsl"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "tsl must be a boolean")
			return
		}
		loadTSL = parsed
	}

	devices, err := s.gw.DiscoverDevices(r.Context(), loadTSL)
	s.record(r, audit.ActionDiscover, "", map[string]any{"tsl": loadTSL}, err)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	out := device.Snapshots(devices)

	if s.repo != nil {
		if err := s.repo.Save(r.Context(), s.gw.ID(), out); err != nil {
			s.logger.Warn("failed to persist discovery snapshot", "error", err, "request_id", requestID(r.Context()))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

// handleGetProperties reads properties from the device.
//
// Query parameters:
//   - name: property identifier; repeatable or comma-separated. Omitted
//     reads every readable property the device's TSL declares.
func (s *Server) handleGetProperties(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var names []string
	for _, v := range r.URL.Query()["name"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}

	props, err := s.gw.GetDeviceProperties(r.Context(), id, names)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "properties": props})
}

// handleSetProperties writes property values. The body is a JSON object of
// identifier to value.
func (s *Server) handleSetProperties(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var values map[string]any
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(values) == 0 {
		writeBadRequest(w, "no properties given")
		return
	}

	err := s.gw.SetDeviceProperties(r.Context(), id, values)
	s.record(r, audit.ActionSetProperties, id, values, err)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "status": "ok"})
}

// handleInvokeService calls a device service. The optional body is a JSON
// object of service parameters.
func (s *Server) handleInvokeService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	service := chi.URLParam(r, "service")

	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	data, err := s.gw.InvokeService(r.Context(), id, service, params)
	s.record(r, audit.ActionInvoke, id, map[string]any{"service": service, "params": params}, err)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"service":   service,
		"data":      data,
	})
}

// handleIdentify makes the device signal itself.
func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.gw.IdentifyDevice(r.Context(), id)
	s.record(r, audit.ActionIdentify, id, nil, err)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "status": "ok"})
}

// handleListAudit returns recorded control actions, newest first.
//
// Query parameters:
//   - device_id, action: filters
//   - limit (default 50, max 200), offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "audit log not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		GatewayID: s.gw.ID(),
		DeviceID:  q.Get("device_id"),
		Action:    q.Get("action"),
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeBadRequest(w, p.name+" must be a non-negative integer")
				return
			}
			*p.dst = n
		}
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit log", "error", err, "request_id", requestID(r.Context()))
		writeInternalError(w, "failed to list audit log")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// record writes an audit entry for a control action. Failures are logged.
func (s *Server) record(r *http.Request, action, deviceID string, details map[string]any, opErr error) {
	if s.audit == nil {
		return
	}
	e := &audit.Entry{
		GatewayID: s.gw.ID(),
		DeviceID:  deviceID,
		Action:    action,
		Source:    audit.SourceAPI,
		Details:   details,
	}
	if opErr != nil {
		e.Error = opErr.Error()
	}
	if err := s.audit.Create(context.WithoutCancel(r.Context()), e); err != nil {
		s.logger.Warn("failed to record audit entry", "action", action, "error", err, "request_id", requestID(r.Context()))
	}
}
