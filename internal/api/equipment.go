package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tankwanghow/pou-con-sub006/internal/equipment"
	"github.com/tankwanghow/pou-con-sub006/internal/events"
)

// statusReadTimeout bounds a manual status read so a dead adapter
// cannot hold an HTTP request open.
const statusReadTimeout = 500 * time.Millisecond

// commandSourceAPI labels commands issued by operators through this server.
const commandSourceAPI = "api"

// ─── Catalogue CRUD ──────────────────────────────────────────────────────────

// handleListEquipment returns all equipment, optionally filtered by type.
func (s *Server) handleListEquipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if typeStr := r.URL.Query().Get("type"); typeStr != "" {
		list, err := s.equipment.ListEquipmentByType(ctx, equipment.EquipmentType(typeStr))
		if err != nil {
			writeInternalError(w, "failed to list equipment")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"equipment": list, "count": len(list)})
		return
	}

	list, err := s.equipment.ListEquipment(ctx)
	if err != nil {
		writeInternalError(w, "failed to list equipment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"equipment": list, "count": len(list)})
}

// handleGetEquipment returns a single equipment entry by ID.
func (s *Server) handleGetEquipment(w http.ResponseWriter, r *http.Request) {
	eq, err := s.equipment.GetEquipment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, equipment.ErrEquipmentNotFound) {
			writeNotFound(w, "equipment not found")
			return
		}
		writeInternalError(w, "failed to get equipment")
		return
	}
	writeJSON(w, http.StatusOK, eq)
}

// handleCreateEquipment creates a new equipment entry.
func (s *Server) handleCreateEquipment(w http.ResponseWriter, r *http.Request) {
	var eq equipment.Equipment
	if err := json.NewDecoder(r.Body).Decode(&eq); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.equipment.CreateEquipment(r.Context(), &eq); err != nil {
		switch {
		case errors.Is(err, equipment.ErrEquipmentExists):
			writeConflict(w, "equipment already exists")
		case errors.Is(err, equipment.ErrInvalidEquipment),
			errors.Is(err, equipment.ErrInvalidName),
			errors.Is(err, equipment.ErrInvalidType):
			writeValidationError(w, err.Error())
		default:
			writeInternalError(w, "failed to create equipment")
		}
		return
	}
	writeJSON(w, http.StatusCreated, eq)
}

// handleUpdateEquipment replaces an equipment entry.
func (s *Server) handleUpdateEquipment(w http.ResponseWriter, r *http.Request) {
	var eq equipment.Equipment
	if err := json.NewDecoder(r.Body).Decode(&eq); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	eq.ID = chi.URLParam(r, "id")

	if err := s.equipment.UpdateEquipment(r.Context(), &eq); err != nil {
		switch {
		case errors.Is(err, equipment.ErrEquipmentNotFound):
			writeNotFound(w, "equipment not found")
		case errors.Is(err, equipment.ErrInvalidEquipment),
			errors.Is(err, equipment.ErrInvalidName),
			errors.Is(err, equipment.ErrInvalidType):
			writeValidationError(w, err.Error())
		default:
			writeInternalError(w, "failed to update equipment")
		}
		return
	}
	writeJSON(w, http.StatusOK, eq)
}

// handleDeleteEquipment deletes an equipment entry.
func (s *Server) handleDeleteEquipment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.equipment.DeleteEquipment(r.Context(), id); err != nil {
		if errors.Is(err, equipment.ErrEquipmentNotFound) {
			writeNotFound(w, "equipment not found")
			return
		}
		writeInternalError(w, "failed to delete equipment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// handleEquipmentStats returns catalogue statistics.
func (s *Server) handleEquipmentStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.equipment.GetStats()
	byType := make(map[string]int, len(stats.ByType))
	for t, n := range stats.ByType {
		byType[string(t)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   stats.Total,
		"enabled": stats.Enabled,
		"by_type": byType,
	})
}

// ─── Live status and manual control ──────────────────────────────────────────

// handleEquipmentStatus reads the live status from the field bus.
func (s *Server) handleEquipmentStatus(w http.ResponseWriter, r *http.Request) {
	if s.commander == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeBusFailure, "field bus not connected")
		return
	}

	name := chi.URLParam(r, "name")
	status, err := s.commander.GetStatus(r.Context(), name, statusReadTimeout)
	if err != nil {
		if errors.Is(err, equipment.ErrUnreachable) {
			writeError(w, http.StatusBadGateway, ErrCodeBusFailure, "equipment unreachable")
			return
		}
		writeInternalError(w, "status read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"equipment_name": name, "status": status})
}

// handleEquipmentOn starts equipment manually. The start permission is
// checked against the interlock cache first: a blocked start is refused
// with the stopped upstreams named, never silently forwarded to the bus.
func (s *Server) handleEquipmentOn(w http.ResponseWriter, r *http.Request) {
	if s.commander == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeBusFailure, "field bus not connected")
		return
	}

	name := chi.URLParam(r, "name")
	decision := s.interlocks.CanStart(name)
	if !decision.Allowed {
		writeJSON(w, http.StatusConflict, map[string]any{
			"equipment_name": name,
			"started":        false,
			"blocked_by":     decision.BlockedBy,
		})
		return
	}

	if err := s.commander.TurnOn(r.Context(), name, commandSourceAPI); err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeBusFailure, "turn-on command failed")
		return
	}
	s.logManualSwitch(r, name, "off", "on")
	writeJSON(w, http.StatusOK, map[string]any{"equipment_name": name, "started": true})
}

// handleEquipmentOff stops equipment manually. Stops are never blocked.
func (s *Server) handleEquipmentOff(w http.ResponseWriter, r *http.Request) {
	if s.commander == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeBusFailure, "field bus not connected")
		return
	}

	name := chi.URLParam(r, "name")
	if err := s.commander.TurnOff(r.Context(), name, commandSourceAPI); err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeBusFailure, "turn-off command failed")
		return
	}
	s.logManualSwitch(r, name, "on", "off")
	writeJSON(w, http.StatusOK, map[string]any{"equipment_name": name, "stopped": true})
}

// logManualSwitch records an operator-issued switch in the audit log.
// Best-effort: the command already went out, a failed write only logs.
func (s *Server) logManualSwitch(r *http.Request, name, from, to string) {
	if s.events == nil {
		return
	}
	ev := events.Event{
		EquipmentName: name,
		EventType:     "manual_switch",
		FromValue:     from,
		ToValue:       to,
		Mode:          events.ModeManual,
		TriggeredBy:   commandSourceAPI,
	}
	if err := s.events.LogEvent(r.Context(), ev); err != nil {
		s.logger.Error("audit event write failed", "equipment", name, "error", err)
	}
}
