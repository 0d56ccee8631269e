package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tankwanghow/pou-con-sub006/internal/events"
)

// handleListEvents returns audit events, newest first.
//
// Query parameters:
//   - equipment: filter by equipment name
//   - type: filter by event type (alarm_triggered, interlock_trip, ...)
//   - since, until: RFC3339 time bounds
//   - limit: max rows (default 100, capped by the repository)
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeInternalError(w, "event log not configured")
		return
	}

	filter := events.Filter{
		EquipmentName: r.URL.Query().Get("equipment"),
		EventType:     r.URL.Query().Get("type"),
	}

	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "invalid since timestamp, want RFC3339")
			return
		}
		filter.Since = t
	}
	if v := r.URL.Query().Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "invalid until timestamp, want RFC3339")
			return
		}
		filter.Until = t
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "invalid limit")
			return
		}
		filter.Limit = n
	}

	list, err := s.events.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": list, "count": len(list)})
}
