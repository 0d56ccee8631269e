package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tankwanghow/pou-con-sub006/internal/rules"
)

// ─── Engine operator surface ─────────────────────────────────────────────────

// handleCanStart answers the start-permission query for one equipment
// name. Reads the interlock engine's precomputed cache, so this path
// never waits on a refresh pass.
func (s *Server) handleCanStart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	decision := s.interlocks.CanStart(name)
	writeJSON(w, http.StatusOK, map[string]any{
		"equipment_name": name,
		"allowed":        decision.Allowed,
		"blocked_by":     decision.BlockedBy,
	})
}

// handleInterlockPermissions returns the whole permission cache.
func (s *Server) handleInterlockPermissions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"permissions": s.interlocks.Permissions()})
}

// handleInterlockReload forces the engine to re-read enabled rules.
func (s *Server) handleInterlockReload(w http.ResponseWriter, r *http.Request) {
	if err := s.interlocks.ReloadRules(r.Context()); err != nil {
		writeInternalError(w, "interlock rule reload failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reloaded": true})
}

// ─── Rule CRUD ───────────────────────────────────────────────────────────────

// handleListInterlockRules returns every interlock rule. The optional
// in_force query switches to the engine's live view (enabled rules as
// currently loaded), which can lag the store by one notification.
func (s *Server) handleListInterlockRules(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("in_force") == "true" {
		list := s.interlocks.Rules()
		writeJSON(w, http.StatusOK, map[string]any{"rules": list, "count": len(list)})
		return
	}

	list, err := s.rules.ListInterlockRules(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list interlock rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": list, "count": len(list)})
}

// handleGetInterlockRule returns a single interlock rule by ID.
func (s *Server) handleGetInterlockRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.GetInterlockRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeNotFound(w, "interlock rule not found")
			return
		}
		writeInternalError(w, "failed to get interlock rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleCreateInterlockRule creates one upstream→downstream dependency edge.
func (s *Server) handleCreateInterlockRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.InterlockRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.rules.CreateInterlockRule(r.Context(), &rule); err != nil {
		switch {
		case errors.Is(err, rules.ErrRuleExists):
			writeConflict(w, "interlock rule already exists")
		case errors.Is(err, rules.ErrInvalidRule), errors.Is(err, rules.ErrInvalidName):
			writeValidationError(w, err.Error())
		default:
			writeInternalError(w, "failed to create interlock rule")
		}
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// handleUpdateInterlockRule replaces an interlock rule.
func (s *Server) handleUpdateInterlockRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.InterlockRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	rule.ID = chi.URLParam(r, "id")

	if err := s.rules.UpdateInterlockRule(r.Context(), &rule); err != nil {
		switch {
		case errors.Is(err, rules.ErrRuleNotFound):
			writeNotFound(w, "interlock rule not found")
		case errors.Is(err, rules.ErrInvalidRule), errors.Is(err, rules.ErrInvalidName):
			writeValidationError(w, err.Error())
		default:
			writeInternalError(w, "failed to update interlock rule")
		}
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleDeleteInterlockRule deletes an interlock rule.
func (s *Server) handleDeleteInterlockRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.rules.DeleteInterlockRule(r.Context(), id); err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeNotFound(w, "interlock rule not found")
			return
		}
		writeInternalError(w, "failed to delete interlock rule")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}
