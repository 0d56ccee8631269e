package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tankwanghow/pou-con-sub006/internal/alarm"
	"github.com/tankwanghow/pou-con-sub006/internal/rules"
)

// ─── Engine operator surface ─────────────────────────────────────────────────

// handleAlarmStatus returns the alarm engine's runtime snapshot.
func (s *Server) handleAlarmStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.alarms.Status())
}

// handleAlarmReload forces the engine to re-read enabled rules from the store.
func (s *Server) handleAlarmReload(w http.ResponseWriter, r *http.Request) {
	if err := s.alarms.ReloadRules(r.Context()); err != nil {
		writeInternalError(w, "alarm rule reload failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reloaded": true})
}

// handleAlarmAcknowledge silences an active alarm until its condition clears.
func (s *Server) handleAlarmAcknowledge(w http.ResponseWriter, r *http.Request) {
	s.alarmAction(w, r, s.alarms.Acknowledge, "acknowledged")
}

// handleAlarmMute silences an active alarm for the rule's mute window.
func (s *Server) handleAlarmMute(w http.ResponseWriter, r *http.Request) {
	s.alarmAction(w, r, s.alarms.Mute, "muted")
}

// handleAlarmUnmute lifts a mute; sirens re-sound if the alarm is still active.
func (s *Server) handleAlarmUnmute(w http.ResponseWriter, r *http.Request) {
	s.alarmAction(w, r, s.alarms.Unmute, "unmuted")
}

// alarmAction runs one operator action against a rule id and writes the
// uniform response. The actions themselves are idempotent, so a repeat
// call reports success without side effects.
func (s *Server) alarmAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, ruleID string) error, verb string) {
	id := chi.URLParam(r, "id")
	if err := action(r.Context(), id); err != nil {
		if errors.Is(err, alarm.ErrRuleNotFound) {
			writeNotFound(w, "alarm rule not found")
			return
		}
		writeInternalError(w, "alarm action failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rule_id": id, "result": verb})
}

// ─── Rule CRUD ───────────────────────────────────────────────────────────────

// handleListAlarmRules returns all alarm rules with their conditions.
func (s *Server) handleListAlarmRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.rules.ListAlarmRules(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list alarm rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": list, "count": len(list)})
}

// handleGetAlarmRule returns a single alarm rule by ID.
func (s *Server) handleGetAlarmRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.GetAlarmRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeNotFound(w, "alarm rule not found")
			return
		}
		writeInternalError(w, "failed to get alarm rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleCreateAlarmRule creates an alarm rule (with its conditions).
func (s *Server) handleCreateAlarmRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.AlarmRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.rules.CreateAlarmRule(r.Context(), &rule); err != nil {
		switch {
		case errors.Is(err, rules.ErrRuleExists):
			writeConflict(w, "alarm rule already exists")
		case errors.Is(err, rules.ErrInvalidRule),
			errors.Is(err, rules.ErrInvalidCondition),
			errors.Is(err, rules.ErrInvalidName),
			errors.Is(err, rules.ErrNoSirens):
			writeValidationError(w, err.Error())
		default:
			writeInternalError(w, "failed to create alarm rule")
		}
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// handleUpdateAlarmRule replaces an alarm rule. Conditions are replaced
// wholesale; the engines pick the change up via the registry's
// notification channel.
func (s *Server) handleUpdateAlarmRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.AlarmRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	rule.ID = chi.URLParam(r, "id")

	if err := s.rules.UpdateAlarmRule(r.Context(), &rule); err != nil {
		switch {
		case errors.Is(err, rules.ErrRuleNotFound):
			writeNotFound(w, "alarm rule not found")
		case errors.Is(err, rules.ErrInvalidRule),
			errors.Is(err, rules.ErrInvalidCondition),
			errors.Is(err, rules.ErrInvalidName),
			errors.Is(err, rules.ErrNoSirens):
			writeValidationError(w, err.Error())
		default:
			writeInternalError(w, "failed to update alarm rule")
		}
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleDeleteAlarmRule deletes an alarm rule and its conditions.
func (s *Server) handleDeleteAlarmRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.rules.DeleteAlarmRule(r.Context(), id); err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeNotFound(w, "alarm rule not found")
			return
		}
		writeInternalError(w, "failed to delete alarm rule")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}
