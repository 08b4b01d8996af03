// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/bundled/internal/cache"
	"github.com/ManuGH/bundled/internal/lifecycle"
	"github.com/ManuGH/bundled/internal/log"
	"github.com/ManuGH/bundled/internal/retry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type lastRunJSON struct {
	Outcome    string    `json:"outcome"`
	FinishedAt time.Time `json:"finished_at"`
	URL        string    `json:"url,omitempty"`
	Bytes      int64     `json:"bytes,omitempty"`
	UserRetry  bool      `json:"user_retry"`
	Error      string    `json:"error,omitempty"`
}

type bundleJSON struct {
	Cache        cache.Info   `json:"cache"`
	LastRun      *lastRunJSON `json:"last_run,omitempty"`
	PendingRetry string       `json:"pending_retry,omitempty"`
}

func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Bundle.Info()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := bundleJSON{Cache: info}
	if out, at := s.deps.Bundle.Last(); !at.IsZero() {
		lr := &lastRunJSON{
			Outcome:    out.Kind.String(),
			FinishedAt: at,
			URL:        out.URL,
			Bytes:      out.Bytes,
			UserRetry:  out.UserRetry,
		}
		if out.Err != nil {
			lr.Error = out.Err.Error()
		}
		resp.LastRun = lr
	}
	if err := s.deps.Recovery.Pending(); err != nil {
		resp.PendingRetry = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeNotFound(w)
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	runs, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

type activityRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 4<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid activity: %w", err))
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	err := s.deps.Activity(r.Context(), lifecycle.Activity{ID: req.ID, Name: req.Name})
	resp := map[string]any{"id": req.ID}
	if err != nil {
		// module failures are isolated; report them without failing the signal
		resp["module_errors"] = err.Error()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleRecoveryStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"choices": s.deps.Recovery.Choices()}
	if err := s.deps.Recovery.Pending(); err != nil {
		resp["pending_retry"] = err.Error()
	}
	if s.deps.DevMenu != nil {
		resp["dev_support"] = s.deps.DevMenu.DeveloperSupport()
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseChoice accepts a dialog index or an action name.
func parseChoice(raw string) (int, bool) {
	switch strings.ToLower(raw) {
	case "reload":
		return retry.ChoiceReload, true
	case "delete", "delete-and-reload":
		return retry.ChoiceDeleteAndReload, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *Server) handleRecoveryChoice(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "choice")
	idx, ok := parseChoice(raw)
	if !ok || idx < 0 || idx >= len(s.deps.Recovery.Choices()) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %q", retry.ErrInvalidChoice, raw))
		return
	}

	ctx := context.WithoutCancel(r.Context())
	s.actions(func() {
		if err := s.deps.Recovery.Choose(ctx, idx); err != nil {
			logger := log.WithComponentFromContext(ctx, "api")
			logger.Error().Err(err).
				Str("event", "api.recovery_failed").
				Int("choice", idx).
				Msg("recovery action failed")
		}
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"choice": idx,
		"action": s.deps.Recovery.Choices()[idx],
	})
}

func (s *Server) handleDevMenu(w http.ResponseWriter, r *http.Request) {
	if s.deps.DevMenu == nil || !s.deps.DevMenu.DeveloperSupport() {
		writeError(w, http.StatusConflict, errors.New("developer menu is not available"))
		return
	}
	ctx := context.WithoutCancel(r.Context())
	s.actions(func() {
		if err := s.deps.DevMenu.ShowDevMenu(ctx); err != nil {
			logger := log.WithComponentFromContext(ctx, "api")
			logger.Warn().Err(err).
				Str("event", "api.devmenu_failed").
				Msg("developer menu closed with error")
		}
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "shown"})
}
