package ops

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/orgbd/internal/audit"
	"github.com/nerrad567/orgbd/internal/controller"
)

// healthCheckTimeout bounds each backing-service check.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{index}", s.handleGetDevice)
			r.Get("/{index}/state", s.handleGetDeviceState)
		})

		r.Get("/sessions", s.handleListSessions)
		r.Get("/audit", s.handleListAudit)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth reports overall status plus one entry per backing service.
// Any failing check turns the response into 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	checks := make(map[string]string, len(s.checks))

	for name, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	listen := ""
	if addr := s.sessions.Addr(); addr != nil {
		listen = addr.String()
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"listen":  listen,
		"devices": s.registry.Len(),
		"server":  s.sessions.Stats(),
		"checks":  checks,
	})
}

// handleListDevices returns every controller's decoded description.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": s.registry.Snapshot(),
		"count":   s.registry.Len(),
	})
}

// deviceIndex parses the {index} URL parameter, writing a 400 on failure.
func deviceIndex(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 32)
	if err != nil {
		writeBadRequest(w, "device index must be a non-negative integer")
		return 0, false
	}
	return uint32(index), true
}

// handleGetDevice returns one controller's decoded description.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	index, ok := deviceIndex(w, r)
	if !ok {
		return
	}

	desc, err := s.registry.Describe(index)
	switch {
	case errors.Is(err, controller.ErrIndexOutOfRange):
		writeNotFound(w, "device not found")
		return
	case err != nil:
		s.logger.Error("failed to describe device", "index", index, "error", err)
		writeInternalError(w, "failed to describe device")
		return
	}

	writeJSON(w, http.StatusOK, controller.DeviceInfo{Index: index, Description: &desc})
}

// handleGetDeviceState returns the staged and applied colours of a controller
// that can report them.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	index, ok := deviceIndex(w, r)
	if !ok {
		return
	}

	c, err := s.registry.Get(index)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}
	reporter, ok := c.(controller.StateReporter)
	if !ok {
		writeNotFound(w, "device does not report state")
		return
	}

	var state controller.VirtualState
	if err := s.registry.With(index, func(controller.Controller) error {
		state = reporter.State()
		return nil
	}); err != nil {
		s.logger.Error("failed to read device state", "index", index, "error", err)
		writeInternalError(w, "failed to read device state")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"index": index,
		"state": state,
	})
}

// handleListSessions returns the live ORGB sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.sessions.Sessions()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleListAudit returns paginated session audit entries.
//
// Query parameters:
//   - action: session_opened, session_rejected or session_closed
//   - session_id: one session's history
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:    q.Get("action"),
		SessionID: q.Get("session_id"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
