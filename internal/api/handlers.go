package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mattjoyce/linedesk/internal/events"
	"github.com/mattjoyce/linedesk/internal/line"
)

const (
	errMissingPushFields = `Missing "to" or "message"`
	maxPushBodySize      = 64 << 10
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Policy:        s.config.PolicyName,
	}
	if s.inbox != nil {
		resp.Buffered = s.inbox.Len()
		resp.Evicted = s.inbox.Evicted()
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handlePush sends operator text to a user through the platform push API.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req PushRequest
	// Read one byte past the limit to detect oversize bodies.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBodySize+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxPushBodySize {
		s.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	// An unparseable body is treated like an empty one.
	_ = json.Unmarshal(body, &req)

	if err := validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, errMissingPushFields)
		return
	}

	err = s.pusher.Push(r.Context(), req.To, req.Message)
	if err == nil {
		s.logger.Info("push sent", "to", req.To)
		s.publish(events.PushSent, PushNotice{To: req.To})
		s.writeJSON(w, http.StatusOK, PushResponse{Success: true})
		return
	}

	var apiErr *line.APIError
	if errors.As(err, &apiErr) {
		s.logger.Warn("push rejected by platform", "to", req.To, "status_code", apiErr.StatusCode)
		s.publish(events.PushFailed, PushNotice{To: req.To, StatusCode: apiErr.StatusCode, Error: err.Error()})
		s.forwardPlatformError(w, apiErr)
		return
	}

	s.logger.Error("push failed", "to", req.To, "error", err)
	s.publish(events.PushFailed, PushNotice{To: req.To, Error: err.Error()})
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

// forwardPlatformError relays the platform's status and JSON body unchanged.
// Non-JSON bodies are wrapped so the operator always receives JSON.
func (s *Server) forwardPlatformError(w http.ResponseWriter, apiErr *line.APIError) {
	status := apiErr.StatusCode
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	if json.Valid(apiErr.Body) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(apiErr.Body)
		return
	}
	s.writeError(w, status, apiErr.Error())
}

func (s *Server) publish(kind events.Kind, data any) {
	if s.hub != nil {
		s.hub.Publish(kind, data)
	}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, buildOpenAPIDoc())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
