package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/drill/internal/provision"
	"github.com/MikeSquared-Agency/drill/internal/session"
	"github.com/MikeSquared-Agency/drill/internal/transcript"
)

const maxBodyBytes = 1 << 20

type startRequest struct {
	TraineeID  string `json:"trainee_id"`
	ScenarioID string `json:"scenario_id"`
}

type startResponse struct {
	Session    *session.TrainingSession `json:"session"`
	Connection provision.Connection     `json:"connection"`
}

type segmentRequest struct {
	ChannelID string `json:"channel_id"`
	SegmentID string `json:"segment_id"`
	Text      string `json:"text"`
	IsFinal   bool   `json:"is_final"`
}

type segmentResponse struct {
	Result  string              `json:"result"`
	Message *transcript.Message `json:"message,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// POST /api/v1/sessions
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, err, nil)
		return
	}
	req.TraineeID = strings.TrimSpace(req.TraineeID)
	if req.TraineeID == "" {
		writeError(w, fmt.Errorf("%w: trainee_id is required", errBadRequest), nil)
		return
	}

	sess, conn, err := s.deps.Engine.Start(r.Context(), req.TraineeID, strings.TrimSpace(req.ScenarioID))
	if err != nil {
		s.logger.Warn("session start failed", "trainee_id", req.TraineeID, "scenario_id", req.ScenarioID, "error", err)
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{Session: sess, Connection: conn})
}

// GET /api/v1/sessions/{id}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.deps.Engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// GET /api/v1/sessions/{id}/transcript
func (s *Server) getTranscript(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	msgs, err := s.deps.Engine.LiveTranscript(r.Context(), id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if msgs == nil {
		msgs = []transcript.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"messages":   msgs,
		"count":      len(msgs),
	})
}

// POST /api/v1/sessions/{id}/connected
func (s *Server) markConnected(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.deps.Engine.MarkConnected(r.Context(), id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// POST /api/v1/sessions/{id}/segments
func (s *Server) ingestSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req segmentRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, err, nil)
		return
	}

	msg, res, err := s.deps.Engine.IngestSegment(r.Context(), id, transcript.Segment{
		ChannelID: req.ChannelID,
		SegmentID: req.SegmentID,
		Text:      req.Text,
		IsFinal:   req.IsFinal,
	})
	if err != nil {
		writeError(w, err, nil)
		return
	}
	out := segmentResponse{Result: res.String()}
	if res == transcript.Appended || res == transcript.Replaced {
		out.Message = &msg
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/v1/sessions/{id}/end
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.deps.Engine.End(r.Context(), id)
	if err != nil {
		writeError(w, err, sess)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// POST /api/v1/sessions/{id}/cancel
func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, err, nil)
		return
	}
	sess, err := s.deps.Engine.Cancel(r.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// POST /api/v1/sessions/{id}/evaluation/retry[?async=true]
func (s *Server) retryEvaluation(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("async") == "true" {
		s.enqueueRetry(w, r, id)
		return
	}

	sess, err := s.deps.Engine.RetryEvaluation(r.Context(), id)
	if err != nil {
		writeError(w, err, sess)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) enqueueRetry(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if s.deps.RetryQueue == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "async_unavailable", Reason: "retry queue is not configured"})
		return
	}

	sess, err := s.deps.Engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if sess.Status == session.StatusCompleted {
		writeJSON(w, http.StatusOK, sess)
		return
	}
	if !sess.EvaluationRetryable() && sess.Status != session.StatusEvaluating {
		writeError(w, fmt.Errorf("%w: status %s", session.ErrNotRetryable, sess.Status), sess)
		return
	}

	if err := s.deps.RetryQueue.PublishRetry(r.Context(), id.String()); err != nil {
		s.logger.Error("failed to enqueue evaluation retry", "session_id", id, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "async_unavailable", Reason: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id": id,
		"status":     "queued",
	})
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid session id", errBadRequest), nil)
		return uuid.Nil, false
	}
	return id, true
}

// decode reads a JSON body into v. When optional is set an empty body is
// accepted.
func decode(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}
