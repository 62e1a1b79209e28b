package api

import (
	"errors"
	"net/http"

	"github.com/MikeSquared-Agency/drill/internal/evaluation"
	"github.com/MikeSquared-Agency/drill/internal/provision"
	"github.com/MikeSquared-Agency/drill/internal/scenario"
	"github.com/MikeSquared-Agency/drill/internal/session"
	"github.com/MikeSquared-Agency/drill/internal/transcript"
	"github.com/MikeSquared-Agency/drill/internal/transliterate"
)

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error   string                   `json:"error"`
	Reason  string                   `json:"reason,omitempty"`
	Next    string                   `json:"next,omitempty"`
	Session *session.TrainingSession `json:"session,omitempty"`
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, scenario.ErrUnknown),
		errors.Is(err, transcript.ErrUnknownChannel),
		errors.Is(err, transcript.ErrMissingSegment),
		errors.Is(err, transliterate.ErrEmptyText),
		errors.Is(err, provision.ErrInvalidIdentity):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrTransitionInFlight):
		return http.StatusConflict, "transition_in_flight"
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrNotRetryable),
		errors.Is(err, session.ErrCancelled):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, provision.ErrUnavailable):
		return http.StatusServiceUnavailable, "provisioning_unavailable"
	case errors.Is(err, provision.ErrFailed):
		return http.StatusBadGateway, "provisioning_failed"
	case errors.Is(err, evaluation.ErrEmptyTranscript):
		return http.StatusUnprocessableEntity, "empty_transcript"
	case errors.Is(err, evaluation.ErrUnavailable):
		return http.StatusBadGateway, "evaluation_unavailable"
	case errors.Is(err, evaluation.ErrInvalidResponse):
		return http.StatusBadGateway, "evaluation_invalid_response"
	case errors.Is(err, session.ErrPersistence):
		return http.StatusInternalServerError, "persistence_failure"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError renders err. When the session is known its failure reason and
// the next step are included.
func writeError(w http.ResponseWriter, err error, s *session.TrainingSession) {
	status, code := statusFor(err)
	body := errorBody{Error: code, Reason: err.Error(), Session: s}
	if s != nil {
		body.Next = nextStep(s)
		if s.FailureReason != "" {
			body.Reason = s.FailureReason
		}
	}
	writeJSON(w, status, body)
}

func nextStep(s *session.TrainingSession) string {
	switch {
	case s.EvaluationRetryable():
		return "POST /api/v1/sessions/" + s.ID.String() + "/evaluation/retry"
	case s.Status == session.StatusFailed:
		return "POST /api/v1/sessions"
	case s.Status == session.StatusEvaluating:
		return "POST /api/v1/sessions/" + s.ID.String() + "/evaluation/retry"
	}
	return ""
}
