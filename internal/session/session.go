package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/drill/internal/evaluation"
	"github.com/MikeSquared-Agency/drill/internal/transcript"
)

type Status string

const (
	StatusCreated    Status = "created"
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusEnding     Status = "ending"
	StatusEvaluating Status = "evaluating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// transitions lists every legal edge. Failed -> Evaluating is the
// evaluation-only retry.
var transitions = map[Status][]Status{
	StatusCreated:    {StatusConnecting, StatusFailed},
	StatusConnecting: {StatusActive, StatusFailed},
	StatusActive:     {StatusEnding, StatusFailed},
	StatusEnding:     {StatusEvaluating, StatusFailed},
	StatusEvaluating: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusEvaluating},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusConnecting, StatusActive, StatusEnding,
		StatusEvaluating, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// TrainingSession is one role-play attempt by one trainee.
type TrainingSession struct {
	ID         uuid.UUID  `json:"id"`
	TraineeID  string     `json:"trainee_id"`
	ScenarioID string     `json:"scenario_id"`
	RoomName   string     `json:"room_name"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`

	Transcript []transcript.Message   `json:"transcript,omitempty"`
	Evaluation *evaluation.Evaluation `json:"evaluation,omitempty"`

	// FailureReason is human-readable; FailedFrom is the status the
	// session was in when it failed.
	FailureReason string `json:"failure_reason,omitempty"`
	FailedFrom    Status `json:"failed_from,omitempty"`
}

// Duration is the talk time between connection and end request.
func (s *TrainingSession) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	start := s.CreatedAt
	if s.StartedAt != nil {
		start = *s.StartedAt
	}
	if d := s.EndedAt.Sub(start); d > 0 {
		return d
	}
	return 0
}

// EvaluationRetryable reports whether only the scoring step may be rerun.
func (s *TrainingSession) EvaluationRetryable() bool {
	if s.Status != StatusFailed {
		return false
	}
	return s.FailedFrom == StatusEnding || s.FailedFrom == StatusEvaluating
}
