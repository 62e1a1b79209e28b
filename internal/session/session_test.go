package session

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusConnecting, true},
		{StatusConnecting, StatusActive, true},
		{StatusConnecting, StatusFailed, true},
		{StatusActive, StatusEnding, true},
		{StatusActive, StatusFailed, true},
		{StatusEnding, StatusEvaluating, true},
		{StatusEvaluating, StatusCompleted, true},
		{StatusEvaluating, StatusFailed, true},
		{StatusFailed, StatusEvaluating, true},

		{StatusCreated, StatusActive, false},
		{StatusConnecting, StatusEnding, false},
		{StatusActive, StatusCompleted, false},
		{StatusEnding, StatusCompleted, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusEvaluating, false},
		{StatusFailed, StatusActive, false},
		{StatusFailed, StatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCompletedOnlyFromEvaluating(t *testing.T) {
	for from := range transitions {
		if CanTransition(from, StatusCompleted) && from != StatusEvaluating {
			t.Errorf("%s can reach completed without an evaluation", from)
		}
	}
}

func TestStatusTerminalAndValid(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Error("completed and failed must be terminal")
	}
	if StatusEvaluating.Terminal() {
		t.Error("evaluating is not terminal")
	}
	if Status("paused").Valid() {
		t.Error("unknown status reported valid")
	}
	if !StatusEnding.Valid() {
		t.Error("ending should be valid")
	}
}

func TestEvaluationRetryable(t *testing.T) {
	tests := []struct {
		status, from Status
		want         bool
	}{
		{StatusFailed, StatusEvaluating, true},
		{StatusFailed, StatusEnding, true},
		{StatusFailed, StatusActive, false},
		{StatusFailed, StatusConnecting, false},
		{StatusCompleted, StatusEvaluating, false},
	}
	for _, tt := range tests {
		s := TrainingSession{Status: tt.status, FailedFrom: tt.from}
		if got := s.EvaluationRetryable(); got != tt.want {
			t.Errorf("%s from %s: got %v, want %v", tt.status, tt.from, got, tt.want)
		}
	}
}

func TestDuration(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	started := created.Add(10 * time.Second)
	ended := started.Add(4 * time.Minute)

	s := TrainingSession{CreatedAt: created}
	if s.Duration() != 0 {
		t.Errorf("expected zero duration before end, got %s", s.Duration())
	}
	s.EndedAt = &ended
	if s.Duration() != 4*time.Minute+10*time.Second {
		t.Errorf("expected duration from creation, got %s", s.Duration())
	}
	s.StartedAt = &started
	if s.Duration() != 4*time.Minute {
		t.Errorf("expected 4m, got %s", s.Duration())
	}
}
