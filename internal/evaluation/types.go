package evaluation

import (
	"errors"
	"time"
)

var (
	// ErrUnavailable means the scorer could not be reached or refused the
	// request. The same transcript may be evaluated again.
	ErrUnavailable = errors.New("evaluation unavailable")
	// ErrInvalidResponse means the scorer answered with data that does not
	// match the evaluation contract.
	ErrInvalidResponse = errors.New("invalid evaluation response")
	ErrEmptyTranscript = errors.New("no final transcript to evaluate")
)

type CategoryScore struct {
	Score        int    `json:"score"`
	Feedback     string `json:"feedback"`
	FeedbackUrdu string `json:"feedbackUrdu,omitempty"`
}

// Example quotes a trainee line the scorer singled out.
type Example struct {
	Quote      string `json:"quote"`
	Reason     string `json:"reason"`
	ReasonUrdu string `json:"reasonUrdu,omitempty"`
}

type Examples struct {
	Good      []Example `json:"good,omitempty"`
	NeedsWork []Example `json:"needsWork,omitempty"`
}

// Evaluation is a validated scoring result. OverallGrade is always derived
// from OverallScore.
type Evaluation struct {
	OverallScore int                      `json:"overallScore"`
	OverallGrade Grade                    `json:"overallGrade"`
	Categories   map[string]CategoryScore `json:"categories"`
	Strengths    []string                 `json:"strengths"`
	Improvements []string                 `json:"improvements"`
	Summary      string                   `json:"summary"`

	StrengthsUrdu    []string  `json:"strengthsUrdu,omitempty"`
	ImprovementsUrdu []string  `json:"improvementsUrdu,omitempty"`
	SummaryUrdu      string    `json:"summaryUrdu,omitempty"`
	Examples         *Examples `json:"examples,omitempty"`

	Rubric          string    `json:"rubric"`
	ScenarioID      string    `json:"scenarioId"`
	MessageCount    int       `json:"messageCount"`
	DurationSeconds int       `json:"durationSeconds"`
	Model           string    `json:"model,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}
