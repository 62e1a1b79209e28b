package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/drill/internal/anthropic"
	"github.com/MikeSquared-Agency/drill/internal/scenario"
	"github.com/MikeSquared-Agency/drill/internal/transcript"
)

const defaultMaxTokens = 4096

// Scorer is the model endpoint that grades a rendered transcript.
type Scorer interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

type Config struct {
	Rubric    Rubric
	Bilingual bool
	MaxTokens int
	Model     string
}

type Pipeline struct {
	scorer Scorer
	cfg    Config
	system string
	logger *slog.Logger
	now    func() time.Time
}

func New(scorer Scorer, cfg Config, logger *slog.Logger) *Pipeline {
	if len(cfg.Rubric.Categories) == 0 {
		cfg.Rubric = DefaultRubric
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &Pipeline{
		scorer: scorer,
		cfg:    cfg,
		system: buildSystemPrompt(cfg.Rubric, cfg.Bilingual),
		logger: logger,
		now:    time.Now,
	}
}

func (p *Pipeline) Rubric() Rubric { return p.cfg.Rubric }

type Request struct {
	SessionID  string
	Transcript []transcript.Message
	Scenario   scenario.Scenario
	Duration   time.Duration
}

// Evaluate scores a frozen transcript. It makes exactly one scorer call.
func (p *Pipeline) Evaluate(ctx context.Context, req Request) (*Evaluation, error) {
	if len(req.Transcript) == 0 {
		return nil, ErrEmptyTranscript
	}

	sr := ScoreRequest{
		TranscriptText:       transcript.Render(req.Transcript),
		ScenarioID:           req.Scenario.ID,
		ScenarioName:         req.Scenario.Name,
		EvaluationFocusHints: req.Scenario.EvaluationFocus,
		DurationSeconds:      int(req.Duration.Round(time.Second) / time.Second),
	}

	p.logger.Info("evaluating session",
		"session_id", req.SessionID,
		"scenario_id", sr.ScenarioID,
		"messages", len(req.Transcript),
		"duration_s", sr.DurationSeconds,
	)

	raw, err := p.scorer.Complete(ctx, p.system, []anthropic.Message{
		{Role: "user", Content: buildUserPrompt(sr)},
	}, p.cfg.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	ev, err := parseResponse(raw, p.cfg.Rubric)
	if err != nil {
		p.logger.Error("failed to parse evaluation response",
			"session_id", req.SessionID,
			"error", err,
			"raw", raw,
		)
		return nil, err
	}

	ev.Rubric = p.cfg.Rubric.Name
	ev.ScenarioID = sr.ScenarioID
	ev.MessageCount = len(req.Transcript)
	ev.DurationSeconds = sr.DurationSeconds
	ev.Model = p.cfg.Model
	ev.CreatedAt = p.now().UTC()

	p.logger.Info("evaluation complete",
		"session_id", req.SessionID,
		"score", ev.OverallScore,
		"grade", ev.OverallGrade,
	)
	return ev, nil
}
