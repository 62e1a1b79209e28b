package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/drill/internal/evaluation"
	"github.com/MikeSquared-Agency/drill/internal/scenario"
	"github.com/MikeSquared-Agency/drill/internal/session"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostSessionOutcome posts a finished session to the supervisors' channel.
// Completed sessions get a category breakdown as a thread reply. Returns the
// header message timestamp.
func (p *Poster) PostSessionOutcome(ctx context.Context, s session.TrainingSession) (string, error) {
	text := formatOutcomeMessage(s)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "Session `" + s.ID.String() + "` | room `" + s.RoomName + "`",
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("posted session outcome to slack", "ts", ts, "session_id", s.ID, "status", s.Status)

	if s.Status == session.StatusCompleted && s.Evaluation != nil {
		if err := p.PostThread(ctx, ts, formatBreakdown(s.Evaluation)); err != nil {
			p.logger.Warn("slack breakdown post failed", "session_id", s.ID, "error", err)
		}
	}
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatOutcomeMessage(s session.TrainingSession) string {
	var sb strings.Builder

	if s.Status == session.StatusCompleted {
		sb.WriteString("*Training session completed* :white_check_mark:\n")
	} else {
		sb.WriteString("*Training session failed* :x:\n")
	}
	fmt.Fprintf(&sb, "*Trainee:* %s | *Scenario:* %s\n", s.TraineeID, scenarioLabel(s.ScenarioID))

	if ev := s.Evaluation; s.Status == session.StatusCompleted && ev != nil {
		fmt.Fprintf(&sb, "*Score:* %d/100 (%s) | *Duration:* %s | *Messages:* %d\n",
			ev.OverallScore, ev.OverallGrade, time.Duration(ev.DurationSeconds)*time.Second, ev.MessageCount)
		if ev.Summary != "" {
			fmt.Fprintf(&sb, "> %s\n", ev.Summary)
		}
		return sb.String()
	}

	fmt.Fprintf(&sb, "*Failed while:* %s\n", s.FailedFrom)
	fmt.Fprintf(&sb, "*Reason:* %s\n", s.FailureReason)
	if s.EvaluationRetryable() {
		sb.WriteString("_The transcript is saved; evaluation can be retried._")
	} else {
		sb.WriteString("_The trainee needs to start a new session._")
	}
	return sb.String()
}

func formatBreakdown(ev *evaluation.Evaluation) string {
	var sb strings.Builder

	sb.WriteString("*Category breakdown*\n")
	for _, key := range categoryOrder(ev.Categories) {
		c := ev.Categories[key]
		fmt.Fprintf(&sb, "• %s: %d", categoryName(key), c.Score)
		if c.Feedback != "" {
			fmt.Fprintf(&sb, " | %s", c.Feedback)
		}
		sb.WriteString("\n")
	}

	if len(ev.Strengths) > 0 {
		sb.WriteString("\n*Strengths*\n")
		for _, s := range ev.Strengths {
			fmt.Fprintf(&sb, "• %s\n", s)
		}
	}
	if len(ev.Improvements) > 0 {
		sb.WriteString("\n*Improvements*\n")
		for _, s := range ev.Improvements {
			fmt.Fprintf(&sb, "• %s\n", s)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// categoryOrder lists default-rubric categories in rubric order, then any
// others alphabetically.
func categoryOrder(cats map[string]evaluation.CategoryScore) []string {
	var keys []string
	seen := make(map[string]bool, len(cats))
	for _, k := range evaluation.DefaultRubric.Keys() {
		if _, ok := cats[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range cats {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func categoryName(key string) string {
	for _, c := range evaluation.DefaultRubric.Categories {
		if c.Key == key {
			return c.Name
		}
	}
	return key
}

func scenarioLabel(id string) string {
	sc, err := scenario.Lookup(id)
	if err != nil {
		return id
	}
	return fmt.Sprintf("%s (%s)", sc.Name, sc.Difficulty)
}
