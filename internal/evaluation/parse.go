package evaluation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// parseResponse validates the scorer's raw text against the rubric. Every
// required field must be present with the right type; nothing is defaulted.
func parseResponse(raw string, rubric Rubric) (*Evaluation, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, invalid("response is not a JSON object: %v", err)
	}

	ev := &Evaluation{Categories: make(map[string]CategoryScore, len(rubric.Categories))}

	if ev.OverallScore, err = scoreField(fields, "overallScore"); err != nil {
		return nil, err
	}

	cats, ok := fields["categories"].(map[string]any)
	if !ok {
		return nil, invalid("categories: missing or not an object")
	}
	for _, key := range rubric.Keys() {
		obj, ok := cats[key].(map[string]any)
		if !ok {
			return nil, invalid("categories.%s: missing or not an object", key)
		}
		var cs CategoryScore
		if cs.Score, err = scoreField(obj, "score"); err != nil {
			return nil, fmt.Errorf("categories.%s: %w", key, err)
		}
		if cs.Feedback, err = stringField(obj, "feedback", true); err != nil {
			return nil, fmt.Errorf("categories.%s: %w", key, err)
		}
		if cs.FeedbackUrdu, err = stringField(obj, "feedbackUrdu", false); err != nil {
			return nil, fmt.Errorf("categories.%s: %w", key, err)
		}
		ev.Categories[key] = cs
	}

	if ev.Strengths, err = stringsField(fields, "strengths", true); err != nil {
		return nil, err
	}
	if ev.Improvements, err = stringsField(fields, "improvements", true); err != nil {
		return nil, err
	}
	if ev.Summary, err = stringField(fields, "summary", true); err != nil {
		return nil, err
	}

	if ev.StrengthsUrdu, err = stringsField(fields, "strengthsUrdu", false); err != nil {
		return nil, err
	}
	if ev.ImprovementsUrdu, err = stringsField(fields, "improvementsUrdu", false); err != nil {
		return nil, err
	}
	if ev.SummaryUrdu, err = stringField(fields, "summaryUrdu", false); err != nil {
		return nil, err
	}
	if ev.Examples, err = examplesField(fields); err != nil {
		return nil, err
	}

	ev.OverallGrade = GradeFor(ev.OverallScore)
	return ev, nil
}

// extractJSON strips markdown fences and any prose around the outermost object.
func extractJSON(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return nil, invalid("no JSON object in response")
	}
	return []byte(s[start : end+1]), nil
}

func scoreField(obj map[string]any, key string) (int, error) {
	v, ok := obj[key]
	if !ok {
		return 0, invalid("%s: missing", key)
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, invalid("%s: expected number, got %T", key, v)
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) {
		return 0, invalid("%s: not a number: %s", key, n)
	}
	if f != math.Trunc(f) {
		return 0, invalid("%s: %s is not an integer", key, n)
	}
	if f < 0 || f > 100 {
		return 0, invalid("%s: %s outside [0,100]", key, n)
	}
	return int(f), nil
}

func stringField(obj map[string]any, key string, required bool) (string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		if required {
			return "", invalid("%s: missing", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid("%s: expected string, got %T", key, v)
	}
	return s, nil
}

func stringsField(obj map[string]any, key string, required bool) ([]string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		if required {
			return nil, invalid("%s: missing", key)
		}
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, invalid("%s: expected array, got %T", key, v)
	}
	out := make([]string, 0, len(arr))
	for i, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, invalid("%s[%d]: expected string, got %T", key, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

func examplesField(obj map[string]any) (*Examples, error) {
	v, ok := obj["examples"]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, invalid("examples: expected object, got %T", v)
	}
	var ex Examples
	var err error
	if ex.Good, err = exampleList(m, "good"); err != nil {
		return nil, err
	}
	if ex.NeedsWork, err = exampleList(m, "needsWork"); err != nil {
		return nil, err
	}
	return &ex, nil
}

func exampleList(obj map[string]any, key string) ([]Example, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, invalid("examples.%s: expected array, got %T", key, v)
	}
	out := make([]Example, 0, len(arr))
	for i, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, invalid("examples.%s[%d]: expected object", key, i)
		}
		var e Example
		var err error
		if e.Quote, err = stringField(m, "quote", true); err != nil {
			return nil, fmt.Errorf("examples.%s[%d]: %w", key, i, err)
		}
		if e.Reason, err = stringField(m, "reason", true); err != nil {
			return nil, fmt.Errorf("examples.%s[%d]: %w", key, i, err)
		}
		if e.ReasonUrdu, err = stringField(m, "reasonUrdu", false); err != nil {
			return nil, fmt.Errorf("examples.%s[%d]: %w", key, i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidResponse, fmt.Sprintf(format, args...))
}
