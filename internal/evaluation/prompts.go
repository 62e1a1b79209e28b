package evaluation

import (
	"fmt"
	"strings"
)

const systemPreamble = `You are an expert evaluator of call-centre agent training calls. The AGENT is a trainee; the CUSTOMER is a simulated persona. Judge only the AGENT's behaviour.

Score every category from 0 to 100 and give an overall score from 0 to 100. Base each score on evidence in the transcript. Quote the agent when you cite examples.`

const defaultFocus = "General customer service skills"

// buildSystemPrompt renders the grading instructions and the exact JSON
// shape the response must follow.
func buildSystemPrompt(rubric Rubric, bilingual bool) string {
	var sb strings.Builder
	sb.WriteString(systemPreamble)
	sb.WriteString("\n\nCategories:\n")
	for i, c := range rubric.Categories {
		fmt.Fprintf(&sb, "%d. %s (%s) - %s", i+1, c.Name, c.Key, c.Description)
		if c.Weight > 0 {
			fmt.Fprintf(&sb, " [weight %.2f]", c.Weight)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nRespond ONLY with a JSON object in exactly this format:\n{\n")
	sb.WriteString(`  "overallScore": <integer 0-100>,` + "\n")
	sb.WriteString(`  "categories": {` + "\n")
	for i, c := range rubric.Categories {
		if bilingual {
			fmt.Fprintf(&sb, `    "%s": {"score": <integer>, "feedback": "<english>", "feedbackUrdu": "<urdu>"}`, c.Key)
		} else {
			fmt.Fprintf(&sb, `    "%s": {"score": <integer>, "feedback": "<english>"}`, c.Key)
		}
		if i < len(rubric.Categories)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("  },\n")
	sb.WriteString(`  "strengths": ["<point>", "<point>"],` + "\n")
	sb.WriteString(`  "improvements": ["<point>", "<point>"],` + "\n")
	if bilingual {
		sb.WriteString(`  "strengthsUrdu": ["<urdu point>"],` + "\n")
		sb.WriteString(`  "improvementsUrdu": ["<urdu point>"],` + "\n")
		sb.WriteString(`  "summaryUrdu": "<urdu summary>",` + "\n")
		sb.WriteString(`  "examples": {"good": [{"quote": "<agent quote>", "reason": "<why>", "reasonUrdu": "<urdu>"}], "needsWork": [{"quote": "<agent quote>", "reason": "<why>", "reasonUrdu": "<urdu>"}]},` + "\n")
	} else {
		sb.WriteString(`  "examples": {"good": [{"quote": "<agent quote>", "reason": "<why>"}], "needsWork": [{"quote": "<agent quote>", "reason": "<why>"}]},` + "\n")
	}
	sb.WriteString(`  "summary": "<2-3 sentence summary>"` + "\n}")
	return sb.String()
}

// ScoreRequest is everything the scorer sees about one session.
type ScoreRequest struct {
	TranscriptText       string
	ScenarioID           string
	ScenarioName         string
	EvaluationFocusHints []string
	DurationSeconds      int
}

func buildUserPrompt(req ScoreRequest) string {
	focus := defaultFocus
	if len(req.EvaluationFocusHints) > 0 {
		focus = strings.Join(req.EvaluationFocusHints, ", ")
	}
	return fmt.Sprintf(`SCENARIO: %s (%s)
EVALUATION FOCUS: %s
CALL DURATION: %d seconds

Evaluate this conversation:

%s`, req.ScenarioName, req.ScenarioID, focus, req.DurationSeconds, req.TranscriptText)
}
