package scenario

import (
	"errors"
	"math/rand/v2"
)

// DefaultID is used when a caller does not pick a scenario.
const DefaultID = "billing_complaint"

var ErrUnknown = errors.New("unknown scenario")

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

type Emotion string

const (
	Calm       Emotion = "calm"
	Frustrated Emotion = "frustrated"
	Confused   Emotion = "confused"
	Angry      Emotion = "angry"
	Urgent     Emotion = "urgent"
)

// Persona describes the simulated customer the trainee talks to.
type Persona struct {
	Name           string  `json:"name"`
	Emotion        Emotion `json:"emotion"`
	Background     string  `json:"background"`
	Issue          string  `json:"issue"`
	DesiredOutcome string  `json:"desiredOutcome"`
}

// Scenario is a role-play script. SystemPrompt drives the persona voice
// agent; EvaluationFocus is handed to the scorer as grading hints.
type Scenario struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Difficulty      Difficulty `json:"difficulty"`
	Persona         Persona    `json:"customerPersona"`
	SystemPrompt    string     `json:"systemPrompt"`
	EndConditions   []string   `json:"endConditions"`
	EvaluationFocus []string   `json:"evaluationFocus"`
}

// Lookup returns the scenario with the given id.
func Lookup(id string) (Scenario, error) {
	for _, s := range catalog {
		if s.ID == id {
			return s, nil
		}
	}
	return Scenario{}, ErrUnknown
}

// All returns every built-in scenario in catalog order.
func All() []Scenario {
	out := make([]Scenario, len(catalog))
	copy(out, catalog)
	return out
}

func ByDifficulty(d Difficulty) []Scenario {
	var out []Scenario
	for _, s := range catalog {
		if s.Difficulty == d {
			out = append(out, s)
		}
	}
	return out
}

func Random() Scenario {
	return catalog[rand.IntN(len(catalog))]
}
