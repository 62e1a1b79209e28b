package evaluation

// Category is one scored dimension of a rubric.
type Category struct {
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight,omitempty"`
}

type Rubric struct {
	Name       string     `json:"name"`
	Categories []Category `json:"categories"`
}

// DefaultRubric is the call-centre rubric every scenario is graded against.
var DefaultRubric = Rubric{
	Name: "call-centre-v1",
	Categories: []Category{
		{Key: "tone", Name: "Tone & Politeness", Description: "Professional, respectful language suited to the customer's culture"},
		{Key: "empathy", Name: "Empathy", Description: "Understanding the customer's feelings and showing care"},
		{Key: "structure", Name: "Call Structure", Description: "Greeting, problem identification, resolution flow and closing"},
		{Key: "clarity", Name: "Clarity", Description: "Clear explanations without jargon"},
		{Key: "processAdherence", Name: "Process Adherence", Description: "Following customer service procedures"},
		{Key: "resolution", Name: "Resolution", Description: "Effectively addressing the customer's issue"},
	},
}

func (r Rubric) Keys() []string {
	keys := make([]string, len(r.Categories))
	for i, c := range r.Categories {
		keys[i] = c.Key
	}
	return keys
}
