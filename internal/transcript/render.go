package transcript

import (
	"fmt"
	"strings"
)

// Speaker labels used when the transcript is handed to the scorer. The
// trainee plays the support agent; the persona plays the customer.
const (
	TraineeLabel = "AGENT"
	PersonaLabel = "CUSTOMER"
)

// Render formats messages as one labelled turn per line.
func Render(messages []Message) string {
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s: %s", label(m.Role), strings.TrimSpace(m.Content))
	}
	return sb.String()
}

// CountByRole returns how many messages each role contributed.
func CountByRole(messages []Message) map[Role]int {
	counts := make(map[Role]int, 2)
	for _, m := range messages {
		counts[m.Role]++
	}
	return counts
}

func label(r Role) string {
	if r == RolePersona {
		return PersonaLabel
	}
	return TraineeLabel
}
