package evaluation

type Grade string

var bands = []struct {
	min   int
	grade Grade
}{
	{97, "A+"},
	{93, "A"},
	{90, "A-"},
	{87, "B+"},
	{83, "B"},
	{80, "B-"},
	{77, "C+"},
	{73, "C"},
	{70, "C-"},
	{60, "D"},
}

// GradeFor maps an overall score to its letter grade. Scores outside
// [0,100] are clamped.
func GradeFor(score int) Grade {
	for _, b := range bands {
		if score >= b.min {
			return b.grade
		}
	}
	return "F"
}
