package prompt

import (
	"strings"

	"github.com/abhisek/mathchat/internal/session"
)

// Step is one checked calculation of the student's work.
type Step struct {
	Calculation string
	Explanation string
	Solution    string
}

// Data is what every template renders against.
type Data struct {
	History          string
	Exercise         string
	LastMessage      string
	Concept          string
	Concepts         []string
	Lesson           string
	Solution         string
	Steps            []Step
	ImageDescription string
	IsGeometry       bool
}

// NewData collects the template fields from st. History covers the
// current exercise only.
func NewData(st *session.State) Data {
	d := Data{
		History:          FormatHistory(st.Exercise()),
		Exercise:         st.ExerciseStatement(),
		LastMessage:      st.LastUserMessage(),
		Concepts:         st.MathConcepts,
		Lesson:           st.LessonExample,
		Solution:         st.Solution,
		ImageDescription: st.ImageDescription,
		IsGeometry:       session.IsTrue(st.IsGeometry),
	}
	if len(st.MathConcepts) > 0 {
		d.Concept = st.MathConcepts[0]
	}
	for i, calc := range st.IntermediateCalculation {
		d.Steps = append(d.Steps, Step{
			Calculation: calc,
			Explanation: st.IntermediateExplanation[i],
			Solution:    st.IntermediateSolution[i],
		})
	}
	return d
}

// FormatHistory renders messages one per line as "role: content".
func FormatHistory(msgs []session.Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
