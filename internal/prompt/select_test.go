package prompt

import (
	"testing"
	"time"

	"github.com/abhisek/mathchat/internal/session"
)

func testState() *session.State {
	st := session.NewState("s1", time.Unix(0, 0))
	st.AppendUser("Résous 3x + 2 = 11")
	return st
}

func TestSelect(t *testing.T) {
	yes, no := session.Bool(true), session.Bool(false)

	tests := []struct {
		name  string
		setup func(*session.State)
		want  Stage
	}{
		{
			name:  "reset this pass",
			setup: func(s *session.State) {},
			want:  StageNewExercise,
		},
		{
			name:  "off topic",
			setup: func(s *session.State) { s.IsMathQuestion = no },
			want:  StageOffTopic,
		},
		{
			name:  "first concept question",
			setup: func(s *session.State) { s.IsMathQuestion = yes },
			want:  StageConcept,
		},
		{
			name: "concept asked and missed",
			setup: func(s *session.State) {
				s.IsMathQuestion, s.ConceptAsked, s.ConceptUnderstood = yes, yes, no
			},
			want: StageConceptTry,
		},
		{
			name: "needs lesson",
			setup: func(s *session.State) {
				s.IsMathQuestion, s.ConceptUnderstood, s.NeedLesson = yes, yes, yes
			},
			want: StageLesson,
		},
		{
			name: "lesson understood",
			setup: func(s *session.State) {
				s.IsMathQuestion, s.ConceptUnderstood, s.NeedLesson, s.LessonUnderstood = yes, yes, yes, yes
			},
			want: StageResolution,
		},
		{
			name: "no lesson needed",
			setup: func(s *session.State) {
				s.IsMathQuestion, s.ConceptUnderstood, s.NeedLesson = yes, yes, no
			},
			want: StageResolution,
		},
		{
			name: "good answer",
			setup: func(s *session.State) {
				s.IsMathQuestion, s.ConceptUnderstood, s.LessonUnderstood, s.GoodAnswer = yes, yes, yes, yes
			},
			want: StageGoodAnswer,
		},
		{
			name: "later pass with unset math flag",
			setup: func(s *session.State) {
				s.ResponseCount = 3
				s.ConceptUnderstood, s.LessonUnderstood = yes, yes
			},
			want: StageResolution,
		},
		{
			name: "off topic beats concept",
			setup: func(s *session.State) {
				s.IsMathQuestion, s.ConceptAsked = no, yes
			},
			want: StageOffTopic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := testState()
			tt.setup(st)
			before := st.Clone()

			if got := Select(st); got != tt.want {
				t.Errorf("Select = %q, want %q", got, tt.want)
			}
			if got := Select(st); got != tt.want {
				t.Errorf("second Select = %q, want %q", got, tt.want)
			}
			if session.IsTrue(before.ConceptAsked) != session.IsTrue(st.ConceptAsked) || before.ResponseCount != st.ResponseCount {
				t.Error("Select mutated state")
			}
		})
	}
}
