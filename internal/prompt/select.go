package prompt

import "github.com/abhisek/mathchat/internal/session"

// Stage names the answer template chosen for a pass.
type Stage string

const (
	StageNewExercise Stage = "new_exercise"
	StageOffTopic    Stage = "off_topic"
	StageConcept     Stage = "concept_guess"
	StageConceptTry  Stage = "concept_retry"
	StageLesson      Stage = "lesson"
	StageGoodAnswer  Stage = "good_answer"
	StageResolution  Stage = "exercise_resolution"
)

// Template returns the registry name of the stage's template.
func (s Stage) Template() string { return string(s) }

// rule is one row of the decision table.
type rule struct {
	stage Stage
	match func(*session.State) bool
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	// An exercise reset in this pass leaves the introduction flags unset.
	{StageNewExercise, func(s *session.State) bool {
		return s.ResponseCount == 0 && s.IsMathQuestion == nil
	}},
	{StageOffTopic, func(s *session.State) bool {
		return session.IsFalse(s.IsMathQuestion)
	}},
	{StageConcept, func(s *session.State) bool {
		return !session.IsTrue(s.ConceptUnderstood) && !session.IsTrue(s.ConceptAsked)
	}},
	{StageConceptTry, func(s *session.State) bool {
		return !session.IsTrue(s.ConceptUnderstood)
	}},
	{StageLesson, func(s *session.State) bool {
		return session.IsTrue(s.NeedLesson) && !session.IsTrue(s.LessonUnderstood)
	}},
	{StageGoodAnswer, func(s *session.State) bool {
		return session.IsTrue(s.GoodAnswer)
	}},
}

// Select picks the answer stage for the post-classification state. It is
// a pure function of st.
func Select(st *session.State) Stage {
	for _, r := range rules {
		if r.match(st) {
			return r.stage
		}
	}
	return StageResolution
}
