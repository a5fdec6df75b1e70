package analysis

import "github.com/abhisek/mathchat/internal/session"

// Phase identifies which analysis runs for a pass.
type Phase string

const (
	PhaseIntroduction Phase = "introduction"
	PhaseConcept      Phase = "concept"
	PhaseLesson       Phase = "lesson"
	PhaseResolution   Phase = "resolution"
	PhasePassThrough  Phase = "pass-through"
)

// SelectPhase picks the phase from the state before the pass. It is a pure
// function of st. The introduction runs until a message is recognised as
// a math exercise.
func SelectPhase(st *session.State) Phase {
	switch {
	case st.ResponseCount == 0 || !session.IsTrue(st.IsMathQuestion):
		return PhaseIntroduction
	case !session.IsTrue(st.ConceptUnderstood):
		return PhaseConcept
	case !session.IsTrue(st.LessonUnderstood):
		return PhaseLesson
	case !session.IsTrue(st.GoodAnswer):
		return PhaseResolution
	default:
		return PhasePassThrough
	}
}

// Introduction is the outcome of the first analysis of an exercise.
type Introduction struct {
	MathConcepts   []string
	IsMathQuestion bool
	IsGeometry     bool
}

// Concept is the outcome of the concept check.
type Concept struct {
	ConceptUnderstood bool
	ClearConversation bool
}

// Lesson is the outcome of the lesson check.
type Lesson struct {
	NeedLesson        bool
	LessonUnderstood  bool
	ClearConversation bool
}

// Resolution is the outcome of the answer check.
type Resolution struct {
	GoodAnswer        bool
	ClearConversation bool
}

// Result is the outcome of one pass. Exactly the payload matching Phase is
// set; pass-through carries none.
type Result struct {
	Phase        Phase
	Introduction *Introduction
	Concept      *Concept
	Lesson       *Lesson
	Resolution   *Resolution
}

// ClearConversation reports whether the student asked to start over.
func (r Result) ClearConversation() bool {
	switch {
	case r.Concept != nil:
		return r.Concept.ClearConversation
	case r.Lesson != nil:
		return r.Lesson.ClearConversation
	case r.Resolution != nil:
		return r.Resolution.ClearConversation
	}
	return false
}

// Apply writes the fields owned by r's phase to st. Stage flags only move
// from unset or false to true within an exercise.
func (r Result) Apply(st *session.State) {
	switch r.Phase {
	case PhaseIntroduction:
		if r.Introduction == nil {
			return
		}
		st.MathConcepts = append([]string(nil), r.Introduction.MathConcepts...)
		st.IsMathQuestion = session.Bool(r.Introduction.IsMathQuestion)
		st.IsGeometry = session.Bool(r.Introduction.IsGeometry)
	case PhaseConcept:
		if r.Concept != nil {
			raise(&st.ConceptUnderstood, r.Concept.ConceptUnderstood)
		}
	case PhaseLesson:
		if r.Lesson != nil {
			raise(&st.NeedLesson, r.Lesson.NeedLesson)
			raise(&st.LessonUnderstood, r.Lesson.LessonUnderstood)
		}
	case PhaseResolution:
		if r.Resolution != nil {
			raise(&st.GoodAnswer, r.Resolution.GoodAnswer)
		}
	}
}

func raise(flag **bool, v bool) {
	if session.IsTrue(*flag) {
		return
	}
	*flag = session.Bool(v)
}
