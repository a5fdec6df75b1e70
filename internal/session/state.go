package session

import (
	"slices"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// State is the per-conversation tutoring state.
//
// Stage flags are tri-state: nil means the classifier has not decided yet.
// The three Intermediate slices are parallel and always have equal length.
type State struct {
	ID string `json:"id"`

	Messages         []Message `json:"messages"`
	FirstUserMessage string    `json:"first_user_message"`
	ExerciseStart    int       `json:"exercise_start"`

	IsMathQuestion    *bool `json:"is_math_question,omitempty"`
	IsGeometry        *bool `json:"is_geometry,omitempty"`
	ConceptUnderstood *bool `json:"concept_understood,omitempty"`
	ConceptAsked      *bool `json:"concept_asked,omitempty"`
	NeedLesson        *bool `json:"need_lesson,omitempty"`
	LessonUnderstood  *bool `json:"lesson_understood,omitempty"`
	GoodAnswer        *bool `json:"good_answer,omitempty"`

	ResponseCount int      `json:"response_count"`
	MathConcepts  []string `json:"math_concepts"`
	LessonExample string   `json:"lesson_example"`
	Solution      string   `json:"solution"`

	IntermediateCalculation []string `json:"intermediate_calculation"`
	IntermediateExplanation []string `json:"intermediate_explanation"`
	IntermediateSolution    []string `json:"intermediate_solution"`

	ImageDescription string `json:"image_description"`
	EndConversation  bool   `json:"end_conversation"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState returns an empty state for id.
func NewState(id string, now time.Time) *State {
	return &State{ID: id, CreatedAt: now, UpdatedAt: now}
}

// Bool returns a pointer to v, for setting tri-state flags.
func Bool(v bool) *bool { return &v }

// IsTrue reports whether a tri-state flag is set and true.
func IsTrue(b *bool) bool { return b != nil && *b }

// IsFalse reports whether a tri-state flag is set and false.
func IsFalse(b *bool) bool { return b != nil && !*b }

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := *s
	c.Messages = slices.Clone(s.Messages)
	c.MathConcepts = slices.Clone(s.MathConcepts)
	c.IntermediateCalculation = slices.Clone(s.IntermediateCalculation)
	c.IntermediateExplanation = slices.Clone(s.IntermediateExplanation)
	c.IntermediateSolution = slices.Clone(s.IntermediateSolution)
	for _, f := range []struct{ dst, src **bool }{
		{&c.IsMathQuestion, &s.IsMathQuestion},
		{&c.IsGeometry, &s.IsGeometry},
		{&c.ConceptUnderstood, &s.ConceptUnderstood},
		{&c.ConceptAsked, &s.ConceptAsked},
		{&c.NeedLesson, &s.NeedLesson},
		{&c.LessonUnderstood, &s.LessonUnderstood},
		{&c.GoodAnswer, &s.GoodAnswer},
	} {
		if *f.src != nil {
			*f.dst = Bool(**f.src)
		}
	}
	return &c
}

// AppendUser adds a user turn. The first user turn of an exercise becomes
// its canonical statement.
func (s *State) AppendUser(content string) {
	s.Messages = append(s.Messages, Message{Role: RoleUser, Content: content})
	if s.FirstUserMessage == "" {
		s.FirstUserMessage = content
	}
}

// AppendAssistant adds an assistant turn.
func (s *State) AppendAssistant(content string) {
	s.Messages = append(s.Messages, Message{Role: RoleAssistant, Content: content})
}

// Exercise returns the messages of the current exercise.
func (s *State) Exercise() []Message {
	if s.ExerciseStart >= len(s.Messages) {
		return nil
	}
	return s.Messages[s.ExerciseStart:]
}

// ExerciseStatement returns the first message of the current exercise,
// falling back to FirstUserMessage.
func (s *State) ExerciseStatement() string {
	if s.ExerciseStart < len(s.Messages) {
		return s.Messages[s.ExerciseStart].Content
	}
	return s.FirstUserMessage
}

// LastUserMessage returns the content of the most recent user turn.
func (s *State) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// SetIntermediate replaces the intermediate steps. Shorter slices are
// padded with "" and longer ones truncated to len(calc).
func (s *State) SetIntermediate(calc, expl, sol []string) {
	n := len(calc)
	s.IntermediateCalculation = slices.Clone(calc)
	s.IntermediateExplanation = fit(expl, n)
	s.IntermediateSolution = fit(sol, n)
}

func fit(v []string, n int) []string {
	out := make([]string, n)
	copy(out, v)
	return out
}

// ResetExercise starts a new exercise at message index start. History is
// kept; everything scoped to the previous exercise is cleared.
func (s *State) ResetExercise(start int) {
	start = min(max(start, 0), len(s.Messages))

	s.ExerciseStart = start
	s.FirstUserMessage = ""
	for _, m := range s.Messages[start:] {
		if m.Role == RoleUser {
			s.FirstUserMessage = m.Content
			break
		}
	}

	s.IsMathQuestion = nil
	s.IsGeometry = nil
	s.ConceptUnderstood = nil
	s.ConceptAsked = nil
	s.NeedLesson = nil
	s.LessonUnderstood = nil
	s.GoodAnswer = nil

	s.ResponseCount = 0
	s.MathConcepts = nil
	s.LessonExample = ""
	s.Solution = ""
	s.IntermediateCalculation = nil
	s.IntermediateExplanation = nil
	s.IntermediateSolution = nil
	s.ImageDescription = ""
	s.EndConversation = false
}
