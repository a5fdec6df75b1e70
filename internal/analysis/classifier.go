// Package analysis classifies where the student stands in the current
// exercise. Each pass runs at most one phase.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/abhisek/mathchat/internal/llm"
	"github.com/abhisek/mathchat/internal/prompt"
	"github.com/abhisek/mathchat/internal/session"
)

// ErrClassification wraps every failure of a phase call.
var ErrClassification = errors.New("classification failed")

// Config holds configuration for the classifier.
type Config struct {
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   256,
		Temperature: 0,
	}
}

const classifierSystemPrompt = `You analyse a conversation between a secondary school student and a math tutor. Answer only with the requested fields. Judge the student's messages, not the tutor's.`

type phaseSpec struct {
	template string
	schema   *llm.Schema
	decode   func(resp *llm.Response) (Result, error)
}

var phases = map[Phase]phaseSpec{
	PhaseIntroduction: {prompt.AnalysisIntroduction, IntroductionSchema, decodeIntroduction},
	PhaseConcept:      {prompt.AnalysisConcept, ConceptSchema, decodeConcept},
	PhaseLesson:       {prompt.AnalysisLesson, LessonSchema, decodeLesson},
	PhaseResolution:   {prompt.AnalysisResolution, ResolutionSchema, decodeResolution},
}

// Classifier runs the analysis phase selected for a state.
type Classifier struct {
	provider llm.Provider
	registry *prompt.Registry
	cfg      Config
	logger   *zap.Logger
}

// NewClassifier creates a classifier.
func NewClassifier(provider llm.Provider, registry *prompt.Registry, cfg Config, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{provider: provider, registry: registry, cfg: cfg, logger: logger}
}

// Classify runs the phase SelectPhase picks for st. Pass-through makes no
// call. st is not modified.
func (c *Classifier) Classify(ctx context.Context, st *session.State) (Result, error) {
	phase := SelectPhase(st)
	spec, ok := phases[phase]
	if !ok {
		return Result{Phase: phase}, nil
	}

	ctx = llm.WithPurpose(ctx, "phase-"+string(phase))

	userMsg, err := c.registry.Render(spec.template, prompt.NewData(st))
	if err != nil {
		return Result{}, fmt.Errorf("%w: build %s prompt: %w", ErrClassification, phase, err)
	}

	resp, err := c.provider.Generate(ctx, llm.Request{
		System:      classifierSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: userMsg}},
		Schema:      spec.schema,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrClassification, phase, err)
	}
	res, err := spec.decode(resp)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrClassification, phase, err)
	}
	c.logger.Debug("classified turn",
		zap.String("session_id", st.ID),
		zap.String("phase", string(phase)),
		zap.Bool("clear_conversation", res.ClearConversation()))
	return res, nil
}

type introductionOutput struct {
	MathConcepts   []string `json:"math_concepts"`
	IsMathQuestion string   `json:"is_math_question"`
	IsGeometry     bool     `json:"is_geometry"`
}

type conceptOutput struct {
	ConceptUnderstood bool `json:"concept_understood"`
	ClearConversation bool `json:"clear_conversation"`
}

type lessonOutput struct {
	NeedLesson        bool `json:"need_lesson"`
	LessonUnderstood  bool `json:"lesson_understood"`
	ClearConversation bool `json:"clear_conversation"`
}

type resolutionOutput struct {
	GoodAnswer        bool `json:"good_answer"`
	ClearConversation bool `json:"clear_conversation"`
}

func decodeIntroduction(resp *llm.Response) (Result, error) {
	var out introductionOutput
	if err := llm.Decode(resp, IntroductionSchema, &out); err != nil {
		return Result{}, err
	}
	return Result{Phase: PhaseIntroduction, Introduction: &Introduction{
		MathConcepts:   out.MathConcepts,
		IsMathQuestion: out.IsMathQuestion == "yes",
		IsGeometry:     out.IsGeometry,
	}}, nil
}

func decodeConcept(resp *llm.Response) (Result, error) {
	var out conceptOutput
	if err := llm.Decode(resp, ConceptSchema, &out); err != nil {
		return Result{}, err
	}
	return Result{Phase: PhaseConcept, Concept: &Concept{
		ConceptUnderstood: out.ConceptUnderstood,
		ClearConversation: out.ClearConversation,
	}}, nil
}

func decodeLesson(resp *llm.Response) (Result, error) {
	var out lessonOutput
	if err := llm.Decode(resp, LessonSchema, &out); err != nil {
		return Result{}, err
	}
	return Result{Phase: PhaseLesson, Lesson: &Lesson{
		NeedLesson:        out.NeedLesson,
		LessonUnderstood:  out.LessonUnderstood,
		ClearConversation: out.ClearConversation,
	}}, nil
}

func decodeResolution(resp *llm.Response) (Result, error) {
	var out resolutionOutput
	if err := llm.Decode(resp, ResolutionSchema, &out); err != nil {
		return Result{}, err
	}
	return Result{Phase: PhaseResolution, Resolution: &Resolution{
		GoodAnswer:        out.GoodAnswer,
		ClearConversation: out.ClearConversation,
	}}, nil
}
