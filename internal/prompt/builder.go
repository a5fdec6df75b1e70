// Package prompt renders the tutor's answer prompt for the current stage
// of the conversation.
package prompt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/abhisek/mathchat/internal/session"
	"github.com/abhisek/mathchat/internal/solver"
)

// Solver computes verified answers for the resolution stage.
type Solver interface {
	Solve(ctx context.Context, exercise string) string
	SolveSteps(ctx context.Context, work string) solver.Steps
}

// Prompt is a rendered answer prompt plus the state updates it implies.
type Prompt struct {
	Stage  Stage
	System string
	// User is the message the model answers.
	User string

	// MarkConceptAsked is set by the concept templates.
	MarkConceptAsked bool
	// Solution is set when the solver ran for this prompt. Unavailable is
	// never cached so a later pass can retry.
	Solution string
	Steps    *solver.Steps
}

// Apply writes the prompt's state updates to st.
func (p *Prompt) Apply(st *session.State) {
	if p.MarkConceptAsked {
		st.ConceptAsked = session.Bool(true)
	}
	if p.Solution != "" && p.Solution != solver.Unavailable && st.Solution == "" {
		st.Solution = p.Solution
	}
	if p.Steps != nil {
		st.SetIntermediate(p.Steps.Queries, p.Steps.Explanations, p.Steps.Solutions)
	}
}

// Builder renders prompts from a template registry.
type Builder struct {
	registry *Registry
	solver   Solver
	logger   *zap.Logger
}

// NewBuilder creates a prompt builder. solver may be nil, in which case
// the resolution stage reports the solver as unavailable.
func NewBuilder(registry *Registry, s Solver, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{registry: registry, solver: s, logger: logger}
}

// Build selects the stage for st and renders its template. st is not
// modified; callers apply the result with Prompt.Apply.
func (b *Builder) Build(ctx context.Context, st *session.State) (*Prompt, error) {
	stage := Select(st)
	return b.BuildStage(ctx, st, stage)
}

// BuildStage renders the template of stage for st.
func (b *Builder) BuildStage(ctx context.Context, st *session.State, stage Stage) (*Prompt, error) {
	if !b.registry.Has(stage.Template()) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, stage)
	}

	p := &Prompt{Stage: stage, User: st.LastUserMessage()}
	data := NewData(st)

	switch stage {
	case StageConcept, StageConceptTry:
		p.MarkConceptAsked = true
	case StageResolution:
		b.solve(ctx, st, p, &data)
	}

	system, err := b.registry.Render(stage.Template(), data)
	if err != nil {
		return nil, err
	}
	p.System = system
	return p, nil
}

// solve fills in the verified solution and, when the student has written
// something beyond the statement, the checks of their latest work.
// Solver calls outlive a cancelled request.
func (b *Builder) solve(ctx context.Context, st *session.State, p *Prompt, data *Data) {
	ctx = context.WithoutCancel(ctx)

	if st.Solution == "" {
		if b.solver == nil {
			p.Solution = solver.Unavailable
		} else {
			p.Solution = b.solver.Solve(ctx, st.FirstUserMessage)
		}
		data.Solution = p.Solution
		b.logger.Debug("solved exercise", zap.String("session_id", st.ID), zap.String("solution", p.Solution))
	}

	work := st.LastUserMessage()
	if b.solver == nil || work == "" || work == st.ExerciseStatement() {
		return
	}
	steps := b.solver.SolveSteps(ctx, work)
	p.Steps = &steps
	data.Steps = data.Steps[:0]
	for i, q := range steps.Queries {
		data.Steps = append(data.Steps, Step{
			Calculation: q,
			Explanation: steps.Explanations[i],
			Solution:    steps.Solutions[i],
		})
	}
}
