package prompt

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/abhisek/mathchat/internal/session"
	"github.com/abhisek/mathchat/internal/solver"
)

type fakeSolver struct {
	solution   string
	steps      solver.Steps
	solveCalls atomic.Int32
	stepCalls  atomic.Int32
	lastWork   string
}

func (f *fakeSolver) Solve(ctx context.Context, exercise string) string {
	f.solveCalls.Add(1)
	return f.solution
}

func (f *fakeSolver) SolveSteps(ctx context.Context, work string) solver.Steps {
	f.stepCalls.Add(1)
	f.lastWork = work
	return f.steps
}

func newTestBuilder(t *testing.T, s Solver) *Builder {
	t.Helper()
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	return NewBuilder(reg, s, nil)
}

func resolutionState() *session.State {
	st := testState()
	st.IsMathQuestion = session.Bool(true)
	st.ConceptUnderstood = session.Bool(true)
	st.LessonUnderstood = session.Bool(true)
	st.ResponseCount = 3
	return st
}

func TestBuildConceptMarksAsked(t *testing.T) {
	b := newTestBuilder(t, &fakeSolver{})
	st := testState()
	st.IsMathQuestion = session.Bool(true)
	st.MathConcepts = []string{"équations du premier degré"}

	p, err := b.Build(context.Background(), st)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Stage != StageConcept || !p.MarkConceptAsked {
		t.Fatalf("prompt = %+v", p)
	}
	if !strings.Contains(p.System, "équations du premier degré") {
		t.Error("concept prompt should carry the concept")
	}
	if st.ConceptAsked != nil {
		t.Error("Build must not mutate state")
	}

	p.Apply(st)
	if !session.IsTrue(st.ConceptAsked) {
		t.Error("Apply should set ConceptAsked")
	}
	if Select(st) != StageConceptTry {
		t.Errorf("next stage = %q, want %q", Select(st), StageConceptTry)
	}
}

func TestBuildLessonWithoutMaterial(t *testing.T) {
	b := newTestBuilder(t, &fakeSolver{})
	st := testState()
	st.IsMathQuestion = session.Bool(true)
	st.ConceptUnderstood = session.Bool(true)
	st.NeedLesson = session.Bool(true)

	p, err := b.Build(context.Background(), st)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Stage != StageLesson {
		t.Fatalf("stage = %q", p.Stage)
	}
	if strings.Contains(p.System, "Lesson material") {
		t.Error("lesson prompt should omit the material section when no lesson was retrieved")
	}
}

func TestBuildResolutionSolvesOnce(t *testing.T) {
	fs := &fakeSolver{solution: "3"}
	b := newTestBuilder(t, fs)
	st := resolutionState()
	ctx := context.Background()

	p, err := b.Build(ctx, st)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Stage != StageResolution || p.Solution != "3" {
		t.Fatalf("prompt = %+v", p)
	}
	if !strings.Contains(p.System, "Verified solution (do not reveal): 3") {
		t.Errorf("solution not embedded:\n%s", p.System)
	}
	p.Apply(st)

	if _, err := b.Build(ctx, st); err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if n := fs.solveCalls.Load(); n != 1 {
		t.Errorf("Solve called %d times, want 1", n)
	}
}

func TestBuildResolutionDoesNotCacheUnavailable(t *testing.T) {
	fs := &fakeSolver{solution: solver.Unavailable}
	b := newTestBuilder(t, fs)
	st := resolutionState()

	p, err := b.Build(context.Background(), st)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(p.System, solver.Unavailable) {
		t.Error("sentinel should still reach the prompt")
	}
	p.Apply(st)
	if st.Solution != "" {
		t.Errorf("Solution = %q, want empty", st.Solution)
	}
}

func TestBuildResolutionChecksSteps(t *testing.T) {
	fs := &fakeSolver{
		solution: "3",
		steps: solver.Steps{
			Queries:      []string{"11-2", "9/3"},
			Explanations: []string{"soustraire 2", "diviser par 3"},
			Solutions:    []string{"9", "3"},
		},
	}
	b := newTestBuilder(t, fs)
	st := resolutionState()
	st.AppendAssistant("Que fais-tu en premier ?")
	st.AppendUser("11-2 = 9 puis 9/3 = 3")

	p, err := b.Build(context.Background(), st)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if fs.lastWork != "11-2 = 9 puis 9/3 = 3" {
		t.Errorf("SolveSteps work = %q", fs.lastWork)
	}
	if !strings.Contains(p.System, "- 9/3 (diviser par 3): 3") {
		t.Errorf("steps not embedded:\n%s", p.System)
	}

	p.Apply(st)
	if len(st.IntermediateCalculation) != 2 || len(st.IntermediateExplanation) != 2 || len(st.IntermediateSolution) != 2 {
		t.Errorf("intermediate lengths = %d/%d/%d",
			len(st.IntermediateCalculation), len(st.IntermediateExplanation), len(st.IntermediateSolution))
	}
}

func TestBuildResolutionSkipsStepsOnStatement(t *testing.T) {
	fs := &fakeSolver{solution: "3"}
	b := newTestBuilder(t, fs)

	if _, err := b.Build(context.Background(), resolutionState()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n := fs.stepCalls.Load(); n != 0 {
		t.Errorf("SolveSteps called %d times, want 0", n)
	}
}

func TestBuildWithoutSolver(t *testing.T) {
	b := newTestBuilder(t, nil)
	p, err := b.Build(context.Background(), resolutionState())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Solution != solver.Unavailable {
		t.Errorf("Solution = %q, want %q", p.Solution, solver.Unavailable)
	}
}

func TestBuildSolverSurvivesCancelledRequest(t *testing.T) {
	var sawCancelled bool
	fs := &ctxSolver{fn: func(ctx context.Context) { sawCancelled = ctx.Err() != nil }}
	b := newTestBuilder(t, fs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Build(ctx, resolutionState()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if sawCancelled {
		t.Error("solver should run on a context detached from the request")
	}
}

type ctxSolver struct{ fn func(context.Context) }

func (c *ctxSolver) Solve(ctx context.Context, _ string) string {
	c.fn(ctx)
	return "1"
}

func (c *ctxSolver) SolveSteps(ctx context.Context, _ string) solver.Steps {
	c.fn(ctx)
	return solver.Steps{}
}

func TestBuildStageUnknownTemplate(t *testing.T) {
	reg, err := Parse([]byte("templates:\n  off_topic: hi\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b := NewBuilder(reg, nil, nil)

	_, err = b.Build(context.Background(), resolutionState())
	if !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("err = %v, want ErrUnknownTemplate", err)
	}
}
