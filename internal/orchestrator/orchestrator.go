// Package orchestrator runs one conversation turn end to end: analysis,
// retrieval, prompt building and the streamed answer.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/mathchat/internal/analysis"
	"github.com/abhisek/mathchat/internal/llm"
	"github.com/abhisek/mathchat/internal/prompt"
	"github.com/abhisek/mathchat/internal/session"
	"github.com/abhisek/mathchat/internal/solver"
	"github.com/abhisek/mathchat/internal/store"
	"github.com/abhisek/mathchat/internal/vision"
)

// Classifier runs the analysis phase for a state.
type Classifier interface {
	Classify(ctx context.Context, st *session.State) (analysis.Result, error)
}

// Retriever fetches lesson material.
type Retriever interface {
	Retrieve(ctx context.Context, query string, filter map[string]any, k int) ([]string, error)
}

// PromptBuilder renders the answer prompt.
type PromptBuilder interface {
	Build(ctx context.Context, st *session.State) (*prompt.Prompt, error)
}

// Describer turns an uploaded image into text.
type Describer interface {
	Describe(ctx context.Context, img vision.Image) (string, error)
}

// Config holds orchestration settings.
type Config struct {
	RetrievalK       int
	RetrievalFilter  map[string]any
	CachePerExercise bool
	MaxTokens        int
	Temperature      float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetrievalK:      4,
		RetrievalFilter: map[string]any{"school_level": "6e"},
		MaxTokens:       1024,
		Temperature:     0.3,
	}
}

// Deps are the collaborators of an Orchestrator. Retriever, Describer,
// Events and Observer are optional.
type Deps struct {
	Sessions   *session.Store
	Classifier Classifier
	Retriever  Retriever
	Prompts    PromptBuilder
	Describer  Describer
	LLM        llm.Provider
	Events     store.EventRepo
	Observer   Observer
	Logger     *zap.Logger
}

// Orchestrator serves conversation turns.
type Orchestrator struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

// New creates an orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if deps.Events == nil {
		deps.Events = store.NopEventRepo{}
	}
	return &Orchestrator{deps: deps, cfg: cfg, now: time.Now}
}

// NewSession allocates a session and returns its id.
func (o *Orchestrator) NewSession() string {
	e := o.deps.Sessions.New()
	defer o.deps.Sessions.Release(e)
	return e.ID()
}

// ResetSession starts a new exercise in the session id.
func (o *Orchestrator) ResetSession(id string) {
	o.deps.Sessions.Reset(id)
}

// pass carries the bookkeeping of one turn.
type pass struct {
	turn   Turn
	st     *session.State
	phase  analysis.Phase
	stage  prompt.Stage
	chunks int
}

// HandleTurn runs one turn and streams the answer to w. Passes on the same
// session are serialized. The stored state changes only when the whole
// turn succeeds.
func (o *Orchestrator) HandleTurn(ctx context.Context, turn Turn, w ChunkWriter) error {
	if err := turn.Validate(); err != nil {
		return err
	}
	start := o.now()
	ctx = llm.WithSession(ctx, turn.SessionID)

	entry := o.deps.Sessions.GetOrCreate(turn.SessionID)
	defer o.deps.Sessions.Release(entry)
	entry.Lock()
	defer entry.Unlock()

	p := &pass{turn: turn, st: entry.Snapshot()}
	o.deps.Observer.OnState(turn.SessionID, StateNew)

	err := o.run(ctx, p, w)
	o.finish(ctx, p, start, err)
	if err != nil {
		return err
	}

	p.st.UpdatedAt = o.now()
	entry.Commit(p.st)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, p *pass, w ChunkWriter) error {
	st := p.st
	st.EndConversation = false

	// A solved exercise has nothing left to classify; the message opens
	// the next one.
	if session.IsTrue(st.GoodAnswer) {
		st.ResetExercise(len(st.Messages))
	}
	if err := o.appendUserTurn(ctx, p); err != nil {
		return err
	}

	o.deps.Observer.OnState(st.ID, StateClassifying)
	res, err := o.deps.Classifier.Classify(ctx, st)
	if err != nil {
		return err
	}
	p.phase = res.Phase
	o.deps.Observer.OnPhase(string(res.Phase))
	res.Apply(st)
	// The new exercise is introduced on the next pass, so this pass does
	// not count towards it and ResponseCount stays 0.
	cleared := res.ClearConversation()
	if cleared {
		o.deps.Logger.Info("student started a new exercise", zap.String("session_id", st.ID))
		desc := st.ImageDescription
		st.ResetExercise(len(st.Messages) - 1)
		st.ImageDescription = desc
	}
	offTopic := res.Phase == analysis.PhaseIntroduction && session.IsFalse(st.IsMathQuestion)

	o.deps.Observer.OnState(st.ID, StateRetrieving)
	o.retrieve(ctx, st)

	p.stage = prompt.Select(st)
	o.deps.Observer.OnState(st.ID, StateBuildingPrompt)
	solving := p.stage == prompt.StageResolution
	if solving {
		o.deps.Observer.OnState(st.ID, StateSolving)
	}
	pr, err := o.deps.Prompts.Build(ctx, st)
	if err != nil {
		return fmt.Errorf("build prompt: %w", err)
	}
	p.stage = pr.Stage
	if solving {
		o.observeSolver(pr)
	}

	o.deps.Observer.OnState(st.ID, StateGenerating)
	answer, err := o.generate(ctx, p, pr, w)
	if err != nil {
		return err
	}

	pr.Apply(st)
	st.AppendAssistant(answer)
	if !cleared {
		st.ResponseCount++
	}
	if offTopic {
		// Nothing to tutor yet: the next message is a fresh statement.
		st.ResetExercise(len(st.Messages))
	}
	st.EndConversation = true
	return nil
}

// appendUserTurn records the student's message, describing the image first
// for image turns.
func (o *Orchestrator) appendUserTurn(ctx context.Context, p *pass) error {
	if p.turn.Image == nil {
		p.st.AppendUser(p.turn.Message)
		return nil
	}
	if o.deps.Describer == nil {
		return fmt.Errorf("%w: image turns are not enabled", ErrInvalidInput)
	}

	desc, err := o.deps.Describer.Describe(ctx, *p.turn.Image)
	if err != nil {
		o.deps.Observer.OnDependency("vision", StatusError)
		return fmt.Errorf("describe image: %w", err)
	}
	o.deps.Observer.OnDependency("vision", StatusOK)

	p.st.ImageDescription = desc
	p.st.AppendUser(encodeImageTurn(p.turn.Image.Filename, p.turn.ExtractedText, desc))
	return nil
}

// retrieve refreshes LessonExample from the exercise's first message.
// Failures leave it empty.
func (o *Orchestrator) retrieve(ctx context.Context, st *session.State) {
	if o.deps.Retriever == nil {
		o.deps.Observer.OnDependency("retrieval", StatusSkipped)
		return
	}
	if o.cfg.CachePerExercise && st.LessonExample != "" {
		o.deps.Observer.OnDependency("retrieval", StatusSkipped)
		return
	}

	docs, err := o.deps.Retriever.Retrieve(context.WithoutCancel(ctx),
		st.ExerciseStatement(), o.cfg.RetrievalFilter, o.cfg.RetrievalK)
	if err != nil {
		o.deps.Logger.Warn("retrieval failed, answering without lesson material",
			zap.String("session_id", st.ID), zap.Error(err))
		o.deps.Observer.OnDependency("retrieval", StatusDegraded)
		st.LessonExample = ""
		return
	}
	o.deps.Observer.OnDependency("retrieval", StatusOK)
	st.LessonExample = strings.Join(docs, "\n\n")
}

func (o *Orchestrator) observeSolver(pr *prompt.Prompt) {
	if pr.Solution != "" {
		status := StatusOK
		if solver.IsSentinel(pr.Solution) {
			status = StatusDegraded
		}
		o.deps.Observer.OnDependency("solver", status)
	}
	if pr.Steps != nil {
		for _, s := range pr.Steps.Solutions {
			status := StatusOK
			if solver.IsSentinel(s) {
				status = StatusDegraded
			}
			o.deps.Observer.OnDependency("solver_step", status)
		}
	}
}

// generate streams the answer through a word chunker into w and returns
// the full text.
func (o *Orchestrator) generate(ctx context.Context, p *pass, pr *prompt.Prompt, w ChunkWriter) (string, error) {
	ctx = llm.WithPurpose(ctx, "answer")

	var full strings.Builder
	chunker := &wordChunker{emit: func(s string) error {
		p.chunks++
		return w.WriteChunk(s)
	}}

	_, err := llm.StreamText(ctx, o.deps.LLM, llm.Request{
		System:      pr.System,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: pr.User}},
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	}, func(chunk string) error {
		full.WriteString(chunk)
		return chunker.Write(chunk)
	})
	if err == nil {
		err = chunker.Flush()
	}
	if err != nil {
		o.deps.Observer.OnDependency("llm", StatusError)
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	o.deps.Observer.OnDependency("llm", StatusOK)
	return full.String(), nil
}

// finish reports the outcome of a pass to the observer and the event log.
func (o *Orchestrator) finish(ctx context.Context, p *pass, start time.Time, err error) {
	elapsed := o.now().Sub(start)
	status := StatusOK
	if err != nil {
		status = StatusError
		o.deps.Observer.OnState(p.turn.SessionID, StateFailed)
		o.deps.Logger.Warn("turn failed",
			zap.String("session_id", p.turn.SessionID),
			zap.String("phase", string(p.phase)),
			zap.String("stage", string(p.stage)),
			zap.Duration("latency", elapsed),
			zap.Error(err))
	} else {
		o.deps.Observer.OnState(p.turn.SessionID, StateDone)
		o.deps.Logger.Info("turn answered",
			zap.String("session_id", p.turn.SessionID),
			zap.String("phase", string(p.phase)),
			zap.String("template", string(p.stage)),
			zap.Int("chunks", p.chunks),
			zap.Duration("latency", elapsed))
	}
	o.deps.Observer.OnTurn(string(p.stage), status, elapsed)

	ev := store.TurnEventData{
		SessionID:     p.turn.SessionID,
		UserID:        p.turn.UserID,
		Phase:         string(p.phase),
		Template:      string(p.stage),
		ResponseCount: p.st.ResponseCount,
		Chunks:        p.chunks,
		LatencyMs:     elapsed.Milliseconds(),
		Success:       err == nil,
	}
	if err != nil {
		ev.ErrorMessage = err.Error()
	}
	if recErr := o.deps.Events.AppendTurn(context.WithoutCancel(ctx), ev); recErr != nil {
		o.deps.Logger.Warn("record turn event", zap.Error(recErr))
	}
}
