// Package solver computes ground-truth answers for exercises through
// Wolfram Alpha. Failures degrade to sentinel strings rather than errors
// so a turn can still be answered without a verified solution.
package solver

import (
	"bytes"
	"context"
	"strings"
	"text/template"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/abhisek/mathchat/internal/llm"
)

// Engine evaluates a single query and returns the rendered
// "Assumption: ...\nAnswer: ..." text.
type Engine interface {
	Query(ctx context.Context, input string) (string, error)
}

// Config holds solver tuning.
type Config struct {
	MaxTokens   int
	Temperature float64
	// RatePerSecond throttles engine calls. Zero disables throttling.
	RatePerSecond float64
	Burst         int
	// MaxParallel bounds concurrent engine calls in SolveSteps.
	MaxParallel int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:     256,
		Temperature:   0,
		RatePerSecond: 5,
		Burst:         5,
		MaxParallel:   4,
	}
}

// Steps holds the intermediate checks for a student's work. The three
// slices always have equal length.
type Steps struct {
	Queries      []string
	Explanations []string
	Solutions    []string
}

// Len returns the number of steps.
func (s Steps) Len() int { return len(s.Queries) }

// Solver turns exercise text into solver queries and evaluates them.
type Solver struct {
	provider llm.Provider
	engine   Engine
	limiter  *rate.Limiter
	logger   *zap.Logger
	cfg      Config
}

// New creates a solver. A nil logger is replaced by a no-op logger.
func New(provider llm.Provider, engine Engine, cfg Config, logger *zap.Logger) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Solver{
		provider: provider,
		engine:   engine,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
		cfg:      cfg,
	}
}

const querySystemPrompt = `You translate math exercises written by middle-school students into a single Wolfram Alpha query.

Rules:
- Output only the query, with no explanation, quotes or punctuation around it.
- Prefer explicit forms such as "solve 3x + 2 = 11" or "area of a circle with radius 4 cm".
- Keep units when the exercise gives them.
- If the exercise asks several things, query the final quantity asked for.`

var queryTmpl = template.Must(template.New("query").Parse(
	`Exercise:
{{.}}

Wolfram Alpha query:`))

const stepsSystemPrompt = `You check a student's intermediate calculations.

List every calculation the student wrote as a separate Wolfram Alpha query, in the order they appear. For each query, give a one-sentence explanation of what the student was computing. If the message contains no calculation, return two empty lists.`

var stepsTmpl = template.Must(template.New("steps").Parse(
	`Student message:
{{.}}`))

// stepsOutput is the raw LLM response for SolveSteps.
type stepsOutput struct {
	Queries      []string `json:"wolfram_queries"`
	Explanations []string `json:"calculation_explanation"`
}

// Solve derives a solver query from the exercise and returns the parsed
// answer, Unavailable or Unparsable. It never fails.
func (s *Solver) Solve(ctx context.Context, exercise string) string {
	ctx = llm.WithPurpose(ctx, "solver-query")

	var buf bytes.Buffer
	if err := queryTmpl.Execute(&buf, exercise); err != nil {
		s.logger.Warn("render solver query prompt", zap.Error(err))
		return Unavailable
	}

	resp, err := s.provider.Generate(ctx, llm.Request{
		System:      querySystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buf.String()}},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		s.logger.Warn("derive solver query", zap.Error(err))
		return Unavailable
	}

	query := strings.TrimSpace(resp.Text())
	if query == "" {
		s.logger.Warn("derive solver query: empty query")
		return Unavailable
	}
	return s.evaluate(ctx, query)
}

// SolveSteps decomposes the student's latest work into queries and
// evaluates them concurrently. Results keep query order and each failure
// degrades to a sentinel independently. A failed decomposition yields
// empty Steps.
func (s *Solver) SolveSteps(ctx context.Context, work string) Steps {
	ctx = llm.WithPurpose(ctx, "solver-steps")

	var buf bytes.Buffer
	if err := stepsTmpl.Execute(&buf, work); err != nil {
		s.logger.Warn("render solver steps prompt", zap.Error(err))
		return Steps{}
	}

	resp, err := s.provider.Generate(ctx, llm.Request{
		System:      stepsSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buf.String()}},
		Schema:      StepsSchema,
		MaxTokens:   s.cfg.MaxTokens * 2,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		s.logger.Warn("decompose student work", zap.Error(err))
		return Steps{}
	}

	var raw stepsOutput
	if err := llm.Decode(resp, StepsSchema, &raw); err != nil {
		s.logger.Warn("decode solver steps", zap.Error(err))
		return Steps{}
	}

	n := len(raw.Queries)
	steps := Steps{
		Queries:      raw.Queries,
		Explanations: make([]string, n),
		Solutions:    make([]string, n),
	}
	copy(steps.Explanations, raw.Explanations)

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.MaxParallel > 0 {
		g.SetLimit(s.cfg.MaxParallel)
	}
	for i, q := range raw.Queries {
		g.Go(func() error {
			steps.Solutions[i] = s.evaluate(gctx, q)
			return nil
		})
	}
	_ = g.Wait()

	return steps
}

// evaluate runs one query through the engine and parses the answer.
func (s *Solver) evaluate(ctx context.Context, query string) string {
	if err := s.limiter.Wait(ctx); err != nil {
		s.logger.Warn("solver throttled", zap.String("query", query), zap.Error(err))
		return Unavailable
	}

	text, err := s.engine.Query(ctx, query)
	if err != nil {
		s.logger.Warn("solver engine failed", zap.String("query", query), zap.Error(err))
		return Unavailable
	}

	answer := ParseAnswer(text)
	if answer == Unparsable {
		s.logger.Warn("solver answer unparsable", zap.String("query", query))
	}
	return answer
}
