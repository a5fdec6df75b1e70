package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/abhisek/mathchat/internal/analysis"
	"github.com/abhisek/mathchat/internal/config"
	"github.com/abhisek/mathchat/internal/llm"
	"github.com/abhisek/mathchat/internal/logging"
	"github.com/abhisek/mathchat/internal/metrics"
	"github.com/abhisek/mathchat/internal/orchestrator"
	"github.com/abhisek/mathchat/internal/prompt"
	"github.com/abhisek/mathchat/internal/retrieval"
	"github.com/abhisek/mathchat/internal/session"
	"github.com/abhisek/mathchat/internal/solver"
	"github.com/abhisek/mathchat/internal/store"
	"github.com/abhisek/mathchat/internal/vision"
)

// app is the fully wired service.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	sessions *session.Store
	chat     *orchestrator.Orchestrator
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// openEvents returns the event log for cfg. An empty store path disables it.
func openEvents(cfg config.Config, logger *zap.Logger) (store.EventRepo, func() error, error) {
	if cfg.Store.Path == "" {
		logger.Info("event log disabled")
		return store.NopEventRepo{}, func() error { return nil }, nil
	}
	if err := store.EnsureDir(cfg.Store.Path); err != nil {
		return nil, nil, fmt.Errorf("create store dir: %w", err)
	}
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info("event log enabled", zap.String("path", cfg.Store.Path))
	return s.EventRepo(), s.Close, nil
}

func newSolver(cfg config.Config, provider llm.Provider, logger *zap.Logger) (*solver.Solver, error) {
	engine, err := solver.NewWolfram(solver.WolframConfig{
		AppID:   cfg.Solver.AppID,
		BaseURL: cfg.Solver.BaseURL,
		Timeout: cfg.Solver.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("wolfram client: %w", err)
	}
	sc := solver.DefaultConfig()
	sc.RatePerSecond = cfg.Solver.RatePerSecond
	sc.Burst = cfg.Solver.Burst
	sc.MaxParallel = cfg.Solver.MaxParallel
	return solver.New(provider, engine, sc, logger), nil
}

func loadRegistry(cfg config.Config) (*prompt.Registry, error) {
	if cfg.Prompt.TemplatesFile != "" {
		return prompt.LoadRegistry(cfg.Prompt.TemplatesFile)
	}
	return prompt.DefaultRegistry()
}

// buildApp wires every component of the chat service.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	events, closeEvents, err := openEvents(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeEvents)

	provider, err := llm.NewProvider(ctx, cfg.LLMConfig(), events, logger)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("prompt templates: %w", err)
	}

	var slv prompt.Solver
	if cfg.Solver.AppID == "" {
		logger.Warn("solver disabled: MATHCHAT_SOLVER_APP_ID not set, resolution prompts run without a verified solution")
	} else {
		s, err := newSolver(cfg, provider, logger)
		if err != nil {
			return nil, err
		}
		slv = s
	}

	a.metrics = metrics.New(metrics.DefaultConfig())
	a.sessions = session.NewStore(session.Options{
		TTL:      cfg.Session.TTL,
		Capacity: cfg.Session.Capacity,
		Logger:   logger.Named("session"),
		OnChange: a.metrics.SetSessions,
	})

	deps := orchestrator.Deps{
		Sessions:   a.sessions,
		Classifier: analysis.NewClassifier(provider, registry, analysis.DefaultConfig(), logger.Named("analysis")),
		Prompts:    prompt.NewBuilder(registry, slv, logger.Named("prompt")),
		LLM:        provider,
		Events:     events,
		Observer: orchestrator.MultiObserver{
			orchestrator.MetricsObserver{M: a.metrics},
			orchestrator.LogObserver{Logger: logger},
		},
		Logger: logger.Named("orchestrator"),
	}

	if cfg.Retrieval.Enabled {
		embedder, err := retrieval.NewOpenAIEmbedder(retrieval.EmbedderConfig{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			Model:   cfg.Retrieval.EmbeddingModel,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("retrieval embedder: %w", err)
		}
		client, err := retrieval.NewClient(retrieval.Config{
			BaseURL:      cfg.Retrieval.BaseURL,
			Token:        cfg.Retrieval.Token,
			CollectionID: cfg.Retrieval.CollectionID,
			Timeout:      cfg.Retrieval.Timeout,
		}, embedder, logger.Named("retrieval"))
		if err != nil {
			return nil, fmt.Errorf("retrieval client: %w", err)
		}
		deps.Retriever = client
	}

	if cfg.Vision.Enabled {
		describer, err := newDescriber(cfg, registry, logger)
		if err != nil {
			logger.Warn("image turns disabled", zap.Error(err))
		} else {
			deps.Describer = describer
		}
	}

	a.chat = orchestrator.New(deps, orchestrator.Config{
		RetrievalK:       cfg.Retrieval.K,
		RetrievalFilter:  cfg.Retrieval.Filter,
		CachePerExercise: cfg.Retrieval.CachePerExercise,
		MaxTokens:        cfg.LLM.MaxTokens,
		Temperature:      cfg.LLM.Temperature,
	})
	ok = true
	return a, nil
}

func newDescriber(cfg config.Config, registry *prompt.Registry, logger *zap.Logger) (*vision.Client, error) {
	vc := vision.DefaultConfig()
	vc.APIKey = cfg.LLM.OpenAI.APIKey
	vc.BaseURL = cfg.LLM.OpenAI.BaseURL
	vc.Model = cfg.Vision.Model
	vc.MaxTokens = cfg.Vision.MaxTokens
	vc.MaxDimension = cfg.Vision.MaxDimension
	if text, err := registry.Text(prompt.ImagePrompt); err == nil {
		vc.Prompt = text
	}
	return vision.NewClient(vc, logger.Named("vision"))
}
