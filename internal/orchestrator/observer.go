package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/mathchat/internal/metrics"
)

// TurnState is a step of a turn's lifecycle.
type TurnState string

const (
	StateNew            TurnState = "NEW"
	StateClassifying    TurnState = "CLASSIFYING"
	StateRetrieving     TurnState = "RETRIEVING"
	StateBuildingPrompt TurnState = "BUILDING_PROMPT"
	StateSolving        TurnState = "SOLVING"
	StateGenerating     TurnState = "GENERATING"
	StateDone           TurnState = "DONE"
	StateFailed         TurnState = "FAILED"
)

// Dependency outcomes.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
	StatusSkipped  = "skipped"
)

// Observer is notified as turns progress.
type Observer interface {
	OnState(sessionID string, state TurnState)
	OnPhase(phase string)
	OnDependency(dependency, status string)
	OnTurn(stage, status string, elapsed time.Duration)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) OnState(string, TurnState)            {}
func (NopObserver) OnPhase(string)                       {}
func (NopObserver) OnDependency(string, string)          {}
func (NopObserver) OnTurn(string, string, time.Duration) {}

// MultiObserver fans out to several observers.
type MultiObserver []Observer

func (m MultiObserver) OnState(id string, s TurnState) {
	for _, o := range m {
		o.OnState(id, s)
	}
}

func (m MultiObserver) OnPhase(p string) {
	for _, o := range m {
		o.OnPhase(p)
	}
}

func (m MultiObserver) OnDependency(d, s string) {
	for _, o := range m {
		o.OnDependency(d, s)
	}
}

func (m MultiObserver) OnTurn(stage, status string, elapsed time.Duration) {
	for _, o := range m {
		o.OnTurn(stage, status, elapsed)
	}
}

// MetricsObserver records turns in Prometheus collectors.
type MetricsObserver struct {
	NopObserver
	M *metrics.Metrics
}

func (o MetricsObserver) OnPhase(p string)         { o.M.Phase(p) }
func (o MetricsObserver) OnDependency(d, s string) { o.M.Dependency(d, s) }
func (o MetricsObserver) OnTurn(stage, status string, elapsed time.Duration) {
	o.M.Turn(stage, status, elapsed)
}

// LogObserver traces state transitions at debug level.
type LogObserver struct {
	NopObserver
	Logger *zap.Logger
}

func (o LogObserver) OnState(id string, s TurnState) {
	o.Logger.Debug("turn state", zap.String("session_id", id), zap.String("state", string(s)))
}
