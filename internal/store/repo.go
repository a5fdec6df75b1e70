package store

import (
	"context"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	SessionID    string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMEventRecord is a stored LLM request event.
type LLMEventRecord struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// LLMUsageStat aggregates LLM usage for one purpose.
type LLMUsageStat struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// ModelUsageStat aggregates token usage for one model.
type ModelUsageStat struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}

// TurnEventData captures the outcome of one conversation turn.
type TurnEventData struct {
	SessionID     string
	UserID        string
	Phase         string
	Template      string
	ResponseCount int
	Chunks        int
	LatencyMs     int64
	Success       bool
	ErrorMessage  string
}

// TurnEventRecord is a stored turn event.
type TurnEventRecord struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	TurnEventData
}

// EventRepo provides append and query access to service events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns LLM events, newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEventRecord, error)

	// GetLLMEvent returns one LLM event by ID, or nil if it does not exist.
	GetLLMEvent(ctx context.Context, id int) (*LLMEventRecord, error)

	// LLMUsageByPurpose aggregates token usage per purpose label.
	LLMUsageByPurpose(ctx context.Context) ([]LLMUsageStat, error)

	// LLMUsageByModel aggregates token usage per served model.
	LLMUsageByModel(ctx context.Context) ([]ModelUsageStat, error)

	// AppendTurn records the outcome of a conversation turn.
	AppendTurn(ctx context.Context, data TurnEventData) error

	// QueryTurnEvents returns turn events for a session, newest first.
	// An empty sessionID matches every session.
	QueryTurnEvents(ctx context.Context, sessionID string, opts QueryOpts) ([]TurnEventRecord, error)
}

// NopEventRepo discards appends and returns empty query results. It is used
// when the event log is disabled.
type NopEventRepo struct{}

func (NopEventRepo) AppendLLMRequest(context.Context, LLMRequestEventData) error { return nil }

func (NopEventRepo) QueryLLMEvents(context.Context, QueryOpts) ([]LLMEventRecord, error) {
	return nil, nil
}

func (NopEventRepo) GetLLMEvent(context.Context, int) (*LLMEventRecord, error) { return nil, nil }

func (NopEventRepo) LLMUsageByPurpose(context.Context) ([]LLMUsageStat, error) { return nil, nil }

func (NopEventRepo) LLMUsageByModel(context.Context) ([]ModelUsageStat, error) { return nil, nil }

func (NopEventRepo) AppendTurn(context.Context, TurnEventData) error { return nil }

func (NopEventRepo) QueryTurnEvents(context.Context, string, QueryOpts) ([]TurnEventRecord, error) {
	return nil, nil
}
