package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

type plainProvider struct{ inner *MockProvider }

func (p plainProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	return p.inner.Generate(ctx, req)
}

func (p plainProvider) ModelID() string { return "plain" }

func TestMockProvider_FIFO(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{"a":1}`), Usage: Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}},
		TextResponse("second"),
	)

	resp1, err := mock.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "first"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp1.Content) != `{"a":1}` || resp1.Usage.InputTokens != 10 {
		t.Fatalf("first response = %s %+v", resp1.Content, resp1.Usage)
	}

	resp2, err := mock.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp2.Text() != "second" {
		t.Fatalf("second response = %q", resp2.Text())
	}

	_, err = mock.Generate(context.Background(), Request{})
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrProviderUnavailable from empty queue, got: %T", err)
	}
	if mock.CallCount() != 3 {
		t.Fatalf("expected 3 calls, got %d", mock.CallCount())
	}
}

func TestMockProvider_StreamChunks(t *testing.T) {
	mock := NewMockProvider(MockResponse{Chunks: []string{"Let's ", "look at ", "the equation."}})

	var got []string
	resp, err := mock.Stream(context.Background(), Request{System: "sys"}, func(c string) error {
		got = append(got, c)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("chunks = %q", got)
	}
	if resp.Text() != "Let's look at the equation." {
		t.Fatalf("text = %q", resp.Text())
	}
	if mock.LastCall().System != "sys" {
		t.Fatalf("request not recorded: %+v", mock.LastCall())
	}
}

func TestMockProvider_StreamFailAfter(t *testing.T) {
	boom := errors.New("connection reset")
	mock := NewMockProvider(MockResponse{Chunks: []string{"a", "b", "c"}, Err: boom, FailAfter: 2})

	var got []string
	_, err := mock.Stream(context.Background(), Request{}, func(c string) error {
		got = append(got, c)
		return nil
	})
	var interrupted *ErrStreamInterrupted
	if !errors.As(err, &interrupted) {
		t.Fatalf("expected ErrStreamInterrupted, got %T (%v)", err, err)
	}
	if interrupted.Delivered != 2 || !errors.Is(err, boom) {
		t.Fatalf("interrupted = %+v", interrupted)
	}
	if strings.Join(got, "") != "ab" {
		t.Fatalf("delivered = %q", got)
	}
}

func TestStreamText_FallsBackToGenerate(t *testing.T) {
	mock := NewMockProvider(TextResponse("Think about what x means."))
	p := plainProvider{inner: mock}

	var chunks []string
	resp, err := StreamText(context.Background(), p, Request{Schema: &Schema{Name: "ignored"}}, func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "Think about what x means." {
		t.Fatalf("chunks = %q", chunks)
	}
	if resp.Text() != chunks[0] {
		t.Fatalf("text = %q", resp.Text())
	}
	if mock.LastCall().Schema != nil {
		t.Fatal("fallback must drop the schema")
	}
}

func TestResponseText(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{`"quoted answer"`, "quoted answer"},
		{"  plain answer\n", "plain answer"},
		{`{"a":1}`, `{"a":1}`},
		{"", ""},
	}
	for _, tt := range tests {
		r := &Response{Content: json.RawMessage(tt.content)}
		if got := r.Text(); got != tt.want {
			t.Errorf("Text(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}

	var nilResp *Response
	if nilResp.Text() != "" {
		t.Error("nil response should have empty text")
	}
}

func TestContextLabels(t *testing.T) {
	ctx := context.Background()
	if p := PurposeFrom(ctx); p != "unknown" {
		t.Fatalf("expected 'unknown', got %q", p)
	}
	if s := SessionFrom(ctx); s != "" {
		t.Fatalf("expected empty session, got %q", s)
	}

	ctx = WithSession(WithPurpose(ctx, "phase-concept"), "sess-1")
	if p := PurposeFrom(ctx); p != "phase-concept" {
		t.Fatalf("purpose = %q", p)
	}
	if s := SessionFrom(ctx); s != "sess-1" {
		t.Fatalf("session = %q", s)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"anthropic without key", Config{Provider: "anthropic"}, true},
		{"anthropic with key", Config{Provider: "anthropic", Anthropic: AnthropicConfig{APIKey: "sk-test"}}, false},
		{"openai without key", Config{Provider: "openai"}, true},
		{"openai with key", Config{Provider: "openai", OpenAI: OpenAIConfig{APIKey: "sk-test"}}, false},
		{"openrouter without key", Config{Provider: "openrouter"}, true},
		{"mock needs no key", Config{Provider: "mock"}, false},
		{"unknown provider", Config{Provider: "unknown"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDiscoverConfig(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(k, "")
	}
	if _, ok := DiscoverConfig(); ok {
		t.Fatal("expected no provider without keys")
	}

	t.Setenv("GEMINI_API_KEY", "g")
	t.Setenv("ANTHROPIC_API_KEY", "a")
	cfg, ok := DiscoverConfig()
	if !ok || cfg.Provider != "anthropic" || cfg.Anthropic.APIKey != "a" {
		t.Fatalf("cfg = %+v, ok = %v", cfg, ok)
	}
}

func TestNewProvider_Mock(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Provider: "mock"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(Streamer); !ok {
		t.Fatal("factory result should stream")
	}
	if p.ModelID() != "mock" {
		t.Fatalf("model = %q", p.ModelID())
	}
}

func TestLookupCost(t *testing.T) {
	c := LookupCost("gpt-4o-mini")
	if c == nil {
		t.Fatal("expected pricing for gpt-4o-mini")
	}
	if got := c.Cost(1_000_000, 1_000_000); math.Abs(got-0.75) > 1e-9 {
		t.Fatalf("cost = %v, want 0.75", got)
	}
	if LookupCost("no-such-model") != nil {
		t.Fatal("expected nil for unknown model")
	}
}
