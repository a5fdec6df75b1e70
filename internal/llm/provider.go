package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Provider is the core abstraction for LLM interaction.
// Consumers call Generate with a Request and receive structured JSON.
type Provider interface {
	// Generate sends a prompt to the LLM and returns a structured response.
	// The request's Schema field, when set, instructs the provider to return
	// JSON conforming to that schema. The response Content will be the
	// validated JSON.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// ChunkFunc receives one text delta of a streamed completion. Returning an
// error stops the stream and is returned from Stream.
type ChunkFunc func(chunk string) error

// Streamer is implemented by providers that deliver free text incrementally.
// Schema is ignored for streamed requests.
type Streamer interface {
	Provider

	// Stream sends the request and calls onChunk for every text delta as it
	// arrives. The returned Response holds the full accumulated text.
	Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error)
}

// Request describes what to send to the LLM.
type Request struct {
	// System is the system prompt. Sets the LLM's role and constraints.
	System string

	// Messages is the conversation history. The tutoring pipeline renders
	// history into its prompt templates, so this is usually one user message.
	Messages []Message

	// Schema is the JSON Schema the response must conform to.
	// When set, the provider uses its native structured output mechanism.
	// When nil, the response Content is the raw text.
	Schema *Schema

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int

	// Temperature controls randomness. Range: 0.0 - 1.0.
	// Default: 0.0 (deterministic) when not set.
	Temperature float64
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the LLM.
type Schema struct {
	// Name identifies this schema (schema name for OpenAI, cache key for
	// validation). Kebab-case, e.g. "introduction-analysis".
	Name string

	// Description is a human-readable description of what this schema
	// represents. Sent to the LLM to guide generation.
	Description string

	// Definition is the JSON Schema definition as a map.
	Definition map[string]any
}

// Response holds the LLM's output.
type Response struct {
	// Content is the generated output. When a Schema was provided in the
	// request, this is the validated JSON object. Otherwise it is the raw
	// text returned by the model.
	Content json.RawMessage

	// Usage reports token consumption for this request.
	Usage Usage

	// Model is the actual model that served the request.
	Model string

	// StopReason indicates why generation stopped.
	// Normalized to: "end", "max_tokens", "error"
	StopReason string
}

// Text returns Content as plain text. A JSON string literal is decoded,
// anything else is returned verbatim and trimmed.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Content, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(r.Content))
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// StreamText streams req through p when it supports streaming. Otherwise it
// falls back to Generate and delivers the whole text as a single chunk.
func StreamText(ctx context.Context, p Provider, req Request, onChunk ChunkFunc) (*Response, error) {
	if s, ok := p.(Streamer); ok {
		return s.Stream(ctx, req, onChunk)
	}

	req.Schema = nil
	resp, err := p.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if text := string(resp.Content); text != "" {
		if err := onChunk(text); err != nil {
			return nil, err
		}
	}
	return resp, nil
}
