package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  gotModel,
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{0.5, -0.25}},
			},
		})
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder(EmbedderConfig{APIKey: "k", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("new embedder: %v", err)
	}
	vec, err := e.Embed(context.Background(), "fractions")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if gotModel != DefaultEmbeddingModel {
		t.Errorf("model = %q", gotModel)
	}
	if len(vec) != 2 || vec[0] != 0.5 || vec[1] != -0.25 {
		t.Errorf("vec = %v", vec)
	}
}

func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder(EmbedderConfig{}); err == nil {
		t.Fatal("expected error without API key")
	}
}
