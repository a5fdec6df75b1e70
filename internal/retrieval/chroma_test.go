package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticEmbedder struct {
	vec []float32
	err error
}

func (s staticEmbedder) Embed(context.Context, string) ([]float32, error) { return s.vec, s.err }

func newTestClient(t *testing.T, handler http.HandlerFunc, emb Embedder) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(Config{BaseURL: server.URL + "/", Token: "tok", CollectionID: "lessons"}, emb, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestRetrieve_SendsQueryAndReturnsDocuments(t *testing.T) {
	var (
		gotPath  string
		gotToken string
		gotBody  queryRequest
	)
	handler := func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Chroma-Token")
		json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ids":[["1","2","3"]],"documents":[["Fractions lesson","Equations lesson",null]]}`))
	}

	c := newTestClient(t, handler, staticEmbedder{vec: []float32{0.1, 0.2}})
	docs, err := c.Retrieve(context.Background(), "Solve 3x = 12", map[string]any{"school_level": "6e"}, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/collections/lessons/query" {
		t.Errorf("path = %q", gotPath)
	}
	if gotToken != "tok" {
		t.Errorf("token header = %q", gotToken)
	}
	if gotBody.NResults != 4 || len(gotBody.QueryEmbeddings) != 1 || gotBody.Where["school_level"] != "6e" {
		t.Errorf("request body = %+v", gotBody)
	}
	if len(docs) != 2 || docs[0] != "Fractions lesson" || docs[1] != "Equations lesson" {
		t.Errorf("docs = %q", docs)
	}
}

func TestRetrieve_EmptyResultIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"documents":[[]]}`))
	}, staticEmbedder{vec: []float32{1}})

	docs, err := c.Retrieve(context.Background(), "q", nil, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("docs = %q", docs)
	}
}

func TestRetrieve_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		emb     Embedder
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "collection not found", http.StatusNotFound)
			},
			emb: staticEmbedder{vec: []float32{1}},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"documents":`))
			},
			emb: staticEmbedder{vec: []float32{1}},
		},
		{
			name:    "embedding failure",
			handler: func(w http.ResponseWriter, r *http.Request) { t.Error("index must not be queried") },
			emb:     staticEmbedder{err: errors.New("quota")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler, tt.emb)
			_, err := c.Retrieve(context.Background(), "q", nil, 2)
			if !errors.Is(err, ErrRetrievalUnavailable) {
				t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
			}
		})
	}
}

func TestRetrieve_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c, err := NewClient(Config{BaseURL: url, CollectionID: "c"}, staticEmbedder{vec: []float32{1}}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Retrieve(context.Background(), "q", nil, 1); !errors.Is(err, ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}

func TestRetrieve_RejectsNonPositiveK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, staticEmbedder{vec: []float32{1}})

	for _, k := range []int{0, -3} {
		if _, err := c.Retrieve(context.Background(), "q", nil, k); !errors.Is(err, ErrInvalidK) {
			t.Errorf("k=%d: expected ErrInvalidK, got %v", k, err)
		}
	}
}

func TestNewClient_Validation(t *testing.T) {
	emb := staticEmbedder{}
	if _, err := NewClient(Config{CollectionID: "c"}, emb, nil); err == nil {
		t.Error("expected error without base URL")
	}
	if _, err := NewClient(Config{BaseURL: "http://x"}, emb, nil); err == nil {
		t.Error("expected error without collection")
	}
	if _, err := NewClient(Config{BaseURL: "http://x", CollectionID: "c"}, nil, nil); err == nil {
		t.Error("expected error without embedder")
	}
}
