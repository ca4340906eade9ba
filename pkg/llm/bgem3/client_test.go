package bgem3

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedBatch(t *testing.T) {
	var gotReq embedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"dense_embeddings": [][]float32{{0.1, 0.2}, {0.3, 0.4}},
			"sparse_embeddings": []map[string]float32{
				{"101": 0.9, "2048": 0.3},
				{"7": 0.5},
			},
		})
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL})

	batch, err := c.EmbedBatch(context.Background(), []string{"alpha", "beta"}, true)
	if err != nil {
		t.Fatalf("EmbedBatch error: %v", err)
	}

	if !gotReq.ReturnSparse {
		t.Error("return_sparse should be forwarded")
	}
	if len(batch.Dense) != 2 || len(batch.Dense[0]) != 2 {
		t.Fatalf("unexpected dense shape: %v", batch.Dense)
	}
	if len(batch.Sparse) != 2 {
		t.Fatalf("expected 2 sparse vectors, got %d", len(batch.Sparse))
	}
	if batch.Sparse[0][101] != 0.9 || batch.Sparse[0][2048] != 0.3 {
		t.Errorf("sparse term ids not parsed: %v", batch.Sparse[0])
	}
}

func TestEmbedBatchDenseOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"dense_embeddings": [][]float32{{1, 2, 3}},
		})
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL})

	batch, err := c.EmbedBatch(context.Background(), []string{"only"}, false)
	if err != nil {
		t.Fatalf("EmbedBatch error: %v", err)
	}
	if batch.Sparse != nil {
		t.Errorf("expected nil sparse, got %v", batch.Sparse)
	}
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"dense_embeddings": [][]float32{{1}},
		})
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL})

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"}, false)
	if err == nil {
		t.Fatal("expected error on count mismatch")
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	c := NewClient(nil)

	batch, err := c.EmbedBatch(context.Background(), nil, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch.Dense) != 0 {
		t.Errorf("expected empty batch, got %v", batch.Dense)
	}
}
