package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/sitescout-backend/internal/pkg/httpx"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

func testClient(t *testing.T, baseURL string) Client {
	t.Helper()

	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", baseURL)
	t.Setenv("OPENAI_MAX_RETRIES", "1")

	log := logger.NewNop()
	c, err := NewClient(log)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func embeddingsJSON(inputs int, dim int, promptTokens int) string {
	type datum struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	}
	data := make([]datum, inputs)
	for i := range data {
		vec := make([]float64, dim)
		for j := range vec {
			vec[j] = float64(i) + float64(j)/1000
		}
		// Reversed index order, so ordering comes from the index field.
		data[i] = datum{Embedding: vec, Index: inputs - 1 - i}
	}
	payload := map[string]any{
		"data": data,
		"usage": map[string]int{
			"prompt_tokens": promptTokens,
			"total_tokens":  promptTokens,
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func TestEmbedOrdersByIndex(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = req.Model
		fmt.Fprint(w, embeddingsJSON(len(req.Input), 4, 42))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	vecs, usage, err := c.Embed(context.Background(), []string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if gotModel != "text-embedding-3-small" {
		t.Fatalf("model=%q", gotModel)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	if usage.PromptTokens != 42 {
		t.Fatalf("usage=%+v", usage)
	}
	// data[0] has first element 0 and carries index 2, so slot 2 gets it.
	if vecs[2][0] != 0 {
		t.Fatalf("index ordering not honored: vecs[2][0]=%v", vecs[2][0])
	}
	if vecs[0][0] != 2 {
		t.Fatalf("index ordering not honored: vecs[0][0]=%v", vecs[0][0])
	}
}

func TestEmbedEmptyInputSkipsRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	vecs, _, err := c.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 0 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no HTTP calls, got %d", calls)
	}
}

func TestEmbedMissingIndexFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Two inputs, one vector back.
		fmt.Fprint(w, `{"data":[{"embedding":[0.1],"index":0}],"usage":{"prompt_tokens":5}}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, _, err := c.Embed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error for missing embedding index")
	}
}

func TestEmbedRetriesTimeout(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			time.Sleep(2 * time.Second)
			return
		}
		fmt.Fprint(w, embeddingsJSON(1, 2, 3))
	}))
	defer srv.Close()

	t.Setenv("OPENAI_TIMEOUT_SECONDS", "1")
	c := testClient(t, srv.URL)
	vecs, _, err := c.Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 1 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestEmbedSurfacesServerErrorWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, _, err := c.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
	var sc httpx.HTTPStatusCoder
	if !errors.As(err, &sc) || sc.HTTPStatusCode() != http.StatusServiceUnavailable {
		t.Fatalf("expected status-coded 503 error, got: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("server errors are the caller's retry policy, got %d calls", calls)
	}
}

func TestEmbedDoesNotRetryAuthFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, _, err := c.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestIsRequestTooLarge(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"This model's maximum context length is 8192 tokens"}}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, _, err := c.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRequestTooLarge(err) {
		t.Fatalf("IsRequestTooLarge=false for: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("oversize request must not be retried, got %d calls", calls)
	}

	if IsRequestTooLarge(fmt.Errorf("plain error")) {
		t.Fatal("plain error misclassified as too large")
	}
	if !IsRequestTooLarge(&apiError{StatusCode: http.StatusRequestEntityTooLarge, Body: ""}) {
		t.Fatal("413 not classified as too large")
	}
	if IsRequestTooLarge(&apiError{StatusCode: http.StatusBadRequest, Body: "unrelated validation"}) {
		t.Fatal("unrelated 400 misclassified as too large")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	log := logger.NewNop()
	if _, err := NewClient(log); err == nil {
		t.Fatal("expected error without OPENAI_API_KEY")
	}
}
