// internal/engine/invoke/ollama_test.go
package invoke

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"helpdesk-triage/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Complete Tests
// ==========================

func TestOllamaComplete_Success(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]string{"response": `{"category": "OTHER"}`})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, 512, logger.NewTestLogger(t))
	out, err := client.Complete(context.Background(), "llama3.2:3b", "classify this")

	require.NoError(t, err)
	assert.Equal(t, `{"category": "OTHER"}`, out)
	assert.Equal(t, "llama3.2:3b", gotBody["model"])
	assert.Equal(t, "classify this", gotBody["prompt"])
	assert.Equal(t, false, gotBody["stream"])

	options, ok := gotBody["options"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(512), options["num_predict"])
}

func TestOllamaComplete_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, 512, logger.NewTestLogger(t))
	_, err := client.Complete(context.Background(), "missing-model", "p")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestOllamaComplete_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewOllamaClient(server.URL, 512, logger.NewTestLogger(t))
	_, err := client.Complete(context.Background(), "m", "p")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestOllamaComplete_WhitespaceResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": "   \n\t "})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, 512, logger.NewTestLogger(t))
	_, err := client.Complete(context.Background(), "m", "p")

	assert.ErrorIs(t, err, ErrEmptyOutput)
}

func TestOllamaComplete_DeadlineExceeded(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewOllamaClient(server.URL, 512, logger.NewTestLogger(t))
	_, err := client.Complete(ctx, "m", "p")

	assert.ErrorIs(t, err, ErrModelTimeout)
}

func TestOllamaComplete_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, 512, logger.NewTestLogger(t))
	_, err := client.Complete(context.Background(), "m", "p")

	assert.ErrorIs(t, err, ErrModelUnavailable)
}

// ==========================
// ListModels Tests
// ==========================

func TestOllamaListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"models": []map[string]string{
				{"name": "llama3.2:3b"},
				{"name": "llama3.1:8b"},
			},
		})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, 512, logger.NewTestLogger(t))
	names, err := client.ListModels(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2:3b", "llama3.1:8b"}, names)
}

func TestOllamaListModels_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewOllamaClient(server.URL, 512, logger.NewTestLogger(t))
	_, err := client.ListModels(context.Background())

	assert.ErrorIs(t, err, ErrModelUnavailable)
}
