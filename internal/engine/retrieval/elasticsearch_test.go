// internal/engine/retrieval/elasticsearch_test.go
package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"helpdesk-triage/internal/common/logger"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func newSearchServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *elasticsearch.Client) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The v8 client refuses to talk to servers missing the product header.
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return server, client
}

func hitsBody(pairs [][2]string) map[string]interface{} {
	hits := make([]map[string]interface{}, 0, len(pairs))
	for _, p := range pairs {
		hits = append(hits, map[string]interface{}{
			"_source": map[string]string{"instruction": p[0], "response": p[1]},
		})
	}
	return map[string]interface{}{
		"hits": map[string]interface{}{"hits": hits},
	}
}

// ==========================
// Retrieve Tests
// ==========================

func TestESRetrieve_FormatsHits(t *testing.T) {
	var gotQuery map[string]interface{}
	_, client := newSearchServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "helpdesk-kb")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotQuery))
		json.NewEncoder(w).Encode(hitsBody([][2]string{
			{"I was double charged", "We refunded the duplicate charge."},
			{"Charge appeared twice", "Duplicate payment reversed."},
		}))
	})

	r := NewESRetriever(client, "helpdesk-kb", 3, 2*time.Second, logger.NewTestLogger(t))
	out, err := r.Retrieve(context.Background(), "charged twice on my card")

	require.NoError(t, err)
	assert.Equal(t,
		"- I was double charged => We refunded the duplicate charge.\n"+
			"- Charge appeared twice => Duplicate payment reversed.",
		out)

	assert.Equal(t, float64(3), gotQuery["size"])
	query, ok := gotQuery["query"].(map[string]interface{})
	require.True(t, ok)
	mlt, ok := query["more_like_this"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "charged twice on my card", mlt["like"])
}

func TestESRetrieve_EmptyHits(t *testing.T) {
	_, client := newSearchServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(hitsBody(nil))
	})

	r := NewESRetriever(client, "helpdesk-kb", 3, 2*time.Second, logger.NewTestLogger(t))
	out, err := r.Retrieve(context.Background(), "anything")

	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestESRetrieve_SearchError(t *testing.T) {
	_, client := newSearchServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "shard failure"})
	})

	r := NewESRetriever(client, "helpdesk-kb", 3, 2*time.Second, logger.NewTestLogger(t))
	_, err := r.Retrieve(context.Background(), "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "search error")
}

// ==========================
// Noop Tests
// ==========================

func TestNoopRetriever(t *testing.T) {
	out, err := Noop{}.Retrieve(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}
