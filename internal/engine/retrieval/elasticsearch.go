package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"helpdesk-triage/internal/common/logger"

	"github.com/elastic/go-elasticsearch/v8"
)

// ESRetriever searches a knowledge-base index of example instruction and
// response pairs and renders the best matches as prompt context lines.
type ESRetriever struct {
	es      *elasticsearch.Client
	index   string
	topK    int
	timeout time.Duration
	logger  logger.Logger
}

func NewESRetriever(es *elasticsearch.Client, index string, topK int, timeout time.Duration, log logger.Logger) *ESRetriever {
	return &ESRetriever{
		es:      es,
		index:   index,
		topK:    topK,
		timeout: timeout,
		logger: log.WithFields(map[string]interface{}{
			"component": "retrieval",
		}),
	}
}

// Retrieve runs a more_like_this query against the knowledge base and
// formats hits as "- instruction => response" lines.
func (r *ESRetriever) Retrieve(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := map[string]interface{}{
		"size": r.topK,
		"query": map[string]interface{}{
			"more_like_this": map[string]interface{}{
				"fields":          []string{"instruction"},
				"like":            text,
				"min_term_freq":   1,
				"min_doc_freq":    1,
				"max_query_terms": 25,
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return "", fmt.Errorf("encode query: %w", err)
	}

	res, err := r.es.Search(
		r.es.Search.WithContext(ctx),
		r.es.Search.WithIndex(r.index),
		r.es.Search.WithBody(&buf),
	)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return "", fmt.Errorf("search error: %s", res.Status())
	}

	var searchResponse struct {
		Hits struct {
			Hits []struct {
				Source struct {
					Instruction string `json:"instruction"`
					Response    string `json:"response"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResponse); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(searchResponse.Hits.Hits) == 0 {
		return "", nil
	}

	lines := make([]string, 0, len(searchResponse.Hits.Hits))
	for _, hit := range searchResponse.Hits.Hits {
		lines = append(lines, fmt.Sprintf("- %s => %s", hit.Source.Instruction, hit.Source.Response))
	}

	r.logger.Debug("retrieved context examples", map[string]interface{}{
		"count": len(lines),
	})

	return strings.Join(lines, "\n"), nil
}
