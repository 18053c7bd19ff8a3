// Package zendesk connects the triage engine to a Zendesk helpdesk: it
// polls for new tickets and posts the decided response back as a comment.
package zendesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"helpdesk-triage/internal/common/config"
	"helpdesk-triage/internal/common/errors"
)

// Ticket is the subset of the Zendesk ticket payload the triage flow needs.
type Ticket struct {
	ID          int64     `json:"id"`
	Subject     string    `json:"subject"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Client is a minimal Zendesk REST client authenticated with an API token.
type Client struct {
	baseURL    string
	email      string
	apiToken   string
	pageSize   int
	httpClient *http.Client
}

func NewClient(cfg config.ZendeskConfig) *Client {
	timeout := config.GetDuration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}

	return &Client{
		baseURL:  fmt.Sprintf("https://%s.zendesk.com/api/v2", cfg.Subdomain),
		email:    cfg.Email,
		apiToken: cfg.APIToken,
		pageSize: pageSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientWithBaseURL is for tests against a local server.
func NewClientWithBaseURL(baseURL, email, apiToken string, pageSize int) *Client {
	return &Client{
		baseURL:    baseURL,
		email:      email,
		apiToken:   apiToken,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// ListRecent fetches the newest tickets, most recent first.
func (c *Client) ListRecent(ctx context.Context) ([]Ticket, error) {
	url := fmt.Sprintf("%s/tickets.json?sort_by=created_at&sort_order=desc&per_page=%d", c.baseURL, c.pageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewHelpdeskFetchFailedError(err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewHelpdeskFetchFailedError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.NewHelpdeskFetchFailedError(
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	var result struct {
		Tickets []Ticket `json:"tickets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.NewHelpdeskFetchFailedError(fmt.Errorf("failed to decode response: %w", err))
	}

	return result.Tickets, nil
}

// AddComment posts a comment on the ticket. Public comments are visible to
// the requester; private ones are internal agent notes.
func (c *Client) AddComment(ctx context.Context, ticketID int64, body string, public bool) error {
	url := fmt.Sprintf("%s/tickets/%d.json", c.baseURL, ticketID)

	payload := map[string]interface{}{
		"ticket": map[string]interface{}{
			"comment": map[string]interface{}{
				"body":   body,
				"public": public,
			},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return errors.NewHelpdeskPostFailedError(ticketID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return errors.NewHelpdeskPostFailedError(ticketID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewHelpdeskPostFailedError(ticketID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return errors.NewHelpdeskPostFailedError(ticketID,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.SetBasicAuth(c.email+"/token", c.apiToken)
}
