// Package book talks to the shared analysis book server. The book is an
// optional companion: every call degrades to a no-op result when the
// server is unreachable, and the play loop never blocks on it.
package book

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rvedder/gambit/internal/config"
	"github.com/rvedder/gambit/internal/models"
)

const clientTimeout = 1 * time.Second

// Client is an HTTP client for the book server. It registers itself on
// first use and re-registers when the server forgets its client ID.
type Client struct {
	config     *config.BookClientConfig
	hostname   string
	engineName string
	http       *http.Client

	mu       sync.Mutex
	clientID string
}

// NewClient creates a book client. The engine name is reported on
// registration so the server can attribute submitted evaluations.
func NewClient(cfg *config.BookClientConfig, engineName string) *Client {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &Client{
		config:     cfg,
		hostname:   hostname,
		engineName: engineName,
		http:       &http.Client{Timeout: clientTimeout},
	}
}

func (c *Client) request(method string, path string, payload any, needsClientID bool) (*http.Response, error) {
	return c.doRequest(method, path, payload, needsClientID, true)
}

func (c *Client) doRequest(method string, path string, payload any, needsClientID bool, mayRetry bool) (*http.Response, error) {
	var body io.Reader

	if payload == nil {
		body = http.NoBody
	} else {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		body = buf
	}

	request, err := http.NewRequest(method, c.config.ServerURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	request.Header.Set("x-token", c.config.Token)

	if needsClientID {
		if err := c.ensureClientID(); err != nil {
			return nil, fmt.Errorf("failed to ensure client ID: %w", err)
		}

		request.Header.Set("x-client-id", c.currentClientID())
	}

	response, err := c.http.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	// A stale client ID earns one fresh registration. A second 401 means
	// the token itself is bad, so retrying cannot help.
	if response.StatusCode == http.StatusUnauthorized && mayRetry {
		slog.Debug("Book server rejected client ID, registering again")
		c.resetClientID()
		return c.doRequest(method, path, payload, needsClientID, false)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("server returned unexpected status %v", response.Status)
	}

	return response, nil
}

func (c *Client) post(path string, payload any, needsClientID bool) (*http.Response, error) {
	return c.request("POST", path, payload, needsClientID)
}

func (c *Client) currentClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

func (c *Client) resetClientID() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientID = ""
}

func (c *Client) ensureClientID() error {
	if c.currentClientID() != "" {
		return nil
	}

	payload := models.RegisterRequest{
		Hostname:   c.hostname,
		EngineName: c.engineName,
	}

	response, err := c.post("/api/clients/register", payload, false)
	if err != nil {
		return fmt.Errorf("failed to register book client: %w", err)
	}
	defer response.Body.Close()

	var parsed models.RegisterResponse
	if err := json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("failed to decode register response: %w", err)
	}

	c.mu.Lock()
	c.clientID = parsed.ClientID
	c.mu.Unlock()

	slog.Debug("Registered with book server", "client_id", parsed.ClientID)
	return nil
}

// Heartbeat tells the server this client is still alive.
func (c *Client) Heartbeat() error {
	response, err := c.post("/api/clients/heartbeat", nil, true)
	if err != nil {
		return err
	}
	response.Body.Close()
	return nil
}

// LookupPositions fetches stored evaluations for the given positions.
// Positions the book does not know are absent from the result.
func (c *Client) LookupPositions(fens []string) ([]models.Evaluation, error) {
	payload := models.LookupPositionsPayload{FENs: fens}

	response, err := c.post("/api/positions/lookup", payload, true)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup positions: %w", err)
	}
	defer response.Body.Close()

	var evaluations []models.Evaluation
	if err := json.NewDecoder(response.Body).Decode(&evaluations); err != nil {
		return nil, fmt.Errorf("failed to decode lookup response: %w", err)
	}

	return evaluations, nil
}

// SubmitEvaluations sends locally computed evaluations to the server.
func (c *Client) SubmitEvaluations(evaluations []models.Evaluation) error {
	if len(evaluations) == 0 {
		return nil
	}

	payload := models.EvaluationsPayload{Evaluations: evaluations}

	response, err := c.post("/api/positions/evaluations", payload, true)
	if err != nil {
		return fmt.Errorf("failed to submit evaluations: %w", err)
	}
	response.Body.Close()

	return nil
}
