package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/muselink/muselink/internal/logger"
)

// ErrUnavailable means the backing AI service failed its health probe.
// Callers treat it as a soft failure and skip the work.
var ErrUnavailable = errors.New("ai service unavailable")

// client is the shared JSON-over-HTTP plumbing for both AI services.
type client struct {
	baseURL       string
	http          *http.Client
	healthTimeout time.Duration
	log           hclog.Logger
}

func newClient(baseURL string, requestTimeout, healthTimeout time.Duration, name string) *client {
	return &client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{Timeout: requestTimeout},
		healthTimeout: healthTimeout,
		log:           logger.Named(name),
	}
}

func (c *client) configured() bool {
	return c.baseURL != ""
}

// healthy probes GET /health with a short deadline. The probe runs
// before every batch so an offline service fails fast instead of
// eating the full request timeout.
func (c *client) healthy(ctx context.Context) bool {
	if !c.configured() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("Health probe failed", "url", c.baseURL, "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// postJSON sends the request body and decodes the response into out.
func (c *client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
