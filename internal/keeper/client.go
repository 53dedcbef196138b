// Package keeper holds the polling loops that drive the engine from
// the outside: relaying prices, recording chain state, and triggering
// resolution once markets expire. Keepers talk to the engine over its
// HTTP API so several keeper processes can run against one engine.
package keeper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/forecastlab/settle-engine/internal/model"
	"github.com/forecastlab/settle-engine/internal/oracle"
)

// ErrStateConflict is returned for 409 responses: the action raced a
// competing caller or the market is not in the expected state. Keepers
// skip these and move on.
var ErrStateConflict = errors.New("keeper: engine reported state conflict")

// EngineClient is the HTTP client keepers use against the engine API.
type EngineClient struct {
	baseURL     string
	resolverKey string
	httpc       *http.Client
}

// NewEngineClient creates a client for the engine at baseURL. The
// resolver key is attached to every request; leave it empty for
// permissionless keepers.
func NewEngineClient(baseURL, resolverKey string) *EngineClient {
	return &EngineClient{
		baseURL:     baseURL,
		resolverKey: resolverKey,
		httpc:       &http.Client{Timeout: 15 * time.Second},
	}
}

// ActiveMarkets returns all markets still in ACTIVE status.
func (c *EngineClient) ActiveMarkets(ctx context.Context) ([]model.Market, error) {
	var out []model.Market
	err := c.do(ctx, http.MethodGet, "/api/v1/markets?status=ACTIVE", nil, &out)
	return out, err
}

// IsExpired asks the engine whether a market's expiry has been reached.
func (c *EngineClient) IsExpired(ctx context.Context, marketID uint64) (bool, error) {
	var out struct {
		Expired bool `json:"expired"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/markets/%d/expired", marketID), nil, &out)
	return out.Expired, err
}

// SubmitPrice pushes one price value.
func (c *EngineClient) SubmitPrice(ctx context.Context, feedKey string, value int64) error {
	body := map[string]any{"feed_key": feedKey, "value": value}
	return c.do(ctx, http.MethodPost, "/api/v1/oracle/price", body, nil)
}

// SubmitPriceBatch pushes several price values in one request.
func (c *EngineClient) SubmitPriceBatch(ctx context.Context, values map[string]int64) error {
	return c.do(ctx, http.MethodPost, "/api/v1/oracle/price-batch", values, nil)
}

// SubmitAttested pushes a signed price submission.
func (c *EngineClient) SubmitAttested(ctx context.Context, att oracle.Attestation) error {
	return c.do(ctx, http.MethodPost, "/api/v1/oracle/price-attested", att, nil)
}

// RecordChain triggers one chain-state sample on the engine.
func (c *EngineClient) RecordChain(ctx context.Context) (oracle.Sample, error) {
	var out oracle.Sample
	err := c.do(ctx, http.MethodPost, "/api/v1/oracle/chain/record", nil, &out)
	return out, err
}

// Resolve triggers price-market resolution.
func (c *EngineClient) Resolve(ctx context.Context, marketID uint64) (*model.Market, error) {
	var out model.Market
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/markets/%d/resolve", marketID), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveWithFeed triggers chain-market resolution against a native
// feed key.
func (c *EngineClient) ResolveWithFeed(ctx context.Context, marketID uint64, feedKey string) (*model.Market, error) {
	var out model.Market
	body := map[string]string{"feed_key": feedKey}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/markets/%d/resolve-feed", marketID), body, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveBatch resolves several social-metric markets with attested
// final values.
func (c *EngineClient) ResolveBatch(ctx context.Context, finals map[uint64]int64) error {
	body := map[string]any{"finals": finals}
	return c.do(ctx, http.MethodPost, "/api/v1/resolve-batch", body, nil)
}

// Void moves an expired market to VOIDED.
func (c *EngineClient) Void(ctx context.Context, marketID uint64) (*model.Market, error) {
	var out model.Market
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/markets/%d/void", marketID), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *EngineClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.resolverKey != "" {
		req.Header.Set("X-Resolver-Key", c.resolverKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %s", ErrStateConflict, bytes.TrimSpace(data))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
