package keeper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PriceSource serves current quotes for feed keys. Values are int64
// fixed-point in whatever unit the market's target uses.
type PriceSource interface {
	Quote(ctx context.Context, feedKey string) (int64, error)
}

// HTTPSource fetches quotes from an external quotes API, rate-limited
// so a dense feed list cannot trip the provider's request caps.
type HTTPSource struct {
	baseURL string
	scale   int64 // multiplier from the API's decimal price to int64
	limiter *rate.Limiter
	httpc   *http.Client
}

// NewHTTPSource creates a rate-limited quote source. rps bounds the
// request rate; scale converts the provider's decimal price to the
// engine's fixed-point unit (e.g. 100 for cents).
func NewHTTPSource(baseURL string, scale int64, rps float64) *HTTPSource {
	if scale <= 0 {
		scale = 1
	}
	return &HTTPSource{
		baseURL: baseURL,
		scale:   scale,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Quote implements PriceSource.
func (s *HTTPSource) Quote(ctx context.Context, feedKey string) (int64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	u := fmt.Sprintf("%s/price?symbol=%s", s.baseURL, url.QueryEscape(feedKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("build quote request: %w", err)
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch quote %s: %w", feedKey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch quote %s: status %d", feedKey, resp.StatusCode)
	}

	var body struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode quote %s: %w", feedKey, err)
	}
	return int64(body.Price * float64(s.scale)), nil
}

// StaticSource serves fixed quotes from memory. Used in development
// mode and tests.
type StaticSource struct {
	mu     sync.RWMutex
	quotes map[string]int64
}

// NewStaticSource creates a source preloaded with quotes.
func NewStaticSource(quotes map[string]int64) *StaticSource {
	cp := make(map[string]int64, len(quotes))
	for k, v := range quotes {
		cp[k] = v
	}
	return &StaticSource{quotes: cp}
}

// Set updates one quote.
func (s *StaticSource) Set(feedKey string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[feedKey] = value
}

// Quote implements PriceSource.
func (s *StaticSource) Quote(_ context.Context, feedKey string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.quotes[feedKey]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", feedKey)
	}
	return v, nil
}
