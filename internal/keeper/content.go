package keeper

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ContentSource reads a post's current metric value (likes, reposts)
// from an external content platform.
type ContentSource interface {
	MetricValue(ctx context.Context, postID, metric string) (int64, error)
}

// ContentClient queries the content platform's API. Without a
// credential it falls back to deterministic synthetic values so
// development setups work end to end without platform access.
type ContentClient struct {
	baseURL    string
	credential string
	httpc      *http.Client
}

// NewContentClient creates the client. An empty credential enables
// synthetic mode.
func NewContentClient(baseURL, credential string) *ContentClient {
	return &ContentClient{
		baseURL:    baseURL,
		credential: credential,
		httpc:      &http.Client{Timeout: 10 * time.Second},
	}
}

// MetricValue implements ContentSource.
func (c *ContentClient) MetricValue(ctx context.Context, postID, metric string) (int64, error) {
	if c.credential == "" {
		return syntheticMetric(postID, metric), nil
	}

	u := fmt.Sprintf("%s/posts/%s/metrics?metric=%s",
		c.baseURL, url.PathEscape(postID), url.QueryEscape(metric))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("build metrics request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.credential)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch metric %s/%s: %w", postID, metric, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch metric %s/%s: status %d", postID, metric, resp.StatusCode)
	}

	var body struct {
		Value int64 `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode metric %s/%s: %w", postID, metric, err)
	}
	return body.Value, nil
}

// syntheticMetric derives a stable pseudo-value from the post and
// metric names, so repeated reads agree.
func syntheticMetric(postID, metric string) int64 {
	h := fnv.New32a()
	h.Write([]byte(postID))
	h.Write([]byte{'|'})
	h.Write([]byte(metric))
	return int64(h.Sum32() % 10_000)
}

// ValueCache wraps a ContentSource with a TTL cache and request
// coalescing: concurrent reads of the same post/metric share one
// upstream call. The clock is injected for testability.
type ValueCache struct {
	source ContentSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cachedValue
	group   singleflight.Group
}

type cachedValue struct {
	value   int64
	fetched time.Time
}

// NewValueCache creates the cache. Pass nil for now to use the wall
// clock.
func NewValueCache(source ContentSource, ttl time.Duration, now func() time.Time) *ValueCache {
	if now == nil {
		now = time.Now
	}
	return &ValueCache{
		source:  source,
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cachedValue),
	}
}

// MetricValue implements ContentSource with caching and coalescing.
func (c *ValueCache) MetricValue(ctx context.Context, postID, metric string) (int64, error) {
	key := postID + "|" + metric

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Sub(e.fetched) < c.ttl {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := c.source.MetricValue(ctx, postID, metric)
		if err != nil {
			return int64(0), err
		}
		c.mu.Lock()
		c.entries[key] = cachedValue{value: value, fetched: c.now()}
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}
