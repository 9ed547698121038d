package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// ErrDiscoveryFailed is returned when the discovery document cannot be
// fetched or parsed. The cache stays empty after a failure, so the next call
// retries without any manual reset.
var ErrDiscoveryFailed = errors.New("discovery failed")

// Cache lazily fetches the discovery document and memoizes it for its own
// lifetime. Concurrent callers before the first resolution share a single
// network fetch.
type Cache struct {
	url        string
	httpClient *http.Client

	group singleflight.Group
	mu    sync.RWMutex
	doc   *Document
}

// NewCache creates a discovery cache for the given well-known URL. A nil
// httpClient falls back to a client with a 30 second timeout.
func NewCache(discoveryURL string, httpClient *http.Client) *Cache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Cache{
		url:        discoveryURL,
		httpClient: httpClient,
	}
}

// Get returns the discovery document, fetching it on first use. All callers
// observe the same resolved value.
func (c *Cache) Get(ctx context.Context) (*Document, error) {
	c.mu.RLock()
	doc := c.doc
	c.mu.RUnlock()
	if doc != nil {
		return doc, nil
	}

	result, err, _ := c.group.Do(c.url, func() (any, error) {
		// Double-check after acquiring the singleflight slot: a previous
		// flight may already have populated the cache.
		c.mu.RLock()
		cached := c.doc
		c.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		fetched, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.doc = fetched
		c.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*Document), nil
}

func (c *Cache) fetch(ctx context.Context) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, errors.Wrapf(ErrDiscoveryFailed, "building request for %s: %v", c.url, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrDiscoveryFailed, "GET %s: %v", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrDiscoveryFailed, "GET %s: status %d", c.url, resp.StatusCode)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, errors.Wrapf(ErrDiscoveryFailed, "decoding discovery document: %v", err)
	}

	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" || doc.JWKSURI == "" {
		return nil, errors.Wrap(ErrDiscoveryFailed, "discovery document missing required endpoints")
	}

	return &doc, nil
}
