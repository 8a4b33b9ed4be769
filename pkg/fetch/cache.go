package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/offlinegen/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// Response is a fully read HTTP response. Cached responses are shared between
// callers and must be treated as read-only.
type Response struct {
	URL        string
	Method     string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// LastModified parses the last-modified header, if any.
func (r *Response) LastModified() (time.Time, bool) {
	v := r.Header.Get("Last-Modified")
	if v == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ContentType returns the media type without parameters, lower-cased.
func (r *Response) ContentType() string {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// CacheStats reports cache effectiveness for one run
type CacheStats struct {
	Hits     int `json:"hits"`
	Misses   int `json:"misses"`
	Requests int `json:"requests"`
	Size     int `json:"size"`
}

// Cache memoizes GET bodies and HEAD results by absolute URL for the lifetime
// of one synthesis run. Entries are written once and never evicted; failed
// (non-2xx) responses are returned to the caller but not stored. Concurrent
// callers asking for the same method and URL share a single request.
type Cache struct {
	fetcher HTTPFetcher
	headers http.Header

	group singleflight.Group

	mu    sync.RWMutex
	get   map[string]*Response
	head  map[string]*Response
	stats CacheStats
}

// NewCache creates a run-scoped cache. defaultHeaders are sent with every request.
func NewCache(fetcher HTTPFetcher, defaultHeaders map[string]string) *Cache {
	h := make(http.Header)
	for k, v := range defaultHeaders {
		if v != "" {
			h.Set(k, v)
		}
	}
	return &Cache{
		fetcher: fetcher,
		headers: h,
		get:     make(map[string]*Response),
		head:    make(map[string]*Response),
	}
}

// Fetch performs (or replays) a GET or HEAD. A non-2xx answer is returned
// without error; transport failures yield a *FetchError.
func (c *Cache) Fetch(ctx context.Context, url, method string, headers map[string]string) (*Response, error) {
	method = strings.ToUpper(method)
	if method != http.MethodGet && method != http.MethodHead {
		return nil, &FetchError{URL: url, Method: method, Err: fmt.Errorf("unsupported method")}
	}

	if resp, ok := c.lookup(url, method); ok {
		c.mu.Lock()
		c.stats.Hits++
		c.mu.Unlock()
		logger.Trace("fetch cache hit", logger.String("method", method), logger.String("url", url))
		return resp, nil
	}

	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: url, Method: method, Err: err}
	}

	// The shared request outlives any single caller's context; each caller
	// stops waiting when its own context is done.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(method+" "+url, func() (interface{}, error) {
		// Another flight may have stored it while we waited on the group.
		if resp, ok := c.lookup(url, method); ok {
			return resp, nil
		}
		resp, err := c.do(flightCtx, url, method, headers)
		if err != nil {
			return nil, err
		}
		if resp.OK() {
			c.mu.Lock()
			if method == http.MethodGet {
				c.get[url] = resp
			} else {
				c.head[url] = resp
			}
			c.mu.Unlock()
		}
		return resp, nil
	})
	select {
	case <-ctx.Done():
		return nil, &FetchError{URL: url, Method: method, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Response), nil
	}
}

// lookup serves HEAD from a stored GET as well, since the GET already
// carries the status and headers a HEAD would return.
func (c *Cache) lookup(url, method string) (*Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if method == http.MethodGet {
		resp, ok := c.get[url]
		return resp, ok
	}
	if resp, ok := c.head[url]; ok {
		return resp, true
	}
	if resp, ok := c.get[url]; ok {
		return &Response{URL: resp.URL, Method: http.MethodHead, StatusCode: resp.StatusCode, Header: resp.Header}, true
	}
	return nil, false
}

func (c *Cache) do(ctx context.Context, url, method string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Method: method, Err: err}
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.mu.Lock()
	c.stats.Requests++
	c.mu.Unlock()

	start := time.Now()
	httpResp, err := c.fetcher.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Method: method, Err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	resp := &Response{
		URL:        url,
		Method:     method,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	if method == http.MethodGet {
		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, &FetchError{URL: url, Method: method, StatusCode: httpResp.StatusCode, Err: err}
		}
		resp.Body = body
	}

	logger.Debug("fetched",
		logger.String("method", method),
		logger.String("url", url),
		logger.Int("status", resp.StatusCode),
		logger.Duration("took", time.Since(start)))
	return resp, nil
}

// FetchText returns the body of a successful GET; any non-2xx is a *FetchError.
func (c *Cache) FetchText(ctx context.Context, url string) (string, error) {
	resp, err := c.Fetch(ctx, url, http.MethodGet, nil)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &FetchError{URL: url, Method: http.MethodGet, StatusCode: resp.StatusCode}
	}
	return string(resp.Body), nil
}

// Text is FetchText against host + path.
func (c *Cache) Text(ctx context.Context, host, path string) (string, error) {
	return c.FetchText(ctx, JoinURL(host, path))
}

// Head issues a HEAD against host + path. The caller decides what a non-2xx means.
func (c *Cache) Head(ctx context.Context, host, path string) (*Response, error) {
	return c.Fetch(ctx, JoinURL(host, path), http.MethodHead, nil)
}

// Stats returns current cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Size = len(c.get) + len(c.head)
	return s
}
