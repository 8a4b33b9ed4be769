package fetch

import (
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// HTTPFetcher abstracts HTTP calls for testability
type HTTPFetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// RealHTTPFetcher wraps http.Client for production use
type RealHTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a production fetcher with TLS 1.2+ and the given timeout.
// A zero timeout falls back to 30 seconds.
func NewHTTPFetcher(timeout time.Duration) HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConnsPerHost: 16,
		},
	}
	return NewRealHTTPFetcher(client)
}

// NewRealHTTPFetcher wraps an existing client
func NewRealHTTPFetcher(client *http.Client) HTTPFetcher {
	return &RealHTTPFetcher{client: client}
}

func (f *RealHTTPFetcher) Do(req *http.Request) (*http.Response, error) {
	return f.client.Do(req)
}

// JoinURL joins host and path with exactly one slash between them.
func JoinURL(host, path string) string {
	return strings.TrimSuffix(host, "/") + "/" + strings.TrimPrefix(path, "/")
}

type mockKey struct {
	method string
	url    string
}

type mockResponse struct {
	status int
	header http.Header
	body   string
}

// MockHTTPFetcher simulates HTTP responses for testing. Responses are keyed by
// method and URL; a GET registration also answers HEAD unless a HEAD response
// was registered explicitly. Unknown URLs answer 404.
type MockHTTPFetcher struct {
	mu        sync.Mutex
	responses map[mockKey]mockResponse
	errors    map[string]error
	calls     map[mockKey]int
	delay     time.Duration
}

// NewMockHTTPFetcher creates a mock HTTP fetcher
func NewMockHTTPFetcher() *MockHTTPFetcher {
	return &MockHTTPFetcher{
		responses: make(map[mockKey]mockResponse),
		errors:    make(map[string]error),
		calls:     make(map[mockKey]int),
	}
}

// AddResponse registers a GET response for a URL
func (m *MockHTTPFetcher) AddResponse(urlStr string, statusCode int, body string) {
	m.AddResponseWithHeaders(http.MethodGet, urlStr, statusCode, nil, body)
}

// AddHead registers a HEAD response for a URL
func (m *MockHTTPFetcher) AddHead(urlStr string, statusCode int, headers map[string]string) {
	m.AddResponseWithHeaders(http.MethodHead, urlStr, statusCode, headers, "")
}

// AddResponseWithHeaders registers a response for method and URL
func (m *MockHTTPFetcher) AddResponseWithHeaders(method, urlStr string, statusCode int, headers map[string]string, body string) {
	h := make(http.Header)
	for k, v := range headers {
		h.Set(k, v)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[mockKey{method: method, url: urlStr}] = mockResponse{status: statusCode, header: h, body: body}
}

// AddError registers a transport error for a URL (all methods)
func (m *MockHTTPFetcher) AddError(urlStr string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[urlStr] = err
}

// SetDelay makes every call block for d, which lets tests overlap requests.
func (m *MockHTTPFetcher) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls reports how many requests reached the mock for method and URL.
func (m *MockHTTPFetcher) Calls(method, urlStr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[mockKey{method: method, url: urlStr}]
}

func (m *MockHTTPFetcher) Do(req *http.Request) (*http.Response, error) {
	urlStr := req.URL.String()
	key := mockKey{method: req.Method, url: urlStr}

	m.mu.Lock()
	m.calls[key]++
	delay := m.delay
	err, hasErr := m.errors[urlStr]
	resp, ok := m.responses[key]
	if !ok && req.Method == http.MethodHead {
		resp, ok = m.responses[mockKey{method: http.MethodGet, url: urlStr}]
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	if hasErr {
		return nil, err
	}
	if !ok {
		resp = mockResponse{status: http.StatusNotFound, header: make(http.Header), body: "Not Found"}
	}

	body := resp.body
	if req.Method == http.MethodHead {
		body = ""
	}
	parsedURL, perr := url.Parse(urlStr)
	if perr != nil {
		return nil, errors.New("mock: invalid url " + urlStr)
	}
	return &http.Response{
		StatusCode: resp.status,
		Status:     http.StatusText(resp.status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     resp.header.Clone(),
		Request:    &http.Request{Method: req.Method, URL: parsedURL},
	}, nil
}
