package corpus

import (
	"context"
	"net/http"
	"sync"
	"testing"
)

// MockFetcher serves configured bodies by URL and records every request.
// This is exported for use in integration tests.
type MockFetcher struct {
	mu        sync.Mutex
	responses map[string]MockResponse
	calls     []string
}

// MockResponse defines the body or error returned for a URL.
type MockResponse struct {
	Body []byte
	Err  error
}

// NewMockFetcher creates a mock fetcher that answers 404 for unknown URLs.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{responses: make(map[string]MockResponse)}
}

// AddResponse configures the body returned for url.
func (m *MockFetcher) AddResponse(url string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[url] = MockResponse{Body: body}
}

// AddError configures the error returned for url.
func (m *MockFetcher) AddError(url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[url] = MockResponse{Err: err}
}

// Fetch returns the configured response for url.
func (m *MockFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, url)

	resp, ok := m.responses[url]
	if !ok {
		return nil, &StatusError{URL: url, StatusCode: http.StatusNotFound}
	}
	return resp.Body, resp.Err
}

// Calls returns the requested URLs in order.
func (m *MockFetcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MustCallCount fails the test unless exactly n requests were made.
func (m *MockFetcher) MustCallCount(t *testing.T, n int) {
	t.Helper()
	if got := len(m.Calls()); got != n {
		t.Fatalf("Expected %d fetch calls, got %d: %v", n, got, m.Calls())
	}
}
