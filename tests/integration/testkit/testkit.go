// Package testkit starts the collaborators of integration tests: a book mirror,
// a dataset on disk and the command-line flags pointing at them.
package testkit

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sha1n/ngram-viewer/internal/app"
	"github.com/spf13/pflag"
)

// Service is a test collaborator that can be started and stopped
type Service interface {
	Start() (map[string]any, error)
	Stop() error
	GetName() string
}

// TestEnv starts services in order and collects the properties they publish
type TestEnv struct {
	services   []Service
	properties map[string]any
}

// NewTestEnv creates a new test environment with the given services
func NewTestEnv(services ...Service) *TestEnv {
	return &TestEnv{services: services, properties: make(map[string]any)}
}

// Start starts every service. Properties of later services win on conflicts.
func (e *TestEnv) Start() (map[string]any, error) {
	for _, s := range e.services {
		props, err := s.Start()
		if err != nil {
			return nil, fmt.Errorf("failed to start %s: %w", s.GetName(), err)
		}
		for k, v := range props {
			e.properties[k] = v
		}
	}
	return e.properties, nil
}

// Stop stops every service in reverse order and returns the last error
func (e *TestEnv) Stop() error {
	var lastErr error
	for i := len(e.services) - 1; i >= 0; i-- {
		if err := e.services[i].Stop(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Property returns a property published by a started service
func (e *TestEnv) Property(name string) (any, bool) {
	v, ok := e.properties[name]
	return v, ok
}

// MirrorURLProperty is the property holding the mirror's URL template
const MirrorURLProperty = "mirror_url"

// MirrorService serves book texts at /<id>.txt like a Project Gutenberg mirror.
// Unknown ids get a 404.
type MirrorService struct {
	books  map[string]string
	server *httptest.Server

	mu       sync.Mutex
	requests map[string]int
}

// NewMirrorService creates a mirror serving the given id to text map
func NewMirrorService(books map[string]string) *MirrorService {
	return &MirrorService{books: books, requests: make(map[string]int)}
}

// Start starts the HTTP server
func (m *MirrorService) Start() (map[string]any, error) {
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return map[string]any{MirrorURLProperty: m.URLTemplate()}, nil
}

func (m *MirrorService) serve(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".txt")

	m.mu.Lock()
	m.requests[id]++
	m.mu.Unlock()

	text, ok := m.books[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

// Stop shuts the HTTP server down
func (m *MirrorService) Stop() error {
	if m.server != nil {
		m.server.Close()
	}
	return nil
}

// GetName returns the service name
func (m *MirrorService) GetName() string {
	return "mirror"
}

// URLTemplate returns the download URL template of the running mirror
func (m *MirrorService) URLTemplate() string {
	return m.server.URL + "/{id}.txt"
}

// Requests returns how many times a book was requested
func (m *MirrorService) Requests(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[id]
}

// Book is one dataset record written by WriteDataset
type Book struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Author string  `json:"author,omitempty"`
	Year   int     `json:"year"`
	Text   *string `json:"text,omitempty"`
}

// WriteDataset writes a dataset file into dir and returns its path
func WriteDataset(t testing.TB, dir string, books []Book) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{"books": books})
	if err != nil {
		t.Fatalf("Failed to encode dataset: %v", err)
	}
	path := filepath.Join(dir, "books_database.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write dataset: %v", err)
	}
	return path
}

// GetFreePort returns a free port from the kernel
func GetFreePort() (int, error) {
	return getFreePortWithAddr("localhost:0")
}

// MustGetFreePort returns a free port or fails the test
func MustGetFreePort(t testing.TB) int {
	t.Helper()
	port, err := GetFreePort()
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}
	return port
}

func getFreePortWithAddr(addrStr string) (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", addrStr)
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// FlagOptions configures NewTestFlags
type FlagOptions struct {
	Dataset   string   // Required
	DataDir   string   // Required
	Mirrors   []string // Fetching is disabled when empty
	Port      int      // Uses free port if 0
	Transport string   // Defaults to "sse"
	AuthType  string   // Defaults to "none"
	APIKeys   []string
	Host      string // Defaults to "localhost"
}

// NewTestFlags creates a FlagSet with every command flag registered and set from opts
func NewTestFlags(t testing.TB, opts FlagOptions) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterGlobalFlags(flags)
	app.RegisterSearchFlags(flags)
	app.RegisterChartFlags(flags)
	app.RegisterServeFlags(flags)

	if opts.Port == 0 {
		opts.Port = MustGetFreePort(t)
	}
	if opts.Transport == "" {
		opts.Transport = "sse"
	}
	if opts.AuthType == "" {
		opts.AuthType = "none"
	}
	if opts.Host == "" {
		opts.Host = "localhost"
	}

	values := map[string]string{
		"log-level":    "error",
		"dataset":      opts.Dataset,
		"data-dir":     opts.DataDir,
		"fetch":        fmt.Sprintf("%t", len(opts.Mirrors) > 0),
		"rate-limit":   "1000",
		"lock-timeout": "5s",
		"color":        "false",
		"width":        "20",
		"port":         fmt.Sprintf("%d", opts.Port),
		"transport":    opts.Transport,
		"auth-type":    opts.AuthType,
		"host":         opts.Host,
	}
	if len(opts.Mirrors) > 0 {
		values["mirrors"] = strings.Join(opts.Mirrors, ",")
	}
	if len(opts.APIKeys) > 0 {
		values["auth-api-keys"] = strings.Join(opts.APIKeys, ",")
	}

	for name, value := range values {
		if err := flags.Set(name, value); err != nil {
			t.Fatalf("Failed to set flag %s: %v", name, err)
		}
	}
	return flags
}
