package integration

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/ngram-viewer/internal/app"
	"github.com/sha1n/ngram-viewer/internal/auth"
	"github.com/sha1n/ngram-viewer/internal/config"
	"github.com/sha1n/ngram-viewer/internal/corpus"
	"github.com/sha1n/ngram-viewer/tests/integration/testkit"
	"github.com/spf13/pflag"
)

const (
	frankensteinText = "The Project Gutenberg eBook of Frankenstein\n" +
		"*** START OF THE PROJECT GUTENBERG EBOOK FRANKENSTEIN ***\n" +
		"CHAPTER I. I saw the whale. The Whale!\n" +
		"*** END OF THE PROJECT GUTENBERG EBOOK FRANKENSTEIN ***\n" +
		"whale whale whale"

	mobyDickText = "Call me Ishmael. Whale, whale [Pg 12] whale."
)

func essayText() *string {
	s := "No fish here."
	return &s
}

// fixture is a mirror plus a dataset referencing it.
type fixture struct {
	env     *testkit.TestEnv
	mirror  *testkit.MirrorService
	dataset string
	dataDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mirror := testkit.NewMirrorService(map[string]string{
		"84":   frankensteinText,
		"2701": mobyDickText,
	})
	env := testkit.NewTestEnv(mirror)
	if _, err := env.Start(); err != nil {
		t.Fatalf("Failed to start test env: %v", err)
	}
	t.Cleanup(func() { _ = env.Stop() })

	dir := t.TempDir()
	dataset := testkit.WriteDataset(t, dir, []testkit.Book{
		{ID: "84", Title: "Frankenstein", Author: "Mary Shelley", Year: 1818},
		{ID: "2701", Title: "Moby Dick", Author: "Herman Melville", Year: 1851},
		{ID: "essay", Title: "Essay", Year: 1999, Text: essayText()},
	})

	return &fixture{env: env, mirror: mirror, dataset: dataset, dataDir: filepath.Join(dir, "cache")}
}

func (f *fixture) mirrorURL(t *testing.T) string {
	t.Helper()
	v, ok := f.env.Property(testkit.MirrorURLProperty)
	if !ok {
		t.Fatal("Mirror URL property not published")
	}
	return v.(string)
}

func (f *fixture) flags(t *testing.T, opts testkit.FlagOptions) *pflag.FlagSet {
	t.Helper()
	opts.Dataset = f.dataset
	opts.DataDir = f.dataDir
	return testkit.NewTestFlags(t, opts)
}

func runParams(out *bytes.Buffer) app.RunParams {
	params := app.DefaultRunParams()
	params.Out = out
	return params
}

// ========================================
// CLI flow
// ========================================

func TestFetchThenSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var out bytes.Buffer
	flags := f.flags(t, testkit.FlagOptions{Mirrors: []string{f.mirrorURL(t)}})
	if err := app.RunFetch(ctx, runParams(&out), flags); err != nil {
		t.Fatalf("RunFetch failed: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "Books: 3 listed, 3 with text") {
		t.Errorf("Unexpected fetch output:\n%s", out.String())
	}
	for _, id := range []string{"84", "2701"} {
		if _, err := os.Stat(filepath.Join(f.dataDir, corpus.BooksDirname, id+".txt")); err != nil {
			t.Errorf("Expected book %s to be cached: %v", id, err)
		}
	}

	out.Reset()
	flags = f.flags(t, testkit.FlagOptions{Mirrors: []string{f.mirrorURL(t)}})
	if err := app.RunSearch(ctx, runParams(&out), flags, "whale"); err != nil {
		t.Fatalf("RunSearch failed: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"1810s: " + strings.Repeat("█", 13) + strings.Repeat(" ", 7) + " 2",
		"1850s: " + strings.Repeat("█", 20) + " 3",
		"1990s: " + strings.Repeat(" ", 20) + " 0",
		"5 occurrences in 3 documents",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output:\n%s", want, text)
		}
	}

	// Cached books are not downloaded again
	if n := f.mirror.Requests("84"); n != 1 {
		t.Errorf("Expected 1 request for book 84, got %d", n)
	}
}

func TestSearch_AlgorithmsAgree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var out bytes.Buffer
	flags := f.flags(t, testkit.FlagOptions{Mirrors: []string{f.mirrorURL(t)}})
	if err := app.RunCompare(ctx, runParams(&out), flags, "the whale"); err != nil {
		t.Fatalf("RunCompare failed: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "All algorithms found 2 occurrences") {
		t.Errorf("Unexpected output:\n%s", out.String())
	}
}

func TestSearch_OfflineSkipsMissingBooks(t *testing.T) {
	f := newFixture(t)

	var out bytes.Buffer
	flags := f.flags(t, testkit.FlagOptions{})
	if err := app.RunSearch(context.Background(), runParams(&out), flags, "fish"); err != nil {
		t.Fatalf("RunSearch failed: %v", err)
	}

	if !strings.Contains(out.String(), "1 occurrences in 1 documents") {
		t.Errorf("Only the inline essay should be searched:\n%s", out.String())
	}
	if n := f.mirror.Requests("84"); n != 0 {
		t.Errorf("Expected no downloads with fetching disabled, got %d", n)
	}
}

func TestCorpus_CacheSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	settings := &config.CorpusSettings{
		Dataset:   f.dataset,
		DataDir:   f.dataDir,
		Normalize: true,
		Fetch: config.FetchSettings{
			Enabled:     true,
			Timeout:     5 * time.Second,
			RateLimit:   1000,
			MaxParallel: 2,
			LockTimeout: 5 * time.Second,
			Mirrors:     []string{f.mirrorURL(t)},
		},
	}

	for i := 0; i < 2; i++ {
		svc, err := corpus.NewService(settings)
		if err != nil {
			t.Fatalf("NewService failed: %v", err)
		}
		if err := svc.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		entries, total, err := svc.SearchBooks("melville", 10)
		if err != nil {
			t.Fatalf("SearchBooks failed: %v", err)
		}
		if total != 1 || entries[0].ID != "2701" || entries[0].Words == 0 {
			t.Errorf("run %d: unexpected catalog entries %v", i, entries)
		}
		if err := svc.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	if n := f.mirror.Requests("2701"); n != 1 {
		t.Errorf("Expected 1 download across restarts, got %d", n)
	}
}

// ========================================
// MCP over SSE
// ========================================

type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set(auth.APIKeyHeader, t.key)
	return t.base.RoundTrip(r)
}

func waitForHealth(t *testing.T, baseURL string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("Server did not become healthy")
}

func TestServe_SSEWithAPIKey(t *testing.T) {
	f := newFixture(t)
	port := testkit.MustGetFreePort(t)
	flags := f.flags(t, testkit.FlagOptions{
		Mirrors:  []string{f.mirrorURL(t)},
		Port:     port,
		Host:     "127.0.0.1",
		AuthType: config.AuthTypeAPIKey,
		APIKeys:  []string{"secret-key"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.RunServe(ctx, app.DefaultRunParams(), flags, "test")
	}()
	defer func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("RunServe returned error: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("Server did not stop")
		}
	}()

	baseURL := "http://127.0.0.1:" + strconv.Itoa(port)
	waitForHealth(t, baseURL)

	// Without a key the SSE endpoint is rejected
	resp, err := http.Get(baseURL + "/sse")
	if err != nil {
		t.Fatalf("GET /sse failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without API key, got %d", resp.StatusCode)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "integration", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.SSEClientTransport{
		Endpoint:   baseURL + "/sse",
		HTTPClient: &http.Client{Transport: &apiKeyTransport{key: "secret-key", base: http.DefaultTransport}},
	}, nil)
	if err != nil {
		t.Fatalf("Client connect failed: %v", err)
	}
	defer func() { _ = session.Close() }()

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools.Tools) != 5 {
		t.Errorf("Expected 5 tools, got %d", len(tools.Tools))
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "ngram_frequency",
		Arguments: map[string]any{"pattern": "whale", "bucket": "year"},
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	text := extractTextContent(res)
	if res.IsError {
		t.Fatalf("Tool returned error: %s", text)
	}
	for _, want := range []string{"1818: ", "1851: ", "total occurrences: 5"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in tool output:\n%s", want, text)
		}
	}

	res, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "show_matches",
		Arguments: map[string]any{"book_id": "2701", "pattern": "whale", "context": 5},
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if text := extractTextContent(res); !strings.Contains(text, "Moby Dick by Herman Melville (1851): 3 occurrences") {
		t.Errorf("Unexpected matches output:\n%s", text)
	}
}

func extractTextContent(result *mcp.CallToolResult) string {
	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
