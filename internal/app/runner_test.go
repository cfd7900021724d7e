package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/ngram-viewer/internal/config"
	"github.com/spf13/pflag"
)

const testDataset = `{"books": [
	{"id": "a", "title": "Whales", "author": "Ishmael", "year": 1851, "text": "Call me whale. The whale swam."},
	{"id": "b", "title": "Ships", "author": "Ahab", "year": 1999, "text": "No whale here, only a ship."},
	{"id": "c", "title": "Ancient", "author": "Old", "year": 1200, "text": "A whale of a tale."}
]}`

// noopValidate is a no-op validation function for tests
func noopValidate(*config.Settings) error {
	return nil
}

func writeDataset(t *testing.T, dataset string) (path, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	path = filepath.Join(dir, "books.json")
	if err := os.WriteFile(path, []byte(dataset), 0644); err != nil {
		t.Fatal(err)
	}
	return path, filepath.Join(dir, "cache")
}

func testSettings(t *testing.T, dataset string) *config.Settings {
	t.Helper()
	path, dataDir := writeDataset(t, dataset)
	return &config.Settings{
		LogLevel: "error",
		Corpus: config.CorpusSettings{
			Dataset:   path,
			DataDir:   dataDir,
			Normalize: true,
			Fetch: config.FetchSettings{
				Timeout:     time.Second,
				RateLimit:   100,
				MaxParallel: 2,
				LockTimeout: time.Second,
				Mirrors:     config.DefaultMirrors,
			},
		},
		Search: config.SearchSettings{
			Algorithm: "kmp",
			Bucket:    "decade",
			MinYear:   1500,
			MaxYear:   2100,
			Workers:   2,
		},
		Chart:     config.ChartSettings{Width: 10},
		Transport: config.TransportStdio,
		Auth:      config.AuthSettings{Type: config.AuthTypeNone},
	}
}

func testParams(settings *config.Settings, out *bytes.Buffer) RunParams {
	params := DefaultRunParams()
	params.LoadSettings = func(*pflag.FlagSet) (*config.Settings, error) {
		return settings, nil
	}
	params.Out = out
	return params
}

func TestRunWithDeps_ErrorCases(t *testing.T) {
	tests := []struct {
		name           string
		params         RunParams
		wantErrContain string
	}{
		{
			name: "LoadSettings error",
			params: RunParams{
				LoadSettings: func(*pflag.FlagSet) (*config.Settings, error) {
					return nil, errors.New("settings error")
				},
				ValidSettings: noopValidate,
			},
			wantErrContain: "failed to load settings",
		},
		{
			name: "ValidSettings error",
			params: RunParams{
				LoadSettings: func(*pflag.FlagSet) (*config.Settings, error) {
					return &config.Settings{Transport: "sse"}, nil
				},
				ValidSettings: func(*config.Settings) error {
					return errors.New("validation error")
				},
			},
			wantErrContain: "invalid configuration",
		},
		{
			name: "CreateServer error",
			params: RunParams{
				LoadSettings: func(*pflag.FlagSet) (*config.Settings, error) {
					return &config.Settings{Transport: "sse"}, nil
				},
				ValidSettings: noopValidate,
				CreateServer: func(context.Context, *config.Settings, string) (*mcp.Server, func(), error) {
					return nil, nil, errors.New("create server error")
				},
			},
			wantErrContain: "create server error",
		},
		{
			name: "StartSSEServer error",
			params: RunParams{
				LoadSettings: func(*pflag.FlagSet) (*config.Settings, error) {
					return &config.Settings{Transport: "sse"}, nil
				},
				ValidSettings: noopValidate,
				CreateServer: func(context.Context, *config.Settings, string) (*mcp.Server, func(), error) {
					return nil, nil, nil
				},
				StartSSEServer: func(context.Context, *mcp.Server, *config.Settings) error {
					return errors.New("sse start error")
				},
			},
			wantErrContain: "sse start error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RunServe(context.Background(), tt.params, nil, "test")
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErrContain)
			}
			if !strings.Contains(err.Error(), tt.wantErrContain) {
				t.Errorf("Expected error containing %q, got %q", tt.wantErrContain, err.Error())
			}
		})
	}
}

func TestRunServe_Cleanup(t *testing.T) {
	cleanupCalled := false
	params := RunParams{
		LoadSettings: func(*pflag.FlagSet) (*config.Settings, error) {
			return &config.Settings{Transport: "sse"}, nil
		},
		ValidSettings: noopValidate,
		CreateServer: func(context.Context, *config.Settings, string) (*mcp.Server, func(), error) {
			return nil, func() { cleanupCalled = true }, nil
		},
		StartSSEServer: func(context.Context, *mcp.Server, *config.Settings) error {
			return errors.New("intentional error to trigger cleanup")
		},
	}

	_ = RunServe(context.Background(), params, nil, "test")

	if !cleanupCalled {
		t.Error("Cleanup was not called")
	}
}

func TestDefaultRunParams(t *testing.T) {
	params := DefaultRunParams()

	if params.LoadSettings == nil {
		t.Error("LoadSettings is nil")
	}
	if params.ValidSettings == nil {
		t.Error("ValidSettings is nil")
	}
	if params.OpenCorpus == nil {
		t.Error("OpenCorpus is nil")
	}
	if params.ClearCache == nil {
		t.Error("ClearCache is nil")
	}
	if params.StartSSEServer == nil {
		t.Error("StartSSEServer is nil")
	}
	if params.CreateServer == nil {
		t.Error("CreateServer is nil")
	}
	if params.Out != os.Stdout {
		t.Error("Out should default to stdout")
	}
}

func TestRunServe_StdioWithCustomTransport(t *testing.T) {
	transportUsed := false
	customTransport := &mockTransport{
		connectCalled: &transportUsed,
	}

	params := RunParams{
		LoadSettings: func(*pflag.FlagSet) (*config.Settings, error) {
			return &config.Settings{Transport: "stdio"}, nil
		},
		ValidSettings: noopValidate,
		CreateServer: func(context.Context, *config.Settings, string) (*mcp.Server, func(), error) {
			impl := &mcp.Implementation{Name: "test", Version: "1.0"}
			server := mcp.NewServer(impl, nil)
			return server, nil, nil
		},
		CustomIOTransport: customTransport,
	}

	// Use a cancelled context to avoid hanging
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = RunServe(ctx, params, nil, "test")

	if !transportUsed {
		t.Error("Custom transport Connect was not called")
	}
}

func TestCreateMCPServer(t *testing.T) {
	settings := testSettings(t, testDataset)

	server, cleanup, err := CreateMCPServer(context.Background(), settings, "1.2.3")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if server == nil {
		t.Error("Expected server to be created")
	}
	if cleanup == nil {
		t.Fatal("Expected a cleanup function")
	}
	cleanup()
}

func TestCreateMCPServer_InvalidAlgorithm(t *testing.T) {
	settings := testSettings(t, testDataset)
	settings.Search.Algorithm = "regex"

	if _, _, err := CreateMCPServer(context.Background(), settings, "1.2.3"); err == nil {
		t.Error("Expected error for an unknown algorithm")
	}
}

func TestRunSearch(t *testing.T) {
	var out bytes.Buffer
	params := testParams(testSettings(t, testDataset), &out)

	if err := RunSearch(context.Background(), params, nil, "Whale"); err != nil {
		t.Fatalf("RunSearch failed: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"Ngram results for 'Whale':",
		"1850s: " + strings.Repeat("█", 10) + " 2",
		"1990s: " + strings.Repeat("█", 5) + strings.Repeat(" ", 5) + " 1",
		"3 occurrences in 2 documents (KMP,",
		"1 document(s) skipped: publication year outside [1500, 2100]",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output:\n%s", want, text)
		}
	}
}

func TestRunSearch_PerMillionByYear(t *testing.T) {
	var out bytes.Buffer
	settings := testSettings(t, testDataset)
	settings.Search.Bucket = "year"
	settings.Search.PerMillion = true
	settings.Search.Algorithm = "boyer-moore"

	if err := RunSearch(context.Background(), testParams(settings, &out), nil, "whale"); err != nil {
		t.Fatalf("RunSearch failed: %v", err)
	}

	text := out.String()
	// 2 of 6 words and 1 of 6 words
	for _, want := range []string{"1851: ", "333333", "1999: ", "166667", "per million words", "(Boyer-Moore,"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output:\n%s", want, text)
		}
	}
}

func TestRunSearch_EmptyPattern(t *testing.T) {
	var out bytes.Buffer
	err := RunSearch(context.Background(), testParams(testSettings(t, testDataset), &out), nil, "...")
	if err == nil || !strings.Contains(err.Error(), "pattern cannot be empty") {
		t.Errorf("Expected empty pattern error, got %v", err)
	}
}

func TestRunSearch_OpenCorpusError(t *testing.T) {
	var out bytes.Buffer
	params := testParams(testSettings(t, testDataset), &out)
	params.OpenCorpus = func(context.Context, *config.CorpusSettings) (Corpus, error) {
		return nil, errors.New("corpus unavailable")
	}

	err := RunSearch(context.Background(), params, nil, "whale")
	if err == nil || !strings.Contains(err.Error(), "corpus unavailable") {
		t.Errorf("Expected corpus error, got %v", err)
	}
}

func TestRunCompare(t *testing.T) {
	var out bytes.Buffer
	if err := RunCompare(context.Background(), testParams(testSettings(t, testDataset), &out), nil, "whale"); err != nil {
		t.Fatalf("RunCompare failed: %v", err)
	}

	text := out.String()
	for _, want := range []string{"Pattern length: 5 characters", "KMP:", "Boyer-Moore:", "All algorithms found 3 occurrences"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output:\n%s", want, text)
		}
	}
}

func TestRunMatches(t *testing.T) {
	var out bytes.Buffer
	flags := pflag.NewFlagSet("matches", pflag.ContinueOnError)
	RegisterMatchesFlags(flags)
	if err := flags.Parse([]string{"--context", "8", "--limit", "1"}); err != nil {
		t.Fatal(err)
	}

	if err := RunMatches(context.Background(), testParams(testSettings(t, testDataset), &out), flags, "a", "whale"); err != nil {
		t.Fatalf("RunMatches failed: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"Whales by Ishmael (1851): 2 occurrences of 'whale'",
		"8  ...call me [whale] the wha...",
		"... and 1 more",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output:\n%s", want, text)
		}
	}
}

func TestRunMatches_UnknownBook(t *testing.T) {
	var out bytes.Buffer
	err := RunMatches(context.Background(), testParams(testSettings(t, testDataset), &out), nil, "zzz", "whale")
	if err == nil || !strings.Contains(err.Error(), "book not found") {
		t.Errorf("Expected book not found, got %v", err)
	}
}

func TestRunInfo(t *testing.T) {
	var out bytes.Buffer
	if err := RunInfo(context.Background(), testParams(testSettings(t, testDataset), &out), nil); err != nil {
		t.Fatalf("RunInfo failed: %v", err)
	}

	text := out.String()
	for _, want := range []string{"Books: 3 listed, 3 with text", "Words: 17", "1850s: 1 book", "1990s: 1 book", "Total: 3 books"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output:\n%s", want, text)
		}
	}
}

func TestRunBooks(t *testing.T) {
	var out bytes.Buffer
	flags := pflag.NewFlagSet("books", pflag.ContinueOnError)
	RegisterBooksFlags(flags)

	if err := RunBooks(context.Background(), testParams(testSettings(t, testDataset), &out), flags, "ahab"); err != nil {
		t.Fatalf("RunBooks failed: %v", err)
	}
	if !strings.Contains(out.String(), "Ships by Ahab") || strings.Contains(out.String(), "Whales") {
		t.Errorf("Unexpected output:\n%s", out.String())
	}
}

func TestRunFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/84.txt" {
			_, _ = w.Write([]byte("It was on a dreary night of November."))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	tests := []struct {
		name    string
		dataset string
		wantErr bool
		want    string
	}{
		{
			name:    "all downloaded",
			dataset: `{"books": [{"id": 84, "title": "Frankenstein", "author": "Mary Shelley", "year": 1818}]}`,
			want:    "Books: 1 listed, 1 with text",
		},
		{
			name: "missing book",
			dataset: `{"books": [
				{"id": 84, "title": "Frankenstein", "author": "Mary Shelley", "year": 1818},
				{"id": 999, "title": "Lost", "year": 1900}
			]}`,
			wantErr: true,
			want:    "Failed: 999:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			settings := testSettings(t, tt.dataset)
			// Fetching is off in the loaded settings; the command turns it on
			settings.Corpus.Fetch.Enabled = false
			settings.Corpus.Fetch.Mirrors = []string{srv.URL + "/{id}.txt"}

			err := RunFetch(context.Background(), testParams(settings, &out), nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RunFetch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("Expected %q in output:\n%s", tt.want, out.String())
			}
			if _, err := os.Stat(filepath.Join(settings.Corpus.DataDir, "books", "84.txt")); err != nil {
				t.Errorf("Expected the book to be cached: %v", err)
			}
		})
	}
}

func TestRunClearCache(t *testing.T) {
	var out bytes.Buffer
	settings := testSettings(t, testDataset)
	params := testParams(settings, &out)

	// Build the catalog first
	if err := RunInfo(context.Background(), params, nil); err != nil {
		t.Fatalf("RunInfo failed: %v", err)
	}
	out.Reset()

	if err := RunClearCache(context.Background(), params, nil); err != nil {
		t.Fatalf("RunClearCache failed: %v", err)
	}
	if !strings.Contains(out.String(), "Cache cleared: "+settings.Corpus.DataDir) {
		t.Errorf("Unexpected output: %s", out.String())
	}
	if _, err := os.Stat(filepath.Join(settings.Corpus.DataDir, "catalog.bleve")); !os.IsNotExist(err) {
		t.Errorf("Expected catalog to be removed, got %v", err)
	}
}

func TestRunClearCache_Error(t *testing.T) {
	var out bytes.Buffer
	params := testParams(testSettings(t, testDataset), &out)
	params.ClearCache = func(*config.CorpusSettings) error {
		return errors.New("cache is locked by another process")
	}

	if err := RunClearCache(context.Background(), params, nil); err == nil {
		t.Error("Expected error")
	}
}

// mockTransport implements mcp.Transport for testing
type mockTransport struct {
	connectCalled *bool
}

func (m *mockTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	if m.connectCalled != nil {
		*m.connectCalled = true
	}
	return nil, errors.New("mock transport - no real connection")
}
