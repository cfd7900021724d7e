package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/ngram-viewer/internal/analysis"
)

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string

	// Analyzer answers the tool calls. Without one the server exposes no tools.
	Analyzer *analysis.Analyzer

	// Defaults fill in optional tool arguments
	Defaults analysis.ToolDefaults
}

// CreateServer creates and configures the MCP server
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.Analyzer != nil {
		analysis.RegisterTools(s, cfg.Analyzer, cfg.Defaults)
	}

	return s
}
