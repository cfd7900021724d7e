package config

import (
	"context"
	"log/slog"
	"strings"
)

// ParseLogLevel maps a configured level name to a slog.Level, defaulting to info.
func ParseLogLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.DebugContext(ctx, "Config: log_level", "value", s.LogLevel)
	logger.InfoContext(ctx, "Config: corpus.dataset", "value", s.Corpus.Dataset)
	logger.InfoContext(ctx, "Config: corpus.data_dir", "value", s.Corpus.DataDir)
	logger.InfoContext(ctx, "Config: corpus.fetch.enabled", "value", s.Corpus.Fetch.Enabled)
	if s.Corpus.Fetch.Enabled {
		logger.DebugContext(ctx, "Config: corpus.fetch.mirrors", "count", len(s.Corpus.Fetch.Mirrors))
		logger.DebugContext(ctx, "Config: corpus.fetch.max_parallel", "value", s.Corpus.Fetch.MaxParallel)
	}
	logger.InfoContext(ctx, "Config: search.algorithm", "value", s.Search.Algorithm)
	logger.InfoContext(ctx, "Config: search.bucket", "value", s.Search.Bucket)
	logger.DebugContext(ctx, "Config: search.years", "min", s.Search.MinYear, "max", s.Search.MaxYear)
}

// LogServer logs the settings that only matter to the serve command
func LogServer(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	if s.Transport == TransportSSE {
		logger.InfoContext(ctx, "Config: host", "value", s.Host)
		logger.InfoContext(ctx, "Config: port", "value", s.Port)
	}

	logger.InfoContext(ctx, "Config: auth.type", "value", s.Auth.Type)
	switch s.Auth.Type {
	case AuthTypeBasic:
		logger.InfoContext(ctx, "Config: auth.basic.username", "value", s.Auth.Basic.Username)
		logger.InfoContext(ctx, "Config: auth.basic.password", "value", "****")
	case AuthTypeAPIKey:
		logger.InfoContext(ctx, "Config: auth.api_keys", "count", len(s.Auth.APIKeys))
	}
}

// AuthSettingsLogValue returns a slog.Value for AuthSettings with masked data
func AuthSettingsLogValue(s AuthSettings) slog.Value {
	keys := make([]string, len(s.APIKeys))
	for i := range s.APIKeys {
		keys[i] = "****"
	}
	return slog.GroupValue(
		slog.String("type", s.Type),
		slog.String("username", s.Basic.Username),
		slog.String("password", "****"),
		slog.Any("api_keys", keys),
	)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("dataset", s.Corpus.Dataset),
		slog.String("data_dir", s.Corpus.DataDir),
		slog.String("algorithm", s.Search.Algorithm),
		slog.String("bucket", s.Search.Bucket),
		slog.String("transport", s.Transport),
		slog.Any("auth", AuthSettingsLogValue(s.Auth)),
	)
}
