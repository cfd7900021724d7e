package app

import "github.com/spf13/pflag"

// RegisterGlobalFlags registers the corpus and logging flags shared by every command
func RegisterGlobalFlags(flags *pflag.FlagSet) {
	flags.StringP("log-level", "l", "", "Log level: debug, info, warn or error")
	flags.StringP("dataset", "d", "", "Path of the books dataset JSON file")
	flags.StringP("data-dir", "D", "", "Directory for downloaded books and the catalog index")
	flags.Bool("normalize", true, "Lowercase text and collapse punctuation before matching")
	flags.Bool("fetch", true, "Download missing book texts on startup")
	flags.Duration("fetch-timeout", 0, "Timeout of a single book download")
	flags.Float64("rate-limit", 0, "Maximum downloads started per second")
	flags.Int("max-parallel", 0, "Maximum concurrent downloads")
	flags.Duration("lock-timeout", 0, "How long to wait for another process updating the cache")
	flags.StringSlice("mirrors", nil, "Download URL templates with an {id} placeholder (comma-separated)")
}

// RegisterSearchFlags registers the flags of the query commands
func RegisterSearchFlags(flags *pflag.FlagSet) {
	flags.StringP("algorithm", "A", "", "Matching algorithm: kmp or boyer-moore")
	flags.StringP("bucket", "b", "", "Time bucket: year or decade")
	flags.Int("min-year", 0, "Earliest plausible publication year")
	flags.Int("max-year", 0, "Latest plausible publication year")
	flags.IntP("workers", "w", 0, "Documents scanned concurrently")
	flags.BoolP("per-million", "m", false, "Plot occurrences per million words instead of raw counts")
}

// RegisterChartFlags registers the output flags
func RegisterChartFlags(flags *pflag.FlagSet) {
	flags.IntP("width", "W", 0, "Bar width in characters (0 fits the terminal)")
	flags.Bool("color", true, "Colorize output")
}

// RegisterServeFlags registers the MCP server flags
func RegisterServeFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")
}

// RegisterMatchesFlags registers the flags of the matches command
func RegisterMatchesFlags(flags *pflag.FlagSet) {
	flags.IntP("context", "c", 40, "Bytes of context shown on each side of a match")
	flags.IntP("limit", "n", 20, "Maximum number of matches to show")
}

// RegisterBooksFlags registers the flags of the books command
func RegisterBooksFlags(flags *pflag.FlagSet) {
	flags.IntP("limit", "n", 20, "Maximum number of books to list")
}
