package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sha1n/ngram-viewer/internal/app"
	"github.com/spf13/cobra"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "ngram-viewer"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params := app.DefaultRunParams()

	rootCmd := &cobra.Command{
		Use:   programName,
		Short: "Ngram viewer for a corpus of dated books",
		Long: "Counts how often a word or phrase appears in a corpus of books and plots the\n" +
			"counts by publication year or decade, using KMP or Boyer-Moore string matching.",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate(`{{.Version}}
`)
	app.RegisterGlobalFlags(rootCmd.PersistentFlags())

	searchCmd := &cobra.Command{
		Use:   "search <pattern>",
		Short: "Plot the frequency of a word or phrase over time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunSearch(ctx, params, cmd.Flags(), args[0])
		},
	}
	app.RegisterSearchFlags(searchCmd.Flags())
	app.RegisterChartFlags(searchCmd.Flags())

	compareCmd := &cobra.Command{
		Use:   "compare <pattern>",
		Short: "Compare the running time of the matching algorithms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunCompare(ctx, params, cmd.Flags(), args[0])
		},
	}
	app.RegisterSearchFlags(compareCmd.Flags())

	matchesCmd := &cobra.Command{
		Use:   "matches <book-id> <pattern>",
		Short: "Show each occurrence of a pattern in one book with context",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunMatches(ctx, params, cmd.Flags(), args[0], args[1])
		},
	}
	app.RegisterSearchFlags(matchesCmd.Flags())
	app.RegisterMatchesFlags(matchesCmd.Flags())
	app.RegisterChartFlags(matchesCmd.Flags())

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Describe the corpus and the number of books per decade",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunInfo(ctx, params, cmd.Flags())
		},
	}
	app.RegisterChartFlags(infoCmd.Flags())

	booksCmd := &cobra.Command{
		Use:   "books [query]",
		Short: "Search the book catalog by title, author or year",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return app.RunBooks(ctx, params, cmd.Flags(), query)
		},
	}
	app.RegisterBooksFlags(booksCmd.Flags())
	app.RegisterChartFlags(booksCmd.Flags())

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the texts of all dataset books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunFetch(ctx, params, cmd.Flags())
		},
	}

	clearCacheCmd := &cobra.Command{
		Use:   "clear-cache",
		Short: "Delete downloaded books and the catalog index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunClearCache(ctx, params, cmd.Flags())
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the analysis tools as an MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunServe(ctx, params, cmd.Flags(), version)
		},
	}
	app.RegisterServeFlags(serveCmd.Flags())
	app.RegisterSearchFlags(serveCmd.Flags())
	app.RegisterChartFlags(serveCmd.Flags())

	rootCmd.AddCommand(searchCmd, compareCmd, matchesCmd, infoCmd, booksCmd, fetchCmd, clearCacheCmd, serveCmd)
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}
