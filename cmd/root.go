package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	verbose    bool
	logJSON    bool
	configPath string
	envName    string

	logger = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "imgpress",
	Short: "Image asset pipeline with embedded metadata",
	Long: `imgpress converts uploaded rasters to WebP, embeds a resolved metadata
record (descriptive, rights, technical) into the output container, picks a
collision-free name in the object store, and reports compression statistics.

When the full-featured encoder is unavailable it degrades to a fallback
encoder that produces a visually equivalent file without metadata.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		logger = newLogger(os.Stderr)
		slog.SetDefault(logger)
	},
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "imgpress: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $IMGPRESS_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e", "", "environment: development, staging, production (default $IMGPRESS_ENV)")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"imgpress %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
}

func newLogger(w *os.File) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if logJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
