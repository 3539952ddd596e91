package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/imgpress/internal/ingress"
)

const shutdownTimeout = 10 * time.Second

var (
	serveAddr     string
	serveTemplate string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the conversion API over HTTP",
	Long: `Serves multipart uploads:

  POST /convert   returns the encoded bytes with accounting headers
  POST /upload    publishes the asset and returns its URL as JSON
  GET  /healthz   liveness probe`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVarP(&serveTemplate, "template", "t", "", "default metadata template")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(appOptions{template: serveTemplate})
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           ingress.New(a.pipeline, a.cfg.Encoder.MaxInputBytes, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
	}

	ctx := cmd.Context()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "env", a.env.Name)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
