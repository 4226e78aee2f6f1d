package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-scraper/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON HTTP API for uploading and running company lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initScraper(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		// Runs outlive requests but stop with the process.
		api := server.New(context.WithoutCancel(ctx), env.Runner, env.Store, server.Options{
			AllowedOrigins:     cfg.Server.AllowedOrigins,
			MaxUploadBytes:     int64(cfg.Server.MaxUploadMB) << 20,
			DefaultConcurrency: cfg.Run.Concurrency,
			ListSep:            cfg.Run.ListSep,
			RetainFinished:     time.Duration(cfg.Server.RetainMinutes) * time.Minute,
		})

		err = startServer(ctx, api.Handler(), resolvePort(servePort, cfg.Server.Port))

		zap.L().Info("stopping active runs")
		api.StopAll()
		api.Wait()
		return err
	},
}

// resolvePort prefers the flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx is done, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
