package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/akila/media-converter/archive"
	"github.com/akila/media-converter/converters"
	"github.com/akila/media-converter/handlers"
	"github.com/akila/media-converter/shield"
	"github.com/akila/media-converter/staging"
	"github.com/akila/media-converter/tts"
	"github.com/akila/media-converter/workers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := staging.New(cfg)
		if err != nil {
			return err
		}
		tools := converters.NewToolbox(cfg)
		rembg, err := converters.NewBackgroundRemover(cfg, tools)
		if err != nil {
			return err
		}
		slog.Info("tools resolved",
			"soffice", tools.SofficePath,
			"pdftoppm", tools.PdftoppmPath,
			"ffmpeg", tools.FFmpegPath,
			"rembg", rembg.Method(),
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		mirror, err := archive.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer mirror.Close()

		slog.Info("starting engines", "workers", cfg.Workers)
		mgr := workers.NewEngineManager(cfg.Workers)
		mgr.Start(ctx)

		var limiter *shield.RateLimiter
		if cfg.RateLimitRPS > 0 {
			limiter = shield.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
			limiter.StartGC(ctx.Done(), time.Minute)
		}

		speech := tts.NewClient()
		h := handlers.NewConversionHandler(cfg, store, mgr, tools, speech, rembg, mirror)

		server := &http.Server{
			Addr:              cfg.Addr,
			Handler:           handlers.NewRouter(h, limiter),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan
			slog.Info("shutting down server")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("server shutdown", "error", err)
			}
			cancel()
		}()

		slog.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		mgr.Wait()
		archive.Wait()
		slog.Info("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
