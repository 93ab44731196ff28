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

	"github.com/shouni/gemini-fitting-room/pkg/config"
	"github.com/shouni/gemini-fitting-room/pkg/fittingroom"
	"github.com/shouni/gemini-fitting-room/pkg/generator"
	"github.com/shouni/gemini-fitting-room/pkg/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("サーバーを終了します", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	slog.Info("設定を読み込みました", "config", cfg)

	core, err := generator.NewGeminiImageCore(generator.NewGenAIClientFactory(), cfg.GeminiModel)
	if err != nil {
		return err
	}
	compositor, err := generator.NewGeminiGenerator(core)
	if err != nil {
		return err
	}

	var intakeOpts []fittingroom.IntakeOption
	if cfg.CompressUploads {
		intakeOpts = append(intakeOpts, fittingroom.WithCompression(cfg.CompressionQuality))
	}
	intake := fittingroom.NewIntake(cfg.MaxUploadBytes, intakeOpts...)

	store := fittingroom.NewStore(server.SessionFactory(compositor, cfg.GenerationTimeout), cfg.SessionTTL)
	defer store.Close()

	srv, err := server.New(store, intake)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go store.Run(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("サーバーを起動します", "addr", httpServer.Addr, "model", core.Model())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("シャットダウンしています")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
