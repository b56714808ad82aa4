package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kdimtricp/leafcheck/internal/api"
	"github.com/kdimtricp/leafcheck/internal/config"
	"github.com/kdimtricp/leafcheck/internal/database"
	"github.com/kdimtricp/leafcheck/internal/predict"
	"github.com/kdimtricp/leafcheck/internal/session"
	"github.com/kdimtricp/leafcheck/internal/storage"
)

const sweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		log.Fatal(err)
	}
}

// run serves until ctx is done or the listener fails. Every resource it opens
// is released before it returns.
func run(ctx context.Context, cfg *config.Config) error {
	localStorage, err := storage.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	var history *database.PredictionRepository
	if cfg.HistoryEnabled {
		db, err := database.NewDB(database.Config{SQLitePath: cfg.DBPath})
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		log.Printf("Running database migrations from %s", cfg.MigrationsPath)
		if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		history = database.NewPredictionRepository(db)
	}

	// The widget bounds each request with PredictTimeout, so the HTTP client
	// itself is left unbounded.
	predictor := predict.NewClient(cfg.PredictURL, 0)

	factory := api.WidgetFactory{
		Storage:   localStorage,
		Predictor: predictor,
		History:   history,
		Timeout:   cfg.PredictTimeout,
	}
	sessions := session.NewManager(factory.New, cfg.SessionIdleTimeout)
	defer sessions.Close()

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go sessions.Run(sweepCtx, sweepInterval)

	app := &api.App{
		Sessions:      sessions,
		Storage:       localStorage,
		History:       history,
		MaxUploadSize: cfg.MaxUploadSize,
		ThumbnailSize: cfg.ThumbnailSize,
		TemplateDir:   cfg.TemplateDir,
		StaticDir:     cfg.StaticDir,
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Server starting on port %s", cfg.Port)
	log.Printf("Prediction service: %s (timeout %s)", predictor.Endpoint(), cfg.PredictTimeout)
	log.Printf("Upload directory: %s", cfg.UploadDir)
	if cfg.HistoryEnabled {
		log.Printf("Database path: %s", cfg.DBPath)
	} else {
		log.Printf("Prediction history disabled")
	}
	log.Printf("Max upload size: %d bytes", cfg.MaxUploadSize)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Printf("Server error: %v", serveErr)
		}
	case <-ctx.Done():
	}

	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	return serveErr
}
