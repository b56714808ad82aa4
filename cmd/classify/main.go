package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/kdimtricp/leafcheck/internal/config"
	"github.com/kdimtricp/leafcheck/internal/database"
	"github.com/kdimtricp/leafcheck/internal/models"
	"github.com/kdimtricp/leafcheck/internal/predict"
)

func main() {
	var (
		predictURL = flag.String("url", getEnv("PREDICT_URL", config.DefaultPredictURL), "Prediction endpoint")
		timeout    = flag.Duration("timeout", config.DefaultPredictTimeout, "Per-image request timeout")
		record     = flag.Bool("record", false, "Store results in the prediction history")
		dbPath     = flag.String("db", getEnv("DB_PATH", config.DefaultDBPath), "Path to the sqlite database")
		migrations = flag.String("migrations", getEnv("MIGRATIONS_PATH", config.DefaultMigrationsPath), "Path to migrations directory")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] image...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var db *database.DB
	var history *database.PredictionRepository
	if *record {
		var err error
		db, err = openHistory(*dbPath, *migrations)
		if err != nil {
			log.Fatal(err)
		}
		history = database.NewPredictionRepository(db)
	}

	failed := classifyAll(*predictURL, history, flag.Args(), *timeout)
	if db != nil {
		db.Close()
	}

	if failed > 0 {
		fmt.Printf("%d of %d image(s) failed\n", failed, flag.NArg())
		os.Exit(1)
	}
}

func classifyAll(predictURL string, history *database.PredictionRepository, paths []string, timeout time.Duration) int {
	client := predict.NewClient(predictURL, 0)
	fmt.Printf("Classifying %d image(s) with %s\n", len(paths), client.Endpoint())

	failed := 0
	for _, path := range paths {
		if err := classify(client, history, path, timeout); err != nil {
			log.Printf("%s: %v", path, err)
			failed++
		}
	}
	return failed
}

// openHistory opens the history database, creating its tables when needed.
func openHistory(dbPath, migrationsPath string) (*database.DB, error) {
	db, err := database.NewDB(database.Config{SQLitePath: dbPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.RunMigrations(migrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func classify(client *predict.Client, history *database.PredictionRepository, path string, timeout time.Duration) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	name := filepath.Base(path)
	p, err := client.Predict(ctx, name, contentType, f)
	if err != nil {
		return err
	}

	fmt.Printf("%-40s %-30s %s\n", name, p.Label, p.Percent())

	if history != nil {
		record := models.NewPrediction("cli", name, contentType, info.Size(), p.Label, p.Confidence)
		if err := history.Insert(ctx, record); err != nil {
			return fmt.Errorf("recording result: %w", err)
		}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
