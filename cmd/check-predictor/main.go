package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"
	"os"

	"github.com/kdimtricp/leafcheck/internal/config"
	"github.com/kdimtricp/leafcheck/internal/database"
	"github.com/kdimtricp/leafcheck/internal/predict"
	"github.com/kdimtricp/leafcheck/internal/preview"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	fmt.Println("🔍 Checking Leaf Prediction Setup")
	fmt.Println("=================================")
	fmt.Printf("Prediction service: %s\n", cfg.PredictURL)
	fmt.Printf("Request timeout:    %s\n", cfg.PredictTimeout)
	fmt.Printf("Upload directory:   %s\n", cfg.UploadDir)
	fmt.Println()

	ok := probe(cfg)

	if cfg.HistoryEnabled {
		if err := showHistory(cfg.DBPath); err != nil {
			fmt.Printf("❌ History: %v\n", err)
			ok = false
		}
	} else {
		fmt.Println("History: disabled")
	}

	if !ok {
		os.Exit(1)
	}
}

// probe sends a small generated leaf-green image to the prediction service.
func probe(cfg *config.Config) bool {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 34, G: 139, B: 34, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := preview.Encode(&buf, img); err != nil {
		fmt.Printf("❌ Could not build probe image: %v\n", err)
		return false
	}

	ctx := context.Background()
	if cfg.PredictTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.PredictTimeout)
		defer cancel()
	}

	client := predict.NewClient(cfg.PredictURL, 0)
	p, err := client.Predict(ctx, "probe.jpg", "image/jpeg", &buf)
	if err != nil {
		var statusErr *predict.StatusError
		switch {
		case errors.As(err, &statusErr):
			fmt.Printf("❌ Prediction service answered %d: %s\n", statusErr.StatusCode, statusErr.Body)
		case errors.Is(err, predict.ErrMalformedResponse):
			fmt.Printf("❌ Prediction service returned an unexpected payload: %v\n", err)
		default:
			fmt.Printf("❌ Prediction service unreachable: %v\n", err)
		}
		return false
	}

	fmt.Printf("✅ Prediction service is working: %s (%s)\n\n", p.Label, p.Percent())
	return true
}

func showHistory(dbPath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database %s not found, start the server or run migrate first", dbPath)
	}

	db, err := database.NewDB(database.Config{SQLitePath: dbPath})
	if err != nil {
		return err
	}
	defer db.Close()

	repo := database.NewPredictionRepository(db)
	ctx := context.Background()

	count, err := repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("predictions table missing: %w", err)
	}
	fmt.Printf("📊 Recorded predictions: %d\n", count)

	recent, err := repo.ListRecent(ctx, 5)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		fmt.Println("No predictions recorded yet. Upload a leaf to test!")
		return nil
	}

	fmt.Println("---------------------")
	for _, p := range recent {
		fmt.Printf("%s  %-30s %-25s %s\n",
			p.CreatedAt.Local().Format("2006-01-02 15:04"), p.Filename, p.Label, predict.FormatConfidence(p.Confidence))
	}
	return nil
}
