package api

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/kdimtricp/leafcheck/internal/database"
	"github.com/kdimtricp/leafcheck/internal/models"
	"github.com/kdimtricp/leafcheck/internal/predict"
	"github.com/kdimtricp/leafcheck/internal/session"
	"github.com/kdimtricp/leafcheck/internal/storage"
	"github.com/kdimtricp/leafcheck/internal/widget"
)

const (
	pageTitle    = "Uncovering the health of tomato plants: nurturing resilience from root to stem"
	historyLimit = 50
)

type App struct {
	Sessions      *session.Manager
	Storage       storage.Storage
	History       *database.PredictionRepository
	MaxUploadSize int64
	ThumbnailSize int
	TemplateDir   string
	StaticDir     string
}

// WidgetFactory builds the widget behind each new session.
type WidgetFactory struct {
	Storage   storage.Storage
	Predictor predict.Predictor
	History   *database.PredictionRepository
	Timeout   time.Duration
}

func (f WidgetFactory) New(sessionID string) *widget.Widget {
	cfg := widget.Config{
		Storage:       f.Storage,
		Predictor:     f.Predictor,
		PreviewPrefix: widget.DefaultPreviewPrefix,
		Timeout:       f.Timeout,
	}

	if f.History != nil {
		history := f.History
		cfg.OnResult = func(file widget.FileInfo, p predict.Prediction) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			record := models.NewPrediction(sessionID, file.Name, file.ContentType, file.Size, p.Label, p.Confidence)
			if err := history.Insert(ctx, record); err != nil {
				log.Printf("[HISTORY] Failed to record prediction for %s: %v", file.Name, err)
			}
		}
	}

	return widget.New(cfg)
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func (app *App) HomeHandler(w http.ResponseWriter, r *http.Request) {
	_, wd := app.widgetFor(w, r)

	data := struct {
		Title  string
		Widget widgetView
	}{
		Title:  pageTitle,
		Widget: newWidgetView(wd.State()),
	}

	app.render(w, "base", data, "base.html", "index.html", filepath.Join("partials", "widget.html"))
}

func (app *App) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Title       string
		Enabled     bool
		Predictions []historyRow
	}{
		Title:   pageTitle,
		Enabled: app.History != nil,
	}

	if app.History != nil {
		predictions, err := app.History.ListRecent(r.Context(), historyLimit)
		if err != nil {
			log.Printf("[HISTORY] Error loading predictions: %v", err)
			http.Error(w, "Error loading history", http.StatusInternalServerError)
			return
		}
		for _, p := range predictions {
			data.Predictions = append(data.Predictions, historyRow{
				Filename:   p.Filename,
				Label:      p.Label,
				Confidence: predict.FormatConfidence(p.Confidence),
				Size:       formatFileSize(p.Size),
				CreatedAt:  p.CreatedAt.Format("Jan 2, 2006 15:04"),
			})
		}
	}

	app.render(w, "base", data, "base.html", "history.html")
}

type historyRow struct {
	Filename   string
	Label      string
	Confidence string
	Size       string
	CreatedAt  string
}

// render executes name from the given template files into a buffer first so
// a failing template still yields a clean 500.
func (app *App) render(w http.ResponseWriter, name string, data any, files ...string) {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.Join(app.TemplateDir, f)
	}

	tmpl, err := template.ParseFiles(paths...)
	if err != nil {
		log.Printf("Error loading templates %v: %v", files, err)
		http.Error(w, "Error loading template", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		log.Printf("Error rendering %s: %v", name, err)
		http.Error(w, "Error rendering template", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func formatFileSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.2f GB", float64(size)/float64(GB))
	case size >= MB:
		return fmt.Sprintf("%.2f MB", float64(size)/float64(MB))
	case size >= KB:
		return fmt.Sprintf("%.2f KB", float64(size)/float64(KB))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
