// Package widget holds the upload widget: the per-visitor state machine that
// takes a leaf image, shows its preview and asks the prediction service for a
// label.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kdimtricp/leafcheck/internal/predict"
	"github.com/kdimtricp/leafcheck/internal/storage"
)

const DefaultPreviewPrefix = "/previews/"

var ErrClosed = errors.New("widget closed")

type Config struct {
	Storage   storage.Storage
	Predictor predict.Predictor
	// PreviewPrefix is joined with the stored file name to form PreviewURL.
	PreviewPrefix string
	// Timeout bounds a single prediction request. Zero means no limit.
	Timeout time.Duration
	// OnResult runs after a prediction has been applied, outside the lock.
	OnResult func(FileInfo, predict.Prediction)
}

type Widget struct {
	storage       storage.Storage
	predictor     predict.Predictor
	previewPrefix string
	timeout       time.Duration
	onResult      func(FileInfo, predict.Prediction)

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	generation uint64
	cancelReq  context.CancelFunc
	closed     bool
}

func New(cfg Config) *Widget {
	if cfg.PreviewPrefix == "" {
		cfg.PreviewPrefix = DefaultPreviewPrefix
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Widget{
		storage:       cfg.Storage,
		predictor:     cfg.Predictor,
		previewPrefix: cfg.PreviewPrefix,
		timeout:       cfg.Timeout,
		onResult:      cfg.OnResult,
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.clone()
}

// PreviewFile reports the stored name behind the live preview reference.
func (w *Widget) PreviewFile() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.SelectedFile == nil {
		return "", false
	}
	return w.state.SelectedFile.StoredName, true
}

func (w *Widget) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Select keeps the first candidate and drops the rest. An empty list leaves
// the widget untouched. Any earlier selection is released and any pending
// request is superseded.
func (w *Widget) Select(files []File) error {
	if len(files) == 0 {
		return nil
	}
	file := files[0]
	if file.Open == nil {
		return fmt.Errorf("file %s has no content", file.Name)
	}

	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", file.Name, err)
	}
	defer rc.Close()

	stored, err := w.storage.SaveFile(rc, storage.FileInfo{
		Filename:    file.Name,
		ContentType: file.ContentType,
		Size:        file.Size,
	})
	if err != nil {
		return fmt.Errorf("storing %s: %w", file.Name, err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.revoke(stored)
		return ErrClosed
	}
	previous := w.resetLocked()
	w.state = State{
		SelectedFile: &FileInfo{
			Name:        file.Name,
			ContentType: file.ContentType,
			Size:        file.Size,
			StoredName:  stored,
		},
		PreviewURL:    w.previewPrefix + stored,
		ImageUploaded: true,
	}
	w.mu.Unlock()

	w.revoke(previous)
	log.Printf("[WIDGET] Selected %s (%d bytes) as %s", file.Name, file.Size, stored)
	return nil
}

// Submit sends the selected file to the predictor in the background. It
// returns nil when nothing is selected; otherwise the returned channel is
// closed once the request has settled.
func (w *Widget) Submit() <-chan struct{} {
	w.mu.Lock()
	if w.closed || w.state.SelectedFile == nil {
		w.mu.Unlock()
		return nil
	}

	w.generation++
	if w.cancelReq != nil {
		w.cancelReq()
	}
	ctx, cancel := w.requestContext()
	w.cancelReq = cancel
	gen := w.generation
	file := *w.state.SelectedFile

	w.state.Prediction = nil
	w.state.IsLoading = true
	w.mu.Unlock()

	done := make(chan struct{})
	go w.run(ctx, cancel, gen, file, done)
	return done
}

// Clear returns the widget to its empty state, releasing the preview and
// abandoning any pending request.
func (w *Widget) Clear() {
	w.mu.Lock()
	stored := w.resetLocked()
	w.mu.Unlock()

	w.revoke(stored)
}

// Close tears the widget down. Responses that arrive afterwards are dropped.
func (w *Widget) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	stored := w.resetLocked()
	w.mu.Unlock()

	w.cancel()
	w.revoke(stored)
}

func (w *Widget) requestContext() (context.Context, context.CancelFunc) {
	if w.timeout > 0 {
		return context.WithTimeout(w.ctx, w.timeout)
	}
	return context.WithCancel(w.ctx)
}

func (w *Widget) run(ctx context.Context, cancel context.CancelFunc, gen uint64, file FileInfo, done chan struct{}) {
	defer close(done)
	defer cancel()

	prediction, err := w.predict(ctx, file)

	w.mu.Lock()
	if w.closed || gen != w.generation {
		w.mu.Unlock()
		log.Printf("[WIDGET] Dropping stale response for %s", file.Name)
		return
	}
	w.state.IsLoading = false
	w.cancelReq = nil
	if err != nil {
		w.mu.Unlock()
		log.Printf("[WIDGET] Error uploading file %s: %v", file.Name, err)
		return
	}
	w.state.Prediction = prediction
	hook := w.onResult
	w.mu.Unlock()

	log.Printf("[WIDGET] %s classified as %s (%s)", file.Name, prediction.Label, prediction.Percent())
	if hook != nil {
		hook(file, *prediction)
	}
}

func (w *Widget) predict(ctx context.Context, file FileInfo) (*predict.Prediction, error) {
	f, err := w.storage.OpenFile(file.StoredName)
	if err != nil {
		return nil, fmt.Errorf("opening stored file: %w", err)
	}
	defer f.Close()

	return w.predictor.Predict(ctx, file.Name, file.ContentType, f)
}

// resetLocked empties the state, invalidates the pending request and hands
// back the stored name that still needs revoking.
func (w *Widget) resetLocked() string {
	w.generation++
	if w.cancelReq != nil {
		w.cancelReq()
		w.cancelReq = nil
	}

	var stored string
	if w.state.SelectedFile != nil {
		stored = w.state.SelectedFile.StoredName
	}
	w.state = State{}
	return stored
}

func (w *Widget) revoke(stored string) {
	if stored == "" {
		return
	}
	if err := w.storage.DeleteFile(stored); err != nil {
		log.Printf("[WIDGET] Failed to release preview %s: %v", stored, err)
	}
}
