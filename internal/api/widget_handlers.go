package api

import (
	"errors"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kdimtricp/leafcheck/internal/preview"
	"github.com/kdimtricp/leafcheck/internal/storage"
	"github.com/kdimtricp/leafcheck/internal/widget"
)

const (
	sessionCookie = "leafcheck_session"
	fileField     = "file"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

type widgetView struct {
	Phase         string
	PreviewURL    string
	FileName      string
	Label         string
	Confidence    string
	ImageUploaded bool
	IsLoading     bool
	HasResult     bool
	ShowSend      bool
	Error         string
}

func newWidgetView(state widget.State) widgetView {
	view := widgetView{
		Phase:         state.Phase().String(),
		PreviewURL:    state.PreviewURL,
		ImageUploaded: state.ImageUploaded,
		IsLoading:     state.IsLoading,
		HasResult:     state.Prediction != nil,
	}
	if state.SelectedFile != nil {
		view.FileName = state.SelectedFile.Name
	}
	if state.Prediction != nil {
		view.Label = state.Prediction.Label
		view.Confidence = state.Prediction.Percent()
	}
	view.ShowSend = view.ImageUploaded && !view.HasResult && !view.IsLoading
	return view
}

func (app *App) WidgetHandler(w http.ResponseWriter, r *http.Request) {
	_, wd := app.widgetFor(w, r)
	app.renderWidget(w, newWidgetView(wd.State()))
}

func (app *App) SelectHandler(w http.ResponseWriter, r *http.Request) {
	_, wd := app.widgetFor(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)
	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		view := newWidgetView(wd.State())

		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			view.Error = "File too large"
		case errors.Is(err, http.ErrNotMultipart):
		default:
			log.Printf("[WIDGET] Failed to parse upload: %v", err)
			view.Error = "Failed to read upload"
		}

		app.renderWidget(w, view)
		return
	}
	defer r.MultipartForm.RemoveAll()

	if err := wd.Select(acceptedFiles(r.MultipartForm.File[fileField])); err != nil {
		log.Printf("[WIDGET] Failed to select file: %v", err)
		view := newWidgetView(wd.State())
		view.Error = "Failed to save file"
		app.renderWidget(w, view)
		return
	}

	app.renderWidget(w, newWidgetView(wd.State()))
}

func (app *App) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	_, wd := app.widgetFor(w, r)
	wd.Submit()
	app.renderWidget(w, newWidgetView(wd.State()))
}

func (app *App) ClearHandler(w http.ResponseWriter, r *http.Request) {
	_, wd := app.widgetFor(w, r)
	wd.Clear()
	app.renderWidget(w, newWidgetView(wd.State()))
}

// PreviewHandler serves the thumbnail behind the caller's live preview
// reference. Anything else, including released previews, is a 404.
func (app *App) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	wd, ok := app.Sessions.Get(cookie.Value)
	if !ok {
		http.NotFound(w, r)
		return
	}
	stored, ok := wd.PreviewFile()
	if !ok || stored != name {
		http.NotFound(w, r)
		return
	}

	file, err := app.Storage.OpenFile(stored)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer file.Close()

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	thumb, err := preview.Thumbnail(file, app.ThumbnailSize)
	if err == nil {
		w.Header().Set("Content-Type", "image/jpeg")
		if err := preview.Encode(w, thumb); err != nil {
			log.Printf("[WIDGET] Failed to write preview %s: %v", stored, err)
		}
		return
	}

	// Undecodable files are only served back under a raster image type.
	contentType, ok := storage.ContentTypeFor(stored)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		http.Error(w, "Error reading preview", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, stored, time.Time{}, file)
}

func (app *App) widgetFor(w http.ResponseWriter, r *http.Request) (string, *widget.Widget) {
	var id string
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		id = cookie.Value
	}

	sessionID, wd, created := app.Sessions.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sessionID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sessionID, wd
}

func (app *App) renderWidget(w http.ResponseWriter, view widgetView) {
	app.render(w, "widget", view, filepath.Join("partials", "widget.html"))
}

// acceptedFiles applies the dropzone's image/* filter, keeping order.
func acceptedFiles(headers []*multipart.FileHeader) []widget.File {
	var files []widget.File
	for _, fh := range headers {
		contentType := fileContentType(fh)
		if !strings.HasPrefix(contentType, "image/") {
			continue
		}

		fh := fh
		files = append(files, widget.File{
			Name:        fh.Filename,
			ContentType: contentType,
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return files
}

func fileContentType(fh *multipart.FileHeader) string {
	contentType := fh.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "image/") {
		return contentType
	}
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !imageExtensions[ext] {
		return contentType
	}
	if byExt := mime.TypeByExtension(ext); strings.HasPrefix(byExt, "image/") {
		return byExt
	}
	return "image/" + strings.TrimPrefix(ext, ".")
}
