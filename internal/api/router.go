package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", app.HomeHandler)
	r.Get("/ping", PingHandler)
	r.Get("/history", app.HistoryHandler)

	r.Get("/widget", app.WidgetHandler)
	r.Post("/widget/select", app.SelectHandler)
	r.Post("/widget/submit", app.SubmitHandler)
	r.Post("/widget/clear", app.ClearHandler)

	r.Get("/previews/{name}", app.PreviewHandler)

	fileServer := http.FileServer(http.Dir(app.StaticDir))
	r.Handle("/static/*", http.StripPrefix("/static", fileServer))

	return r
}
