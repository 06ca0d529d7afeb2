package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, Logger)

	r.Get("/healthz", app.Health)
	r.Get("/status", app.Status)
	r.Post("/health-check", app.HealthCheck)

	r.Route("/images", func(r chi.Router) {
		r.Get("/", app.ListImages)
		r.Post("/retry-all", app.RetryAll)
		r.Get("/{id}", app.GetImage)
		r.Delete("/{id}", app.RemoveImage)
		r.Post("/{id}/retry", app.RetryImage)
	})

	r.Route("/page", func(r chi.Router) {
		r.Get("/", app.Page)
		r.Post("/fragments", app.InsertFragment)
	})

	r.Post("/viewport/scroll", app.Scroll)

	return r
}
