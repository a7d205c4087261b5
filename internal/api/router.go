package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Router builds the chi router for the full JSON:API surface.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(RequestID())
	if a.logger != nil {
		r.Use(Logging(a.logger))
	}
	r.Use(Recovery(a.logger))

	r.Post("/operations", a.handleOperations)

	r.Route("/{type}", func(r chi.Router) {
		r.Get("/", a.handleList)
		r.Post("/", a.handleCreate)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.handleGet)
			r.Patch("/", a.handleUpdate)
			r.Delete("/", a.handleDelete)

			r.Route("/relationships/{relationship}", func(r chi.Router) {
				r.Get("/", a.handleGetRelationship)
				r.Patch("/", a.handleSetRelationship)
				r.Post("/", a.handleAddToRelationship)
				r.Delete("/", a.handleRemoveFromRelationship)
			})
		})
	})

	return r
}

// Handler returns the router as a plain http.Handler.
func (a *API) Handler() http.Handler {
	return a.Router()
}
