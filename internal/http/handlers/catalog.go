package handlers

import (
	"net/http"

	"tryon/internal/billing"
	"tryon/internal/middleware"
)

type garmentView struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Garments lists the sample clothing gallery in the request locale.
func (a *App) Garments(w http.ResponseWriter, r *http.Request) {
	ru := middleware.LocaleFromContext(r.Context()) == "ru"
	items := make([]garmentView, 0)
	for _, g := range a.Catalog.List() {
		name := g.Name
		if ru && g.NameRu != "" {
			name = g.NameRu
		}
		items = append(items, garmentView{ID: g.ID, Name: name, URL: g.URL})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// Plans returns the pricing catalog in the request locale.
func (a *App) Plans(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, billing.Localize(middleware.LocaleFromContext(r.Context())))
}
