package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"tryon/internal/acquisition"
	"tryon/internal/billing"
	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/storage"
	"tryon/internal/workflow"
)

type App struct {
	Config   *infra.Config
	Logger   infra.Logger
	Sessions *workflow.Registry
	Decoder  acquisition.Decoder
	Catalog  *acquisition.Catalog
	Billing  *billing.Service
	// Store is nil when results are not archived.
	Store *storage.FileStore
}

var (
	errBadRequest       = errors.New("bad request")
	errUnsupportedMedia = errors.New("unsupported media type")
)

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "message": message},
	})
}

// fail maps err onto a status code and writes the error envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, errBadRequest):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, errUnsupportedMedia):
		a.error(w, http.StatusUnsupportedMediaType, "unsupported_media_type", err.Error())
	case errors.Is(err, domain.ErrImageTooLarge), errors.As(err, &tooBig):
		a.error(w, http.StatusRequestEntityTooLarge, "image_too_large", err.Error())
	case errors.Is(err, domain.ErrEmptyImage), errors.Is(err, domain.ErrUnsupportedImage):
		a.error(w, http.StatusUnprocessableEntity, "invalid_image", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		a.error(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, workflow.ErrClosed):
		a.error(w, http.StatusGone, "session_closed", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, domain.ErrUnknownPlan):
		a.error(w, http.StatusBadRequest, "unknown_plan", err.Error())
	case errors.Is(err, domain.ErrFreePlan):
		a.error(w, http.StatusBadRequest, "free_plan", err.Error())
	case errors.Is(err, domain.ErrUnknownProvider):
		a.error(w, http.StatusServiceUnavailable, "provider_unavailable", err.Error())
	case errors.Is(err, domain.ErrProviderFailure):
		a.error(w, http.StatusBadGateway, "upstream_failure", "upstream request failed")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("handlers: unexpected error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
