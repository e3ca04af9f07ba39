package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tryon/internal/domain"
	"tryon/internal/middleware"
	"tryon/internal/workflow"
	"tryon/pkg/zip"
)

type imageView struct {
	ContentType string `json:"content_type"`
	Bytes       int    `json:"bytes"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	URL         string `json:"url"`
}

type sessionView struct {
	ID         string     `json:"id"`
	Step       string     `json:"step"`
	Generation uint64     `json:"generation"`
	Person     *imageView `json:"person,omitempty"`
	Clothing   *imageView `json:"clothing,omitempty"`
	Result     *imageView `json:"result,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

type createSessionResponse struct {
	Session   sessionView `json:"session"`
	Token     string      `json:"token"`
	ExpiresIn int         `json:"expires_in"`
}

type imageRequest struct {
	Image    string `json:"image"`
	SampleID *int   `json:"sample_id"`
}

func newSessionView(s domain.Session) sessionView {
	view := sessionView{
		ID:         s.ID,
		Step:       string(s.Step),
		Generation: s.Generation,
		LastError:  s.LastError,
	}
	view.Person = newImageView(s, "person", s.Person)
	view.Clothing = newImageView(s, "clothing", s.Clothing)
	view.Result = newImageView(s, "result", s.Result)
	return view
}

func newImageView(s domain.Session, kind string, img *domain.Image) *imageView {
	if img == nil {
		return nil
	}
	return &imageView{
		ContentType: img.ContentType(),
		Bytes:       img.Len(),
		Width:       img.Width(),
		Height:      img.Height(),
		URL:         fmt.Sprintf("/v1/sessions/%s/images/%s?g=%d", s.ID, kind, s.Generation),
	}
}

// CreateSession starts a session and returns the token that grants access to it.
func (a *App) CreateSession(w http.ResponseWriter, r *http.Request) {
	c := a.Sessions.Create()
	token, err := middleware.IssueSessionToken(a.Config.JWTSecret, c.ID(), a.Config.SessionTTL)
	if err != nil {
		a.Sessions.Delete(c.ID())
		a.fail(w, r, err)
		return
	}
	a.Logger.Debug().Str("session_id", c.ID()).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("handlers: session created")
	a.json(w, http.StatusCreated, createSessionResponse{
		Session:   newSessionView(c.Snapshot()),
		Token:     token,
		ExpiresIn: int(a.Config.SessionTTL / time.Second),
	})
}

func (a *App) GetSession(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, newSessionView(c.Snapshot()))
}

func (a *App) DeleteSession(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	a.Sessions.Delete(c.ID())
	w.WriteHeader(http.StatusNoContent)
}

// SubmitPerson stores the person photo.
func (a *App) SubmitPerson(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	img, err := a.readImage(w, r, false)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := c.SubmitPersonImage(img); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newSessionView(c.Snapshot()))
}

// SubmitClothing stores the garment and starts synthesis. The outcome is
// delivered through GetSession or SessionEvents.
func (a *App) SubmitClothing(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	// Reject early so a sample garment is not fetched for nothing. The
	// controller checks again under its lock.
	if step := c.Snapshot().Step; step != domain.StepAwaitingClothing {
		a.fail(w, r, fmt.Errorf("submit clothing in step %s: %w", step, domain.ErrInvalidTransition))
		return
	}
	img, err := a.readImage(w, r, true)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := c.SubmitClothingImage(img); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, newSessionView(c.Snapshot()))
}

func (a *App) TryAnother(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := c.TryAnotherGarment(); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newSessionView(c.Snapshot()))
}

func (a *App) ResetSession(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	c.Reset()
	a.json(w, http.StatusOK, newSessionView(c.Snapshot()))
}

// SessionImage serves the person, clothing or result image of a session.
func (a *App) SessionImage(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	s := c.Snapshot()
	var img *domain.Image
	switch kind := chi.URLParam(r, "kind"); kind {
	case "person":
		img = s.Person
	case "clothing":
		img = s.Clothing
	case "result":
		img = s.Result
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "kind must be person, clothing or result")
		return
	}
	if img == nil {
		a.error(w, http.StatusNotFound, "not_found", "image not available")
		return
	}
	w.Header().Set("Content-Type", img.ContentType())
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Bytes())
}

// SessionArchive downloads the session images and a manifest as a zip.
func (a *App) SessionArchive(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session(w, r)
	if !ok {
		return
	}
	s := c.Snapshot()
	if s.Result == nil {
		a.error(w, http.StatusNotFound, "not_found", "no result to download yet")
		return
	}
	var assets []zip.Asset
	for _, item := range []struct {
		name string
		img  *domain.Image
	}{{"person", s.Person}, {"clothing", s.Clothing}, {"result", s.Result}} {
		if item.img == nil {
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: item.name + "." + item.img.Extension(),
			MIME:     item.img.ContentType(),
			Data:     item.img.Bytes(),
		})
	}
	archive, err := zip.ArchiveAssets(assets, newSessionView(s), time.Now())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=tryon-%s-%d.zip", s.ID, s.Generation))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) session(w http.ResponseWriter, r *http.Request) (*workflow.Controller, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "session id required")
		return nil, false
	}
	c, err := a.Sessions.Get(id)
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	return c, true
}

// readImage accepts a multipart upload (field "image"), a JSON body with a
// data URL or, when allowSample is set, a sample garment ID, or a raw image body.
func (a *App) readImage(w http.ResponseWriter, r *http.Request, allowSample bool) (domain.Image, error) {
	limit := a.Decoder.MaxBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return domain.Image{}, fmt.Errorf("%w: content type required", errUnsupportedMedia)
	}

	switch {
	case mediaType == "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
		file, _, err := r.FormFile("image")
		if errors.Is(err, http.ErrMissingFile) {
			return domain.Image{}, domain.ErrEmptyImage
		}
		if err != nil {
			return domain.Image{}, multipartError(err)
		}
		defer file.Close()
		return a.Decoder.Read(file)

	case mediaType == "application/json":
		r.Body = http.MaxBytesReader(w, r.Body, limit*4/3+1<<20)
		var req imageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return domain.Image{}, err
			}
			return domain.Image{}, fmt.Errorf("%w: invalid payload", errBadRequest)
		}
		if req.SampleID != nil {
			if !allowSample {
				return domain.Image{}, fmt.Errorf("%w: sample garments are clothing only", errBadRequest)
			}
			if strings.TrimSpace(req.Image) != "" {
				return domain.Image{}, fmt.Errorf("%w: send either image or sample_id", errBadRequest)
			}
			return a.Catalog.Fetch(r.Context(), *req.SampleID)
		}
		return a.Decoder.DecodeDataURL(req.Image)

	case strings.HasPrefix(mediaType, "image/"):
		return a.Decoder.Read(r.Body)

	default:
		return domain.Image{}, fmt.Errorf("%w: %s", errUnsupportedMedia, mediaType)
	}
}

func multipartError(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return err
	}
	return fmt.Errorf("%w: invalid multipart body", errBadRequest)
}
