package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tryon/internal/middleware"
)

type checkoutRequest struct {
	PlanID  string `json:"plan_id"`
	Country string `json:"country"`
}

type checkoutResponse struct {
	Provider    string `json:"provider"`
	PaymentID   string `json:"payment_id"`
	RedirectURL string `json:"redirect_url"`
}

// Checkout starts a payment for a plan. The gateway is chosen from the
// buyer's country: the body value wins over the detected one.
func (a *App) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		a.fail(w, r, fmt.Errorf("%w: invalid payload", errBadRequest))
		return
	}
	if strings.TrimSpace(req.PlanID) == "" {
		a.fail(w, r, fmt.Errorf("%w: plan_id required", errBadRequest))
		return
	}
	country := strings.TrimSpace(req.Country)
	if country == "" {
		country = middleware.CountryFromContext(r.Context())
	}
	payment, err := a.Billing.Checkout(r.Context(), req.PlanID, country)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, checkoutResponse{
		Provider:    payment.Provider,
		PaymentID:   payment.ID,
		RedirectURL: payment.RedirectURL,
	})
}

// PaymentStatus reports whether a payment has been paid.
func (a *App) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	paymentID := chi.URLParam(r, "payment_id")
	paid, err := a.Billing.Verify(r.Context(), provider, paymentID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"provider": provider, "payment_id": paymentID, "paid": paid})
}
