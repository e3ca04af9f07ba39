package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tryon/internal/domain"
)

// StripeOptions configures the Stripe gateway.
type StripeOptions struct {
	SecretKey  string
	BaseURL    string
	SuccessURL string
	CancelURL  string
	HTTPClient *http.Client
}

// Stripe is the international card processor. Payments are Checkout
// Sessions in subscription mode.
type Stripe struct {
	secretKey  string
	baseURL    string
	successURL string
	cancelURL  string
	httpClient *http.Client
}

func NewStripe(opts StripeOptions) *Stripe {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stripe.com/v1"
	}
	return &Stripe{
		secretKey:  opts.SecretKey,
		baseURL:    baseURL,
		successURL: opts.SuccessURL,
		cancelURL:  opts.CancelURL,
		httpClient: client,
	}
}

func (s *Stripe) Name() string { return ProviderStripe }

type stripeSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Stripe) RequestPayment(ctx context.Context, plan domain.Plan) (Checkout, error) {
	if plan.StripePriceID == "" {
		return Checkout{}, fmt.Errorf("%w: %s has no stripe price", domain.ErrUnknownPlan, plan.ID)
	}
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", plan.StripePriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", s.successURL)
	form.Set("cancel_url", s.cancelURL)
	form.Set("metadata[plan_id]", plan.ID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return Checkout{}, fmt.Errorf("create stripe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var session stripeSession
	if err := s.do(req, &session); err != nil {
		return Checkout{}, err
	}
	if session.ID == "" || session.URL == "" {
		return Checkout{}, fmt.Errorf("%w: stripe returned no checkout url", domain.ErrProviderFailure)
	}
	return Checkout{ID: session.ID, RedirectURL: session.URL}, nil
}

func (s *Stripe) CheckPaymentStatus(ctx context.Context, id string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/checkout/sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return false, fmt.Errorf("create stripe request: %w", err)
	}
	var session stripeSession
	if err := s.do(req, &session); err != nil {
		return false, err
	}
	if session.PaymentStatus == "paid" {
		return true, nil
	}
	if session.Status == "expired" {
		return false, fmt.Errorf("stripe checkout session %s: %w", id, domain.ErrPaymentClosed)
	}
	return false, nil
}

func (s *Stripe) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: stripe: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("stripe checkout session: %w", domain.ErrNotFound)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return providerError(ProviderStripe, resp, func(data []byte) string {
			var apiErr stripeError
			if json.Unmarshal(data, &apiErr) == nil {
				return apiErr.Error.Message
			}
			return ""
		})
	}
	return decodeJSON(ProviderStripe, resp.Body, out)
}
