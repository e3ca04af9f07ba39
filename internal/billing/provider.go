package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tryon/internal/domain"
)

// Provider names used in routes, metrics and the ledger.
const (
	ProviderYooKassa = "yookassa"
	ProviderStripe   = "stripe"
)

// Checkout is the outcome of starting a payment: the provider's payment ID
// and the page the buyer must be sent to.
type Checkout struct {
	ID          string
	RedirectURL string
}

// Provider is an external payment gateway.
type Provider interface {
	Name() string
	// RequestPayment starts a payment for plan.
	RequestPayment(ctx context.Context, plan domain.Plan) (Checkout, error)
	// CheckPaymentStatus reports whether payment id has been paid. A payment
	// that can no longer be paid returns an error wrapping domain.ErrPaymentClosed.
	CheckPaymentStatus(ctx context.Context, id string) (bool, error)
}

// providerError wraps a non-2xx gateway answer with domain.ErrProviderFailure.
func providerError(provider string, resp *http.Response, message func([]byte) string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
	msg := message(data)
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if msg == "" {
		return fmt.Errorf("%w: %s status %d", domain.ErrProviderFailure, provider, resp.StatusCode)
	}
	return fmt.Errorf("%w: %s status %d: %s", domain.ErrProviderFailure, provider, resp.StatusCode, msg)
}

func decodeJSON(provider string, r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", domain.ErrProviderFailure, provider, err)
	}
	return nil
}
