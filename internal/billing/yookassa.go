package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"tryon/internal/domain"
)

// YooKassaOptions configures the YooKassa gateway.
type YooKassaOptions struct {
	ShopID     string
	SecretKey  string
	BaseURL    string
	ReturnURL  string
	HTTPClient *http.Client
}

// YooKassa is the Russian payment gateway, used for RU buyers.
type YooKassa struct {
	shopID     string
	secretKey  string
	baseURL    string
	returnURL  string
	httpClient *http.Client
	newKey     func() string
}

func NewYooKassa(opts YooKassaOptions) *YooKassa {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.yookassa.ru/v3"
	}
	return &YooKassa{
		shopID:     opts.ShopID,
		secretKey:  opts.SecretKey,
		baseURL:    baseURL,
		returnURL:  opts.ReturnURL,
		httpClient: client,
		newKey:     uuid.NewString,
	}
}

func (y *YooKassa) Name() string { return ProviderYooKassa }

type yooAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type yooConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type yooPaymentRequest struct {
	Amount       yooAmount         `json:"amount"`
	Confirmation yooConfirmation   `json:"confirmation"`
	Capture      bool              `json:"capture"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
}

type yooPayment struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Paid         bool            `json:"paid"`
	Confirmation yooConfirmation `json:"confirmation"`
}

type yooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (y *YooKassa) RequestPayment(ctx context.Context, plan domain.Plan) (Checkout, error) {
	body, err := json.Marshal(yooPaymentRequest{
		Amount:       yooAmount{Value: formatMinor(plan.Price), Currency: plan.Currency},
		Confirmation: yooConfirmation{Type: "redirect", ReturnURL: y.returnURL},
		Capture:      true,
		Description:  "Подписка " + plan.NameRu,
		Metadata:     map[string]string{"plan_id": plan.ID},
	})
	if err != nil {
		return Checkout{}, fmt.Errorf("marshal yookassa payment: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return Checkout{}, fmt.Errorf("create yookassa request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", y.newKey())
	req.SetBasicAuth(y.shopID, y.secretKey)

	var payment yooPayment
	if err := y.do(req, &payment); err != nil {
		return Checkout{}, err
	}
	if payment.ID == "" || payment.Confirmation.ConfirmationURL == "" {
		return Checkout{}, fmt.Errorf("%w: yookassa returned no confirmation url", domain.ErrProviderFailure)
	}
	return Checkout{ID: payment.ID, RedirectURL: payment.Confirmation.ConfirmationURL}, nil
}

func (y *YooKassa) CheckPaymentStatus(ctx context.Context, id string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.baseURL+"/payments/"+url.PathEscape(id), nil)
	if err != nil {
		return false, fmt.Errorf("create yookassa request: %w", err)
	}
	req.SetBasicAuth(y.shopID, y.secretKey)

	var payment yooPayment
	if err := y.do(req, &payment); err != nil {
		return false, err
	}
	switch payment.Status {
	case "succeeded":
		return true, nil
	case "canceled":
		return false, fmt.Errorf("yookassa payment %s: %w", id, domain.ErrPaymentClosed)
	}
	return false, nil
}

func (y *YooKassa) do(req *http.Request, out any) error {
	resp, err := y.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: yookassa: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("yookassa payment: %w", domain.ErrNotFound)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return providerError(ProviderYooKassa, resp, func(data []byte) string {
			var apiErr yooError
			if json.Unmarshal(data, &apiErr) == nil {
				return apiErr.Description
			}
			return ""
		})
	}
	return decodeJSON(ProviderYooKassa, resp.Body, out)
}
