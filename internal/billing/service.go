package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/metrics"
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// DefaultCountry is used when the buyer's country is unknown.
	DefaultCountry string
	Ledger         Ledger
	Logger         *infra.Logger
}

// Service picks a provider for the buyer, starts checkouts and confirms them.
type Service struct {
	providers      map[string]Provider
	defaultCountry string
	ledger         Ledger
	logger         *infra.Logger
	now            func() time.Time
}

// NewService registers providers by name. Unconfigured gateways are simply
// not passed in; buyers routed to them get ErrUnknownProvider.
func NewService(opts ServiceOptions, providers ...Provider) *Service {
	ledger := opts.Ledger
	if ledger == nil {
		ledger = NopLedger{}
	}
	logger := opts.Logger
	if logger == nil {
		l := zerolog.New(io.Discard)
		logger = &l
	}
	country := strings.ToUpper(strings.TrimSpace(opts.DefaultCountry))
	if country == "" {
		country = "RU"
	}
	s := &Service{
		providers:      make(map[string]Provider, len(providers)),
		defaultCountry: country,
		ledger:         ledger,
		logger:         logger,
		now:            time.Now,
	}
	for _, p := range providers {
		if p != nil {
			s.providers[p.Name()] = p
		}
	}
	return s
}

// ProviderNameFor maps a country to a gateway: RU buyers pay through
// YooKassa, everyone else through Stripe.
func (s *Service) ProviderNameFor(country string) string {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		country = s.defaultCountry
	}
	if country == "RU" {
		return ProviderYooKassa
	}
	return ProviderStripe
}

// ProviderFor returns the gateway serving country.
func (s *Service) ProviderFor(country string) (Provider, error) {
	return s.Provider(s.ProviderNameFor(country))
}

// Provider returns the gateway registered under name.
func (s *Service) Provider(name string) (Provider, error) {
	p, ok := s.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, name)
	}
	return p, nil
}

// Checkout starts a payment for planID with the gateway serving country.
func (s *Service) Checkout(ctx context.Context, planID, country string) (domain.Payment, error) {
	plan, err := FindPlan(planID)
	if err != nil {
		return domain.Payment{}, err
	}
	if plan.IsFree() {
		return domain.Payment{}, domain.ErrFreePlan
	}
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		country = s.defaultCountry
	}
	provider, err := s.ProviderFor(country)
	if err != nil {
		return domain.Payment{}, err
	}

	checkout, err := provider.RequestPayment(ctx, plan)
	if err != nil {
		metrics.Checkouts.WithLabelValues(provider.Name(), "failed").Inc()
		s.logger.Error().Err(err).Str("provider", provider.Name()).Str("plan", plan.ID).Msg("billing: checkout failed")
		return domain.Payment{}, err
	}
	metrics.Checkouts.WithLabelValues(provider.Name(), "created").Inc()

	now := s.now()
	payment := domain.Payment{
		ID:          checkout.ID,
		Provider:    provider.Name(),
		PlanID:      plan.ID,
		Amount:      plan.Price,
		Currency:    plan.Currency,
		Country:     country,
		RedirectURL: checkout.RedirectURL,
		Status:      domain.PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.ledger.Record(ctx, payment); err != nil {
		s.logger.Error().Err(err).Str("payment_id", payment.ID).Msg("billing: ledger record failed")
	}
	s.logger.Info().
		Str("provider", payment.Provider).
		Str("payment_id", payment.ID).
		Str("plan", plan.ID).
		Str("country", country).
		Msg("billing: checkout created")
	return payment, nil
}

// Verify asks the gateway whether payment id is paid and records a
// confirmed payment in the ledger.
func (s *Service) Verify(ctx context.Context, providerName, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, fmt.Errorf("payment id: %w", domain.ErrNotFound)
	}
	provider, err := s.Provider(providerName)
	if err != nil {
		return false, err
	}
	paid, err := provider.CheckPaymentStatus(ctx, id)
	if errors.Is(err, domain.ErrPaymentClosed) {
		s.markChecked(ctx, provider.Name(), id, domain.PaymentCanceled)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !paid {
		s.markChecked(ctx, provider.Name(), id, domain.PaymentPending)
		return false, nil
	}

	changed, err := s.ledger.MarkSucceeded(ctx, provider.Name(), id)
	if err != nil {
		s.logger.Error().Err(err).Str("payment_id", id).Msg("billing: ledger update failed")
		return true, nil
	}
	if changed {
		plan := "unknown"
		if p, err := s.ledger.Get(ctx, provider.Name(), id); err == nil {
			plan = p.PlanID
		}
		metrics.PaymentsConfirmed.WithLabelValues(provider.Name(), plan).Inc()
		s.logger.Info().Str("provider", provider.Name()).Str("payment_id", id).Str("plan", plan).Msg("billing: payment confirmed")
	}
	return true, nil
}

// Reconcile verifies pending payments created within window and returns how
// many turned out to be paid.
func (s *Service) Reconcile(ctx context.Context, window time.Duration, limit int) (int, error) {
	pending, err := s.ledger.Pending(ctx, window, limit)
	if err != nil {
		return 0, err
	}
	confirmed := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return confirmed, err
		}
		paid, err := s.Verify(ctx, p.Provider, p.ID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return confirmed, err
			}
			s.logger.Warn().Err(err).Str("provider", p.Provider).Str("payment_id", p.ID).Msg("billing: reconcile check failed")
			status := domain.PaymentPending
			if errors.Is(err, domain.ErrNotFound) {
				// The gateway does not know the payment; it can never be paid.
				status = domain.PaymentCanceled
			}
			s.markChecked(ctx, p.Provider, p.ID, status)
			continue
		}
		if paid {
			confirmed++
		}
	}
	return confirmed, nil
}

func (s *Service) markChecked(ctx context.Context, provider, id string, status domain.PaymentStatus) {
	if err := s.ledger.MarkChecked(ctx, provider, id, status); err != nil {
		s.logger.Error().Err(err).Str("provider", provider).Str("payment_id", id).Msg("billing: ledger check update failed")
		return
	}
	if status == domain.PaymentCanceled {
		s.logger.Info().Str("provider", provider).Str("payment_id", id).Msg("billing: payment closed")
	}
}
