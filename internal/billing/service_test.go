package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tryon/internal/domain"
	"tryon/internal/infra"
)

type fakeProvider struct {
	name     string
	checkout Checkout
	err      error
	paid     map[string]bool
	closed   map[string]bool
	missing  map[string]bool

	mu       sync.Mutex
	requests []domain.Plan
	checks   []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) RequestPayment(_ context.Context, plan domain.Plan) (Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, plan)
	return f.checkout, f.err
}

func (f *fakeProvider) CheckPaymentStatus(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks = append(f.checks, id)
	if f.err != nil {
		return false, f.err
	}
	if f.closed[id] {
		return false, fmt.Errorf("payment %s: %w", id, domain.ErrPaymentClosed)
	}
	if f.missing[id] {
		return false, fmt.Errorf("payment %s: %w", id, domain.ErrNotFound)
	}
	return f.paid[id], nil
}

type memoryLedger struct {
	mu       sync.Mutex
	payments map[string]domain.Payment
	checked  map[string]int
	seq      int
	err      error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{payments: map[string]domain.Payment{}, checked: map[string]int{}}
}

func (m *memoryLedger) Record(_ context.Context, p domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	key := p.Provider + "/" + p.ID
	if _, ok := m.payments[key]; !ok {
		m.payments[key] = p
	}
	return nil
}

func (m *memoryLedger) MarkSucceeded(_ context.Context, provider, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	p, ok := m.payments[provider+"/"+id]
	if !ok || p.Status == domain.PaymentSucceeded {
		return false, nil
	}
	p.Status = domain.PaymentSucceeded
	m.payments[provider+"/"+id] = p
	return true, nil
}

func (m *memoryLedger) Get(_ context.Context, provider, id string) (domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[provider+"/"+id]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memoryLedger) MarkChecked(_ context.Context, provider, id string, status domain.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	key := provider + "/" + id
	p, ok := m.payments[key]
	if !ok || p.Status != domain.PaymentPending {
		return nil
	}
	p.Status = status
	m.payments[key] = p
	m.seq++
	m.checked[key] = m.seq
	return nil
}

// Pending mirrors QListPendingPayments: never-checked rows first, then the
// least recently checked, ties broken by creation time.
func (m *memoryLedger) Pending(_ context.Context, _ time.Duration, limit int) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Payment
	for _, p := range m.payments {
		if p.Status == domain.PaymentPending {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := m.checked[out[i].Provider+"/"+out[i].ID], m.checked[out[j].Provider+"/"+out[j].ID]
		if ci != cj {
			return ci < cj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func nopLogger() *infra.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestService(ledger Ledger, providers ...Provider) *Service {
	return NewService(ServiceOptions{DefaultCountry: "RU", Ledger: ledger, Logger: nopLogger()}, providers...)
}

func TestProviderSelectionByCountry(t *testing.T) {
	yoo := &fakeProvider{name: ProviderYooKassa}
	stripe := &fakeProvider{name: ProviderStripe}
	svc := newTestService(nil, yoo, stripe)

	tests := []struct {
		country string
		want    string
	}{
		{country: "RU", want: ProviderYooKassa},
		{country: "ru", want: ProviderYooKassa},
		{country: "", want: ProviderYooKassa},
		{country: "US", want: ProviderStripe},
		{country: "DE", want: ProviderStripe},
	}
	for _, tc := range tests {
		p, err := svc.ProviderFor(tc.country)
		if err != nil {
			t.Fatalf("ProviderFor(%q): %v", tc.country, err)
		}
		if p.Name() != tc.want {
			t.Fatalf("ProviderFor(%q) = %s, want %s", tc.country, p.Name(), tc.want)
		}
	}

	intl := NewService(ServiceOptions{DefaultCountry: "US"}, yoo, stripe)
	if got := intl.ProviderNameFor(""); got != ProviderStripe {
		t.Fatalf("default US provider = %s", got)
	}
}

func TestProviderForUnconfiguredGateway(t *testing.T) {
	svc := newTestService(nil, &fakeProvider{name: ProviderYooKassa})
	if _, err := svc.ProviderFor("US"); !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("err = %v", err)
	}
	if _, err := svc.Provider("paypal"); !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("err = %v", err)
	}
}

func TestCheckout(t *testing.T) {
	yoo := &fakeProvider{name: ProviderYooKassa, checkout: Checkout{ID: "p-1", RedirectURL: "https://pay/p-1"}}
	ledger := newMemoryLedger()
	svc := newTestService(ledger, yoo, &fakeProvider{name: ProviderStripe})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	payment, err := svc.Checkout(context.Background(), "premium", "")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if payment.Provider != ProviderYooKassa || payment.ID != "p-1" || payment.RedirectURL != "https://pay/p-1" {
		t.Fatalf("payment = %+v", payment)
	}
	if payment.Amount != 69900 || payment.Country != "RU" || payment.Status != domain.PaymentPending || !payment.CreatedAt.Equal(fixed) {
		t.Fatalf("payment = %+v", payment)
	}
	if len(yoo.requests) != 1 || yoo.requests[0].ID != "premium" {
		t.Fatalf("provider requests = %+v", yoo.requests)
	}
	if stored, err := ledger.Get(context.Background(), ProviderYooKassa, "p-1"); err != nil || stored.PlanID != "premium" {
		t.Fatalf("ledger = %+v, %v", stored, err)
	}
}

func TestCheckoutRejections(t *testing.T) {
	yoo := &fakeProvider{name: ProviderYooKassa}
	svc := newTestService(nil, yoo)

	if _, err := svc.Checkout(context.Background(), "free", "RU"); !errors.Is(err, domain.ErrFreePlan) {
		t.Fatalf("free plan err = %v", err)
	}
	if _, err := svc.Checkout(context.Background(), "gold", "RU"); !errors.Is(err, domain.ErrUnknownPlan) {
		t.Fatalf("unknown plan err = %v", err)
	}
	if _, err := svc.Checkout(context.Background(), "pro", "FR"); !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("missing stripe err = %v", err)
	}
	if len(yoo.requests) != 0 {
		t.Fatalf("provider called for rejected checkout")
	}
}

func TestCheckoutProviderFailure(t *testing.T) {
	boom := errors.New("gateway down")
	ledger := newMemoryLedger()
	svc := newTestService(ledger, &fakeProvider{name: ProviderStripe, err: boom})
	if _, err := svc.Checkout(context.Background(), "pro", "US"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(ledger.payments) != 0 {
		t.Fatalf("failed checkout recorded")
	}
}

func TestCheckoutSurvivesLedgerFailure(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.err = errors.New("db down")
	svc := newTestService(ledger, &fakeProvider{name: ProviderStripe, checkout: Checkout{ID: "cs_1", RedirectURL: "https://stripe/cs_1"}})
	payment, err := svc.Checkout(context.Background(), "pro", "US")
	if err != nil || payment.RedirectURL != "https://stripe/cs_1" {
		t.Fatalf("Checkout = %+v, %v", payment, err)
	}
}

func TestVerify(t *testing.T) {
	stripe := &fakeProvider{name: ProviderStripe, checkout: Checkout{ID: "cs_1", RedirectURL: "u"}, paid: map[string]bool{"cs_1": true}}
	ledger := newMemoryLedger()
	svc := newTestService(ledger, stripe)
	if _, err := svc.Checkout(context.Background(), "pro", "US"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	paid, err := svc.Verify(context.Background(), "stripe", "cs_1")
	if err != nil || !paid {
		t.Fatalf("Verify = %v, %v", paid, err)
	}
	p, _ := ledger.Get(context.Background(), ProviderStripe, "cs_1")
	if p.Status != domain.PaymentSucceeded {
		t.Fatalf("ledger status = %s", p.Status)
	}
	if paid, err := svc.Verify(context.Background(), "stripe", "cs_1"); err != nil || !paid {
		t.Fatalf("second Verify = %v, %v", paid, err)
	}

	if paid, err := svc.Verify(context.Background(), "stripe", "cs_other"); err != nil || paid {
		t.Fatalf("unpaid Verify = %v, %v", paid, err)
	}
	if _, err := svc.Verify(context.Background(), "stripe", " "); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("blank id err = %v", err)
	}
	if _, err := svc.Verify(context.Background(), "yookassa", "x"); !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("unknown provider err = %v", err)
	}
}

func TestReconcile(t *testing.T) {
	yoo := &fakeProvider{name: ProviderYooKassa, paid: map[string]bool{"a": true}}
	ledger := newMemoryLedger()
	for _, id := range []string{"a", "b"} {
		_ = ledger.Record(context.Background(), domain.Payment{ID: id, Provider: ProviderYooKassa, PlanID: "premium", Status: domain.PaymentPending})
	}
	_ = ledger.Record(context.Background(), domain.Payment{ID: "c", Provider: "paypal", Status: domain.PaymentPending})
	svc := newTestService(ledger, yoo)

	confirmed, err := svc.Reconcile(context.Background(), time.Hour, 10)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if confirmed != 1 {
		t.Fatalf("confirmed = %d, want 1", confirmed)
	}
	pending, _ := ledger.Pending(context.Background(), time.Hour, 10)
	if len(pending) != 2 {
		t.Fatalf("pending after reconcile = %d, want 2", len(pending))
	}
}

func TestReconcilerRunStopsOnCancel(t *testing.T) {
	yoo := &fakeProvider{name: ProviderYooKassa, paid: map[string]bool{"a": true}}
	ledger := newMemoryLedger()
	_ = ledger.Record(context.Background(), domain.Payment{ID: "a", Provider: ProviderYooKassa, Status: domain.PaymentPending})

	r := &Reconciler{Service: newTestService(ledger, yoo), Logger: zerolog.Nop(), Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		p, _ := ledger.Get(context.Background(), ProviderYooKassa, "a")
		if p.Status == domain.PaymentSucceeded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("payment never reconciled")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestVerifyClosesCanceledPayment(t *testing.T) {
	yoo := &fakeProvider{name: ProviderYooKassa, closed: map[string]bool{"p-1": true}}
	ledger := newMemoryLedger()
	_ = ledger.Record(context.Background(), domain.Payment{ID: "p-1", Provider: ProviderYooKassa, Status: domain.PaymentPending})
	svc := newTestService(ledger, yoo)

	paid, err := svc.Verify(context.Background(), ProviderYooKassa, "p-1")
	if err != nil || paid {
		t.Fatalf("Verify = %v, %v", paid, err)
	}
	if p, _ := ledger.Get(context.Background(), ProviderYooKassa, "p-1"); p.Status != domain.PaymentCanceled {
		t.Fatalf("status = %s, want canceled", p.Status)
	}
}

func TestReconcileRotatesPastAbandonedPayments(t *testing.T) {
	const batch = 5
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	yoo := &fakeProvider{
		name:    ProviderYooKassa,
		paid:    map[string]bool{"fresh": true},
		closed:  map[string]bool{"old-00": true},
		missing: map[string]bool{"old-01": true},
	}
	ledger := newMemoryLedger()
	for i := 0; i < batch+2; i++ {
		_ = ledger.Record(context.Background(), domain.Payment{
			ID: fmt.Sprintf("old-%02d", i), Provider: ProviderYooKassa, PlanID: "premium",
			Status: domain.PaymentPending, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	_ = ledger.Record(context.Background(), domain.Payment{
		ID: "fresh", Provider: ProviderYooKassa, PlanID: "premium",
		Status: domain.PaymentPending, CreatedAt: base.Add(time.Hour),
	})
	svc := newTestService(ledger, yoo)

	confirmed, err := svc.Reconcile(context.Background(), 24*time.Hour, batch)
	if err != nil || confirmed != 0 {
		t.Fatalf("first pass = %d, %v", confirmed, err)
	}
	for id, want := range map[string]domain.PaymentStatus{"old-00": domain.PaymentCanceled, "old-01": domain.PaymentCanceled, "old-02": domain.PaymentPending} {
		if p, _ := ledger.Get(context.Background(), ProviderYooKassa, id); p.Status != want {
			t.Fatalf("%s status = %s, want %s", id, p.Status, want)
		}
	}

	confirmed, err = svc.Reconcile(context.Background(), 24*time.Hour, batch)
	if err != nil || confirmed != 1 {
		t.Fatalf("second pass = %d, %v", confirmed, err)
	}
	if p, _ := ledger.Get(context.Background(), ProviderYooKassa, "fresh"); p.Status != domain.PaymentSucceeded {
		t.Fatalf("fresh status = %s, want succeeded", p.Status)
	}
}
