package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/sqlinline"
)

// Ledger records checkouts so their outcome can be confirmed later.
type Ledger interface {
	Record(ctx context.Context, p domain.Payment) error
	// MarkSucceeded reports whether the payment moved to succeeded by this call.
	MarkSucceeded(ctx context.Context, provider, id string) (bool, error)
	Get(ctx context.Context, provider, id string) (domain.Payment, error)
	// MarkChecked records a status check of a pending payment. status is
	// PaymentPending to keep it open or PaymentCanceled to close it.
	MarkChecked(ctx context.Context, provider, id string, status domain.PaymentStatus) error
	// Pending lists unpaid payments created within window, least recently
	// checked first, so one batch never starves the rest.
	Pending(ctx context.Context, window time.Duration, limit int) ([]domain.Payment, error)
}

// PGLedger stores payments in Postgres.
type PGLedger struct {
	sql infra.SQLExecutor
}

func NewPGLedger(sql infra.SQLExecutor) *PGLedger {
	return &PGLedger{sql: sql}
}

func (l *PGLedger) Record(ctx context.Context, p domain.Payment) error {
	_, err := l.sql.Exec(ctx, sqlinline.QInsertPayment,
		p.ID, p.Provider, p.PlanID, p.Amount, p.Currency, p.Country, p.RedirectURL)
	if err != nil {
		return fmt.Errorf("record payment %s/%s: %w", p.Provider, p.ID, err)
	}
	return nil
}

func (l *PGLedger) MarkSucceeded(ctx context.Context, provider, id string) (bool, error) {
	tag, err := l.sql.Exec(ctx, sqlinline.QMarkPaymentSucceeded, provider, id)
	if err != nil {
		return false, fmt.Errorf("mark payment %s/%s: %w", provider, id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (l *PGLedger) MarkChecked(ctx context.Context, provider, id string, status domain.PaymentStatus) error {
	if _, err := l.sql.Exec(ctx, sqlinline.QMarkPaymentChecked, provider, id, string(status)); err != nil {
		return fmt.Errorf("mark payment %s/%s checked: %w", provider, id, err)
	}
	return nil
}

func (l *PGLedger) Get(ctx context.Context, provider, id string) (domain.Payment, error) {
	p, err := scanPayment(l.sql.QueryRow(ctx, sqlinline.QSelectPayment, provider, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.Payment{}, fmt.Errorf("payment %s/%s: %w", provider, id, domain.ErrNotFound)
		}
		return domain.Payment{}, fmt.Errorf("load payment %s/%s: %w", provider, id, err)
	}
	return p, nil
}

func (l *PGLedger) Pending(ctx context.Context, window time.Duration, limit int) ([]domain.Payment, error) {
	hours := int(window / time.Hour)
	if hours < 1 {
		hours = 1
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.sql.Query(ctx, sqlinline.QListPendingPayments, hours, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var (
		p      domain.Payment
		status string
	)
	err := row.Scan(&p.ID, &p.Provider, &p.PlanID, &p.Amount, &p.Currency, &p.Country,
		&p.RedirectURL, &status, &p.CreatedAt, &p.UpdatedAt)
	p.Status = domain.PaymentStatus(status)
	return p, err
}

// NopLedger keeps nothing. It is used when no database is configured.
type NopLedger struct{}

func (NopLedger) Record(context.Context, domain.Payment) error { return nil }

func (NopLedger) MarkSucceeded(context.Context, string, string) (bool, error) { return false, nil }

func (NopLedger) MarkChecked(context.Context, string, string, domain.PaymentStatus) error { return nil }

func (NopLedger) Get(_ context.Context, provider, id string) (domain.Payment, error) {
	return domain.Payment{}, fmt.Errorf("payment %s/%s: %w", provider, id, domain.ErrNotFound)
}

func (NopLedger) Pending(context.Context, time.Duration, int) ([]domain.Payment, error) {
	return nil, nil
}

var (
	_ Ledger = (*PGLedger)(nil)
	_ Ledger = NopLedger{}
)
