package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tryon/internal/domain"
	"tryon/internal/sqlinline"
)

type stubExecutor struct {
	tag   pgconn.CommandTag
	err   error
	row   []any
	rows  [][]any
	query string
	args  []any
}

func (s *stubExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.query, s.args = query, args
	return s.tag, s.err
}

func (s *stubExecutor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	s.query, s.args = query, args
	if s.err != nil {
		return stubRow{err: s.err}
	}
	return stubRow{values: s.row}
}

func (s *stubExecutor) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	s.query, s.args = query, args
	if s.err != nil {
		return nil, s.err
	}
	return &stubRows{values: s.rows, idx: -1}, nil
}

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type stubRows struct {
	values [][]any
	idx    int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return r.values[r.idx], nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	r.idx++
	return r.idx < len(r.values)
}

func (r *stubRows) Scan(dest ...any) error {
	return assign(dest, r.values[r.idx])
}

func assign(dest, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int64:
			*d = v.(int64)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

func paymentRow(id, status string, at time.Time) []any {
	return []any{id, "yookassa", "premium", int64(69900), "RUB", "RU", "https://pay/" + id, status, at, at}
}

func TestPGLedgerRecord(t *testing.T) {
	exec := &stubExecutor{}
	ledger := NewPGLedger(exec)
	err := ledger.Record(context.Background(), domain.Payment{
		ID: "p-1", Provider: "yookassa", PlanID: "premium", Amount: 69900, Currency: "RUB", Country: "RU", RedirectURL: "https://pay/p-1",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if exec.query != sqlinline.QInsertPayment {
		t.Fatalf("unexpected query %s", exec.query)
	}
	if len(exec.args) != 7 || exec.args[0] != "p-1" || exec.args[3] != int64(69900) {
		t.Fatalf("args = %#v", exec.args)
	}

	boom := errors.New("conn refused")
	if err := NewPGLedger(&stubExecutor{err: boom}).Record(context.Background(), domain.Payment{}); !errors.Is(err, boom) {
		t.Fatalf("Record err = %v", err)
	}
}

func TestPGLedgerMarkSucceeded(t *testing.T) {
	changed, err := NewPGLedger(&stubExecutor{tag: pgconn.NewCommandTag("UPDATE 1")}).MarkSucceeded(context.Background(), "stripe", "cs_1")
	if err != nil || !changed {
		t.Fatalf("MarkSucceeded = %v, %v", changed, err)
	}
	changed, err = NewPGLedger(&stubExecutor{tag: pgconn.NewCommandTag("UPDATE 0")}).MarkSucceeded(context.Background(), "stripe", "cs_1")
	if err != nil || changed {
		t.Fatalf("MarkSucceeded repeat = %v, %v", changed, err)
	}
}

func TestPGLedgerMarkChecked(t *testing.T) {
	exec := &stubExecutor{tag: pgconn.NewCommandTag("UPDATE 1")}
	if err := NewPGLedger(exec).MarkChecked(context.Background(), "stripe", "cs_1", domain.PaymentCanceled); err != nil {
		t.Fatalf("MarkChecked: %v", err)
	}
	if exec.query != sqlinline.QMarkPaymentChecked {
		t.Fatalf("unexpected query %s", exec.query)
	}
	if len(exec.args) != 3 || exec.args[2] != "canceled" {
		t.Fatalf("args = %#v", exec.args)
	}

	boom := errors.New("conn refused")
	if err := NewPGLedger(&stubExecutor{err: boom}).MarkChecked(context.Background(), "stripe", "cs_1", domain.PaymentPending); !errors.Is(err, boom) {
		t.Fatalf("MarkChecked err = %v", err)
	}
}

func TestPGLedgerGet(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	exec := &stubExecutor{row: paymentRow("p-1", "succeeded", at)}
	p, err := NewPGLedger(exec).Get(context.Background(), "yookassa", "p-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.ID != "p-1" || p.Status != domain.PaymentSucceeded || p.Amount != 69900 || !p.CreatedAt.Equal(at) {
		t.Fatalf("payment = %+v", p)
	}
	if exec.query != sqlinline.QSelectPayment {
		t.Fatalf("unexpected query")
	}

	if _, err := NewPGLedger(&stubExecutor{err: pgx.ErrNoRows}).Get(context.Background(), "stripe", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}

func TestPGLedgerPending(t *testing.T) {
	at := time.Now()
	exec := &stubExecutor{rows: [][]any{paymentRow("a", "pending", at), paymentRow("b", "pending", at)}}
	list, err := NewPGLedger(exec).Pending(context.Background(), 30*time.Minute, 0)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(list) != 2 || list[1].ID != "b" || list[0].Status != domain.PaymentPending {
		t.Fatalf("pending = %+v", list)
	}
	if exec.args[0] != 1 || exec.args[1] != 50 {
		t.Fatalf("args = %#v, want window clamped to 1 hour and default limit", exec.args)
	}
	if !strings.Contains(exec.query, "order by checked_at asc nulls first") {
		t.Fatalf("pending batch does not rotate by last check:\n%s", exec.query)
	}
}

func TestNopLedger(t *testing.T) {
	var l Ledger = NopLedger{}
	if err := l.Record(context.Background(), domain.Payment{}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if changed, err := l.MarkSucceeded(context.Background(), "stripe", "x"); err != nil || changed {
		t.Fatalf("MarkSucceeded = %v, %v", changed, err)
	}
	if err := l.MarkChecked(context.Background(), "stripe", "x", domain.PaymentCanceled); err != nil {
		t.Fatalf("MarkChecked: %v", err)
	}
	if _, err := l.Get(context.Background(), "stripe", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get err = %v", err)
	}
}
