package domain

import "time"

// PaymentStatus tracks a payment in the local ledger.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	// PaymentCanceled is terminal: the gateway canceled or expired the
	// payment, or does not know it.
	PaymentCanceled PaymentStatus = "canceled"
)

// Payment is a checkout initiated with an external payment provider.
type Payment struct {
	ID          string
	Provider    string
	PlanID      string
	Amount      int64
	Currency    string
	Country     string
	RedirectURL string
	Status      PaymentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
