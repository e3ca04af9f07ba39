package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrEmptyImage        = errors.New("empty image")
	ErrUnsupportedImage  = errors.New("unsupported image")
	ErrImageTooLarge     = errors.New("image too large")
	ErrInvalidTransition = errors.New("operation not allowed in current step")
	ErrUnknownPlan       = errors.New("unknown plan")
	ErrFreePlan          = errors.New("free plan requires no payment")
	ErrUnknownProvider   = errors.New("unknown payment provider")
	ErrProviderFailure   = errors.New("provider failure")
	ErrPaymentClosed     = errors.New("payment canceled or expired")
)
