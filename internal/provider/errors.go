package provider

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a provider failure. Rate limits and unavailability are
// retryable; everything else is terminal for the call.
type Kind int

const (
	KindRateLimited Kind = iota
	KindTimeout
	KindInvalidRequest
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindInvalidRequest:
		return "invalid_request"
	case KindUnavailable:
		return "provider_unavailable"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind     Kind
	Provider string
	Detail   string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Detail)
}

// IsRetryable reports whether the error may succeed on retry.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindRateLimited || pe.Kind == KindUnavailable
	}
	return false
}

// Classify maps a transport-level error to the provider taxonomy.
func Classify(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Provider: name, Detail: err.Error()}
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Kind: KindUnavailable, Provider: name, Detail: err.Error()}
}

func classifyStatus(name string, status int, body string) error {
	switch {
	case status == 429:
		return &Error{Kind: KindRateLimited, Provider: name, Detail: body}
	case status == 400 || status == 401 || status == 403 || status == 404 || status == 422:
		return &Error{Kind: KindInvalidRequest, Provider: name, Detail: body}
	case status >= 500:
		return &Error{Kind: KindUnavailable, Provider: name, Detail: body}
	default:
		return &Error{Kind: KindUnavailable, Provider: name, Detail: fmt.Sprintf("status %d: %s", status, body)}
	}
}
