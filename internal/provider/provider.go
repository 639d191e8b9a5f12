// Package provider implements the LLM provider contract consumed by the
// review engine: a single completion call with a typed error taxonomy and
// global admission control on in-flight calls.
package provider

import (
	"context"
	"fmt"
)

// Request is one completion call.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
	// Temperature of 0 means the provider default.
	Temperature float64
}

// Response is the raw completion result.
type Response struct {
	Content    string
	TokensUsed int
}

// Provider is the external LLM dependency boundary.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Name() string
}

// Options configure provider construction.
type Options struct {
	Model   string
	BaseURL string
}

// New creates a provider by name.
func New(name string, opts Options) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAI(opts)
	case "anthropic":
		return NewAnthropic(opts)
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}
