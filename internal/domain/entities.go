// Package domain defines the entities, ports and error taxonomy of the
// tutoring request orchestration engine.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	// ErrInsufficientCredits is a pre-flight denial; no provider call occurred.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrAccountUnavailable means the credit ledger could not be read.
	ErrAccountUnavailable = errors.New("account unavailable")
	// ErrRateLimited is a per-user throttle denial, distinct from provider quota.
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded means the active credential hit a provider rate/usage limit.
	ErrQuotaExceeded = errors.New("provider quota exceeded")
	// ErrModelUnavailable means the requested model is gone or unknown upstream.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrTransient covers network failures, timeouts and provider 5xx.
	ErrTransient = errors.New("transient provider failure")
	// ErrFatal is a non-retryable provider rejection (bad request, bad key).
	ErrFatal = errors.New("fatal provider failure")
	// ErrProviderExhausted means every (model, credential) combination failed.
	ErrProviderExhausted = errors.New("provider exhausted")
	// ErrMalformedResponse means transport succeeded but the payload could not
	// be interpreted. Never retried; the charge stands.
	ErrMalformedResponse = errors.New("malformed provider response")
)

// Role enumerates usage account roles.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Credential is one provider secret held by the credential pool. The secret is
// supplied from configuration at startup and is never persisted or logged.
type Credential struct {
	Index  int
	Secret string
}

// ModelDescriptor is a model identifier with its fixed position in the
// fallback chain. Immutable for the process lifetime.
type ModelDescriptor struct {
	Index int
	ID    string
}

// UsageAccount is a user's spendable request balance. Admin accounts bypass
// metering entirely.
type UsageAccount struct {
	UserID  string
	Credits int64
	Role    Role
}

// IsAdmin reports whether the account bypasses metering.
func (a UsageAccount) IsAdmin() bool { return a.Role == RoleAdmin }

// AccountStore (port)
//
// DebitOne must be a single atomic conditional decrement at the storage layer
// so that concurrent requests from the same user cannot double-spend the last
// credit. It returns the new balance, or ErrInsufficientCredits when the
// balance is already zero.
type AccountStore interface {
	Get(ctx Context, userID string) (UsageAccount, error)
	DebitOne(ctx Context, userID string) (int64, error)
	Credit(ctx Context, userID string, amount int64) (int64, error)
}

// AttemptFunc performs one provider call against a specific (model, credential)
// pair and returns the raw response body.
type AttemptFunc func(ctx Context, model ModelDescriptor, cred Credential) ([]byte, error)

// Runner (port) absorbs retryable provider failures behind a bounded attempt
// loop; only terminal outcomes cross this boundary.
type Runner interface {
	Execute(ctx Context, op string, attempt AttemptFunc) ([]byte, error)
}

// Throttle (port) rate-limits logical requests per user before admission.
type Throttle interface {
	Allow(ctx Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}

// ChatMessage is one turn of a conversation sent to the provider.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is a provider-agnostic chat completion request.
type ChatRequest struct {
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// SpeechRequest is a provider-agnostic speech synthesis request.
type SpeechRequest struct {
	Text   string
	Voice  string
	Format string
}

// ImageRequest is a provider-agnostic image generation request.
type ImageRequest struct {
	Prompt string
	Size   string
}

// ProviderAdapter (port)
//
// Implementations classify failures into the structured error kinds above
// (quota, model-unavailable, transient, fatal); the orchestrator never
// inspects a vendor's human-readable error text. The raw body is returned
// unparsed; interpretation belongs to the feature executor's parser.
type ProviderAdapter interface {
	ChatCompletion(ctx Context, model ModelDescriptor, cred Credential, req ChatRequest) ([]byte, error)
	SynthesizeSpeech(ctx Context, model ModelDescriptor, cred Credential, req SpeechRequest) ([]byte, error)
	GenerateImage(ctx Context, model ModelDescriptor, cred Credential, req ImageRequest) ([]byte, error)
}

// Context is an alias so adapters and usecases pass context.Context through
// without the domain package importing anything beyond the stdlib.
type Context = context.Context
