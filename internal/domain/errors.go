package domain

import (
	"errors"
	"fmt"
)

// ConfigurationError reports missing or invalid connector credentials.
// It is fatal and surfaced to the caller immediately; no retry helps.
type ConfigurationError struct {
	Provider Provider
	Field    string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error for %s (field %q): %s", e.Provider, e.Field, e.Reason)
	}
	return fmt.Sprintf("configuration error for %s: %s", e.Provider, e.Reason)
}

// AuthError reports an expired or invalid token. Callers should attempt
// a token refresh before treating it as terminal.
type AuthError struct {
	Provider Provider
	Reason   string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error for %s: %s", e.Provider, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// WebhookAuthError reports a webhook signature mismatch. The event must
// be dropped and never applied or retried automatically.
type WebhookAuthError struct {
	Provider Provider
	Reason   string
}

func (e *WebhookAuthError) Error() string {
	return fmt.Sprintf("webhook auth error for %s: %s", e.Provider, e.Reason)
}

// TransientProviderError reports a timeout or 5xx from the provider.
// Retryable by the caller with backoff.
type TransientProviderError struct {
	Provider   Provider
	StatusCode int
	Err        error
}

func (e *TransientProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient provider error for %s (status %d)", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("transient provider error for %s: %v", e.Provider, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// ItemProcessingError reports a single item failing transformation
// inside a batch. The batch continues; the failure is counted.
type ItemProcessingError struct {
	Provider   Provider
	ExternalID string
	Reason     string
	Err        error
}

func (e *ItemProcessingError) Error() string {
	return fmt.Sprintf("item %s from %s failed: %s", e.ExternalID, e.Provider, e.Reason)
}

func (e *ItemProcessingError) Unwrap() error { return e.Err }

// IsTransient reports whether the error chain contains a retryable
// provider failure.
func IsTransient(err error) bool {
	var te *TransientProviderError
	return errors.As(err, &te)
}

// IsWebhookAuth reports whether the error chain contains a webhook
// signature failure.
func IsWebhookAuth(err error) bool {
	var we *WebhookAuthError
	return errors.As(err, &we)
}
