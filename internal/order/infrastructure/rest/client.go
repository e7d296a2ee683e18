// Package rest holds the HTTP clients for the product and customer services.
// For reads, transport errors and 5xx responses are retried with backoff
// inside the client; a definitive 404 is never retried and maps to the
// matching not-found error, so callers can tell "absent" from "unreachable".
// The stock decrement is sent exactly once per call: it mutates remote state,
// so a lost response must surface as an error instead of a blind resend.
package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	requestTimeout = 5 * time.Second
	retryMax       = 2 // attempts = retryMax + 1
	retryWaitMin   = 500 * time.Millisecond
	retryWaitMax   = 4 * time.Second
)

func newRetryingClient(log *slog.Logger) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = retryWaitMin
	c.RetryWaitMax = retryWaitMax
	c.HTTPClient.Timeout = requestTimeout
	c.Logger = leveledLogger{log}
	return c
}

// newOneShotClient is for the mutating calls: one attempt, no client-side
// retries. Redelivery of the triggering event is the only retry path, and it
// is deduplicated by the idempotency key the caller sends along.
func newOneShotClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// leveledLogger adapts slog to retryablehttp's LeveledLogger.
type leveledLogger struct{ log *slog.Logger }

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Error(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Warn(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Debug(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Debug(msg, kv...) }
