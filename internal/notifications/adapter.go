package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
)

// Message is a rendered notification addressed to one destination.
type Message struct {
	// To is the channel-specific destination: phone number, email address,
	// webhook URL, chat channel id, or user id for push.
	To            string
	DeviceTokens  []string
	SigningSecret string
	Subject       string
	Body          string
	Event         EventKind
	Incident      IncidentSnapshot
}

// Result is the outcome reported by an adapter. Adapters never return errors.
type Result struct {
	Success   bool
	Error     string
	Retryable bool
}

// Delivered returns a successful result.
func Delivered() Result {
	return Result{Success: true}
}

// ResultFromError folds an adapter error into a Result.
func ResultFromError(err error) Result {
	if err == nil {
		return Delivered()
	}
	return Result{Error: err.Error(), Retryable: IsRetryable(err)}
}

// Adapter delivers messages over one transport.
type Adapter interface {
	Kind() domain.ChannelKind
	// Enabled reports whether the provider is globally configured.
	Enabled() bool
	Send(ctx context.Context, msg Message) Result
}

// sendBounded calls the adapter and gives up after timeout even if the adapter ignores ctx.
func sendBounded(ctx context.Context, adapter Adapter, msg Message, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("adapter panicked", "channel", adapter.Kind(), "panic", r)
				done <- Result{Error: fmt.Sprintf("adapter panic: %v", r)}
			}
		}()
		done <- adapter.Send(ctx, msg)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{Error: fmt.Sprintf("adapter timed out after %s", timeout), Retryable: true}
		}
		return Result{Error: ctx.Err().Error(), Retryable: true}
	}
}
