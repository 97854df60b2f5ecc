package notifications

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/sony/gobreaker"
)

// BreakerConfig configures per-channel circuit breakers.
// A zero FailureThreshold disables breaking.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// breakers keeps one circuit breaker per channel kind so a provider outage
// fails fast instead of consuming the adapter timeout on every attempt.
type breakers struct {
	config BreakerConfig

	mu sync.Mutex
	m  map[domain.ChannelKind]*gobreaker.CircuitBreaker
}

func newBreakers(config BreakerConfig) *breakers {
	if config.FailureThreshold == 0 {
		return nil
	}
	return &breakers{
		config: config,
		m:      make(map[domain.ChannelKind]*gobreaker.CircuitBreaker),
	}
}

func (b *breakers) get(kind domain.ChannelKind) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.m[kind]; ok {
		return cb
	}

	threshold := b.config.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(kind),
		MaxRequests: b.config.MaxRequests,
		Interval:    b.config.Interval,
		Timeout:     b.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Permanent errors are caused by the destination, not the provider.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("channel circuit breaker state changed", "channel", name, "from", from.String(), "to", to.String())
		},
	})
	b.m[kind] = cb
	return cb
}

// run executes send through the breaker for kind. A nil receiver calls send directly.
func (b *breakers) run(kind domain.ChannelKind, send func() Result) Result {
	if b == nil {
		return send()
	}

	var res Result
	_, err := b.get(kind).Execute(func() (interface{}, error) {
		res = send()
		if res.Success {
			return nil, nil
		}
		return nil, &RetryableError{Err: errors.New(res.Error), Retryable: res.Retryable}
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Result{Error: fmt.Sprintf("%s circuit open: %v", kind, err), Retryable: true}
	}
	return res
}
