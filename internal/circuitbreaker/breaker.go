package circuitbreaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

// ErrOpen is returned without calling the protected function while the
// breaker rejects requests.
var ErrOpen = errors.New("circuit breaker open")

type Config struct {
	// ConsecutiveFailures trips the breaker. Zero disables the breaker.
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
	HalfOpenRequests    uint32        `yaml:"half_open_requests"`
	Interval            time.Duration `yaml:"interval"`
}

func DefaultConfig() Config {
	return Config{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
		Interval:            time.Minute,
	}
}

type Breaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New creates a breaker. isFailure decides which errors count against the
// breaker; nil means every error does.
func New[T any](name string, cfg Config, log logrus.FieldLogger, isFailure func(error) bool) *Breaker[T] {
	if cfg.ConsecutiveFailures == 0 {
		return &Breaker[T]{}
	}
	if isFailure == nil {
		isFailure = func(err error) bool { return err != nil }
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return !isFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log != nil {
				log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
					Warn("circuit breaker state changed")
			}
		},
	}
	return &Breaker[T]{cb: gobreaker.NewCircuitBreaker[T](st)}
}

// Do runs fn through the breaker. The result of fn is returned even when
// fn reports an error.
func (b *Breaker[T]) Do(fn func() (T, error)) (T, error) {
	if b == nil || b.cb == nil {
		return fn()
	}
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return res, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return res, err
}

func (b *Breaker[T]) State() string {
	if b == nil || b.cb == nil {
		return "disabled"
	}
	return b.cb.State().String()
}
