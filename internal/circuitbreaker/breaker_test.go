package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/storefront-cart/internal/logger"
)

var errBoom = errors.New("boom")

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	b := New[int]("test", Config{ConsecutiveFailures: 2, OpenTimeout: time.Minute, HalfOpenRequests: 1}, logger.Discard(), nil)

	calls := 0
	fail := func() (int, error) { calls++; return 0, errBoom }

	_, err := b.Do(fail)
	assert.ErrorIs(t, err, errBoom)
	_, err = b.Do(fail)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, "open", b.State())

	_, err = b.Do(fail)
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, 2, calls, "open breaker must not call through")
}

func TestBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	errClient := errors.New("client side")
	b := New[int]("test", Config{ConsecutiveFailures: 1, OpenTimeout: time.Minute}, nil, func(err error) bool {
		return err != nil && !errors.Is(err, errClient)
	})

	for i := 0; i < 3; i++ {
		_, err := b.Do(func() (int, error) { return 7, errClient })
		assert.ErrorIs(t, err, errClient)
	}
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_ReturnsResultWithError(t *testing.T) {
	b := New[string]("test", DefaultConfig(), nil, nil)
	res, err := b.Do(func() (string, error) { return "partial", errBoom })
	assert.Equal(t, "partial", res)
	assert.ErrorIs(t, err, errBoom)
}

func TestBreaker_Disabled(t *testing.T) {
	b := New[int]("off", Config{}, nil, nil)
	for i := 0; i < 10; i++ {
		_, err := b.Do(func() (int, error) { return 0, errBoom })
		require.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, "disabled", b.State())
}
