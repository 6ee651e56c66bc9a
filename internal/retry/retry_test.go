package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("busy")

func fastOptions(maxRetries int) Options {
	return Options{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	var attempts []int
	v, err := Do(context.Background(), func(attempt int) (string, error) {
		attempts = append(attempts, attempt)
		if attempt < 2 {
			return "", errBusy
		}
		return "ok", nil
	}, fastOptions(3))

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	var logged []string
	opts := fastOptions(2)
	opts.Logger = func(format string, args ...interface{}) { logged = append(logged, format) }

	_, err := Do(context.Background(), func(int) (int, error) {
		calls++
		return 0, errBusy
	}, opts)

	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 3, calls)
	assert.Contains(t, logged, "Max retries exceeded (%d attempts): %v")
}

func TestDoNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	opts := fastOptions(5)
	opts.IsRetryable = func(err error) bool { return errors.Is(err, errBusy) }

	calls := 0
	_, err := Do(context.Background(), func(int) (int, error) {
		calls++
		return 0, fatal
	}, opts)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := fastOptions(10)
	opts.InitialDelay = time.Hour
	opts.MaxDelay = time.Hour

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, func(int) (int, error) { return 0, errBusy }, opts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithoutRetries(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), func(int) (int, error) {
		calls++
		return 0, errBusy
	}, Options{})
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 1, calls)
}
