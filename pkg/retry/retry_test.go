package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRetriesUntilSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return errors.New("still failing")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}

	terminal := errors.New("bad api key")
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return Permanent(terminal)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func() error {
		calls++
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.Less(t, calls, 10)
}
