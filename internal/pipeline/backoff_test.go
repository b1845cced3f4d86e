package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		current time.Duration
		want    time.Duration
	}{
		{5 * time.Second, 10 * time.Second},
		{20 * time.Second, 40 * time.Second},
		{40 * time.Second, time.Minute},
		{time.Minute, time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextBackoff(tt.current, maxBackoff), "from %s", tt.current)
	}
}

func TestSleepWithContext(t *testing.T) {
	clock := clockwork.NewFakeClock()

	t.Run("zero duration", func(t *testing.T) {
		assert.True(t, sleepWithContext(context.Background(), clock, 0))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.False(t, sleepWithContext(ctx, clock, time.Second))
		assert.False(t, sleepWithContext(ctx, clock, 0))
	})

	t.Run("timer fires", func(t *testing.T) {
		done := make(chan bool, 1)
		go func() { done <- sleepWithContext(context.Background(), clock, time.Second) }()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Second)
		assert.True(t, <-done)
	})
}
