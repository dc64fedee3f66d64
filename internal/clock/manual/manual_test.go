package manual

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockSleepAdvances(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := New(start)
	require.NoError(t, clk.Sleep(context.Background(), time.Second))
	clk.Advance(2 * time.Second)
	require.Equal(t, start.Add(3*time.Second), clk.Now())
	require.Equal(t, []time.Duration{time.Second}, clk.Slept())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, clk.Sleep(ctx, time.Second), context.Canceled)
}
