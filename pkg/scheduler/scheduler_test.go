package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestEveryRunsUntilStopped(t *testing.T) {
	defer goleak.VerifyNone(t)

	var n atomic.Int32
	s := New()
	s.Every(5*time.Millisecond, true, FuncJob(func(ctx context.Context) { n.Add(1) }))

	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	stopped := n.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, n.Load())
}

func TestCronAddAndRecover(t *testing.T) {
	c := NewCron(time.UTC)
	id, err := c.Add("@every 1h", FuncJob(func(ctx context.Context) { panic("boom") }))
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, c.Entries(), 1)

	_, err = c.Add("not a schedule", FuncJob(func(ctx context.Context) {}))
	assert.Error(t, err)

	c.Start()
	c.Stop()
}
