package ingest

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateAdmitsOneAtATime(t *testing.T) {
	g := new(Gate)

	require.True(t, g.TryAcquire())
	assert.True(t, g.Running())
	assert.False(t, g.TryAcquire())

	g.Release()
	assert.False(t, g.Running())
	assert.True(t, g.TryAcquire())
}

func TestGateUnderContention(t *testing.T) {
	g := new(Gate)

	var wg sync.WaitGroup
	var admitted atomic.Int32
	start := make(chan struct{})
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if g.TryAcquire() {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
}
