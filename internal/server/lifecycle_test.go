package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type blockingService struct {
	started atomic.Bool
	stopped atomic.Bool
	done    chan struct{}
}

func newBlockingService() *blockingService {
	return &blockingService{done: make(chan struct{})}
}

func (s *blockingService) Start() error {
	s.started.Store(true)
	<-s.done
	return nil
}

func (s *blockingService) Stop() {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.done)
	}
}

func TestLifecycle_RunStopsOnContextCancel(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())
	svc := newBlockingService()
	lc.Add("svc", svc)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	require.NoError(t, lc.Run(ctx))
	assert.True(t, svc.started.Load())
	assert.True(t, svc.stopped.Load())
}

func TestLifecycle_ServiceFailureTriggersShutdown(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())

	healthy := newBlockingService()
	lc.Add("healthy", healthy)
	lc.Add("broken", &FuncService{
		StartFn: func() error { return assert.AnError },
		StopFn:  func() {},
	})

	require.NoError(t, lc.Run(context.Background()))
	assert.True(t, healthy.stopped.Load())
}

func TestLifecycle_StopOrderReversed(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name // per-iteration copy; module was authored for Go >= 1.22 loop semantics
		lc.Add(name, &FuncService{
			StartFn: func() error { select {} },
			StopFn: func() {
				order = append(order, name)
			},
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, lc.Run(ctx))

	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestLifecycle_ShutdownIdempotent(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())
	var stops int
	lc.Add("svc", &FuncService{
		StartFn: func() error { select {} },
		StopFn:  func() { stops++ },
	})

	lc.Shutdown()
	lc.Shutdown()
	assert.Equal(t, 1, stops)
}
