package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	log "github.com/sirupsen/logrus"

	"github.com/xapi-project/xapi-storage-script/watch"
)

// eofWatcher returns watch.ErrEOF the first time Run is called and blocks
// on subsequent calls, as a restarted watcher never would in this test.
type eofWatcher struct {
	mu    sync.Mutex
	calls int
}

func (e *eofWatcher) Run(ctx context.Context, stop <-chan struct{}) error {
	e.mu.Lock()
	e.calls++
	first := e.calls == 1
	e.mu.Unlock()
	if first {
		return watch.ErrEOF
	}
	<-ctx.Done()
	return nil
}

// blockingWatcher runs until its context is cancelled, like a healthy
// watcher with nothing to report.
type blockingWatcher struct{}

func (blockingWatcher) Run(ctx context.Context, stop <-chan struct{}) error {
	<-ctx.Done()
	return nil
}

func TestSupervisorRunReturnsErrEOFAndStopsSiblingWatcher(t *testing.T) {
	s := &Supervisor{
		volumeWatcher:   &eofWatcher{},
		datapathWatcher: blockingWatcher{},
		log:             log.WithField("component", "supervisor-test"),
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background())
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, watch.ErrEOF))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after a watcher hit EOF")
	}
}
