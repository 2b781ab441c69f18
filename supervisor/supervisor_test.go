package supervisor_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xapi-project/xapi-storage-script/plugin"
	"github.com/xapi-project/xapi-storage-script/supervisor"
	"github.com/xapi-project/xapi-storage-script/watch"
)

// fakeRegistrar records every register/unregister call it receives.
type fakeRegistrar struct {
	mu         sync.Mutex
	registered []string
}

func (f *fakeRegistrar) Register(ctx context.Context, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, name)
}

func (f *fakeRegistrar) Unregister(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.registered {
		if n == name {
			f.registered = append(f.registered[:i], f.registered[i+1:]...)
			return
		}
	}
}

func (f *fakeRegistrar) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.registered))
	copy(out, f.registered)
	return out
}

var _ watch.Registrar = (*fakeRegistrar)(nil)

func TestSupervisorRegistersPluginsPresentAtStartup(t *testing.T) {
	root := t.TempDir()
	resolver := plugin.NewResolver(root)
	require.NoError(t, os.MkdirAll(filepath.Join(resolver.VolumeRoot, "zfs"), 0755))
	require.NoError(t, os.MkdirAll(resolver.DatapathRoot, 0755))

	volumeReg := &fakeRegistrar{}
	datapathReg := &fakeRegistrar{}
	super := supervisor.New(resolver, volumeReg, datapathReg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- super.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		for _, n := range volumeReg.names() {
			if n == "zfs" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after context cancellation")
	}
}
