// Package supervisor implements the Daemon Supervisor (§4.8): it starts
// the volume and datapath Plugin Watchers concurrently, restarts either
// one if its watch loop exits unexpectedly, and drains everything on a
// clean shutdown request.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xapi-project/xapi-storage-script/datapath"
	"github.com/xapi-project/xapi-storage-script/dispatch"
	"github.com/xapi-project/xapi-storage-script/index"
	"github.com/xapi-project/xapi-storage-script/metrics"
	"github.com/xapi-project/xapi-storage-script/plugin"
	"github.com/xapi-project/xapi-storage-script/switchbus"
	"github.com/xapi-project/xapi-storage-script/watch"
)

// RestartBackoff is the fixed delay before restarting a watch loop that
// exited on its own, per §4.8.
const RestartBackoff = 5 * time.Second

// VolumeQueues implements watch.Registrar for the volume plugin root: each
// registration builds a Dispatcher for the plugin and binds it onto the
// message switch under a queue named after the plugin directory; each
// unregistration tears the binding down.
type VolumeQueues struct {
	resolver   plugin.Resolver
	idx        *index.Index
	registry   *datapath.Registry
	metricsReg *metrics.Registrar
	sw         *switchbus.Switch
}

// NewVolumeQueues builds the volume-plugin side of the Plugin Watcher.
func NewVolumeQueues(resolver plugin.Resolver, idx *index.Index, registry *datapath.Registry, metricsReg *metrics.Registrar, sw *switchbus.Switch) *VolumeQueues {
	return &VolumeQueues{
		resolver:   resolver,
		idx:        idx,
		registry:   registry,
		metricsReg: metricsReg,
		sw:         sw,
	}
}

// Register builds a Dispatcher for name and binds it as a queue, per the
// Plugin Watcher's "register(name) binds a new RPC service on queue
// basename(name)".
func (v *VolumeQueues) Register(ctx context.Context, name string) {
	d := dispatch.New(v.resolver, name, v.idx, v.registry, v.metricsReg)
	v.sw.Bind(name, d.Dispatch)
}

// Unregister tears down the queue previously bound to name.
func (v *VolumeQueues) Unregister(name string) {
	v.sw.Unbind(name)
}

// DatapathQueues implements watch.Registrar for the datapath plugin root:
// each registration/unregistration simply delegates to the capability
// registry, since datapath plugins are never themselves bound as switch
// queues (§4.4 — they are only ever called out to by the volume queue's
// dispatcher).
type DatapathQueues struct {
	registry *datapath.Registry
}

// NewDatapathQueues adapts registry onto watch.Registrar.
func NewDatapathQueues(registry *datapath.Registry) *DatapathQueues {
	return &DatapathQueues{registry: registry}
}

func (d *DatapathQueues) Register(ctx context.Context, name string) {
	d.registry.Register(ctx, name)
}

func (d *DatapathQueues) Unregister(name string) {
	d.registry.Unregister(name)
}

// watchRunner is the subset of *watch.Watcher the supervisor depends on;
// pulled out as an interface so tests can substitute a fake that returns
// watch.ErrEOF without a real fsnotify instance.
type watchRunner interface {
	Run(ctx context.Context, stop <-chan struct{}) error
}

// Supervisor owns the two Plugin Watchers and keeps them running for the
// daemon's lifetime.
type Supervisor struct {
	volumeWatcher   watchRunner
	datapathWatcher watchRunner
	log             *log.Entry
}

// New builds a Supervisor over the two plugin roots resolved by resolver.
func New(resolver plugin.Resolver, volumeReg, datapathReg watch.Registrar) *Supervisor {
	return &Supervisor{
		volumeWatcher:   watch.New(resolver.VolumeRoot, volumeReg),
		datapathWatcher: watch.New(resolver.DatapathRoot, datapathReg),
		log:             log.WithField("component", "supervisor"),
	}
}

// Run blocks until ctx is cancelled or a watcher hits EOF on its
// underlying event channel, restarting either watch loop RestartBackoff
// after it exits on its own for any other reason. It returns watch.ErrEOF
// if that's what stopped it, so the caller can exit the process with
// status 1; it returns nil on an ordinary ctx-cancellation shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	innerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	fatal := make(chan error, 2)
	go s.superviseLoop(innerCtx, cancel, &wg, "volume", s.volumeWatcher, fatal)
	go s.superviseLoop(innerCtx, cancel, &wg, "datapath", s.datapathWatcher, fatal)
	wg.Wait()

	select {
	case err := <-fatal:
		return err
	default:
		return nil
	}
}

func (s *Supervisor) superviseLoop(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, name string, w watchRunner, fatal chan<- error) {
	defer wg.Done()
	entry := s.log.WithField("watcher", name)
	for {
		stop := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- w.Run(ctx, stop)
		}()

		select {
		case <-ctx.Done():
			close(stop)
			<-done
			entry.Info("watcher stopped")
			return
		case err := <-done:
			if errors.Is(err, watch.ErrEOF) {
				entry.WithError(err).Error("watch pipe EOF, stopping daemon")
				fatal <- err
				cancel()
				return
			}
			if err != nil {
				entry.WithError(err).Warn("watch loop exited, restarting after backoff")
			} else {
				entry.Warn("watch loop exited cleanly, restarting after backoff")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(RestartBackoff):
			}
		}
	}
}
