// Package watch implements the Plugin Watcher (§4.7): it follows the
// volume and datapath plugin roots for directory create/remove events and
// drives registration/unregistration of the plugins found there. Each
// root is watched independently and concurrently; either one can restart
// without disturbing the other.
package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// ErrEOF is returned by Run when fsnotify's Events or Errors channel
// closes out from under it — the kernel inotify instance backing the
// watch went away. This is distinct from a watcher restarting after a
// transient error: it is fatal, and the caller must exit the process.
var ErrEOF = errors.New("watch: event channel closed (EOF)")

// Registrar is notified as plugin directories come and go. Both
// datapath.Registry and the daemon's per-volume-plugin queue manager
// satisfy this.
type Registrar interface {
	Register(ctx context.Context, name string)
	Unregister(name string)
}

// Watcher follows one plugin root directory.
type Watcher struct {
	root string
	reg  Registrar
	log  *log.Entry
}

// New builds a Watcher over root, reporting arrivals and departures to reg.
func New(root string, reg Registrar) *Watcher {
	return &Watcher{
		root: root,
		reg:  reg,
		log:  log.WithField("root", root),
	}
}

// list returns the current plugin directory names under root, ignoring
// entries that are not directories.
func list(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Reconcile compares the set of plugins currently registered (have) against
// the set that should be registered (want) and returns the two action
// lists needed to converge: names to register and names to unregister. It
// is a pure function, independently testable without a filesystem or an
// fsnotify channel, as used for the watcher's full-rescan path (a
// fsnotify.Errors delivery, or an initial scan at startup).
func Reconcile(have, want []string) (toRegister, toUnregister []string) {
	haveSet := make(map[string]bool, len(have))
	for _, n := range have {
		haveSet[n] = true
	}
	wantSet := make(map[string]bool, len(want))
	for _, n := range want {
		wantSet[n] = true
	}

	for _, n := range want {
		if !haveSet[n] {
			toRegister = append(toRegister, n)
		}
	}
	for _, n := range have {
		if !wantSet[n] {
			toUnregister = append(toUnregister, n)
		}
	}
	sort.Strings(toRegister)
	sort.Strings(toUnregister)
	return toRegister, toUnregister
}

// Run starts the watch loop. It performs an initial full reconciliation
// against an empty "have" set (registering every plugin already present at
// startup), then watches root for fsnotify events until the stop
// channel is closed or the event channel itself closes (e.g. the kernel
// inotify instance running out of watches). It returns when the loop
// exits: nil if stop was the cause, ErrEOF if the fsnotify channel
// closed, or another error if the watcher could not even start.
func (w *Watcher) Run(ctx context.Context, stop <-chan struct{}) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.root); err != nil {
		return err
	}

	return w.watchLoop(ctx, stop, fsw.Events, fsw.Errors)
}

// watchLoop is Run's event-processing core, taking the fsnotify channels
// as parameters rather than reaching into a live fsnotify.Watcher so it
// can be driven by closed fake channels in tests, exercising the EOF path
// without a real inotify instance.
func (w *Watcher) watchLoop(ctx context.Context, stop <-chan struct{}, events <-chan fsnotify.Event, errs <-chan error) error {
	registered := make(map[string]bool)

	rescan := func() {
		want, err := list(w.root)
		if err != nil {
			w.log.WithError(err).Error("failed to list plugin root during rescan")
			return
		}
		var have []string
		for n := range registered {
			have = append(have, n)
		}
		toRegister, toUnregister := Reconcile(have, want)
		for _, n := range toRegister {
			w.log.WithField("plugin", n).Info("registering plugin")
			w.reg.Register(ctx, n)
			registered[n] = true
		}
		for _, n := range toUnregister {
			w.log.WithField("plugin", n).Info("unregistering plugin")
			w.reg.Unregister(n)
			delete(registered, n)
		}
	}

	rescan()

	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-events:
			if !ok {
				return ErrEOF
			}
			name := filepath.Base(ev.Name)
			switch {
			case ev.Op&(fsnotify.Create) != 0:
				info, err := os.Stat(ev.Name)
				if err != nil || !info.IsDir() {
					continue
				}
				if !registered[name] {
					w.log.WithField("plugin", name).Info("registering plugin")
					w.reg.Register(ctx, name)
					registered[name] = true
				}
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if registered[name] {
					w.log.WithField("plugin", name).Info("unregistering plugin")
					w.reg.Unregister(name)
					delete(registered, name)
				}
			}
		case err, ok := <-errs:
			if !ok {
				return ErrEOF
			}
			w.log.WithError(err).Warn("watch error, forcing full rescan")
			rescan()
		}
	}
}
