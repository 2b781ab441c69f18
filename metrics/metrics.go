// Package metrics adapts the external metric-registration service
// referenced by §4.6's SR.attach choreography onto a local Prometheus
// registry: each xeno+shm data source becomes a scraped gauge, refreshed
// on a fixed 5-second cadence.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// ScanInterval is the fixed cadence for local data source registration.
const ScanInterval = 5 * time.Second

// Registrar publishes local data sources discovered during SR.attach.
// Errors from it are logged but never fail the attach, per §7's
// propagation policy.
type Registrar struct {
	reg *prometheus.Registry

	mu      sync.Mutex
	sources map[string]*localSource
}

type localSource struct {
	gauge prometheus.Gauge
	stop  chan struct{}
}

// New builds a Registrar that publishes onto reg.
func New(reg *prometheus.Registry) *Registrar {
	return &Registrar{
		reg:     reg,
		sources: make(map[string]*localSource),
	}
}

// sanitize turns an arbitrary data source UID/path into a Prometheus-safe
// metric name fragment.
func sanitize(s string) string {
	s = strings.TrimPrefix(s, "/")
	replacer := strings.NewReplacer("/", "_", "-", "_", ".", "_")
	return replacer.Replace(s)
}

// RegisterLocal registers uid (the leading-slash-stripped xeno+shm path) as
// a local data source and starts refreshing it every ScanInterval until
// Deregister is called.
func (r *Registrar) RegisterLocal(uid string) error {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "xapi_storage_script",
		Subsystem:   "datasource",
		Name:        "registered_" + sanitize(uid),
		Help:        "Whether the local data source " + uid + " is currently registered.",
		ConstLabels: prometheus.Labels{"uid": uid},
	})
	if err := r.reg.Register(gauge); err != nil {
		return err
	}
	gauge.Set(1)

	src := &localSource{gauge: gauge, stop: make(chan struct{})}

	r.mu.Lock()
	r.sources[uid] = src
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(ScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-src.stop:
				return
			case <-ticker.C:
				gauge.Set(1)
			}
		}
	}()

	return nil
}

// Deregister stops refreshing and unpublishes uid.
func (r *Registrar) Deregister(uid string) error {
	r.mu.Lock()
	src, ok := r.sources[uid]
	if ok {
		delete(r.sources, uid)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	close(src.stop)
	r.reg.Unregister(src.gauge)
	return nil
}

// LogRegisterErr logs a registration failure without treating it as fatal,
// matching §7: "Errors from the metric-registration service during
// SR.attach are logged but do not fail the attach."
func LogRegisterErr(uid string, err error) {
	log.WithFields(log.Fields{
		"error": err,
		"uid":   uid,
	}).Warn("failed to register local data source")
}
