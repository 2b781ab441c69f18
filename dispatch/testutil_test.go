package dispatch_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/xapi-project/xapi-storage-script/datapath"
	"github.com/xapi-project/xapi-storage-script/dispatch"
	"github.com/xapi-project/xapi-storage-script/index"
	"github.com/xapi-project/xapi-storage-script/metrics"
	"github.com/xapi-project/xapi-storage-script/plugin"
)

// harness wires up a Dispatcher bound to one volume plugin, over a fresh
// temporary plugin root and index, for one test.
type harness struct {
	t          *testing.T
	root       string
	resolver   plugin.Resolver
	registry   *datapath.Registry
	metricsReg *metrics.Registrar
	idx        *index.Index
	dispatcher *dispatch.Dispatcher
}

const testVolumePlugin = "testvol"

func newHarness(t *testing.T) *harness {
	root := t.TempDir()
	resolver := plugin.NewResolver(root)

	require.NoError(t, os.MkdirAll(resolver.PluginDir(plugin.Volume, testVolumePlugin), 0755))
	require.NoError(t, os.MkdirAll(resolver.DatapathRoot, 0755))

	idx, err := index.Open(filepath.Join(root, "state"))
	require.Nil(t, err)

	registry := datapath.NewRegistry(resolver)
	metricsReg := metrics.New(prometheus.NewRegistry())

	d := dispatch.New(resolver, testVolumePlugin, idx, registry, metricsReg)

	return &harness{
		t:          t,
		root:       root,
		resolver:   resolver,
		registry:   registry,
		metricsReg: metricsReg,
		idx:        idx,
		dispatcher: d,
	}
}

// attachSR seeds the index as though SR.attach had already run, for tests
// that exercise VDI operations without re-testing the attach choreography
// itself.
func (h *harness) attachSR(handle, backendSRID string) {
	require.Nil(h.t, h.idx.Add(handle, backendSRID, nil))
}

// volumeScript writes body as an executable script for operation in this
// harness's volume plugin.
func (h *harness) volumeScript(operation, body string) {
	path := h.resolver.ScriptPath(plugin.Volume, testVolumePlugin, operation)
	require.NoError(h.t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
}

// datapathScript writes body as an executable script for operation in a
// datapath plugin named name, and registers it.
func (h *harness) datapathScript(name, operation, body string) {
	dir := h.resolver.PluginDir(plugin.Datapath, name)
	require.NoError(h.t, os.MkdirAll(dir, 0755))
	path := h.resolver.ScriptPath(plugin.Datapath, name, operation)
	require.NoError(h.t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
}

func cat(obj interface{}) string {
	body, err := json.Marshal(obj)
	if err != nil {
		panic(err)
	}
	return "cat <<'EOF'\n" + string(body) + "\nEOF\n"
}

func mustJSON(v interface{}) []byte {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return body
}

func mustUnmarshal(body []byte, out interface{}) {
	if err := json.Unmarshal(body, out); err != nil {
		panic(err)
	}
}
