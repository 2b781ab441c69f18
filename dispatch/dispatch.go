// Package dispatch implements the Operation Dispatch engine (§4.6): the
// translation table from each inbound high-level RPC method to its script
// composition, including the clone-on-boot choreography.
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/xapi-project/xapi-storage-script/datapath"
	"github.com/xapi-project/xapi-storage-script/index"
	"github.com/xapi-project/xapi-storage-script/metrics"
	"github.com/xapi-project/xapi-storage-script/plugin"
	"github.com/xapi-project/xapi-storage-script/rpcerror"
	"github.com/xapi-project/xapi-storage-script/script"
)

// Dispatcher is the per-volume-plugin handler bound to one switch queue.
// One Dispatcher is created per registered volume plugin by the watcher.
type Dispatcher struct {
	resolver   plugin.Resolver
	pluginName string
	index      *index.Index
	registry   *datapath.Registry
	metricsReg *metrics.Registrar
	log        *log.Entry
}

// New builds a Dispatcher for pluginName, the volume plugin this queue is
// bound to.
func New(resolver plugin.Resolver, pluginName string, idx *index.Index, registry *datapath.Registry, metricsReg *metrics.Registrar) *Dispatcher {
	return &Dispatcher{
		resolver:   resolver,
		pluginName: pluginName,
		index:      idx,
		registry:   registry,
		metricsReg: metricsReg,
		log:        log.WithField("plugin", pluginName),
	}
}

// handlerFunc is the shape of every method's implementation: decode the
// single params object, do the work, return the result value.
type handlerFunc func(ctx context.Context, d *Dispatcher, params json.RawMessage) (interface{}, *rpcerror.Error)

var methodTable = map[string]handlerFunc{
	"Query.query":               handleQueryQuery,
	"Query.diagnostics":         handleQueryDiagnostics,
	"SR.attach":                 handleSRAttach,
	"SR.detach":                 handleSRDetach,
	"SR.probe":                  handleSRProbe,
	"SR.create":                 handleSRCreate,
	"SR.set_name_label":         handleSRSetNameLabel,
	"SR.set_name_description":   handleSRSetNameDescription,
	"SR.destroy":                handleSRDestroy,
	"SR.scan":                   handleSRScan,
	"SR.stat":                   handleSRStat,
	"VDI.create":                handleVDICreate,
	"VDI.destroy":               handleVDIDestroy,
	"VDI.snapshot":              handleVDISnapshot,
	"VDI.clone":                 handleVDIClone,
	"VDI.set_name_label":        handleVDISetNameLabel,
	"VDI.set_name_description":  handleVDISetNameDescription,
	"VDI.resize":                handleVDIResize,
	"VDI.stat":                  handleVDIStat,
	"VDI.introduce":             handleVDIStat,
	"VDI.attach":                handleVDIAttach,
	"VDI.activate":              handleVDIActivate,
	"VDI.deactivate":            handleVDIDeactivate,
	"VDI.detach":                handleVDIDetach,
	"VDI.epoch_begin":           handleVDIEpochBegin,
	"VDI.epoch_end":             handleVDIEpochEnd,
	"VDI.set_persistent":        handleVDISetPersistent,
}

// Dispatch decodes params (the single object from the inbound call's
// params array) and runs the handler for method. Unknown method names
// fail UNIMPLEMENTED, per §4.6 and the first testable property in §8.
//
// Each call is tagged with a fresh correlation id on the dispatcher's own
// log entries for it, so that overlapping requests to one plugin can be
// told apart in the log. The log entries written by the script layer do
// not carry this id.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, *rpcerror.Error) {
	entry := d.log.WithFields(log.Fields{"call_id": uuid.New().String(), "method": method})

	handler, ok := methodTable[method]
	if !ok {
		entry.Warn("no handler registered for method")
		return nil, rpcerror.UnimplementedErr(method)
	}

	entry.Debug("dispatching")
	result, rpcErr := handler(ctx, d, params)
	if rpcErr != nil {
		entry.WithField("code", rpcErr.Code).Debug("dispatch failed")
	} else {
		entry.Debug("dispatch succeeded")
	}
	return result, rpcErr
}

func decodeParams(params json.RawMessage, out interface{}) *rpcerror.Error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return rpcerror.ScriptFailedErr("decoding params: " + err.Error())
	}
	return nil
}

// runVolume invokes operation on this dispatcher's own volume plugin.
func (d *Dispatcher) runVolume(ctx context.Context, operation string, req, resp interface{}) *rpcerror.Error {
	path := d.resolver.ScriptPath(plugin.Volume, d.pluginName, operation)
	workDir := d.resolver.PluginDir(plugin.Volume, d.pluginName)
	return script.Run(ctx, path, workDir, req, resp)
}

// runDatapath invokes operation on the named datapath plugin. The volume
// dispatcher reaches into the sibling datapath root via the resolver's
// fixed parent-of-root relationship (§4.2).
func (d *Dispatcher) runDatapath(ctx context.Context, name, operation string, req, resp interface{}) *rpcerror.Error {
	path := d.resolver.ScriptPath(plugin.Datapath, name, operation)
	workDir := d.resolver.PluginDir(plugin.Datapath, name)
	return script.Run(ctx, path, workDir, req, resp)
}

// requireSRID resolves an SR handle to its backend identifier, or fails
// SR_NOT_ATTACHED.
func (d *Dispatcher) requireSRID(handle string) (string, *rpcerror.Error) {
	return d.index.Find(handle)
}
