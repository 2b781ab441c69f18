package dispatch

import (
	"context"
	"encoding/json"

	"github.com/xapi-project/xapi-storage-script/plugin"
	"github.com/xapi-project/xapi-storage-script/rpcerror"
	"github.com/xapi-project/xapi-storage-script/script"
)

// probedOperation maps an operation whose existence is probed (but not
// run) by Query.query onto the SMAPIv2 capability name it implies. Beyond
// the named VDI_DESTROY -> VDI_DELETE and VDI_CLONE ->
// VDI_RESET_ON_BOOT/2 translations, this table follows the same
// <OBJECT>_<VERB> naming convention for every other probed operation (see
// DESIGN.md's Open Question log).
var probedOperation = []struct {
	op         string
	capability string
}{
	{"SR.attach", "SR_ATTACH"},
	{"SR.create", "SR_CREATE"},
	{"SR.destroy", "SR_DESTROY"},
	{"SR.detach", "SR_DETACH"},
	{"SR.ls", "SR_SCAN"},
	{"SR.stat", "SR_UPDATE"},
	{"Volume.create", "VDI_CREATE"},
	{"Volume.clone", "VDI_CLONE"},
	{"Volume.snapshot", "VDI_SNAPSHOT"},
	{"Volume.resize", "VDI_RESIZE"},
	{"Volume.destroy", "VDI_DELETE"},
	{"Volume.stat", "VDI_UPDATE"},
}

// unconditionalFeatures are always present regardless of what the plugin
// declares or exposes, per §4.6's Query.query row.
var unconditionalFeatures = []string{
	"VDI_ATTACH",
	"VDI_DETACH",
	"VDI_ACTIVATE",
	"VDI_DEACTIVATE",
	"VDI_INTRODUCE",
}

const (
	featureVDIDestroy      = "VDI_DESTROY"
	featureVDIDelete       = "VDI_DELETE"
	featureVDIClone        = "VDI_CLONE"
	featureVDIResetOnBoot2 = "VDI_RESET_ON_BOOT/2"
	uriConfigDescription   = "URI of the storage medium"
)

func handleQueryQuery(ctx context.Context, d *Dispatcher, params json.RawMessage) (interface{}, *rpcerror.Error) {
	var backend PluginInfo
	if err := d.runVolume(ctx, "Plugin.Query", struct{}{}, &backend); err != nil {
		return nil, err
	}

	features := newFeatureSet(backend.Features)

	// Translate the backend-declared feature VDI_DESTROY -> VDI_DELETE.
	if features.has(featureVDIDestroy) {
		features.remove(featureVDIDestroy)
		features.add(featureVDIDelete)
	}

	for _, probe := range probedOperation {
		path := d.resolver.ScriptPath(plugin.Volume, d.pluginName, probe.op)
		if script.Probe(path) {
			features.add(probe.capability)
		}
	}

	for _, f := range unconditionalFeatures {
		features.add(f)
	}

	if features.has(featureVDIClone) {
		features.add(featureVDIResetOnBoot2)
	}

	configuration := append([]ConfigOption{
		{Key: "uri", Description: uriConfigDescription},
	}, backend.Configuration...)

	result := PluginInfo{
		Plugin:             backend.Plugin,
		Name:               backend.Name,
		Description:        backend.Description,
		Vendor:             backend.Vendor,
		Copyright:          backend.Copyright,
		Version:            backend.Version,
		RequiredAPIVersion: backend.RequiredAPIVersion,
		Features:           features.list(),
		Configuration:      configuration,
	}
	return result, nil
}

func handleQueryDiagnostics(ctx context.Context, d *Dispatcher, params json.RawMessage) (interface{}, *rpcerror.Error) {
	var result DiagnosticsResult
	if err := d.runVolume(ctx, "Plugin.diagnostics", struct{}{}, &result); err != nil {
		return nil, err
	}
	return result, nil
}
