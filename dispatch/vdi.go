package dispatch

import (
	"context"
	"encoding/json"

	"github.com/xapi-project/xapi-storage-script/datapath"
	"github.com/xapi-project/xapi-storage-script/plugin"
	"github.com/xapi-project/xapi-storage-script/rpcerror"
	"github.com/xapi-project/xapi-storage-script/storage"
)

func handleVDICreate(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	var params VDICreateParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	srID, err := d.requireSRID(params.SR)
	if err != nil {
		return nil, err
	}

	var vol storage.Volume
	if err := d.runVolume(ctx, "Volume.create", backendVolumeCreateRequest{
		SR:          srID,
		Name:        params.NameLabel,
		Description: params.NameDescription,
		VirtualSize: params.VirtualSize,
	}, &vol); err != nil {
		return nil, err
	}
	return projectVDI(&vol), nil
}

// statVolume calls Volume.stat for key within SR handle's backend SR.
func (d *Dispatcher) statVolume(ctx context.Context, handle, key string) (*storage.Volume, *rpcerror.Error) {
	srID, err := d.requireSRID(handle)
	if err != nil {
		return nil, err
	}
	var vol storage.Volume
	if err := d.runVolume(ctx, "Volume.stat", backendVolumeStatRequest{SR: srID, Key: key}, &vol); err != nil {
		return nil, err
	}
	return &vol, nil
}

func handleVDIDestroy(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	var params VDIDestroyParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	srID, err := d.requireSRID(params.SR)
	if err != nil {
		return nil, err
	}

	target, err := d.statVolume(ctx, params.SR, params.VDI)
	if err != nil {
		return nil, err
	}

	if shadow, ok := target.CloneOnBoot(); ok {
		if err := d.runVolume(ctx, "Volume.destroy", backendVolumeDestroyRequest{SR: srID, Key: shadow}, &struct{}{}); err != nil {
			return nil, err
		}
	}

	if err := d.runVolume(ctx, "Volume.destroy", backendVolumeDestroyRequest{SR: srID, Key: params.VDI}, &struct{}{}); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func handleVDISnapshot(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	return vdiDerive(ctx, d, raw, "Volume.snapshot")
}

func handleVDIClone(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	return vdiDerive(ctx, d, raw, "Volume.clone")
}

func vdiDerive(ctx context.Context, d *Dispatcher, raw json.RawMessage, operation string) (interface{}, *rpcerror.Error) {
	var params VDISnapshotParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	srID, err := d.requireSRID(params.SR)
	if err != nil {
		return nil, err
	}

	var vol storage.Volume
	if err := d.runVolume(ctx, operation, backendVolumeDeriveRequest{SR: srID, Key: params.VDI}, &vol); err != nil {
		return nil, err
	}
	return projectVDI(&vol), nil
}

func handleVDISetNameLabel(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	return vdiSetName(ctx, d, raw, "Volume.set_name")
}

func handleVDISetNameDescription(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	return vdiSetName(ctx, d, raw, "Volume.set_description")
}

func vdiSetName(ctx context.Context, d *Dispatcher, raw json.RawMessage, operation string) (interface{}, *rpcerror.Error) {
	var params struct {
		SR    string `json:"sr"`
		VDI   string `json:"vdi"`
		Value string `json:"value"`
	}
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	srID, err := d.requireSRID(params.SR)
	if err != nil {
		return nil, err
	}
	if err := d.runVolume(ctx, operation, struct {
		SR    string `json:"sr"`
		Key   string `json:"key"`
		Value string `json:"value"`
	}{SR: srID, Key: params.VDI, Value: params.Value}, &struct{}{}); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func handleVDIResize(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	var params VDIResizeParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	srID, err := d.requireSRID(params.SR)
	if err != nil {
		return nil, err
	}

	if err := d.runVolume(ctx, "Volume.resize", backendVolumeResizeRequest{SR: srID, Key: params.VDI, NewSize: params.NewSize}, &struct{}{}); err != nil {
		return nil, err
	}

	var vol storage.Volume
	if err := d.runVolume(ctx, "Volume.stat", backendVolumeStatRequest{SR: srID, Key: params.VDI}, &vol); err != nil {
		return nil, err
	}
	return struct {
		VirtualSize uint64 `json:"virtual_size"`
	}{VirtualSize: vol.VirtualSize}, nil
}

func handleVDIStat(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	var params VDIParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	vol, err := d.statVolume(ctx, params.SR, params.VDI)
	if err != nil {
		return nil, err
	}
	return projectVDI(vol), nil
}

// effectiveVolume implements the shared "VDI.attach choreography" prelude
// (§4.6): stat the target volume, and if it has a clone-on-boot shadow,
// stat and use the shadow instead.
func (d *Dispatcher) effectiveVolume(ctx context.Context, handle, key string) (*storage.Volume, *rpcerror.Error) {
	vol, err := d.statVolume(ctx, handle, key)
	if err != nil {
		return nil, err
	}
	if shadow, ok := vol.CloneOnBoot(); ok {
		return d.statVolume(ctx, handle, shadow)
	}
	return vol, nil
}

func handleVDIAttach(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	var params VDIAttachParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}

	_, choice, err := d.chooseDatapath(ctx, params.SR, params.VDI)
	if err != nil {
		return nil, err
	}

	var impl storage.DatapathImplementation
	if err := d.runDatapath(ctx, choice.Scheme, "Datapath.attach", backendDatapathOpRequest{URI: choice.URI, Domain: choice.Domain}, &impl); err != nil {
		return nil, err
	}

	return storage.ProjectAttachInfo(impl)
}

func handleVDIActivate(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	return vdiDatapathOp(ctx, d, raw, "Datapath.activate")
}

func handleVDIDeactivate(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	return vdiDatapathOp(ctx, d, raw, "Datapath.deactivate")
}

func handleVDIDetach(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	return vdiDatapathOp(ctx, d, raw, "Datapath.detach")
}

func vdiDatapathOp(ctx context.Context, d *Dispatcher, raw json.RawMessage, operation string) (interface{}, *rpcerror.Error) {
	var params VDIAttachParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}

	_, choice, err := d.chooseDatapath(ctx, params.SR, params.VDI)
	if err != nil {
		return nil, err
	}

	if err := d.runDatapath(ctx, choice.Scheme, operation, backendDatapathOpRequest{URI: choice.URI, Domain: choice.Domain}, &struct{}{}); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

// chooseDatapath runs the shared attach-family prelude: resolve the
// effective volume (following any clone-on-boot shadow) and pick a
// datapath for it, persistent.
func (d *Dispatcher) chooseDatapath(ctx context.Context, handle, key string) (*storage.Volume, datapath.Choice, *rpcerror.Error) {
	vol, err := d.effectiveVolume(ctx, handle, key)
	if err != nil {
		return nil, datapath.Choice{}, err
	}
	choice, err := d.registry.Choose(vol, true)
	if err != nil {
		return nil, datapath.Choice{}, err
	}
	return vol, choice, nil
}

func handleVDIEpochBegin(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	var params VDIEpochParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}

	vol, err := d.statVolume(ctx, params.SR, params.VDI)
	if err != nil {
		return nil, err
	}

	choice, err := d.registry.Choose(vol, params.Persistent)
	if err != nil {
		return nil, err
	}

	if d.registry.Supports(choice.Scheme, plugin.NonPersistent) {
		if err := d.runDatapath(ctx, choice.Scheme, "Datapath.open", backendDatapathOpenRequest{URI: choice.URI, Persistent: params.Persistent}, &struct{}{}); err != nil {
			return nil, err
		}
		return struct{}{}, nil
	}

	if params.Persistent {
		return struct{}{}, nil
	}

	srID, err := d.requireSRID(params.SR)
	if err != nil {
		return nil, err
	}

	if shadow, ok := vol.CloneOnBoot(); ok {
		if err := d.runVolume(ctx, "Volume.destroy", backendVolumeDestroyRequest{SR: srID, Key: shadow}, &struct{}{}); err != nil {
			return nil, err
		}
	}

	var clone storage.Volume
	if err := d.runVolume(ctx, "Volume.clone", backendVolumeDeriveRequest{SR: srID, Key: params.VDI}, &clone); err != nil {
		return nil, err
	}

	if err := d.runVolume(ctx, "Volume.set", backendVolumeSetUnsetRequest{
		SR:    srID,
		Key:   params.VDI,
		Field: storage.CloneOnBootKey,
		Value: clone.Key,
	}, &struct{}{}); err != nil {
		return nil, err
	}

	return struct{}{}, nil
}

func handleVDIEpochEnd(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	var params VDIEpochParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}

	vol, err := d.statVolume(ctx, params.SR, params.VDI)
	if err != nil {
		return nil, err
	}

	choice, err := d.registry.Choose(vol, true)
	if err == nil && d.registry.Supports(choice.Scheme, plugin.NonPersistent) {
		if err := d.runDatapath(ctx, choice.Scheme, "Datapath.close", backendDatapathCloseRequest{URI: choice.URI}, &struct{}{}); err != nil {
			return nil, err
		}
		return struct{}{}, nil
	}

	shadow, ok := vol.CloneOnBoot()
	if !ok {
		return struct{}{}, nil
	}

	srID, serr := d.requireSRID(params.SR)
	if serr != nil {
		return nil, serr
	}

	if err := d.runVolume(ctx, "Volume.destroy", backendVolumeDestroyRequest{SR: srID, Key: shadow}, &struct{}{}); err != nil {
		return nil, err
	}
	if err := d.runVolume(ctx, "Volume.unset", backendVolumeSetUnsetRequest{
		SR:    srID,
		Key:   params.VDI,
		Field: storage.CloneOnBootKey,
	}, &struct{}{}); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func handleVDISetPersistent(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	return struct{}{}, nil
}
