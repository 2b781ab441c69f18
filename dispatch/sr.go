package dispatch

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/xapi-project/xapi-storage-script/metrics"
	"github.com/xapi-project/xapi-storage-script/rpcerror"
)

// xenoShmScheme is the only datasource URI scheme SR.attach registers with
// the metric service, per §4.6.
const xenoShmScheme = "xeno+shm"

func requireURI(dc DeviceConfig) *rpcerror.Error {
	if dc == nil {
		return rpcerror.MissingURIErr()
	}
	if _, ok := dc[URIKey]; !ok {
		return rpcerror.MissingURIErr()
	}
	return nil
}

func handleSRAttach(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	var params SRAttachParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := requireURI(params.DeviceConfig); err != nil {
		return nil, err
	}

	var attachResult backendAttachResult
	if err := d.runVolume(ctx, "SR.attach", backendAttachRequest{DeviceConfig: params.DeviceConfig}, &attachResult); err != nil {
		return nil, err
	}

	var srStat struct {
		Datasources []string `json:"datasources"`
	}
	if err := d.runVolume(ctx, "SR.stat", backendStatRequest{SR: attachResult.SR}, &srStat); err != nil {
		return nil, err
	}

	var registeredUIDs []string
	for _, ds := range srStat.Datasources {
		scheme, path, ok := splitSchemeAndPath(ds)
		if !ok || scheme != xenoShmScheme {
			continue
		}
		uid := strings.TrimPrefix(path, "/")
		if err := d.metricsReg.RegisterLocal(uid); err != nil {
			metrics.LogRegisterErr(uid, err)
			continue
		}
		registeredUIDs = append(registeredUIDs, uid)
	}

	if err := d.index.Add(params.SR, attachResult.SR, registeredUIDs); err != nil {
		return nil, err
	}

	return struct{}{}, nil
}

// splitSchemeAndPath splits a "scheme://path"-shaped datasource URI into
// its scheme and the remainder. Malformed entries are skipped rather than
// failing the whole attach.
func splitSchemeAndPath(uri string) (scheme, rest string, ok bool) {
	parts := strings.SplitN(uri, "://", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func handleSRDetach(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	var params SRDetachParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}

	if !d.index.Has(params.SR) {
		return struct{}{}, nil
	}

	srID, err := d.requireSRID(params.SR)
	if err != nil {
		return nil, err
	}
	uids, err := d.index.GetUIDs(params.SR)
	if err != nil {
		return nil, err
	}

	if err := d.runVolume(ctx, "SR.detach", backendDetachRequest{SR: srID}, &struct{}{}); err != nil {
		return nil, err
	}

	for _, uid := range uids {
		if derr := d.metricsReg.Deregister(uid); derr != nil {
			metrics.LogRegisterErr(uid, derr)
		}
	}

	if err := d.index.Remove(params.SR); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func handleSRProbe(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	var params SRProbeParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := requireURI(params.DeviceConfig); err != nil {
		return nil, err
	}

	var backend struct {
		Health            string `json:"health"`
		HealthDescription string `json:"health_description,omitempty"`
	}
	if err := d.runVolume(ctx, "SR.probe", backendProbeRequest{DeviceConfig: params.DeviceConfig}, &backend); err != nil {
		return nil, err
	}
	return backendProbeResult{
		Health:            translateHealth(backend.Health),
		HealthDescription: backend.HealthDescription,
	}, nil
}

func handleSRCreate(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	var params SRCreateParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := requireURI(params.DeviceConfig); err != nil {
		return nil, err
	}

	var result backendCreateResult
	if err := d.runVolume(ctx, "SR.create", backendCreateRequest{
		DeviceConfig: params.DeviceConfig,
		Name:         params.Name,
		Description:  params.Description,
	}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func handleSRSetNameLabel(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	return srSetName(ctx, d, raw, "SR.set_name")
}

func handleSRSetNameDescription(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	return srSetName(ctx, d, raw, "SR.set_description")
}

func srSetName(ctx context.Context, d *Dispatcher, raw json.RawMessage, operation string) (interface{}, *rpcerror.Error) {
	var params SRSetNameParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	srID, err := d.requireSRID(params.SR)
	if err != nil {
		return nil, err
	}
	if err := d.runVolume(ctx, operation, backendSetNameRequest{SR: srID, Value: params.Value}, &struct{}{}); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func handleSRDestroy(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	var params SRDestroyParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	srID, err := d.requireSRID(params.SR)
	if err != nil {
		return nil, err
	}
	if err := d.runVolume(ctx, "SR.destroy", backendSRDestroyRequest{SR: srID}, &struct{}{}); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func handleSRScan(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	var params SRScanParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	srID, err := d.requireSRID(params.SR)
	if err != nil {
		return nil, err
	}

	var result backendLsResult
	if err := d.runVolume(ctx, "SR.ls", backendLsRequest{SR: srID}, &result); err != nil {
		return nil, err
	}

	shadows := make(map[string]bool)
	for _, v := range result.Volumes {
		if shadow, ok := v.CloneOnBoot(); ok {
			shadows[shadow] = true
		}
	}

	vdis := make([]interface{}, 0, len(result.Volumes))
	for _, v := range result.Volumes {
		if shadows[v.Key] {
			continue
		}
		vdis = append(vdis, projectVDI(v))
	}
	return vdis, nil
}

func handleSRStat(ctx context.Context, d *Dispatcher, raw json.RawMessage) (interface{}, *rpcerror.Error) {
	var params SRStatParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	srID, err := d.requireSRID(params.SR)
	if err != nil {
		return nil, err
	}

	var backend struct {
		Name              string `json:"name"`
		Description       string `json:"description"`
		FreeSpace         uint64 `json:"free_space"`
		TotalSpace        uint64 `json:"total_space"`
		Health            string `json:"health"`
		HealthDescription string `json:"health_description,omitempty"`
	}
	if err := d.runVolume(ctx, "SR.stat", backendStatRequest{SR: srID}, &backend); err != nil {
		return nil, err
	}

	return SRStatResult{
		SR:                params.SR,
		Name:              backend.Name,
		Description:       backend.Description,
		FreeSpace:         backend.FreeSpace,
		TotalSpace:        backend.TotalSpace,
		Health:            translateHealth(backend.Health),
		HealthDescription: backend.HealthDescription,
	}, nil
}
