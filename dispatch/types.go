package dispatch

import "github.com/xapi-project/xapi-storage-script/storage"

// ConfigOption is one (key, description) pair of a plugin's declared
// device_config schema.
type ConfigOption struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// PluginInfo is both what a Plugin.Query script returns and, after
// translation, what Query.query hands back to the manager.
type PluginInfo struct {
	Plugin              string         `json:"plugin"`
	Name                string         `json:"name"`
	Description         string         `json:"description,omitempty"`
	Vendor              string         `json:"vendor,omitempty"`
	Copyright           string         `json:"copyright,omitempty"`
	Version             string         `json:"version,omitempty"`
	RequiredAPIVersion  string         `json:"required_api_version,omitempty"`
	Features            []string       `json:"features"`
	Configuration       []ConfigOption `json:"configuration"`
}

// DiagnosticsResult passes Plugin.diagnostics straight through.
type DiagnosticsResult map[string]interface{}

// DeviceConfig is the device_config parameter carried by SR.attach,
// SR.create, and SR.probe.
type DeviceConfig map[string]string

// URIKey is the distinguished device_config entry every SR operation that
// takes one requires.
const URIKey = "uri"

// SRAttachParams is the inbound SR.attach request: the manager's handle
// for this SR plus the device_config used to reach the backend.
type SRAttachParams struct {
	SR           string       `json:"sr"`
	DeviceConfig DeviceConfig `json:"device_config"`
}

// backendAttachRequest/Result are what the SR.attach script itself is
// called with and returns.
type backendAttachRequest struct {
	DeviceConfig DeviceConfig `json:"device_config"`
}
type backendAttachResult struct {
	SR string `json:"sr"`
}

// backendStatRequest is what SR.stat is called with: the backend-returned
// identifier, not a URI.
type backendStatRequest struct {
	SR string `json:"sr"`
}

// SRDetachParams is the inbound SR.detach request.
type SRDetachParams struct {
	SR string `json:"sr"`
}

type backendDetachRequest struct {
	SR string `json:"sr"`
}

// SRProbeParams is the inbound SR.probe request.
type SRProbeParams struct {
	DeviceConfig DeviceConfig `json:"device_config"`
}

type backendProbeRequest struct {
	DeviceConfig DeviceConfig `json:"device_config"`
}
type backendProbeResult struct {
	Health            storage.SRHealth `json:"health"`
	HealthDescription string           `json:"health_description,omitempty"`
}

// SRCreateParams is the inbound SR.create request.
type SRCreateParams struct {
	DeviceConfig DeviceConfig `json:"device_config"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
}

type backendCreateRequest struct {
	DeviceConfig DeviceConfig `json:"device_config"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
}
type backendCreateResult struct {
	SR string `json:"sr"`
}

// SRSetNameParams covers SR.set_name_label/description: an SR handle plus
// a new value.
type SRSetNameParams struct {
	SR    string `json:"sr"`
	Value string `json:"value"`
}

type backendSetNameRequest struct {
	SR    string `json:"sr"`
	Value string `json:"value"`
}

// SRDestroyParams is the inbound SR.destroy request.
type SRDestroyParams struct {
	SR string `json:"sr"`
}

type backendSRDestroyRequest struct {
	SR string `json:"sr"`
}

// SRScanParams is the inbound SR.scan request.
type SRScanParams struct {
	SR string `json:"sr"`
}

type backendLsRequest struct {
	SR string `json:"sr"`
}
type backendLsResult struct {
	Volumes []*storage.Volume `json:"volumes"`
}

// SRStatParams is the inbound SR.stat request.
type SRStatParams struct {
	SR string `json:"sr"`
}

// SRStatResult is the manager-facing projection of a backend SR record,
// with its health enum translated.
type SRStatResult struct {
	SR                string           `json:"sr"`
	Name              string           `json:"name_label"`
	Description       string           `json:"name_description"`
	FreeSpace         uint64           `json:"free_space"`
	TotalSpace        uint64           `json:"total_space"`
	Health            storage.SRHealth `json:"health"`
	HealthDescription string           `json:"health_description,omitempty"`
}

// VDICreateParams is the inbound VDI.create request.
type VDICreateParams struct {
	SR              string `json:"sr"`
	NameLabel       string `json:"name_label"`
	NameDescription string `json:"name_description"`
	VirtualSize     uint64 `json:"virtual_size"`
}

type backendVolumeCreateRequest struct {
	SR              string `json:"sr"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	VirtualSize     uint64 `json:"virtual_size"`
}

// VDIParams covers the VDI operations that just need an SR and VDI
// handle: stat and introduce.
type VDIParams struct {
	SR  string `json:"sr"`
	VDI string `json:"vdi"`
}

type backendVolumeStatRequest struct {
	SR  string `json:"sr"`
	Key string `json:"key"`
}

// VDIDestroyParams is the inbound VDI.destroy request.
type VDIDestroyParams struct {
	SR  string `json:"sr"`
	VDI string `json:"vdi"`
}

type backendVolumeDestroyRequest struct {
	SR  string `json:"sr"`
	Key string `json:"key"`
}

// VDISnapshotParams covers VDI.snapshot and VDI.clone: both take an SR and
// a source VDI.
type VDISnapshotParams struct {
	SR  string `json:"sr"`
	VDI string `json:"vdi"`
}

type backendVolumeDeriveRequest struct {
	SR  string `json:"sr"`
	Key string `json:"key"`
}

// VDIResizeParams is the inbound VDI.resize request.
type VDIResizeParams struct {
	SR      string `json:"sr"`
	VDI     string `json:"vdi"`
	NewSize uint64 `json:"new_size"`
}

type backendVolumeResizeRequest struct {
	SR      string `json:"sr"`
	Key     string `json:"key"`
	NewSize uint64 `json:"new_size"`
}

// VDIAttachParams covers attach/activate/deactivate/detach: they all take
// an SR, a VDI, and the domain the operation is for.
type VDIAttachParams struct {
	SR     string `json:"sr"`
	VDI    string `json:"vdi"`
	Domain string `json:"domain,omitempty"`
}

type backendDatapathOpRequest struct {
	URI    string `json:"uri"`
	Domain string `json:"domain"`
}

// VDIEpochParams is the inbound VDI.epoch_begin/epoch_end request.
type VDIEpochParams struct {
	SR         string `json:"sr"`
	VDI        string `json:"vdi"`
	Persistent bool   `json:"persistent"`
}

type backendDatapathOpenRequest struct {
	URI        string `json:"uri"`
	Persistent bool   `json:"persistent"`
}
type backendDatapathCloseRequest struct {
	URI string `json:"uri"`
}

// VDISetPersistentParams is the inbound VDI.set_persistent request; the
// spec requires it do nothing but succeed.
type VDISetPersistentParams struct {
	SR         string `json:"sr"`
	VDI        string `json:"vdi"`
	Persistent bool   `json:"persistent"`
}

type backendVolumeSetUnsetRequest struct {
	SR    string `json:"sr"`
	Key   string `json:"key"`
	Field string `json:"field"`
	Value string `json:"value,omitempty"`
}
