// Package storage holds the wire types exchanged with backend scripts and
// with the manager, and the pure projections between them.
package storage

import "github.com/xapi-project/xapi-storage-script/rpcerror"

// Volume is the backend-supplied record describing a VDI, as returned by
// Volume.stat/create/clone/snapshot and as listed by SR.ls.
type Volume struct {
	Key                 string            `json:"key"`
	UUID                string            `json:"uuid"`
	Name                string            `json:"name"`
	Description         string            `json:"description"`
	ReadWrite           bool              `json:"read_write"`
	VirtualSize         uint64            `json:"virtual_size"`
	PhysicalUtilisation uint64            `json:"physical_utilisation"`
	URI                 []string          `json:"uri"`
	Keys                map[string]string `json:"keys,omitempty"`
}

// CloneOnBootKey is the distinguished Volume.keys entry the core reads and
// writes; its value names the shadow volume backing a non-persistent
// session.
const CloneOnBootKey = "clone-on-boot"

// CloneOnBoot returns the shadow volume key, and whether one is set.
func (v *Volume) CloneOnBoot() (string, bool) {
	if v.Keys == nil {
		return "", false
	}
	shadow, ok := v.Keys[CloneOnBootKey]
	return shadow, ok && shadow != ""
}

// VDI is the manager-facing projection of a Volume, per the "VDI
// projection" in §6.
type VDI struct {
	VDI                 string   `json:"vdi"`
	UUID                string   `json:"uuid"`
	ContentID           string   `json:"content_id"`
	NameLabel           string   `json:"name_label"`
	NameDescription     string   `json:"name_description"`
	Ty                  string   `json:"ty"`
	MetadataOfPool      string   `json:"metadata_of_pool"`
	IsASnapshot         bool     `json:"is_a_snapshot"`
	SnapshotTime        string   `json:"snapshot_time"`
	SnapshotOf          string   `json:"snapshot_of"`
	ReadOnly            bool     `json:"read_only"`
	VirtualSize         uint64   `json:"virtual_size"`
	PhysicalUtilisation uint64   `json:"physical_utilisation"`
	SmConfig            []string `json:"sm_config"`
	Persistent          bool     `json:"persistent"`
}

// epochZero is the fixed snapshot_time the projection uses for volumes
// that are not themselves snapshots.
const epochZero = "19700101T00:00:00Z"

// ProjectVDI maps a Volume onto the manager's VDI schema.
func ProjectVDI(v *Volume) *VDI {
	return &VDI{
		VDI:                 v.Key,
		UUID:                v.UUID,
		ContentID:           "",
		NameLabel:           v.Name,
		NameDescription:     v.Description,
		Ty:                  "",
		MetadataOfPool:      "",
		IsASnapshot:         false,
		SnapshotTime:        epochZero,
		SnapshotOf:          "",
		ReadOnly:            !v.ReadWrite,
		VirtualSize:         v.VirtualSize,
		PhysicalUtilisation: v.PhysicalUtilisation,
		SmConfig:            []string{},
		Persistent:          true,
	}
}

// SRHealth is the backend's SR health enum, translated from the backend's
// own string tag.
type SRHealth string

const (
	Healthy    SRHealth = "Healthy"
	Recovering SRHealth = "Recovering"
)

// SR is the backend-supplied record describing a Storage Repository, as
// returned by SR.stat.
type SR struct {
	SRID              string   `json:"sr"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	FreeSpace         uint64   `json:"free_space"`
	TotalSpace        uint64   `json:"total_space"`
	Datasources       []string `json:"datasources"`
	Health            SRHealth `json:"health"`
	HealthDescription string   `json:"health_description,omitempty"`
}

// DatapathImplementation is the tagged union the datapath scripts return
// from attach: the backend-kind tag plus its opaque params.
type DatapathImplementation struct {
	Tag    string `json:"tag"`
	Params string `json:"params"`
}

const (
	Blkback  = "Blkback"
	Qdisk    = "Qdisk"
	Tapdisk3 = "Tapdisk3"
)

// AttachInfo is what VDI.attach returns to the manager, translated from a
// DatapathImplementation per §4.6's choreography table.
type AttachInfo struct {
	BackendKind   string `json:"backend-kind"`
	Params        string `json:"params"`
	ODirect       bool   `json:"o_direct"`
	ODirectReason string `json:"o_direct_reason"`
}

// ProjectAttachInfo translates a backend datapath implementation tag into
// the manager's attach_info structure.
func ProjectAttachInfo(impl DatapathImplementation) (*AttachInfo, *rpcerror.Error) {
	var kind string
	switch impl.Tag {
	case Blkback:
		kind = "vbd"
	case Qdisk:
		kind = "qdisk"
	case Tapdisk3:
		kind = "vbd3"
	default:
		return nil, rpcerror.ScriptFailedErr("unknown datapath implementation: " + impl.Tag)
	}
	return &AttachInfo{
		BackendKind:   kind,
		Params:        impl.Params,
		ODirect:       true,
		ODirectReason: "",
	}, nil
}
