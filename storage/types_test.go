package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xapi-project/xapi-storage-script/storage"
)

func TestCloneOnBoot(t *testing.T) {
	v := &storage.Volume{}
	_, ok := v.CloneOnBoot()
	assert.False(t, ok)

	v.Keys = map[string]string{storage.CloneOnBootKey: "shadow-1"}
	shadow, ok := v.CloneOnBoot()
	assert.True(t, ok)
	assert.Equal(t, "shadow-1", shadow)

	v.Keys[storage.CloneOnBootKey] = ""
	_, ok = v.CloneOnBoot()
	assert.False(t, ok)
}

func TestProjectVDI(t *testing.T) {
	v := &storage.Volume{
		Key:                 "vol-1",
		UUID:                "uuid-1",
		Name:                "my disk",
		Description:         "a disk",
		ReadWrite:           true,
		VirtualSize:         1024,
		PhysicalUtilisation: 512,
	}
	vdi := storage.ProjectVDI(v)

	assert.Equal(t, "vol-1", vdi.VDI)
	assert.Equal(t, "uuid-1", vdi.UUID)
	assert.Equal(t, "my disk", vdi.NameLabel)
	assert.Equal(t, "a disk", vdi.NameDescription)
	assert.False(t, vdi.ReadOnly)
	assert.Equal(t, uint64(1024), vdi.VirtualSize)
	assert.Equal(t, uint64(512), vdi.PhysicalUtilisation)
	assert.False(t, vdi.IsASnapshot)
	assert.True(t, vdi.Persistent)
}

func TestProjectVDIReadOnlyFollowsReadWrite(t *testing.T) {
	vdi := storage.ProjectVDI(&storage.Volume{ReadWrite: false})
	assert.True(t, vdi.ReadOnly)
}

func TestProjectAttachInfoKnownTags(t *testing.T) {
	cases := []struct {
		tag      string
		wantKind string
	}{
		{storage.Blkback, "vbd"},
		{storage.Qdisk, "qdisk"},
		{storage.Tapdisk3, "vbd3"},
	}
	for _, c := range cases {
		info, err := storage.ProjectAttachInfo(storage.DatapathImplementation{Tag: c.tag, Params: "p"})
		require.Nil(t, err)
		assert.Equal(t, c.wantKind, info.BackendKind)
		assert.Equal(t, "p", info.Params)
		assert.True(t, info.ODirect)
	}
}

func TestProjectAttachInfoUnknownTag(t *testing.T) {
	_, err := storage.ProjectAttachInfo(storage.DatapathImplementation{Tag: "Bogus"})
	require.NotNil(t, err)
	assert.Equal(t, "SCRIPT_FAILED", err.Code)
}
