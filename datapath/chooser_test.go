package datapath_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/xapi-project/xapi-storage-script/datapath"
	"github.com/xapi-project/xapi-storage-script/plugin"
	"github.com/xapi-project/xapi-storage-script/rpcerror"
	"github.com/xapi-project/xapi-storage-script/storage"
)

type ChooserTestSuite struct {
	suite.Suite
	root string
}

func TestChooserTestSuite(t *testing.T) {
	suite.Run(t, new(ChooserTestSuite))
}

func (s *ChooserTestSuite) SetupTest() {
	s.root = s.T().TempDir()
}

func (s *ChooserTestSuite) registerDatapath(reg *datapath.Registry, name string, nonPersistent bool) {
	dir := filepath.Join(s.root, "datapath", name)
	s.Require().NoError(os.MkdirAll(dir, 0755))

	features := ""
	if nonPersistent {
		features = `"NONPERSISTENT"`
	}
	body := "#!/bin/sh\ncat <<EOF\n{\"name\": \"" + name + "\", \"features\": [" + features + "]}\nEOF\n"
	s.Require().NoError(os.WriteFile(filepath.Join(dir, plugin.QueryScript), []byte(body), 0755))
	reg.Register(context.Background(), name)
}

func (s *ChooserTestSuite) TestChooseMissingURIWhenNoSchemeMatches() {
	resolver := plugin.NewResolver(s.root)
	reg := datapath.NewRegistry(resolver)
	s.registerDatapath(reg, "nfs", false)

	vol := &storage.Volume{URI: []string{"smb://host/share"}}
	_, err := reg.Choose(vol, true)
	s.Require().NotNil(err)
	s.Equal(rpcerror.MissingURI, err.Code)
}

func (s *ChooserTestSuite) TestChoosePrefersFirstMatchingURI() {
	resolver := plugin.NewResolver(s.root)
	reg := datapath.NewRegistry(resolver)
	s.registerDatapath(reg, "nfs", false)
	s.registerDatapath(reg, "zfs", false)

	vol := &storage.Volume{URI: []string{"zfs://pool/vol", "nfs://host/vol"}}
	choice, err := reg.Choose(vol, true)
	s.Nil(err)
	s.Equal("zfs", choice.Scheme)
	s.Equal("0", choice.Domain)
}

func (s *ChooserTestSuite) TestChooseNonPersistentPrefersNonPersistentPlugin() {
	resolver := plugin.NewResolver(s.root)
	reg := datapath.NewRegistry(resolver)
	s.registerDatapath(reg, "zfs", false)
	s.registerDatapath(reg, "ram", true)

	vol := &storage.Volume{URI: []string{"zfs://pool/vol", "ram://shm/vol"}}
	choice, err := reg.Choose(vol, false)
	s.Nil(err)
	s.Equal("ram", choice.Scheme)
}

func (s *ChooserTestSuite) TestChoosePersistentIgnoresNonPersistentPreference() {
	resolver := plugin.NewResolver(s.root)
	reg := datapath.NewRegistry(resolver)
	s.registerDatapath(reg, "zfs", false)
	s.registerDatapath(reg, "ram", true)

	vol := &storage.Volume{URI: []string{"zfs://pool/vol", "ram://shm/vol"}}
	choice, err := reg.Choose(vol, true)
	s.Nil(err)
	s.Equal("zfs", choice.Scheme)
}
