// Package plugin holds the data model shared by every backend plugin
// (volume or datapath) and the pure path-resolution logic used to find a
// plugin's scripts on disk.
package plugin

import "path/filepath"

// Kind distinguishes the two plugin roots this daemon watches.
type Kind int

const (
	// Volume plugins provide SR-level and VDI-level metadata operations.
	Volume Kind = iota
	// Datapath plugins provide the runtime attach/activate/deactivate/detach
	// of a VDI's URI for a guest domain.
	Datapath
)

func (k Kind) dirName() string {
	if k == Datapath {
		return "datapath"
	}
	return "volume"
}

// QueryScript is the mandatory self-description script every plugin of
// either kind must provide.
const QueryScript = "Plugin.Query"

// Capabilities is the self-described feature set of a datapath plugin, as
// returned by its Plugin.Query script.
type Capabilities struct {
	Name     string   `json:"name"`
	Features []string `json:"features"`
}

// NonPersistent is the one feature the dispatch engine interprets itself;
// the rest are opaque to this daemon.
const NonPersistent = "NONPERSISTENT"

// HasFeature reports whether the capability set advertises feature.
func (c Capabilities) HasFeature(feature string) bool {
	for _, f := range c.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Resolver computes script paths given a plugin root directory. It is
// fixed at daemon startup: volumeRoot and datapathRoot are sibling
// directories under the same parent, per §4.2's "parent-of-root"
// relationship.
type Resolver struct {
	VolumeRoot   string
	DatapathRoot string
}

// NewResolver builds a Resolver from the daemon's single configured plugin
// root: volumeRoot = <root>/volume, datapathRoot = <root>/datapath.
func NewResolver(root string) Resolver {
	return Resolver{
		VolumeRoot:   filepath.Join(root, "volume"),
		DatapathRoot: filepath.Join(root, "datapath"),
	}
}

// Root returns the root directory for the given plugin kind.
func (r Resolver) Root(kind Kind) string {
	if kind == Datapath {
		return r.DatapathRoot
	}
	return r.VolumeRoot
}

// ScriptPath resolves <root>/<plugin>/<operation> for the given kind.
func (r Resolver) ScriptPath(kind Kind, pluginName, operation string) string {
	return filepath.Join(r.Root(kind), pluginName, operation)
}

// PluginDir returns the directory a plugin's scripts live in.
func (r Resolver) PluginDir(kind Kind, pluginName string) string {
	return filepath.Join(r.Root(kind), pluginName)
}

// Name returns the plugin name for a plugin directory path: the basename.
func Name(pluginDirPath string) string {
	return filepath.Base(pluginDirPath)
}
