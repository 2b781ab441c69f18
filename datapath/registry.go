// Package datapath implements the Datapath-Plugin Registry (§4.4) and the
// Datapath Chooser (§4.5).
package datapath

import (
	"context"
	"sync"

	"github.com/xapi-project/xapi-storage-script/plugin"
	"github.com/xapi-project/xapi-storage-script/script"
)

// Registry is the in-memory mapping from datapath name (URI scheme) to its
// advertised capabilities. It may be a strict subset of the datapath
// plugin directory: a plugin whose Plugin.Query fails is silently not
// registered.
type Registry struct {
	resolver plugin.Resolver

	mu    sync.RWMutex
	table map[string]plugin.Capabilities
}

// NewRegistry builds an empty registry bound to resolver.
func NewRegistry(resolver plugin.Resolver) *Registry {
	return &Registry{
		resolver: resolver,
		table:    make(map[string]plugin.Capabilities),
	}
}

// Register invokes <name>'s Plugin.Query script; on success it stores the
// returned capabilities under name. Any failure is swallowed: the plugin
// simply stays unregistered, per §4.4 and §7's propagation policy for
// Plugin.Query.
func (r *Registry) Register(ctx context.Context, name string) {
	path := r.resolver.ScriptPath(plugin.Datapath, name, plugin.QueryScript)
	workDir := r.resolver.PluginDir(plugin.Datapath, name)

	var caps plugin.Capabilities
	if err := script.Run(ctx, path, workDir, struct{}{}, &caps); err != nil {
		return
	}
	if caps.Name == "" {
		caps.Name = name
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.table[name] = caps
}

// Unregister removes name from the registry. Unregistering a name that was
// never registered (e.g. because its Plugin.Query failed) is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.table, name)
}

// Supports returns false when either scheme is absent from the registry or
// feature is not in its advertised set.
func (r *Registry) Supports(scheme, feature string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps, ok := r.table[scheme]
	if !ok {
		return false
	}
	return caps.HasFeature(feature)
}

// Names returns every currently-registered datapath name, in no
// particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.table))
	for name := range r.table {
		names = append(names, name)
	}
	return names
}
