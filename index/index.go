// Package index implements the Attached-SR Index (§4.3): an in-memory
// mapping from the manager's SR handle to the backend SR identifier and its
// data source UIDs, persisted to disk after every mutation.
package index

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/peterbourgon/diskv/v3"

	"github.com/xapi-project/xapi-storage-script/rpcerror"
)

// Entry is the record stored per attached SR.
type Entry struct {
	BackendSRID    string   `json:"backend_sr_id"`
	DataSourceUIDs []string `json:"datasource_uids"`
}

// Index is the concurrent-safe, persisted table. The zero value is not
// usable; construct with Open.
type Index struct {
	mu    sync.Mutex
	table map[string]Entry
	store *diskv.Diskv
}

// diskvTransform keeps all entries in a single flat directory: handles are
// opaque strings with no path-like structure worth fanning out on.
func diskvTransform(key string) []string { return []string{} }

// Open creates an Index backed by statePath and reloads any existing
// entries from it, per §4.3 "reload" / the restart-survives invariant.
func Open(statePath string) (*Index, *rpcerror.Error) {
	idx := &Index{
		table: make(map[string]Entry),
		store: diskv.New(diskv.Options{
			BasePath:     statePath,
			Transform:    diskvTransform,
			CacheSizeMax: 1024 * 1024,
		}),
	}
	if err := idx.reload(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) reload() *rpcerror.Error {
	keys := idx.store.Keys(nil)
	for key := range keys {
		val, err := idx.store.Read(key)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(val, &entry); err != nil {
			continue
		}
		idx.table[decodeHandle(key)] = entry
	}
	return nil
}

// diskv keys must be filesystem-safe; SR handles are opaque strings that
// may contain characters diskv's default transform would reject, so "/" in
// a handle is escaped as "_2f_". A handle that already contains the text
// "_2f_" does not decode back to itself.
func encodeHandle(handle string) string {
	return strings.ReplaceAll(handle, "/", "_2f_")
}

func decodeHandle(key string) string {
	return strings.ReplaceAll(key, "_2f_", "/")
}

func (idx *Index) persistLocked(handle string, entry Entry) *rpcerror.Error {
	val, err := json.Marshal(entry)
	if err != nil {
		return rpcerror.ScriptFailedErr("marshaling index entry: " + err.Error())
	}
	if err := idx.store.Write(encodeHandle(handle), val); err != nil {
		return rpcerror.ScriptFailedErr("persisting index entry: " + err.Error())
	}
	return nil
}

// Add inserts or replaces the entry for handle and atomically persists the
// mutation.
func (idx *Index) Add(handle, backendSRID string, uids []string) *rpcerror.Error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	entry := Entry{BackendSRID: backendSRID, DataSourceUIDs: uids}
	if err := idx.persistLocked(handle, entry); err != nil {
		return err
	}
	idx.table[handle] = entry
	return nil
}

// Find returns the backend SR identifier for handle, or SR_NOT_ATTACHED.
func (idx *Index) Find(handle string) (string, *rpcerror.Error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	entry, ok := idx.table[handle]
	if !ok {
		return "", rpcerror.SRNotAttachedErr(handle)
	}
	return entry.BackendSRID, nil
}

// GetUIDs returns the data source UIDs recorded for handle.
func (idx *Index) GetUIDs(handle string) ([]string, *rpcerror.Error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	entry, ok := idx.table[handle]
	if !ok {
		return nil, rpcerror.SRNotAttachedErr(handle)
	}
	return entry.DataSourceUIDs, nil
}

// Has reports whether handle is currently attached, without error.
func (idx *Index) Has(handle string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, ok := idx.table[handle]
	return ok
}

// Remove deletes the entry for handle, persisting the removal (see the
// resolved Open Question in DESIGN.md).
func (idx *Index) Remove(handle string) *rpcerror.Error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.table[handle]; !ok {
		return nil
	}
	delete(idx.table, handle)
	if err := idx.store.Erase(encodeHandle(handle)); err != nil {
		return rpcerror.ScriptFailedErr("persisting index removal: " + err.Error())
	}
	return nil
}
