package datapath

import (
	"net/url"

	"github.com/xapi-project/xapi-storage-script/plugin"
	"github.com/xapi-project/xapi-storage-script/rpcerror"
	"github.com/xapi-project/xapi-storage-script/storage"
)

// Choice is the (scheme, uri, domain) triple selected for attaching a
// volume.
type Choice struct {
	Scheme string
	URI    string
	Domain string
}

// domainLiteral: domain is always the literal "0".
const domainLiteral = "0"

type candidate struct {
	scheme string
	uri    string
}

// Choose selects the (scheme, uri, domain) triple to use when attaching
// vol, per §4.5. Callers with no persistence requirement pass true.
func (r *Registry) Choose(vol *storage.Volume, persistent bool) (Choice, *rpcerror.Error) {
	var candidates []candidate
	for _, raw := range vol.URI {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" {
			continue
		}
		r.mu.RLock()
		_, known := r.table[u.Scheme]
		r.mu.RUnlock()
		if !known {
			continue
		}
		candidates = append(candidates, candidate{scheme: u.Scheme, uri: raw})
	}

	if !persistent {
		candidates = partitionNonPersistentFirst(r, candidates)
	}

	if len(candidates) == 0 {
		return Choice{}, rpcerror.MissingURIErr()
	}

	chosen := candidates[0]
	return Choice{Scheme: chosen.scheme, URI: chosen.uri, Domain: domainLiteral}, nil
}

// partitionNonPersistentFirst stably partitions candidates so that those
// whose plugin advertises NONPERSISTENT come first, preserving relative
// order within each group.
func partitionNonPersistentFirst(r *Registry, candidates []candidate) []candidate {
	var nonPersistent, rest []candidate
	for _, c := range candidates {
		if r.Supports(c.scheme, plugin.NonPersistent) {
			nonPersistent = append(nonPersistent, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(nonPersistent, rest...)
}
