package reconcile

import (
	"sort"
	"time"

	"github.com/slatecarbon/slatecarbon/pkg/model"
)

// entity is what the merge needs from a synced record: identity plus the
// conflict-resolution timestamp.
type entity interface {
	EntityID() string
	LastModified() time.Time
}

// mergeResult carries one entity type's merged collection plus what the pass
// learned while merging it.
type mergeResult[T entity] struct {
	merged    []T
	localOnly []T // keep locally, push upstream
	adopted   int // remote-only inserts
	conflicts int // present on both sides
}

// mergeByID reconciles a local and a remote collection by entity identity:
//
//   - remote-only ids are adopted into local state,
//   - local-only ids are kept and marked for upload,
//   - ids on both sides resolve per policy; PolicyManual keeps the strictly
//     newer copy and falls back to remote on equal timestamps.
//
// The merged collection is sorted by id so repeated passes over unchanged
// inputs produce identical output.
func mergeByID[T entity](local, remote []T, policy model.ConflictPolicy) mergeResult[T] {
	remoteByID := make(map[string]T, len(remote))
	for _, r := range remote {
		remoteByID[r.EntityID()] = r
	}

	var res mergeResult[T]
	seen := make(map[string]bool, len(local))
	for _, l := range local {
		id := l.EntityID()
		seen[id] = true
		r, both := remoteByID[id]
		if !both {
			res.merged = append(res.merged, l)
			res.localOnly = append(res.localOnly, l)
			continue
		}
		res.conflicts++
		res.merged = append(res.merged, resolve(l, r, policy))
	}
	for _, r := range remote {
		if seen[r.EntityID()] {
			continue
		}
		res.merged = append(res.merged, r)
		res.adopted++
	}

	sort.Slice(res.merged, func(a, b int) bool {
		return res.merged[a].EntityID() < res.merged[b].EntityID()
	})
	return res
}

func resolve[T entity](local, remote T, policy model.ConflictPolicy) T {
	switch policy {
	case model.PolicyServer:
		return remote
	case model.PolicyLocal:
		return local
	default: // last write wins, remote on ties
		if local.LastModified().After(remote.LastModified()) {
			return local
		}
		return remote
	}
}
