package proxy

import (
	"container/list"

	"cachefs/internal/diskfs"
)

// lru tracks cache-file freshness ordering and enforces a byte-capacity
// budget across every version of every cached path, grounded in the
// original's lru_ LinkedHashSet plus its ReserveCacheSpace/
// EvictOneCacheEntry/HitFileInLRUCache trio. Callers are expected to hold
// the engine-wide lock for the duration of any call here -- the original
// folds the same guarantee into its own single mtx_, which is why
// ReserveCacheSpace's should_lock parameter is always passed false from
// every call site that matters.
type lru struct {
	capacity  int64
	occupancy int64
	order     *list.List
	elems     map[*version]*list.Element
	disk      *diskfs.RootFS

	// onEvicted lets the engine unmask a fileRecord's reader version when
	// the version being evicted happens to be the one readers currently see.
	onEvicted func(v *version, freedBytes int64)
}

func newLRU(capacity int64, disk *diskfs.RootFS, onEvicted func(*version, int64)) *lru {
	return &lru{
		capacity:  capacity,
		order:     list.New(),
		elems:     make(map[*version]*list.Element),
		disk:      disk,
		onEvicted: onEvicted,
	}
}

// hit registers v as the most-recently-used entry, removing any prior
// position first -- exactly HitFileInLRUCache's remove-then-append.
func (l *lru) hit(v *version) {
	l.removeFromOrder(v)
	l.elems[v] = l.order.PushBack(v)
}

func (l *lru) removeFromOrder(v *version) {
	if el, ok := l.elems[v]; ok {
		l.order.Remove(el)
		delete(l.elems, v)
	}
}

// reserve grows occupancy by size, evicting least-recently-used
// zero-refcount versions (oldest first) until there's room or nothing is
// left that can be evicted. Matches ReserveCacheSpace's loop.
func (l *lru) reserve(size int64) bool {
	if l.capacity-l.occupancy >= size {
		l.occupancy += size
		return true
	}
	for l.evictOne() {
		if l.capacity-l.occupancy >= size {
			l.occupancy += size
			return true
		}
	}
	return false
}

// evictOne removes the least-recently-used version with no active
// reference. Returns false if every entry is pinned (refCount > 0) or the
// LRU is empty, matching EvictOneCacheEntry's "nothing evictable" case.
func (l *lru) evictOne() bool {
	for el := l.order.Front(); el != nil; el = el.Next() {
		v := el.Value.(*version)
		if v.refCount > 0 {
			continue
		}
		l.order.Remove(el)
		delete(l.elems, v)
		freed := l.disk.Remove(v.fileName())
		l.occupancy -= freed
		if l.onEvicted != nil {
			l.onEvicted(v, freed)
		}
		return true
	}
	return false
}

// evict force-removes a specific version regardless of LRU position --
// used when a record actively replaces a known-stale, unreferenced reader
// version with fresh content. Mirrors EvictCacheEntry.
func (l *lru) evict(v *version) int64 {
	l.removeFromOrder(v)
	freed := l.disk.Remove(v.fileName())
	l.occupancy -= freed
	if l.onEvicted != nil {
		l.onEvicted(v, freed)
	}
	return freed
}

// unreserve gives back space that was reserved but never actually
// consumed on disk, e.g. a reservation made for a copy that failed before
// any bytes were written.
func (l *lru) unreserve(size int64) {
	l.occupancy -= size
	if l.occupancy < 0 {
		l.occupancy = 0
	}
}
