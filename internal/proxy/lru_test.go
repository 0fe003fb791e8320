package proxy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cachefs/internal/diskfs"
)

func newTestLRU(t *testing.T, capacity int64) (*lru, *diskfs.RootFS) {
	t.Helper()
	disk, err := diskfs.Open(t.TempDir())
	require.NoError(t, err)
	var evicted []*version
	l := newLRU(capacity, disk, func(v *version, freed int64) { evicted = append(evicted, v) })
	return l, disk
}

func writeFile(t *testing.T, disk *diskfs.RootFS, name string, size int) {
	t.Helper()
	f, err := disk.CreateTruncate(name)
	require.NoError(t, err)
	_, err = f.Write(make([]byte, size))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestLRUReserveWithinCapacity(t *testing.T) {
	l, _ := newTestLRU(t, 100)
	require.True(t, l.reserve(50))
	require.Equal(t, int64(50), l.occupancy)
}

func TestLRUReserveEvictsUnreferenced(t *testing.T) {
	l, disk := newTestLRU(t, 10)
	writeFile(t, disk, "old", 10)
	v := newVersion("old", 0)
	l.hit(v)
	require.True(t, l.reserve(10))
	require.Equal(t, int64(10), l.occupancy)

	// A second reservation must evict "old" (refcount 0) to make room.
	require.True(t, l.reserve(10))
	require.False(t, disk.Exists("old"))
}

func TestLRUReserveFailsWhenAllPinned(t *testing.T) {
	l, disk := newTestLRU(t, 10)
	writeFile(t, disk, "pinned", 10)
	v := newVersion("pinned", 0)
	v.incrRef()
	l.hit(v)
	require.True(t, l.reserve(10))

	require.False(t, l.reserve(5))
}

func TestLRUHitReordersToMostRecentlyUsed(t *testing.T) {
	l, disk := newTestLRU(t, 100)
	writeFile(t, disk, "a", 10)
	writeFile(t, disk, "b", 10)
	va := newVersion("a", 0)
	vb := newVersion("b", 0)
	l.hit(va)
	l.hit(vb)
	l.hit(va) // touch a again so b becomes least-recently-used

	require.True(t, l.evictOne())
	require.False(t, disk.Exists("b"))
	require.True(t, disk.Exists("a"))
}
