package proxy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cachefs/internal/diskfs"
	"cachefs/internal/server"
	"cachefs/internal/wire"
)

// These tests walk through the end-to-end scenarios a reviewer would check
// by hand against a running proxy and server: cold read, warm read, a
// session snapshot held across concurrent writers, create-new collision
// against a missing sibling, directory handling, LRU eviction that must
// skip a pinned entry, and an out-of-space download that has to cancel
// mid-stream.

func newScenarioServer(t *testing.T, chunkSize int, seed func(root string)) (root, addr string) {
	t.Helper()
	root = t.TempDir()
	seed(root)
	srv, err := server.New(server.Config{Root: root, Addr: "127.0.0.1:0", ChunkSize: chunkSize})
	require.NoError(t, err)
	addr, err = srv.Start()
	require.NoError(t, err)
	t.Cleanup(func() { srv.Stop() })
	return root, addr
}

func newScenarioEngine(t *testing.T, addr string, capacity int64, chunkSize int) *Engine {
	t.Helper()
	disk, err := diskfs.Open(t.TempDir())
	require.NoError(t, err)
	return NewEngine(disk, addr, capacity, chunkSize)
}

func TestScenarioColdRead(t *testing.T) {
	_, addr := newScenarioServer(t, 8, func(root string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "A.txt"), []byte("hello"), 0o644))
	})

	e := newScenarioEngine(t, addr, 1<<20, 8)
	open := e.Open("A.txt", wire.ModeRead)
	require.Equal(t, wire.OK, open.Code)
	require.GreaterOrEqual(t, open.FD, initFD)

	e.mu.Lock()
	h := e.handles[open.FD]
	e.mu.Unlock()
	buf := make([]byte, 5)
	n, _ := h.file.Read(buf)
	require.Equal(t, "hello", string(buf[:n]))
	require.Equal(t, wire.OK, e.Close(open.FD))

	e.mu.Lock()
	ts := e.timestamps["A.txt"]
	e.mu.Unlock()
	require.Equal(t, int64(0), ts)
}

func TestScenarioWarmReadSkipsDownload(t *testing.T) {
	_, addr := newScenarioServer(t, 8, func(root string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "A.txt"), []byte("hello"), 0o644))
	})

	e := newScenarioEngine(t, addr, 1<<20, 8)
	first := e.Open("A.txt", wire.ModeRead)
	require.Equal(t, wire.OK, e.Close(first.FD))

	second := e.Open("A.txt", wire.ModeRead)
	require.Equal(t, wire.OK, second.Code)
	e.mu.Lock()
	h := e.handles[second.FD]
	e.mu.Unlock()
	buf := make([]byte, 5)
	n, _ := h.file.Read(buf)
	require.Equal(t, "hello", string(buf[:n]))
	require.Equal(t, wire.OK, e.Close(second.FD))
}

func TestScenarioSessionSnapshotUnderConcurrentWriters(t *testing.T) {
	_, addr := newScenarioServer(t, 64, func(root string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "base.txt"), []byte("X"), 0o644))
	})

	e := newScenarioEngine(t, addr, 1<<20, 64)

	opened := e.Open("base.txt", wire.ModeRead)
	require.Equal(t, wire.OK, opened.Code)
	e.mu.Lock()
	reader := e.handles[opened.FD]
	e.mu.Unlock()

	writeViaEngine(t, e, "base.txt", []byte("X1"))
	writeViaEngine(t, e, "base.txt", []byte("X2"))

	buf := make([]byte, 16)
	n, _ := reader.file.Read(buf)
	require.Equal(t, "X", string(buf[:n]))
	require.Equal(t, wire.OK, e.Close(opened.FD))

	require.Equal(t, []byte("X2"), readViaEngine(t, e, "base.txt"))
}

func TestScenarioCreateNewThenMissingSibling(t *testing.T) {
	_, addr := newScenarioServer(t, 8, func(root string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "yes.txt"), []byte("x"), 0o644))
	})

	e := newScenarioEngine(t, addr, 1<<20, 8)

	res := e.Open("yes.txt", wire.ModeCreateNew)
	require.Equal(t, wire.EEXIST, res.Code)

	res = e.Open("no.txt", wire.ModeRead)
	require.Equal(t, wire.ENOENT, res.Code)
}

func TestScenarioDirectory(t *testing.T) {
	_, addr := newScenarioServer(t, 8, func(root string) {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "subdir"), 0o755))
	})

	e := newScenarioEngine(t, addr, 1<<20, 8)

	res := e.Open("subdir", wire.ModeRead)
	require.Equal(t, wire.OK, res.Code)
	require.True(t, res.IsDirectory)
	require.Equal(t, wire.OK, e.Close(res.FD))

	res = e.Open("subdir", wire.ModeWrite)
	require.Equal(t, wire.EISDIR, res.Code)
}

func TestScenarioLRUEvictionSkipsPinned(t *testing.T) {
	const fileSize = 10
	names := []string{"A", "B", "C", "D", "E", "F", "G"}
	_, addr := newScenarioServer(t, 64, func(root string) {
		for _, n := range names {
			require.NoError(t, os.WriteFile(filepath.Join(root, n), []byte("0123456789"), 0o644))
		}
	})

	e := newScenarioEngine(t, addr, int64(5.5*float64(fileSize)), 64)

	for _, n := range names[:5] { // A..E
		res := e.Open(n, wire.ModeRead)
		require.Equal(t, wire.OK, res.Code)
		require.Equal(t, wire.OK, e.Close(res.FD))
	}

	openF := e.Open("F", wire.ModeRead) // held open, pinning F
	require.Equal(t, wire.OK, openF.Code)

	openG := e.Open("G", wire.ModeRead)
	require.Equal(t, wire.OK, openG.Code)
	require.Equal(t, wire.OK, e.Close(openG.FD))

	e.mu.Lock()
	_, aAlive := e.records["A"].versions[1]
	_, bAlive := e.records["B"].versions[1]
	fRecord, fPresent := e.records["F"]
	e.mu.Unlock()

	require.False(t, aAlive, "A should have been evicted to make room for G")
	require.False(t, bAlive, "B should have been evicted to make room for G")
	require.True(t, fPresent)
	require.NotEqual(t, nonExistVersion, fRecord.readerVersion, "F must not be evicted while pinned open")

	require.Equal(t, wire.OK, e.Close(openF.FD))
}

func TestScenarioOutOfSpaceDownloadCancelsAndFreesServerLock(t *testing.T) {
	big := make([]byte, 500*1024)
	for i := range big {
		big[i] = byte(i % 251)
	}
	_, addr := newScenarioServer(t, 200*1024, func(root string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "big.bin"), big, 0o644))
	})

	e := newScenarioEngine(t, addr, 100*1024, 200*1024)

	res := e.Open("big.bin", wire.ModeRead)
	require.Equal(t, wire.ENOMEM, res.Code)

	e.mu.Lock()
	_, hasRecord := e.records["big.bin"]
	e.mu.Unlock()
	if hasRecord {
		e.mu.Lock()
		require.Empty(t, e.records["big.bin"].versions)
		e.mu.Unlock()
	}

	// The server's reader lock for big.bin must have been released by
	// CancelChunk -- a fresh Upload to the same path must not block.
	var up wire.UploadResult
	client := newRPCClient(addr)
	err := client.call(wire.OpUpload, wire.UploadArgs{Path: "big.bin", FirstChunk: wire.Chunk{Data: []byte("small"), EndOfFile: true}}, &up)
	require.NoError(t, err)
	require.Equal(t, wire.OK, up.Code)
}
