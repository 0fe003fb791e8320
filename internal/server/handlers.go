package server

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"cachefs/internal/diskfs"
	"cachefs/internal/wire"
)

// Handlers implements the six proxy<->server RPCs of spec §4.4/§6. It is
// the "versioned file store with per-file reader/writer locking and
// chunked transfer state machine" half of the coupled consistency engine
// described in spec §1.
type Handlers struct {
	disk      *diskfs.RootFS
	versions  *versionIndex
	locks     *lockTable
	transfers *transferTable
	chunkSize int
}

// NewHandlers wires a Handlers over an already-open root filesystem.
func NewHandlers(disk *diskfs.RootFS, chunkSize int) *Handlers {
	if chunkSize <= 0 {
		chunkSize = wire.DefaultChunkSize
	}
	return &Handlers{
		disk:      disk,
		versions:  newVersionIndex(),
		locks:     newLockTable(),
		transfers: newTransferTable(),
		chunkSize: chunkSize,
	}
}

// ScanRoot walks the service root and seeds a timestamp of 0 for every
// regular file already present, per spec §2's "initial scan of root" and
// SPEC_FULL.md's supplement on startup seeding.
func (h *Handlers) ScanRoot() error {
	count := 0
	err := h.disk.Walk(func(e diskfs.Entry) error {
		h.versions.Set(e.Path, 0)
		count++
		return nil
	})
	log.WithField("files", count).Info("server: startup scan complete")
	return err
}

// Validate implements spec §4.4's check-on-use step.
func (h *Handlers) Validate(args wire.ValidateArgs) wire.ValidateResult {
	path := wire.NormalizePath(args.Path)
	if wire.Escapes(args.Path) {
		return wire.ValidateResult{Code: wire.EPERM}
	}

	lock := h.locks.AcquireRead(path)
	released := false
	release := func() {
		if !released {
			released = true
			lock.RUnlock()
		}
	}

	fi, statErr := h.disk.Stat(path)
	_ = statErr
	s := statPath(fi)
	code := classify(s, args.Mode)
	if code.IsError() {
		release()
		return wire.ValidateResult{Code: code, IsDirectory: s.isDir}
	}

	if s.isDir {
		release()
		return wire.ValidateResult{Code: wire.OK, IsDirectory: true, ServerTime: h.versions.Get(path)}
	}

	if !h.versions.Exists(path) {
		// No timestamp entry: either the file does not exist and the mode
		// creates it, or the file was put in the root after the startup
		// scan and never uploaded. No content is sent in either case.
		release()
		return wire.ValidateResult{Code: wire.OK, ServerTime: wire.NoTimestamp}
	}

	serverTime := h.versions.Get(path)
	if args.ClientTime == serverTime {
		release()
		return wire.ValidateResult{Code: wire.OK, ServerTime: serverTime}
	}

	// Client is stale (or has never seen this path): load and return the
	// first chunk, retaining the reader lock across the call if the file
	// does not fit in one chunk.
	chunk, retain, err := h.loadFirstChunk(path, release)
	if err != nil {
		release()
		log.WithError(err).WithField("path", path).Error("server: load file for download failed")
		return wire.ValidateResult{Code: wire.EIO}
	}
	if !retain {
		release()
	}
	return wire.ValidateResult{Code: wire.OK, ServerTime: serverTime, Chunk: &chunk}
}

// loadFirstChunk reads the first chunk of path. If more chunks remain, it
// registers a download transfer that takes over release (the caller's
// lock-release closure) and returns retain=true; the transfer table calls
// release when the download ends or is cancelled. If the whole file fits in
// one chunk it returns retain=false and does not call release itself: the
// caller still holds the lock and releases it.
func (h *Handlers) loadFirstChunk(path string, release func()) (wire.Chunk, bool, error) {
	f, err := h.disk.ReadFile(path)
	if err != nil {
		return wire.Chunk{}, false, fmt.Errorf("open %s: %w", path, err)
	}

	size := h.disk.Size(path)
	buf := make([]byte, minInt(h.chunkSize, int(size)))
	n, err := f.Read(buf)
	if err != nil && n == 0 && size != 0 {
		f.Close()
		return wire.Chunk{}, false, fmt.Errorf("read %s: %w", path, err)
	}
	buf = buf[:n]

	remaining := size - int64(n)
	if remaining <= 0 {
		f.Close()
		return wire.Chunk{Data: buf, EndOfFile: true, ChunkID: wire.NoChunkID}, false, nil
	}

	id := h.transfers.begin(path, directionDownload, f, release)
	return wire.Chunk{Data: buf, EndOfFile: false, ChunkID: id}, true, nil
}

// DownloadChunk implements spec §4.4's streaming continuation of a
// download started by Validate.
func (h *Handlers) DownloadChunk(args wire.DownloadChunkArgs) wire.DownloadChunkResult {
	tr, ok := h.transfers.get(args.ChunkID)
	if !ok || tr.dir != directionDownload {
		return wire.DownloadChunkResult{Code: wire.EBADF}
	}

	buf := make([]byte, h.chunkSize)
	n, err := tr.file.Read(buf)
	if err != nil && n == 0 {
		// Treat as end of file: nothing left to send.
		h.transfers.end(args.ChunkID)
		return wire.DownloadChunkResult{Code: wire.OK, Chunk: wire.Chunk{EndOfFile: true, ChunkID: args.ChunkID}}
	}
	buf = buf[:n]

	// Read one more byte to decide end_of_file.
	probe := make([]byte, 1)
	m, _ := tr.file.Read(probe)
	endOfFile := m == 0
	if !endOfFile {
		// Rewind the one byte we peeked by re-reading from a tracked offset
		// is not supported uniformly across billy.File implementations, so
		// instead we fold the probed byte back into this chunk directly.
		buf = append(buf, probe[:m]...)
	}

	if endOfFile {
		h.transfers.end(args.ChunkID)
	}
	return wire.DownloadChunkResult{Code: wire.OK, Chunk: wire.Chunk{Data: buf, EndOfFile: endOfFile, ChunkID: args.ChunkID}}
}

// CancelChunk implements spec §4.4/§5's abort path for a download the
// proxy can't fit in its cache.
func (h *Handlers) CancelChunk(args wire.CancelChunkArgs) wire.CancelChunkResult {
	tr, ok := h.transfers.get(args.ChunkID)
	if !ok || tr.dir != directionDownload {
		return wire.CancelChunkResult{Code: wire.EBADF}
	}
	h.transfers.end(args.ChunkID)
	return wire.CancelChunkResult{Code: wire.OK}
}

// Upload implements spec §4.4's upload-commit step. It always bumps the
// path's timestamp, even for a single-chunk (already-complete) upload.
func (h *Handlers) Upload(args wire.UploadArgs) wire.UploadResult {
	path := wire.NormalizePath(args.Path)
	if wire.Escapes(args.Path) {
		return wire.UploadResult{Code: wire.EPERM}
	}

	lock := h.locks.AcquireWrite(path)
	f, err := h.disk.CreateTruncate(path)
	if err != nil {
		lock.Unlock()
		log.WithError(err).WithField("path", path).Error("server: upload create failed")
		return wire.UploadResult{Code: wire.EIO}
	}
	if _, err := f.Write(args.FirstChunk.Data); err != nil {
		f.Close()
		lock.Unlock()
		log.WithError(err).WithField("path", path).Error("server: upload write failed")
		return wire.UploadResult{Code: wire.EIO}
	}

	newTime := h.versions.Bump(path)
	if args.FirstChunk.EndOfFile {
		f.Close()
		lock.Unlock()
		return wire.UploadResult{Code: wire.OK, ServerTime: newTime, ChunkID: wire.NoChunkID}
	}

	id := h.transfers.begin(path, directionUpload, f, lock.Unlock)
	return wire.UploadResult{Code: wire.OK, ServerTime: newTime, ChunkID: id}
}

// UploadChunk implements spec §4.4's streaming continuation of an upload.
func (h *Handlers) UploadChunk(args wire.UploadChunkArgs) wire.UploadChunkResult {
	tr, ok := h.transfers.get(args.Chunk.ChunkID)
	if !ok || tr.dir != directionUpload {
		return wire.UploadChunkResult{Code: wire.EBADF}
	}
	if _, err := tr.file.Write(args.Chunk.Data); err != nil {
		log.WithError(err).WithField("path", tr.path).Error("server: upload chunk write failed")
		h.transfers.end(args.Chunk.ChunkID)
		return wire.UploadChunkResult{Code: wire.EIO}
	}
	serverTime := h.versions.Get(tr.path)
	if args.Chunk.EndOfFile {
		h.transfers.end(args.Chunk.ChunkID)
	}
	return wire.UploadChunkResult{Code: wire.OK, ServerTime: serverTime}
}

// Delete implements spec §4.4's unlink path.
func (h *Handlers) Delete(args wire.DeleteArgs) wire.DeleteResult {
	path := wire.NormalizePath(args.Path)
	if wire.Escapes(args.Path) {
		return wire.DeleteResult{Code: wire.EPERM}
	}

	var result wire.DeleteResult
	h.locks.WithWrite(path, func() {
		fi, _ := h.disk.Stat(path)
		if fi == nil {
			result = wire.DeleteResult{Code: wire.ENOENT}
			return
		}
		if fi.IsDir() {
			result = wire.DeleteResult{Code: wire.EISDIR}
			return
		}
		h.disk.Remove(path)
		h.versions.Delete(path)
		result = wire.DeleteResult{Code: wire.OK}
	})
	return result
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
