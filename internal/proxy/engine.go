package proxy

import (
	"sync"

	"github.com/go-git/go-billy/v5"
	log "github.com/sirupsen/logrus"

	"cachefs/internal/diskfs"
	"cachefs/internal/wire"
)

// initFD is the first file descriptor number the engine hands out,
// grounded in the original's Cache.INIT_FD; starting above the low
// numbers keeps these ids visibly distinct from any OS-level fd a caller
// might also be juggling.
const initFD = 1024

// handle is one open file descriptor: which cached version backs it, and
// under which mode it was opened (decides whether Close uploads).
type handle struct {
	path      string
	versionID int
	mode      wire.OpenMode
	file      billy.File
	isDir     bool
}

// Engine is the proxy's consistency-cache core: the per-path FileRecord
// table, the LRU capacity manager, and the fd table that ties open billy
// handles back to a cached version, grounded end to end in the original's
// Cache class (open/close/unlink, GetReaderFile/GetWriterFile,
// CloseReaderFile/CloseWriterFile, SaveData).
type Engine struct {
	mu sync.Mutex

	disk      *diskfs.RootFS
	client    *rpcClient
	chunkSize int

	lru        *lru
	records    map[string]*fileRecord
	timestamps map[string]int64

	handles map[int]*handle
	nextFD  int
}

// NewEngine wires an Engine over an already-open cache root and RPC
// client.
func NewEngine(disk *diskfs.RootFS, serverAddr string, capacity int64, chunkSize int) *Engine {
	if chunkSize <= 0 {
		chunkSize = wire.DefaultChunkSize
	}
	e := &Engine{
		disk:       disk,
		client:     newRPCClient(serverAddr),
		chunkSize:  chunkSize,
		records:    make(map[string]*fileRecord),
		timestamps: make(map[string]int64),
		handles:    make(map[int]*handle),
		nextFD:     initFD,
	}
	e.lru = newLRU(capacity, disk, e.onEvicted)
	return e
}

// Sweep deletes every file left in the cache root from a previous process.
// A fresh Engine starts with an empty records map, so nothing on disk is
// reachable through any version's refcount or LRU position; a prior
// process that crashed mid-download or mid-upload can leave such orphans
// behind, and a new process would otherwise never reclaim that space.
func (e *Engine) Sweep() (removed int, freedBytes int64) {
	return e.disk.RemoveAllExcept(nil)
}

// onEvicted runs under e.mu (every lru call the engine makes holds e.mu
// already) and unmasks a fileRecord's reader version when the version
// being reclaimed is the one readers currently see, mirroring
// EvictCacheEntry/EvictOneCacheEntry's record_map_ bookkeeping.
func (e *Engine) onEvicted(v *version, freed int64) {
	r, ok := e.records[v.path]
	if !ok {
		return
	}
	if r.readerVersion == v.id {
		r.readerVersion = nonExistVersion
		delete(e.timestamps, v.path)
	}
	delete(r.versions, v.id)
}

func (e *Engine) getOrCreateRecord(path string) *fileRecord {
	r, ok := e.records[path]
	if !ok {
		r = newFileRecord(path, nonExistVersion, nonExistVersion)
		e.records[path] = r
	}
	return r
}

// OpenResult is the outcome of Open: a usable fd plus directory flag on
// success, or a negative wire.ErrorCode on failure -- the Go analogue of
// the original's OpenReturnVal.
type OpenResult struct {
	FD          int
	IsDirectory bool
	Code        wire.ErrorCode
}

// Open implements spec §4.2's top-level open state machine: check-on-use
// against the server, pull down fresher content if any was returned, then
// hand back a cached file descriptor for reading or writing.
func (e *Engine) Open(path string, mode wire.OpenMode) OpenResult {
	e.mu.Lock()
	cachedTime, hasCached := e.timestamps[path]
	e.mu.Unlock()
	clientTime := wire.NoTimestamp
	if hasCached {
		clientTime = cachedTime
	}

	var result wire.ValidateResult
	if err := e.client.call(wire.OpValidate, wire.ValidateArgs{Path: path, Mode: mode, ClientTime: clientTime}, &result); err != nil {
		log.WithError(err).WithField("path", path).Error("proxy: validate transport failure")
		return OpenResult{Code: wire.EIO}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if result.Code == wire.ENOENT {
		if r, ok := e.records[path]; ok {
			r.readerVersion = nonExistVersion
			delete(e.timestamps, path)
		}
	}
	if result.Code.IsError() {
		return OpenResult{Code: result.Code, IsDirectory: result.IsDirectory}
	}
	if result.IsDirectory {
		fd := e.nextFD
		e.nextFD++
		e.handles[fd] = &handle{path: path, isDir: true}
		return OpenResult{FD: fd, IsDirectory: true}
	}

	if result.ServerTime != wire.NoTimestamp && result.Chunk != nil {
		if cur, ok := e.timestamps[path]; ok && cur == result.ServerTime {
			// Someone else already refreshed this path while we waited on
			// the server round trip; just release the lock it is holding.
			if !result.Chunk.EndOfFile {
				e.client.call(wire.OpCancelChunk, wire.CancelChunkArgs{ChunkID: result.Chunk.ChunkID}, nil)
			}
		} else if code := e.saveData(path, *result.Chunk, result.ServerTime); code.IsError() {
			return OpenResult{Code: code}
		}
	}

	record := e.getOrCreateRecord(path)
	v, code := e.acquireForMode(record, mode)
	if code.IsError() {
		return OpenResult{Code: code}
	}

	f, err := e.openHandleFile(v, mode)
	if err != nil {
		e.releaseAcquired(record, v, mode)
		log.WithError(err).WithField("path", path).Error("proxy: open cached file failed")
		return OpenResult{Code: wire.EIO}
	}

	fd := e.nextFD
	e.nextFD++
	e.handles[fd] = &handle{path: path, versionID: v.id, mode: mode, file: f}
	return OpenResult{FD: fd}
}

func (e *Engine) acquireForMode(r *fileRecord, mode wire.OpenMode) (*version, wire.ErrorCode) {
	if mode == wire.ModeRead {
		return e.acquireReader(r)
	}
	return e.acquireWriter(r)
}

func (e *Engine) openHandleFile(v *version, mode wire.OpenMode) (billy.File, error) {
	if mode == wire.ModeRead {
		return e.disk.ReadFile(v.fileName())
	}
	return e.disk.OpenReadWrite(v.fileName())
}

func (e *Engine) releaseAcquired(r *fileRecord, v *version, mode wire.OpenMode) {
	if mode == wire.ModeRead {
		e.releaseReaderLocked(r, v.id)
		return
	}
	v.decrRef()
}

// acquireReader implements GetReaderFile: hand out a new reference to the
// current reader-visible version.
func (e *Engine) acquireReader(r *fileRecord) (*version, wire.ErrorCode) {
	v := r.readerVersionEntry()
	if v == nil {
		return nil, wire.ENOENT
	}
	v.incrRef()
	e.lru.hit(v)
	return v, wire.OK
}

// acquireWriter implements GetWriterFile: mint a new exclusive version,
// copying the current reader version's bytes as a starting point if one
// exists, otherwise starting from an empty file.
func (e *Engine) acquireWriter(r *fileRecord) (*version, wire.ErrorCode) {
	id := r.nextVersionID()
	wv := newVersion(r.path, id)

	if r.hasReaderVersion() {
		rv := r.readerVersionEntry()
		rv.incrRef()
		size := e.disk.Size(rv.fileName())
		if !e.lru.reserve(size) {
			rv.decrRef()
			return nil, wire.ENOMEM
		}
		if err := e.disk.CopyFile(wv.fileName(), rv.fileName()); err != nil {
			e.lru.unreserve(size)
			rv.decrRef()
			log.WithError(err).WithField("path", r.path).Error("proxy: copy reader version for writer failed")
			return nil, wire.EIO
		}
		rv.decrRef()
	} else {
		f, err := e.disk.CreateTruncate(wv.fileName())
		if err != nil {
			return nil, wire.EIO
		}
		f.Close()
	}

	r.versions[id] = wv
	wv.incrRef()
	e.lru.hit(wv)
	return wv, wire.OK
}

// saveData implements SaveData: drain a chunked download into a brand new
// version, masking out any unreferenced current reader version along the
// way, and install the result as reader-visible on success.
func (e *Engine) saveData(path string, chunk wire.Chunk, serverTimestamp int64) wire.ErrorCode {
	r := e.getOrCreateRecord(path)

	if r.hasReaderVersion() {
		cur := r.readerVersionEntry()
		if cur.refCount == 0 {
			e.lru.evict(cur)
		}
	}

	id := r.nextVersionID()
	v := newVersion(path, id)
	r.versions[id] = v
	v.incrRef()
	e.lru.hit(v)

	f, err := e.disk.CreateTruncate(v.fileName())
	if err != nil {
		v.decrRef()
		delete(r.versions, id)
		return wire.EIO
	}

	for {
		if !e.lru.reserve(int64(len(chunk.Data))) {
			v.decrRef()
			e.lru.evict(v)
			f.Close()
			if !chunk.EndOfFile {
				e.client.call(wire.OpCancelChunk, wire.CancelChunkArgs{ChunkID: chunk.ChunkID}, nil)
			}
			return wire.ENOMEM
		}
		if _, err := f.Write(chunk.Data); err != nil {
			v.decrRef()
			e.lru.evict(v)
			f.Close()
			return wire.EIO
		}
		if chunk.EndOfFile {
			break
		}
		var dl wire.DownloadChunkResult
		if err := e.client.call(wire.OpDownloadChunk, wire.DownloadChunkArgs{ChunkID: chunk.ChunkID}, &dl); err != nil {
			v.decrRef()
			e.lru.evict(v)
			f.Close()
			return wire.EIO
		}
		chunk = dl.Chunk
	}

	v.decrRef()
	f.Close()
	e.timestamps[path] = serverTimestamp
	r.readerVersion = id
	return wire.OK
}

// Close implements spec §4.2's top-level close: for a writer handle, this
// is where the new version gets uploaded and, if that succeeds, installed.
func (e *Engine) Close(fd int) wire.ErrorCode {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.handles[fd]
	if !ok {
		return wire.EBADF
	}
	delete(e.handles, fd)
	if h.isDir {
		return wire.OK
	}
	if h.file != nil {
		h.file.Close()
	}

	r, ok := e.records[h.path]
	if !ok {
		return wire.EIO
	}
	if h.mode == wire.ModeRead {
		e.releaseReaderLocked(r, h.versionID)
		return wire.OK
	}
	return e.releaseWriterLocked(r, h.versionID)
}

// releaseReaderLocked implements CloseReaderFile: drop a reference, and if
// it was the last one and the version has already been superseded as
// reader-visible, reclaim it immediately rather than waiting for LRU
// pressure.
func (e *Engine) releaseReaderLocked(r *fileRecord, versionID int) {
	v, ok := r.versions[versionID]
	if !ok {
		return
	}
	e.lru.hit(v)
	remain := v.decrRef()
	if remain == 0 && versionID != r.readerVersion {
		e.lru.evict(v)
	}
}

// releaseWriterLocked implements CloseWriterFile: upload the new version
// chunk by chunk and, only on success, install it as reader-visible.
//
// This diverges from the original, which swallows upload exceptions and
// installs the version as reader-visible regardless. Here an upload
// failure is propagated to the caller as an error code and the version is
// never installed -- it is simply released back to refcount zero so the
// LRU can reclaim it on its own schedule.
func (e *Engine) releaseWriterLocked(r *fileRecord, versionID int) wire.ErrorCode {
	v, ok := r.versions[versionID]
	if !ok {
		return wire.EBADF
	}
	e.lru.hit(v)
	v.decrRef()

	f, err := e.disk.ReadFile(v.fileName())
	if err != nil {
		return wire.EIO
	}
	defer f.Close()

	size := e.disk.Size(v.fileName())
	remaining := size
	buf := make([]byte, minInt64(int64(e.chunkSize), remaining))
	n, err := f.Read(buf)
	if err != nil && n == 0 && remaining != 0 {
		return wire.EIO
	}
	buf = buf[:n]
	remaining -= int64(n)
	isEnd := remaining <= 0

	var up wire.UploadResult
	if err := e.client.call(wire.OpUpload, wire.UploadArgs{Path: r.path, FirstChunk: wire.Chunk{Data: buf, EndOfFile: isEnd}}, &up); err != nil {
		log.WithError(err).WithField("path", r.path).Error("proxy: upload transport failure")
		return wire.EIO
	}
	if up.Code.IsError() {
		return up.Code
	}

	for !isEnd {
		n := minInt64(int64(e.chunkSize), remaining)
		buf = make([]byte, n)
		readN, err := f.Read(buf)
		if err != nil && readN == 0 {
			return wire.EIO
		}
		buf = buf[:readN]
		remaining -= int64(readN)
		isEnd = remaining <= 0

		var uc wire.UploadChunkResult
		if err := e.client.call(wire.OpUploadChunk, wire.UploadChunkArgs{Chunk: wire.Chunk{ChunkID: up.ChunkID, Data: buf, EndOfFile: isEnd}}, &uc); err != nil {
			log.WithError(err).WithField("path", r.path).Error("proxy: upload_chunk transport failure")
			return wire.EIO
		}
		if uc.Code.IsError() {
			return uc.Code
		}
		up.ServerTime = uc.ServerTime
	}

	if r.hasReaderVersion() {
		old := r.readerVersionEntry()
		if old.refCount == 0 {
			e.lru.evict(old)
		}
	}
	r.readerVersion = v.id
	e.timestamps[r.path] = up.ServerTime
	return wire.OK
}

// Unlink implements spec §4.2's top-level unlink: ask the server to
// delete the path, then drop every version of it this proxy is not
// actively using.
func (e *Engine) Unlink(path string) wire.ErrorCode {
	var del wire.DeleteResult
	if err := e.client.call(wire.OpDelete, wire.DeleteArgs{Path: path}, &del); err != nil {
		log.WithError(err).WithField("path", path).Error("proxy: delete transport failure")
		return wire.EIO
	}
	if del.Code != wire.OK {
		return del.Code
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.records[path]
	if !ok {
		return wire.OK
	}
	r.readerVersion = nonExistVersion
	delete(e.timestamps, path)

	for id, v := range r.versions {
		if v.refCount == 0 {
			e.lru.evict(v)
			delete(r.versions, id)
		}
	}
	return wire.OK
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
