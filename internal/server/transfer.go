package server

import (
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// direction distinguishes the two halves of the chunked transfer state
// machine described in spec §4.4's "State machine -- server per chunk
// transfer".
type direction int

const (
	directionDownload direction = iota
	directionUpload
)

// transfer is one live chunk_id -> (open handle, path, direction, held
// lock) entry. The held lock is released exactly once, by whichever of
// DownloadChunk/CancelChunk (download) or UploadChunk (upload) sees the
// final chunk -- spec §3 "Server transfer tables", §4.4's per-op contracts.
type transfer struct {
	id        int32
	path      string
	dir       direction
	file      billy.File
	releaseFn func()

	// streamID is a human-debuggable identifier surfaced only in logs; the
	// wire-level id stays the monotonic int32 the protocol requires.
	streamID string
}

// transferTable assigns monotonic chunk ids and tracks live transfers,
// matching spec §3's "chunk_id is globally unique and monotonic".
type transferTable struct {
	mu      sync.Mutex
	next    int32
	entries map[int32]*transfer
}

func newTransferTable() *transferTable {
	return &transferTable{next: 1, entries: make(map[int32]*transfer)}
}

// begin registers a new transfer and returns its minted chunk id.
func (t *transferTable) begin(path string, dir direction, file billy.File, releaseFn func()) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	streamID := uuid.NewString()
	t.entries[id] = &transfer{id: id, path: path, dir: dir, file: file, releaseFn: releaseFn, streamID: streamID}
	log.WithFields(log.Fields{"chunk_id": id, "path": path, "stream": streamID}).Debug("server: transfer started")
	return id
}

// get looks up a live transfer by chunk id.
func (t *transferTable) get(id int32) (*transfer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.entries[id]
	return tr, ok
}

// end removes a transfer entry and releases its held lock exactly once.
func (t *transferTable) end(id int32) {
	t.mu.Lock()
	tr, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	tr.file.Close()
	tr.releaseFn()
	log.WithFields(log.Fields{"chunk_id": id, "path": tr.path, "stream": tr.streamID}).Debug("server: transfer ended")
}
