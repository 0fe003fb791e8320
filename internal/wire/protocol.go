package wire

// This file defines the argument/result pairs for every operation in the
// proxy<->server RPC surface (spec §6). They are plain data: the transport
// (codec.go) is responsible for getting them across the wire, and
// internal/server / internal/proxy are responsible for their semantics.

// ValidateArgs is the check-on-use request (spec §4.4).
type ValidateArgs struct {
	Path       string   `json:"path"`
	Mode       OpenMode `json:"mode"`
	ClientTime int64    `json:"client_time"` // proxy's last-known timestamp, or NoTimestamp
}

// ValidateResult is the check-on-use response. Chunk is non-nil only when
// the server has fresher content than ClientTime and the file fits the
// regular-file+readable case.
type ValidateResult struct {
	Code        ErrorCode `json:"code"`
	IsDirectory bool      `json:"is_directory"`
	ServerTime  int64     `json:"server_time"`
	Chunk       *Chunk    `json:"chunk,omitempty"`
}

// DownloadChunkArgs requests the next chunk of an in-progress download
// stream previously started by Validate.
type DownloadChunkArgs struct {
	ChunkID int32 `json:"chunk_id"`
}

// DownloadChunkResult carries the next chunk, or a failure if the id is
// unknown to the server.
type DownloadChunkResult struct {
	Code  ErrorCode `json:"code"`
	Chunk Chunk     `json:"chunk"`
}

// UploadArgs begins (or completes, if FirstChunk.EndOfFile) an upload.
type UploadArgs struct {
	Path       string `json:"path"`
	FirstChunk Chunk  `json:"first_chunk"`
}

// UploadResult carries the new server timestamp and, if the upload is not
// yet complete, the chunk id to use for subsequent UploadChunk calls.
type UploadResult struct {
	Code       ErrorCode `json:"code"`
	ServerTime int64     `json:"server_time"`
	ChunkID    int32     `json:"chunk_id"`
}

// UploadChunkArgs streams one more chunk of an in-progress upload.
type UploadChunkArgs struct {
	Chunk Chunk `json:"chunk"`
}

// UploadChunkResult carries a status code and the path's current server
// timestamp, which is the value the opening Upload call already bumped and
// returned (see internal/server/handlers.go).
type UploadChunkResult struct {
	Code       ErrorCode `json:"code"`
	ServerTime int64     `json:"server_time"`
}

// CancelChunkArgs aborts an in-progress download, releasing the server's
// held reader lock without draining the remaining chunks (spec §4.4/§5).
type CancelChunkArgs struct {
	ChunkID int32 `json:"chunk_id"`
}

// CancelChunkResult is empty beyond a status code.
type CancelChunkResult struct {
	Code ErrorCode `json:"code"`
}

// DeleteArgs requests unlinking a path on the server.
type DeleteArgs struct {
	Path string `json:"path"`
}

// DeleteResult carries the outcome of a Delete call.
type DeleteResult struct {
	Code ErrorCode `json:"code"`
}
