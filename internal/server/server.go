package server

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"cachefs/internal/diskfs"
	"cachefs/internal/wire"
)

// Config holds the knobs needed to stand up a Server, grounded in the
// teacher's daemon.Config pattern of a flat struct handed to the
// constructor rather than read from globals.
type Config struct {
	Root      string
	Addr      string
	ChunkSize int
}

// Server binds the RPC handlers to a listening wire.Server over a
// service root, completing the "server" half of spec §1's client-cache
// consistency protocol.
type Server struct {
	cfg      Config
	handlers *Handlers
	wire     *wire.Server
}

// New opens the service root and wires up the RPC handler table. It does
// not bind a listener yet; call Start for that.
func New(cfg Config) (*Server, error) {
	disk, err := diskfs.Open(cfg.Root)
	if err != nil {
		return nil, err
	}
	h := NewHandlers(disk, cfg.ChunkSize)
	if err := h.ScanRoot(); err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, handlers: h}
	s.wire = wire.NewServer(s.dispatch)
	return s, nil
}

// Start binds the listener and returns the address actually bound (useful
// when cfg.Addr ends in ":0").
func (s *Server) Start() (string, error) {
	addr, err := s.wire.Listen(s.cfg.Addr)
	if err != nil {
		return "", err
	}
	log.WithFields(log.Fields{"addr": addr, "root": s.cfg.Root}).Info("server: listening")
	return addr, nil
}

// Stop closes the listener, aborting any in-flight accepts.
func (s *Server) Stop() error {
	return s.wire.Close()
}

// dispatch is the wire.Handler that routes a decoded envelope to the
// matching Handlers method, translating between the untyped
// json.RawMessage payload and the protocol's typed arg/result structs.
func (s *Server) dispatch(op wire.Op, payload json.RawMessage) (any, error) {
	switch op {
	case wire.OpValidate:
		var args wire.ValidateArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, err
		}
		return s.handlers.Validate(args), nil
	case wire.OpDownloadChunk:
		var args wire.DownloadChunkArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, err
		}
		return s.handlers.DownloadChunk(args), nil
	case wire.OpUpload:
		var args wire.UploadArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, err
		}
		return s.handlers.Upload(args), nil
	case wire.OpUploadChunk:
		var args wire.UploadChunkArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, err
		}
		return s.handlers.UploadChunk(args), nil
	case wire.OpCancelChunk:
		var args wire.CancelChunkArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, err
		}
		return s.handlers.CancelChunk(args), nil
	case wire.OpDelete:
		var args wire.DeleteArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, err
		}
		return s.handlers.Delete(args), nil
	default:
		return nil, fmt.Errorf("server: unknown op %q", op)
	}
}
