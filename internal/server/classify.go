package server

import (
	"os"

	"cachefs/internal/wire"
)

// stat summarizes the properties Validate needs to classify a path,
// grounded in the original's FileChecker interface (IfExist, IfDirectory,
// IfRegularFile, IfCanRead, IfCanWrite).
type stat struct {
	exists    bool
	isDir     bool
	isRegular bool
	canRead   bool
	canWrite  bool
}

func statPath(fi os.FileInfo) stat {
	if fi == nil {
		return stat{}
	}
	perm := fi.Mode().Perm()
	return stat{
		exists:    true,
		isDir:     fi.IsDir(),
		isRegular: fi.Mode().IsRegular(),
		canRead:   perm&0o400 != 0,
		canWrite:  perm&0o200 != 0,
	}
}

// classify implements the error table of spec §7 exactly, in the order
// given there: existence, CREATE_NEW collision, directory handling,
// non-regular files, then read/write permission (including the
// existing-CREATE special cases).
func classify(s stat, mode wire.OpenMode) wire.ErrorCode {
	if !s.exists {
		if mode == wire.ModeCreate || mode == wire.ModeCreateNew {
			return wire.OK
		}
		return wire.ENOENT
	}
	if mode == wire.ModeCreateNew {
		return wire.EEXIST
	}
	if s.isDir {
		if mode != wire.ModeRead {
			return wire.EISDIR
		}
		if !s.canRead {
			return wire.EPERM
		}
		return wire.OK
	}
	if !s.isRegular {
		return wire.EPERM
	}
	switch mode {
	case wire.ModeRead:
		if !s.canRead {
			return wire.EPERM
		}
	case wire.ModeWrite:
		if !s.canWrite {
			return wire.EPERM
		}
	case wire.ModeCreate:
		if !s.canRead || !s.canWrite {
			return wire.EPERM
		}
	}
	return wire.OK
}
