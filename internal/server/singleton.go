package server

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
)

// Singleton guards a service root against a second server process
// attaching to it concurrently, the same problem the teacher's Daemon
// solves with a flock.Flock pidfile lock before binding its IPC socket.
type Singleton struct {
	lock *flock.Flock
	path string
}

// AcquireSingleton tries to take an exclusive lock on lockPath. It returns
// an error if another process already holds it.
func AcquireSingleton(lockPath string) (*Singleton, error) {
	l := flock.New(lockPath)
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("server: acquire lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("server: another instance already holds %s", lockPath)
	}
	if err := os.WriteFile(lockPath+".pid", []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		l.Unlock()
		return nil, fmt.Errorf("server: write pidfile: %w", err)
	}
	return &Singleton{lock: l, path: lockPath}, nil
}

// Release frees the lock and removes the pidfile.
func (s *Singleton) Release() error {
	os.Remove(s.path + ".pid")
	return s.lock.Unlock()
}
