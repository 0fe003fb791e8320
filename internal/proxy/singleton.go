package proxy

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
)

// Singleton guards a cache_root against a second proxy process attaching
// to it concurrently, mirroring internal/server's singleton guard (itself
// grounded in the teacher's Daemon flock pattern) -- two proxies sharing
// one cache_root would corrupt each other's FileRecord/LRU bookkeeping
// since neither knows about the other's in-memory state.
type Singleton struct {
	lock *flock.Flock
	path string
}

// AcquireSingleton tries to take an exclusive lock on lockPath.
func AcquireSingleton(lockPath string) (*Singleton, error) {
	l := flock.New(lockPath)
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("proxy: acquire lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("proxy: another instance already holds %s", lockPath)
	}
	if err := os.WriteFile(lockPath+".pid", []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		l.Unlock()
		return nil, fmt.Errorf("proxy: write pidfile: %w", err)
	}
	return &Singleton{lock: l, path: lockPath}, nil
}

// Release frees the lock and removes the pidfile.
func (s *Singleton) Release() error {
	os.Remove(s.path + ".pid")
	return s.lock.Unlock()
}
