package services

import "sync"

// VersionLocks serializes mutations per schedule version within this
// process. Database row locks on the version guard against other writers.
type VersionLocks struct {
	locks sync.Map
}

func NewVersionLocks() *VersionLocks {
	return &VersionLocks{}
}

// Lock blocks until the version mutex is held and returns the unlock func.
func (l *VersionLocks) Lock(versionID int) func() {
	v, _ := l.locks.LoadOrStore(versionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
