package application

import "sync"

// sendLock flags a colored funding in progress. It is taken when the funding
// transaction is built and released once the channel is pending or the
// funding is discarded.
type sendLock struct {
	mu     sync.Mutex
	locked bool
}

// lock returns false if the lock was already taken.
func (l *sendLock) lock() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked {
		return false
	}
	l.locked = true
	return true
}

func (l *sendLock) unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked = false
}

func (l *sendLock) isLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}
