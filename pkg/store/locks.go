package store

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Well-known lock names. Row-level identity locks are derived from the
// identity's hex identifier via IdentityLockName.
const (
	// HostingAgreementLock serializes capacity admission.
	HostingAgreementLock = "hosting_agreement"

	// SettingsLock serializes singleton writes (key pair, IPNS sequence).
	SettingsLock = "settings"

	// NeighborhoodLock serializes neighbor/follower set mutations.
	NeighborhoodLock = "neighborhood"
)

// IdentityLockName returns the row-level lock name of a hosted identity.
func IdentityLockName(identityID []byte) string {
	return fmt.Sprintf("identity/%x", identityID)
}

const (
	lockAcquireAttempts = 3
	lockRetryJitterMin  = 10 * time.Millisecond
	lockRetryJitterMax  = 50 * time.Millisecond
)

// ErrLockContended is returned when a lock set could not be acquired within
// the retry budget. Handlers surface it as ErrorInternal; clients may retry.
var ErrLockContended = fmt.Errorf("lock contention not resolved within retry budget")

// LockSet is a registry of named in-process locks.
//
// Acquisition is always in lexicographic name order, which makes deadlock
// impossible regardless of which locks a caller combines. Each attempt uses
// TryLock per name; on contention everything acquired so far is released in
// reverse order and the attempt is retried after a short jittered sleep.
type LockSet struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockSet returns an empty lock registry.
func NewLockSet() *LockSet {
	return &LockSet{locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex for name, creating it on first use.
func (ls *LockSet) get(name string) *sync.Mutex {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	m, ok := ls.locks[name]
	if !ok {
		m = &sync.Mutex{}
		ls.locks[name] = m
	}
	return m
}

// Release frees the locks of a successful Acquire. The caller passes the
// value Acquire returned; locks are released in reverse acquisition order.
type Release func()

// Acquire takes every named lock in lexicographic order. On success the
// returned Release frees them in reverse order; on failure ErrLockContended
// is returned and nothing is held.
func (ls *LockSet) Acquire(names ...string) (Release, error) {
	if len(names) == 0 {
		return func() {}, nil
	}

	ordered := append([]string(nil), names...)
	sort.Strings(ordered)

	for attempt := 0; attempt < lockAcquireAttempts; attempt++ {
		if attempt > 0 {
			jitter := lockRetryJitterMin +
				time.Duration(rand.Int63n(int64(lockRetryJitterMax-lockRetryJitterMin)))
			time.Sleep(jitter)
		}

		held := make([]*sync.Mutex, 0, len(ordered))
		ok := true
		for _, name := range ordered {
			m := ls.get(name)
			if !m.TryLock() {
				ok = false
				break
			}
			held = append(held, m)
		}
		if ok {
			return func() {
				for i := len(held) - 1; i >= 0; i-- {
					held[i].Unlock()
				}
			}, nil
		}
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
	return nil, ErrLockContended
}

// AcquireBlocking takes a single named lock, waiting as long as necessary.
// Used where FIFO fairness matters more than failing fast, e.g. the second
// of two concurrent profile updates blocking on the identity's row lock.
func (ls *LockSet) AcquireBlocking(name string) Release {
	m := ls.get(name)
	m.Lock()
	return m.Unlock
}
