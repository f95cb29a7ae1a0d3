package keypool

import "errors"

// ErrEmptyPool is returned when no upstream API keys are configured.
var ErrEmptyPool = errors.New("no upstream API keys configured")

// Pool is an immutable snapshot of the configured upstream API keys. Keys
// are stateless credentials, so assignment is pure index arithmetic and the
// pool needs no locking.
type Pool struct {
	keys []string
}

// New builds a pool from the configured key list.
func New(keys []string) (*Pool, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyPool
	}
	snapshot := make([]string, len(keys))
	copy(snapshot, keys)
	return &Pool{keys: snapshot}, nil
}

// Size returns the number of configured keys.
func (p *Pool) Size() int {
	return len(p.keys)
}

// Acquire returns n key assignments. Assignment i uses keys[i mod size], so
// keys are reused round-robin when n exceeds the pool size. Sharing a key
// across concurrent jobs is the accepted degraded mode for small pools.
func (p *Pool) Acquire(n int) []string {
	assigned := make([]string, n)
	for i := 0; i < n; i++ {
		assigned[i] = p.keys[i%len(p.keys)]
	}
	return assigned
}
