package media

import "sync"

// lockMap hands out one mutex per artifact target path so concurrent
// materialize calls for the same target serialize while distinct targets
// proceed independently.
type lockMap struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (lm *lockMap) lock(key string) (unlock func()) {
	lm.mu.Lock()
	if lm.locks == nil {
		lm.locks = make(map[string]*sync.Mutex)
	}
	l, ok := lm.locks[key]
	if !ok {
		l = &sync.Mutex{}
		lm.locks[key] = l
	}
	lm.mu.Unlock()

	l.Lock()
	return l.Unlock
}
