package service

import (
	"sync"

	"gatekeeper/internal/verification/models"
)

// lanes is a mutex per key. Entries live only while someone holds or waits
// for them.
type lanes struct {
	mu sync.Mutex
	m  map[models.Key]*lane
}

type lane struct {
	sync.Mutex
	refs int
}

func newLanes() *lanes {
	return &lanes{m: make(map[models.Key]*lane)}
}

// lock blocks until the caller owns key's lane and returns the release func.
func (l *lanes) lock(key models.Key) func() {
	l.mu.Lock()
	ln, ok := l.m[key]
	if !ok {
		ln = &lane{}
		l.m[key] = ln
	}
	ln.refs++
	l.mu.Unlock()

	ln.Lock()
	return func() {
		ln.Unlock()
		l.mu.Lock()
		ln.refs--
		if ln.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}

func (l *lanes) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
