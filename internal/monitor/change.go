package monitor

import (
	"context"
	"sync"
)

// ChangeHandler is called with the new state whenever a watched contract
// changes.
type ChangeHandler func(ctx context.Context, contract string, state []byte)

// changeSet remembers the last state seen per contract. The first
// observation of a contract counts as a change.
type changeSet struct {
	mu   sync.Mutex
	last map[string]string
}

func newChangeSet() *changeSet {
	return &changeSet{last: make(map[string]string)}
}

func (c *changeSet) observe(contract string, state []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, seen := c.last[contract]
	if seen && prev == string(state) {
		return false
	}
	c.last[contract] = string(state)
	return true
}
