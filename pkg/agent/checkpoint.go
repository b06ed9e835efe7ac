package agent

import "sync"

// Checkpoint is an in-memory per-call state store for pipeline state that
// must survive between turns. Access runs under the store lock via
// callbacks; keep the callbacks free of blocking work (do LLM/retrieval
// calls outside, then write back).
//
// The zero value of T is the initial state for a new call. Swapping this map
// for durable storage only requires reimplementing these four methods.
type Checkpoint[T any] struct {
	mu     sync.Mutex
	states map[string]*T
}

// NewCheckpoint creates an empty checkpoint store.
func NewCheckpoint[T any]() *Checkpoint[T] {
	return &Checkpoint[T]{states: make(map[string]*T)}
}

// Update runs fn against the state for callID, creating zero state first if
// the call is new.
func (c *Checkpoint[T]) Update(callID string, fn func(*T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.states[callID]
	if !ok {
		state = new(T)
		c.states[callID] = state
	}
	fn(state)
}

// Delete drops the state for callID.
func (c *Checkpoint[T]) Delete(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, callID)
}

// Len returns the number of calls with checkpointed state.
func (c *Checkpoint[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.states)
}
