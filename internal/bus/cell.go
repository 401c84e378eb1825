package bus

import "sync"

// cell is a latest-value state holder. It always keeps the most recent value
// pushed through set and replays that value to every new subscriber the
// moment it attaches, so late-mounted fragments never miss current state.
type cell[T any] struct {
	mu     sync.Mutex
	value  T
	subs   []*cellSub[T]
	closed bool
}

type cellSub[T any] struct {
	fn  func(T)
	sub *Subscription
}

func newCell[T any](initial T) *cell[T] {
	return &cell[T]{value: initial}
}

func (c *cell[T]) get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *cell[T]) set(v T) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.value = v
	subs := make([]*cellSub[T], len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// subscribe registers fn and immediately invokes it with the current value.
// On a closed cell the returned subscription is already completed.
func (c *cell[T]) subscribe(fn func(T)) *Subscription {
	cs := &cellSub[T]{fn: fn}
	sub := newSubscription(func() { c.remove(cs) })
	cs.sub = sub

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.complete()
		return sub
	}
	c.subs = append(c.subs, cs)
	v := c.value
	c.mu.Unlock()

	fn(v)
	return sub
}

func (c *cell[T]) remove(target *cellSub[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s == target {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

func (c *cell[T]) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		s.sub.complete()
	}
}
