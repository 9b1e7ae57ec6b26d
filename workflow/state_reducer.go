package workflow

import "sync"

// Reducer defines how a node's update is merged into the current value.
type Reducer[T any] func(current T, update T) T

// Channel holds one versioned state value behind a reducer.
type Channel[T any] struct {
	name    string
	value   T
	reducer Reducer[T]
	mu      sync.RWMutex
	version uint64
}

// ChannelOption configures a channel.
type ChannelOption[T any] func(*Channel[T])

// WithReducer sets a custom reducer for the channel.
func WithReducer[T any](r Reducer[T]) ChannelOption[T] {
	return func(c *Channel[T]) {
		if r != nil {
			c.reducer = r
		}
	}
}

// NewChannel creates a new state channel. Default reducer is last-write-wins.
func NewChannel[T any](name string, initial T, opts ...ChannelOption[T]) *Channel[T] {
	c := &Channel[T]{
		name:    name,
		value:   initial,
		reducer: LastValueReducer[T](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the channel name.
func (c *Channel[T]) Name() string { return c.name }

// Get returns the current value.
func (c *Channel[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Update applies an update using the reducer.
func (c *Channel[T]) Update(update T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = c.reducer(c.value, update)
	c.version++
	return c.value
}

// Version returns the number of updates applied.
func (c *Channel[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Built-in reducers

// LastValueReducer returns the most recent value (default).
func LastValueReducer[T any]() Reducer[T] {
	return func(_, update T) T {
		return update
	}
}

// AppendReducer appends slices together.
func AppendReducer[T any]() Reducer[[]T] {
	return func(current, update []T) []T {
		result := make([]T, 0, len(current)+len(update))
		result = append(result, current...)
		result = append(result, update...)
		return result
	}
}

// OrReducer keeps a flag set once any update sets it.
func OrReducer() Reducer[bool] {
	return func(current, update bool) bool {
		return current || update
	}
}
