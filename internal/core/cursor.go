package core

// Cursor is a forward-only position over a fixed snapshot of values.
// Each caller gets its own Cursor; the underlying collection holds no position state.
type Cursor[T any] struct {
	values []T
	pos    int
}

// NewCursor copies values so later mutation of the source slice is not observed.
func NewCursor[T any](values []T) *Cursor[T] {
	snapshot := make([]T, len(values))
	copy(snapshot, values)
	return &Cursor[T]{values: snapshot}
}

// Next returns the value at the current position and advances.
func (c *Cursor[T]) Next() (T, bool) {
	var zero T
	if c == nil || c.pos >= len(c.values) {
		return zero, false
	}
	v := c.values[c.pos]
	c.pos++
	return v, true
}

// Index is the position of the value Next will return.
func (c *Cursor[T]) Index() int {
	if c == nil {
		return 0
	}
	return c.pos
}

// At gives positional access without moving the cursor.
func (c *Cursor[T]) At(i int) (T, bool) {
	var zero T
	if c == nil || i < 0 || i >= len(c.values) {
		return zero, false
	}
	return c.values[i], true
}

func (c *Cursor[T]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.values)
}

// Reset rewinds to the first value.
func (c *Cursor[T]) Reset() {
	if c != nil {
		c.pos = 0
	}
}
