package shardmap

// SharedValue is the per-entry value cell stored in a shard's table.
//
// Tables hold *SharedValue[V] rather than V so that the address of a value
// survives table growth: a guard can keep a *V into the cell for as long as
// it holds the shard lock, while the Go map underneath rehashes freely.
//
// The cell does no synchronisation of its own. Reading through [SharedValue.Get]
// requires the shard's read or write lock; [SharedValue.AsPtr] and
// [SharedValue.Set] require the write lock.
type SharedValue[V any] struct {
	value V
}

// NewSharedValue wraps value in a new cell.
func NewSharedValue[V any](value V) *SharedValue[V] {
	return &SharedValue[V]{value: value}
}

// Get returns a copy of the stored value.
func (c *SharedValue[V]) Get() V {
	return c.value
}

// AsPtr returns a mutable view of the stored value.
//
// The caller must hold the write lock of the shard that owns the cell, and
// must not retain the pointer after releasing it.
func (c *SharedValue[V]) AsPtr() *V {
	return &c.value
}

// Set overwrites the stored value. Same precondition as [SharedValue.AsPtr].
func (c *SharedValue[V]) Set(value V) {
	c.value = value
}

// IntoInner returns the stored value and clears the cell.
func (c *SharedValue[V]) IntoInner() V {
	v := c.value
	c.value = *new(V)
	return v
}
