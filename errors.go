package shardmap

import (
	"errors"
	"fmt"
)

// ErrPoisoned is the sentinel matched by every [PoisonError].
var ErrPoisoned = errors.New("shardmap: shard poisoned")

// PoisonError is the panic value raised when a goroutine tries to lock a
// shard whose previous write-lock holder panicked.
//
// A poisoned shard is never repaired; the map should be considered broken.
type PoisonError struct {
	// Shard is the index of the poisoned shard.
	Shard int
	// Cause is the value the original panic carried, if it was observed.
	Cause any
}

func (e *PoisonError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("shardmap: shard %d poisoned", e.Shard)
	}
	return fmt.Sprintf("shardmap: shard %d poisoned by panic: %v", e.Shard, e.Cause)
}

func (e *PoisonError) Unwrap() error {
	return ErrPoisoned
}

// TryResult describes the outcome of the non-blocking lookups
// ([Map.TryGet], [Map.TryGetMut]).
type TryResult uint8

const (
	// TryPresent means the key was found and the lock was acquired.
	TryPresent TryResult = iota
	// TryAbsent means the lock was acquired but the key was not found.
	TryAbsent
	// TryLocked means the shard lock was held elsewhere; nothing was looked up.
	TryLocked
)

func (r TryResult) String() string {
	switch r {
	case TryPresent:
		return "present"
	case TryAbsent:
		return "absent"
	case TryLocked:
		return "locked"
	default:
		return fmt.Sprintf("TryResult(%d)", uint8(r))
	}
}

// misuse panics for programmer errors; they are bugs, not runtime conditions.
func misuse(format string, args ...any) {
	panic("shardmap: " + fmt.Sprintf(format, args...))
}
