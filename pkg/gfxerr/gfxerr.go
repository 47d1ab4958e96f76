// Package gfxerr defines the error kinds produced by gfx-mem's allocators
// and a couple of small helpers for working with them.
package gfxerr

import (
	"errors"
	"fmt"

	"github.com/kvark/gfx-mem/pkg/xerrors"
)

// The three error kinds every allocator in this module can produce. They
// are plain sentinel values so callers compare with errors.Is rather than
// type-switching.
var (
	// OutOfMemory means the device, or an upstream allocator, could not
	// satisfy the request, or the requested size exceeds a configured
	// maximum.
	OutOfMemory = errors.New("gfxmem: out of memory")

	// NoCompatibleMemoryType means no memory type satisfies
	// mask ∩ properties.
	NoCompatibleMemoryType = errors.New("gfxmem: no compatible memory type")

	// OutOfHostMemory is propagated from the device and kept structurally
	// distinct from OutOfMemory even though the two often mean the same
	// thing to a caller.
	OutOfHostMemory = errors.New("gfxmem: out of host memory")
)

// As reports whether err's chain contains a T, returning it if so. It is
// the generic-error counterpart callers reach for instead of a type
// switch, forwarding to xerrors.AsA.
func As[T error](err error) (t T, ok bool) {
	return xerrors.AsA[T](err)
}

// StillInUse is the error an allocator's Dispose returns when it still has
// outstanding blocks. Unlike the sentinel errors above, it carries the
// allocator itself, unchanged, so the caller can drain the remaining
// blocks and retry instead of losing the allocator on a failed dispose.
type StillInUse[T any] struct {
	Allocator T
}

func (e *StillInUse[T]) Error() string {
	return fmt.Sprintf("gfxmem: %T still has outstanding blocks", e.Allocator)
}
