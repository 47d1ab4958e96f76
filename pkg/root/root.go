// Package root implements the terminal allocator of the suballocator
// stack: a 1:1 pass-through to the device's allocate/free primitives that
// tracks how many allocations are outstanding. Every other allocator in
// this module eventually bottoms out here.
package root

import (
	"github.com/kvark/gfx-mem/pkg/block"
	"github.com/kvark/gfx-mem/internal/debug"
	"github.com/kvark/gfx-mem/pkg/device"
	"github.com/kvark/gfx-mem/pkg/gfxerr"
	"github.com/kvark/gfx-mem/pkg/res"
)

// Allocator allocates whole device memories of a single, fixed memory
// type. It ignores Requirements.Alignment and Requirements.TypeMask
// beyond that one type: callers of Alloc are trusted to have already
// picked this type and to accept that a whole-allocation's alignment is
// whatever the device guarantees.
type Allocator struct {
	typeID      device.TypeID
	outstanding int
	disposed    bool
}

// New returns a root allocator for the given memory type.
func New(typeID device.TypeID) *Allocator {
	return &Allocator{typeID: typeID}
}

// TypeID returns the memory type this allocator draws from.
func (a *Allocator) TypeID() device.TypeID { return a.typeID }

// Alloc asks the device for a fresh allocation of exactly reqs.Size bytes
// and wraps it in a RawBlock spanning its whole range.
func (a *Allocator) Alloc(dev device.Device, reqs device.Requirements) res.Result[block.RawBlock] {
	debug.Assert(!a.disposed, "root: Alloc called after Dispose")

	h, err := dev.AllocateMemory(a.typeID, reqs.Size)
	if err != nil {
		return res.Err[block.RawBlock](err)
	}

	a.outstanding++

	return res.Ok(block.New(h, 0, reqs.Size))
}

// Free returns the block's device memory and consumes it. b must span the
// whole allocation (start == 0); violating that is a fatal programming
// bug, not a recoverable error.
func (a *Allocator) Free(dev device.Device, b block.RawBlock) {
	start, _ := b.Range()
	debug.Assert(start == 0, "root: Free given a block that does not start at 0 (start=%d)", start)

	dev.FreeMemory(b.Memory())
	a.outstanding--
	b.Consume()
}

// IsUsed reports whether any allocation is still outstanding.
func (a *Allocator) IsUsed() bool { return a.outstanding != 0 }

// Dispose consumes the allocator. If any block is still outstanding it
// fails and hands the allocator back unchanged via gfxerr.StillInUse so
// the caller can drain it and retry; root holds no resources of its own
// beyond the outstanding count, so success is just a one-way latch against
// further use.
func (a *Allocator) Dispose(dev device.Device) res.Result[*Allocator] {
	if a.IsUsed() {
		return res.Err[*Allocator](&gfxerr.StillInUse[*Allocator]{Allocator: a})
	}

	a.disposed = true

	return res.Ok(a)
}
