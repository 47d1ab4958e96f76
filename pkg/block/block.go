// Package block defines the handle returned from every allocator in this
// module: the untagged RawBlock that the device contract deals in, and the
// tagged variants each layer wraps it in so that Free can find its way
// back to the node that produced the block without a back-pointer.
package block

import (
	"fmt"
	"runtime"

	"github.com/kvark/gfx-mem/pkg/device"
	"github.com/kvark/gfx-mem/internal/debug"
)

// guard is RawBlock's linear-use marker. A zero-sized #[must_use] guard
// that panics on drop if it was never consumed has no Go equivalent, since
// Go has no destructors; instead a guard is heap-allocated once per block
// and, in debug builds, watched with a finalizer that fires if it is ever
// collected still armed. This is best-effort, same as any finalizer-based
// leak diagnostic — it catches leaked blocks eventually, not immediately.
// Double-consumption is caught synchronously and always, independent of
// the debug tag.
type guard struct {
	consumed bool
}

// RawBlock is the primitive block: a device memory identity plus a byte
// range within it. It must be consumed by exactly one free path; a
// RawBlock returned by New* and never passed to a Consume call is a usage
// bug.
//
// RawBlock is deliberately plain data — it is moved by value through every
// layer's Alloc/Free signatures, the same way the tagged block types embed
// it by value. Deliberately avoiding a back-pointer from block to
// allocator keeps the object graph acyclic and the blocks cheaply movable;
// that requirement rules out a go-vet no-copy marker, which assumes the
// guarded type is never copied. RawBlock's guard pointer carries the "has
// this been freed" bit instead, so copying the struct copies the pointer,
// not the bit.
type RawBlock struct {
	memory device.Handle
	start  uint64
	end    uint64
	g      *guard
}

// New constructs a RawBlock over [start, end) of memory. Callers are
// trusted to uphold its invariants (start <= end, range lies within the
// allocation, no two live blocks of the same memory overlap) — gfx-mem's
// allocators are the only callers of this constructor and are responsible
// for upholding them.
func New(memory device.Handle, start, end uint64) RawBlock {
	if end < start {
		panic(fmt.Sprintf("gfxmem: block: invalid range [%d, %d)", start, end))
	}

	g := &guard{}

	if debug.Enabled {
		runtime.SetFinalizer(g, func(g *guard) {
			if !g.consumed {
				debug.Log(nil, "block leaked", "range=[%d,%d) memory=%v was never freed", start, end, memory)
			}
		})
	}

	return RawBlock{memory: memory, start: start, end: end, g: g}
}

// Memory returns a stable reference to the backing device allocation,
// valid until Consume.
func (b RawBlock) Memory() device.Handle { return b.memory }

// Range returns the block's [start, end) byte offsets within its memory.
func (b RawBlock) Range() (start, end uint64) { return b.start, b.end }

// Size returns end - start.
func (b RawBlock) Size() uint64 { return b.end - b.start }

// Consume marks the block as freed. It must be called exactly once per
// block. Every allocator's Free calls it on the block it is given; arena
// and chunked also call it on each backing block they take from their
// owner in Alloc, and later hand the owner a fresh RawBlock over the same
// memory when they release it. Calling it twice, or on a zero-value
// RawBlock, is a fatal programming bug and panics immediately rather than
// being treated as a recoverable error.
func (b RawBlock) Consume() {
	if b.g == nil {
		panic("gfxmem: block: Consume called on a zero-value RawBlock")
	}

	if b.g.consumed {
		panic("gfxmem: block: double free")
	}

	b.g.consumed = true

	if debug.Enabled {
		runtime.SetFinalizer(b.g, nil)
	}
}
