// Package smart implements the top of the suballocator stack: one
// Combined allocator per memory type advertised by the backend,
// deterministic type selection by requirement mask and property flags,
// and heap-capacity accounting.
package smart

import (
	"fmt"

	"github.com/kvark/gfx-mem/internal/debug"
	"github.com/kvark/gfx-mem/pkg/block"
	"github.com/kvark/gfx-mem/pkg/combined"
	"github.com/kvark/gfx-mem/pkg/device"
	"github.com/kvark/gfx-mem/pkg/gfxerr"
	"github.com/kvark/gfx-mem/pkg/opt"
	"github.com/kvark/gfx-mem/pkg/res"
)

// Type re-exports combined.Type so callers of smart need not import
// combined just to name a lifetime hint.
type Type = combined.Type

const (
	ShortLived = combined.ShortLived
	General    = combined.General
)

// Request is Smart's per-call request: a lifetime hint plus the property
// flags the chosen memory type must have. Preferred, when Some, names a
// memory type to try before falling back to the normal index-order
// scan — useful when a caller already knows which type best suits a
// resource (e.g. it was device-local-only on a previous successful
// allocation) and wants to skip the scan's early, likely-infeasible
// candidates.
type Request struct {
	Type      Type
	Required  device.PropertyFlags
	Preferred opt.Option[device.TypeID]
}

// heap tracks the requested-byte accounting for one backend heap. used
// counts the size of the *returned* block, not the size of whatever
// upstream backing allocation it came from — a request routed through
// chunked charges the rounded-up chunk size, one routed through arena
// charges the exact request size. This deliberately under-counts actual
// backing-memory consumption; see DESIGN.md for why that is preserved
// rather than tightened.
type heap struct {
	size uint64
	used uint64
}

func (h *heap) available() uint64 { return h.size - h.used }

// Allocator owns one Combined per memory type and one heap record per
// backend heap.
type Allocator struct {
	props    device.Properties
	combined []*combined.Allocator
	heaps    []heap
	disposed bool
}

// New builds a Smart allocator. cfgs must have exactly one entry per
// entry of props.Types, in the same order; each entry tunes that memory
// type's Combined instance.
func New(props device.Properties, cfgs []combined.Config) res.Result[*Allocator] {
	if len(cfgs) != len(props.Types) {
		return res.Err[*Allocator](fmt.Errorf(
			"gfxmem: smart: got %d combined configs for %d memory types", len(cfgs), len(props.Types)))
	}

	heaps := make([]heap, len(props.HeapSizes))
	for i, size := range props.HeapSizes {
		heaps[i] = heap{size: size}
	}

	combos := make([]*combined.Allocator, len(cfgs))
	for i, cfg := range cfgs {
		combos[i] = combined.New(cfg)
	}

	return res.Ok(&Allocator{props: props, combined: combos, heaps: heaps})
}

// Alloc selects the first memory type, in index order, that is both
// compatible with reqs.TypeMask/req.Required and feasible against its
// heap's remaining capacity, then forwards the request to that type's
// Combined allocator. If req.Preferred names a type that is compatible
// and feasible, that type is used without the scan.
func (a *Allocator) Alloc(dev device.Device, req Request, reqs device.Requirements) res.Result[block.SmartBlock] {
	debug.Assert(!a.disposed, "smart: Alloc called after Dispose")

	if req.Preferred.IsSome() {
		idx := int(req.Preferred.Unwrap())
		if idx >= 0 && idx < len(a.props.Types) && a.feasible(idx, req, reqs) {
			return a.allocFrom(dev, idx, req, reqs)
		}
	}

	compatible := false

	for idx, mt := range a.props.Types {
		if !reqs.Accepts(device.TypeID(idx)) {
			continue
		}

		if !mt.Properties.HasAll(req.Required) {
			continue
		}

		compatible = true

		if !a.feasible(idx, req, reqs) {
			continue
		}

		return a.allocFrom(dev, idx, req, reqs)
	}

	if !compatible {
		return res.Err[block.SmartBlock](gfxerr.NoCompatibleMemoryType)
	}

	return res.Err[block.SmartBlock](gfxerr.OutOfMemory)
}

// feasible reports whether memory type idx is both compatible with req/reqs
// and has enough remaining heap capacity for the conservative size+alignment
// overhead budget.
func (a *Allocator) feasible(idx int, req Request, reqs device.Requirements) bool {
	if !reqs.Accepts(device.TypeID(idx)) {
		return false
	}

	mt := a.props.Types[idx]
	if !mt.Properties.HasAll(req.Required) {
		return false
	}

	return a.heaps[mt.HeapIndex].available() >= reqs.Size+reqs.Alignment
}

func (a *Allocator) allocFrom(dev device.Device, idx int, req Request, reqs device.Requirements) res.Result[block.SmartBlock] {
	h := &a.heaps[a.props.Types[idx].HeapIndex]

	r := a.combined[idx].Alloc(dev, req.Type, reqs)
	if r.IsErr() {
		return res.Err[block.SmartBlock](r.Err)
	}

	cb := r.Unwrap()
	h.used += cb.Size()

	return res.Ok(block.SmartBlock{CombinedBlock: cb, TypeIndex: idx})
}

// Free credits b's heap by its size and delegates to the Combined instance
// that produced it.
func (a *Allocator) Free(dev device.Device, b block.SmartBlock) {
	mt := a.props.Types[b.TypeIndex]
	h := &a.heaps[mt.HeapIndex]
	h.used -= b.CombinedBlock.Size()

	a.combined[b.TypeIndex].Free(dev, b.CombinedBlock)
}

// IsUsed reports whether any memory type's Combined allocator has an
// outstanding block.
func (a *Allocator) IsUsed() bool {
	for _, c := range a.combined {
		if c.IsUsed() {
			return true
		}
	}

	return false
}

// Dispose consumes the allocator, disposing every Combined instance. It
// fails, handing the allocator back unchanged, if any instance is still
// used.
func (a *Allocator) Dispose(dev device.Device) res.Result[*Allocator] {
	if a.IsUsed() {
		return res.Err[*Allocator](&gfxerr.StillInUse[*Allocator]{Allocator: a})
	}

	for _, c := range a.combined {
		result := c.Dispose(dev)
		debug.Assert(result.IsOk(), "smart: Combined Dispose failed after IsUsed reported false")
	}

	a.disposed = true

	return res.Ok(a)
}

// Combined returns the per-memory-type Combined instances this allocator
// owns, in the same order as the Properties it was built from. It exists
// for callers (gfxmem's facade, in particular) that need to aggregate
// diagnostics across them; it is not meant for routing allocations, which
// should go through Alloc.
func (a *Allocator) Combined() []*combined.Allocator { return a.combined }

// HeapUsage returns a snapshot of (used, size) for every backend heap, for
// diagnostics — it reports the same counters Alloc already maintains for
// its own feasibility checks, just exposed for introspection.
func (a *Allocator) HeapUsage() []Usage {
	out := make([]Usage, len(a.heaps))
	for i, h := range a.heaps {
		out[i] = Usage{Used: h.used, Size: h.size}
	}

	return out
}

// Usage is a read-only snapshot of one heap's accounting.
type Usage struct {
	Used uint64
	Size uint64
}
