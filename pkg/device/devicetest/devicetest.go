// Package devicetest provides an in-memory fake implementing [device.Device],
// used throughout gfx-mem's test suites in place of a mock framework or a
// real backend.
package devicetest

import (
	"fmt"

	"github.com/kvark/gfx-mem/pkg/device"
)

// allocation is the fake's Handle implementation. Its address is its
// identity, satisfying device.Handle's stability requirement for free.
type allocation struct {
	id     uint64
	typeID device.TypeID
	size   uint64
	freed  bool
}

// Device is a backend fake that hands out distinct *allocation pointers and
// tracks which are still outstanding, so tests can assert that every
// AllocateMemory call is eventually balanced by exactly one FreeMemory
// call.
type Device struct {
	next  uint64
	live  map[*allocation]struct{}
	calls int
}

// New returns a ready-to-use fake device.
func New() *Device {
	return &Device{live: make(map[*allocation]struct{})}
}

func (d *Device) AllocateMemory(id device.TypeID, size uint64) (device.Handle, error) {
	d.next++
	d.calls++
	a := &allocation{id: d.next, typeID: id, size: size}
	d.live[a] = struct{}{}
	return a, nil
}

func (d *Device) FreeMemory(h device.Handle) {
	a, ok := h.(*allocation)
	if !ok {
		panic(fmt.Sprintf("devicetest: FreeMemory called with foreign handle %v", h))
	}
	if _, ok := d.live[a]; !ok {
		panic("devicetest: double free of device memory")
	}
	a.freed = true
	delete(d.live, a)
}

// Outstanding returns the number of allocations made but not yet freed.
func (d *Device) Outstanding() int { return len(d.live) }

// Calls returns the total number of AllocateMemory calls made so far,
// useful for asserting that a round-trip alloc/free/alloc did not reach the
// backend a second time.
func (d *Device) Calls() int { return d.calls }
