package gfxerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kvark/gfx-mem/pkg/gfxerr"
)

type fakeAllocator struct{ name string }

func TestStillInUseCarriesAllocator(t *testing.T) {
	orig := &fakeAllocator{name: "arena-0"}
	err := error(&gfxerr.StillInUse[*fakeAllocator]{Allocator: orig})

	recovered, ok := gfxerr.As[*gfxerr.StillInUse[*fakeAllocator]](err)
	assert.True(t, ok)
	assert.Same(t, orig, recovered.Allocator)
}

func TestAsMissesUnrelatedError(t *testing.T) {
	_, ok := gfxerr.As[*gfxerr.StillInUse[*fakeAllocator]](errors.New("boom"))
	assert.False(t, ok)
}

func TestSentinelsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(gfxerr.OutOfMemory, gfxerr.OutOfHostMemory))
	assert.False(t, errors.Is(gfxerr.NoCompatibleMemoryType, gfxerr.OutOfMemory))
}
