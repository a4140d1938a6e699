package pmm

import (
	"fmt"
	"sync/atomic"

	"github.com/punktos/vmm/memutils"
)

type pageState uint32

const (
	pageFree pageState = iota
	pageAllocated
	pageObject
)

var pageStateMapping = map[pageState]string{
	pageFree:      "Free",
	pageAllocated: "Allocated",
	pageObject:    "Object",
}

func (s pageState) String() string {
	return pageStateMapping[s]
}

// Page is the handle for a single physical page frame. A page handed out by an Allocator
// belongs to the caller until it is returned with Allocator.Free; while a memory object
// holds it the page is linked and must not be freed.
type Page struct {
	paddr memutils.Paddr
	data  []byte
	// state is read by the arena while memory objects link and unlink pages under their own locks
	state atomic.Uint32
}

func (p *Page) loadState() pageState { return pageState(p.state.Load()) }

func (p *Page) storeState(state pageState) { p.state.Store(uint32(state)) }

func (p *Page) swapState(from, to pageState) bool {
	return p.state.CompareAndSwap(uint32(from), uint32(to))
}

// NewPage builds an allocated page handle for allocators implemented outside this package.
// data is the kernel mapping of the frame and must be memutils.PageSize bytes long.
func NewPage(paddr memutils.Paddr, data []byte) *Page {
	if len(data) != int(memutils.PageSize) {
		panic(fmt.Sprintf("page data must be %d bytes, got %d", memutils.PageSize, len(data)))
	}

	page := &Page{paddr: paddr, data: data}
	page.storeState(pageAllocated)
	return page
}

func (p *Page) Paddr() memutils.Paddr { return p.paddr }

// Bytes returns the kernel mapping of the page
func (p *Page) Bytes() []byte { return p.data }

func (p *Page) Zero() {
	clear(p.data)
}

// IsLinked reports whether a memory object currently owns the page
func (p *Page) IsLinked() bool { return p.loadState() == pageObject }

// Link marks the page as owned by a memory object
func (p *Page) Link() {
	if !p.swapState(pageAllocated, pageObject) {
		panic(fmt.Sprintf("attempting to link page %#x in state %s", p.paddr, p.loadState()))
	}
}

// Unlink releases the memory object's claim on the page so that it may be freed
func (p *Page) Unlink() {
	if !p.swapState(pageObject, pageAllocated) {
		panic(fmt.Sprintf("attempting to unlink page %#x in state %s", p.paddr, p.loadState()))
	}
}

func (p *Page) String() string {
	return fmt.Sprintf("page(%#x, %s)", p.paddr, p.loadState())
}
