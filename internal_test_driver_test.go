package bplib

import "fmt"

// fakeDriver is a minimal in-package Driver for white-box tests of the
// registry and page engine. It cannot live in package sim: sim imports
// bplib, and these tests need access to unexported registry internals.
type fakeDriver struct {
	numBlocks     int32
	pagesPerBlock int32
	pageSize      int32

	pages [][]byte

	bad        map[BlockIndex]bool
	failWrite  map[BlockIndex]bool
	failErase  map[BlockIndex]bool
}

func newFakeDriver(numBlocks, pagesPerBlock, pageSize int32) *fakeDriver {
	d := &fakeDriver{
		numBlocks:     numBlocks,
		pagesPerBlock: pagesPerBlock,
		pageSize:      pageSize,
		pages:         make([][]byte, int64(numBlocks)*int64(pagesPerBlock)),
		bad:           make(map[BlockIndex]bool),
		failWrite:     make(map[BlockIndex]bool),
		failErase:     make(map[BlockIndex]bool),
	}
	for i := range d.pages {
		d.pages[i] = make([]byte, pageSize)
	}
	return d
}

func (d *fakeDriver) idx(addr Address) int64 {
	return int64(addr.Block)*int64(d.pagesPerBlock) + int64(addr.Page)
}

func (d *fakeDriver) NumBlocks() int32     { return d.numBlocks }
func (d *fakeDriver) PagesPerBlock() int32 { return d.pagesPerBlock }
func (d *fakeDriver) PageSize() int32      { return d.pageSize }

func (d *fakeDriver) ReadPage(addr Address, buf []byte) error {
	copy(buf, d.pages[d.idx(addr)])
	return nil
}

func (d *fakeDriver) WritePage(addr Address, buf []byte) error {
	if d.failWrite[addr.Block] {
		return fmt.Errorf("injected write failure at block %d", addr.Block)
	}
	copy(d.pages[d.idx(addr)], buf)
	return nil
}

func (d *fakeDriver) EraseBlock(block BlockIndex) error {
	if d.failErase[block] {
		return fmt.Errorf("injected erase failure at block %d", block)
	}
	start := int64(block) * int64(d.pagesPerBlock)
	for p := start; p < start+int64(d.pagesPerBlock); p++ {
		for i := range d.pages[p] {
			d.pages[p][i] = 0
		}
	}
	return nil
}

func (d *fakeDriver) IsBad(block BlockIndex) bool    { return d.bad[block] }
func (d *fakeDriver) PhysicalBlock(block BlockIndex) int64 { return int64(block) }
