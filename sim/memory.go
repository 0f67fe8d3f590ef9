// Package sim provides test-and-CLI-only Driver implementations: a pure
// in-memory simulator with fault injection, and a memory-mapped-file
// simulator for exercising the engine against real file I/O. Neither is
// part of the core engine's scope (the real flash driver is always an
// external collaborator) but both are needed to drive it without hardware.
package sim

import (
	"fmt"
	"sync"

	"github.com/jphickey/bplib"
)

// Memory is an in-memory Driver, the Go equivalent of the C unit test's
// bplib_flash_sim: each block is a plain byte slice, erase zeroes it, and
// bad blocks / write failures can be injected for testing recovery paths.
type Memory struct {
	mu sync.Mutex

	numBlocks     int32
	pagesPerBlock int32
	pageSize      int32

	pages [][]byte // numBlocks * pagesPerBlock entries, row-major by block

	badBlocks  map[bplib.BlockIndex]bool
	failWrites map[bplib.BlockIndex]bool
	failErases map[bplib.BlockIndex]bool
	failReads  map[bplib.BlockIndex]bool
}

// NewMemory creates an in-memory simulator with numBlocks blocks of
// pagesPerBlock pages each, pageSize bytes per page.
func NewMemory(numBlocks, pagesPerBlock, pageSize int32) *Memory {
	m := &Memory{
		numBlocks:     numBlocks,
		pagesPerBlock: pagesPerBlock,
		pageSize:      pageSize,
		pages:         make([][]byte, int64(numBlocks)*int64(pagesPerBlock)),
		badBlocks:     make(map[bplib.BlockIndex]bool),
		failWrites:    make(map[bplib.BlockIndex]bool),
		failErases:    make(map[bplib.BlockIndex]bool),
		failReads:     make(map[bplib.BlockIndex]bool),
	}
	for i := range m.pages {
		m.pages[i] = make([]byte, pageSize)
	}
	return m
}

func (m *Memory) index(addr bplib.Address) int64 {
	return int64(addr.Block)*int64(m.pagesPerBlock) + int64(addr.Page)
}

func (m *Memory) NumBlocks() int32     { return m.numBlocks }
func (m *Memory) PagesPerBlock() int32 { return m.pagesPerBlock }
func (m *Memory) PageSize() int32      { return m.pageSize }

func (m *Memory) ReadPage(addr bplib.Address, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failReads[addr.Block] {
		return fmt.Errorf("injected read failure at block %d", addr.Block)
	}
	copy(buf, m.pages[m.index(addr)])
	return nil
}

func (m *Memory) WritePage(addr bplib.Address, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWrites[addr.Block] {
		delete(m.failWrites, addr.Block)
		return fmt.Errorf("injected write failure at block %d", addr.Block)
	}
	copy(m.pages[m.index(addr)], buf)
	return nil
}

func (m *Memory) EraseBlock(block bplib.BlockIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErases[block] {
		delete(m.failErases, block)
		return fmt.Errorf("injected erase failure at block %d", block)
	}
	start := int64(block) * int64(m.pagesPerBlock)
	for p := start; p < start+int64(m.pagesPerBlock); p++ {
		for i := range m.pages[p] {
			m.pages[p][i] = 0
		}
	}
	return nil
}

func (m *Memory) IsBad(block bplib.BlockIndex) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.badBlocks[block]
}

func (m *Memory) PhysicalBlock(block bplib.BlockIndex) int64 {
	return int64(block)
}

// MarkBad injects a permanently bad block, surfaced via IsBad.
func (m *Memory) MarkBad(block bplib.BlockIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.badBlocks[block] = true
}

// FailNextWrite injects one write failure the next time block is written.
func (m *Memory) FailNextWrite(block bplib.BlockIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites[block] = true
}

// ClearFailWrite cancels a pending injected write failure for block.
func (m *Memory) ClearFailWrite(block bplib.BlockIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failWrites, block)
}

// FailNextErase injects one erase failure the next time block is erased.
func (m *Memory) FailNextErase(block bplib.BlockIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErases[block] = true
}
