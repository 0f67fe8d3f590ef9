package sim

import (
	"fmt"
	"os"
	"sync"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/jphickey/bplib"
)

// MappedFile is a Driver backed by a single memory-mapped file, laid out as
// numBlocks * pagesPerBlock * pageSize contiguous bytes. It is the spiritual
// successor to divoxx-datastore's mMapBufferManager, which mapped
// page-aligned sections of a backing file via launchpad.net/gommap;
// that import path is no longer reachable, so this uses the actively
// maintained edsrzf/mmap-go binding to the same mmap(2) facility.
type MappedFile struct {
	mu sync.Mutex

	numBlocks     int32
	pagesPerBlock int32
	pageSize      int32

	f   *os.File
	mm  mmap.MMap

	badBlocks map[bplib.BlockIndex]bool
}

// OpenMappedFile opens (creating if necessary) path and maps the device
// layout described by numBlocks/pagesPerBlock/pageSize into memory.
func OpenMappedFile(path string, numBlocks, pagesPerBlock, pageSize int32) (*MappedFile, error) {
	size := int64(numBlocks) * int64(pagesPerBlock) * int64(pageSize)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open backing file: %w", err)
	}

	if info, serr := f.Stat(); serr != nil {
		f.Close()
		return nil, fmt.Errorf("stat backing file: %w", serr)
	} else if info.Size() < size {
		if terr := f.Truncate(size); terr != nil {
			f.Close()
			return nil, fmt.Errorf("grow backing file: %w", terr)
		}
	}

	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap backing file: %w", err)
	}

	return &MappedFile{
		numBlocks:     numBlocks,
		pagesPerBlock: pagesPerBlock,
		pageSize:      pageSize,
		f:             f,
		mm:            m,
		badBlocks:     make(map[bplib.BlockIndex]bool),
	}, nil
}

// Close unmaps and closes the backing file.
func (d *MappedFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	uerr := d.mm.Unmap()
	cerr := d.f.Close()
	if uerr != nil {
		return uerr
	}
	return cerr
}

func (d *MappedFile) offset(addr bplib.Address) int64 {
	return (int64(addr.Block)*int64(d.pagesPerBlock) + int64(addr.Page)) * int64(d.pageSize)
}

func (d *MappedFile) NumBlocks() int32     { return d.numBlocks }
func (d *MappedFile) PagesPerBlock() int32 { return d.pagesPerBlock }
func (d *MappedFile) PageSize() int32      { return d.pageSize }

func (d *MappedFile) ReadPage(addr bplib.Address, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	off := d.offset(addr)
	copy(buf, d.mm[off:off+int64(len(buf))])
	return nil
}

func (d *MappedFile) WritePage(addr bplib.Address, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	off := d.offset(addr)
	copy(d.mm[off:off+int64(len(buf))], buf)
	return nil
}

func (d *MappedFile) EraseBlock(block bplib.BlockIndex) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := int64(block) * int64(d.pagesPerBlock) * int64(d.pageSize)
	end := start + int64(d.pagesPerBlock)*int64(d.pageSize)
	for i := start; i < end; i++ {
		d.mm[i] = 0
	}
	return d.mm.Flush()
}

func (d *MappedFile) IsBad(block bplib.BlockIndex) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.badBlocks[block]
}

func (d *MappedFile) PhysicalBlock(block bplib.BlockIndex) int64 {
	return int64(block)
}

// MarkBad injects a permanently bad block, surfaced via IsBad.
func (d *MappedFile) MarkBad(block bplib.BlockIndex) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.badBlocks[block] = true
}
