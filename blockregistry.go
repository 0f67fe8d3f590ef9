package bplib

// pageBitmap is a dense bitmap of page-liveness bits for one block. Bit set
// means "page live (or never written)"; bit clear means "page deleted".
// Mirrors the C source's page_use[FLASH_MAX_PAGES_PER_BLOCK/8] byte array.
type pageBitmap []byte

func newPageBitmap(pagesPerBlock int32) pageBitmap {
	b := make(pageBitmap, (pagesPerBlock+7)/8)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

func (b pageBitmap) isSet(page int32) bool {
	return b[page/8]&(0x80>>uint(page%8)) != 0
}

// clear clears the bit for page and reports whether it had been set
// (i.e. whether this call actually deleted a previously-live page).
func (b pageBitmap) clear(page int32) bool {
	mask := byte(0x80 >> uint(page%8))
	idx := page / 8
	if b[idx]&mask == 0 {
		return false
	}
	b[idx] &^= mask
	return true
}

// countClear counts cleared (deleted) bits across the first n pages.
func (b pageBitmap) countClear(n int32) int32 {
	var count int32
	for page := int32(0); page < n; page++ {
		if !b.isSet(page) {
			count++
		}
	}
	return count
}

// blockControl is the per-block control record, one per physical block,
// threaded into the free list, bad list, or some store's used chain via
// nextBlock/prevBlock.
type blockControl struct {
	nextBlock BlockIndex
	prevBlock BlockIndex
	maxPages  int32
	pageUse   pageBitmap
}

// blockList is an intrusive doubly-linked list of blocks threaded through
// the registry's blocks array. out is the dequeue end, in is the enqueue
// end; list_add is the list's only mutator besides the inline removal done
// by the allocator.
type blockList struct {
	out   BlockIndex
	in    BlockIndex
	count int
}

func newBlockList() blockList {
	return blockList{out: InvalidBlock, in: InvalidBlock}
}

// registry owns the dense block-control array and the free/bad lists, plus
// the driver and the counters derived from them.
type registry struct {
	driver        Driver
	log           Logger
	pagesPerBlock int32

	blocks     []blockControl
	free       blockList
	bad        blockList
	usedCount  int
	errorCount int
}

func newRegistry(driver Driver, log Logger) *registry {
	numBlocks := driver.NumBlocks()
	blocks := make([]blockControl, numBlocks)
	for i := range blocks {
		blocks[i] = blockControl{
			nextBlock: InvalidBlock,
			prevBlock: InvalidBlock,
			maxPages:  driver.PagesPerBlock(),
			pageUse:   newPageBitmap(driver.PagesPerBlock()),
		}
	}
	return &registry{
		driver:        driver,
		log:           log,
		pagesPerBlock: driver.PagesPerBlock(),
		blocks:        blocks,
		free:          newBlockList(),
		bad:           newBlockList(),
	}
}

// listAdd appends block at the in end of list.
func (r *registry) listAdd(list *blockList, block BlockIndex) {
	if list.out == InvalidBlock {
		list.out = block
	} else {
		r.blocks[list.in].nextBlock = block
	}
	r.blocks[block].prevBlock = list.in
	list.in = block
	list.count++
}

// reclaim resets block's control record, decrements the used-block count,
// and appends it to the free list (or the bad list, if the driver now
// reports it bad). It does not erase; erase happens lazily at allocate
// time. Returns nil iff the block was not bad.
func (r *registry) reclaim(block BlockIndex) error {
	bc := &r.blocks[block]
	bc.nextBlock = InvalidBlock
	bc.prevBlock = InvalidBlock
	bc.maxPages = r.pagesPerBlock
	bc.pageUse = newPageBitmap(r.pagesPerBlock)

	r.usedCount--

	if !r.driver.IsBad(block) {
		r.listAdd(&r.free, block)
		return nil
	}
	r.listAdd(&r.bad, block)
	return statusErrorf(CodeFailedStore, nil, "block %d is bad, reclaimed to bad list", r.driver.PhysicalBlock(block))
}

// allocate pops a block from the free list, lazily erasing each candidate
// until one erases successfully or the free list is exhausted. Blocks that
// fail to erase are demoted to the bad list and counted as errors.
func (r *registry) allocate() (BlockIndex, error) {
	for r.free.out != InvalidBlock {
		candidate := r.free.out
		err := r.driver.EraseBlock(candidate)

		// Pop candidate off the free list regardless of outcome.
		r.free.out = r.blocks[candidate].nextBlock
		r.free.count--
		if r.free.out != InvalidBlock {
			r.blocks[r.free.out].prevBlock = InvalidBlock
		} else {
			r.free.in = InvalidBlock
		}

		if err == nil {
			r.usedCount++
			r.blocks[candidate].nextBlock = InvalidBlock
			r.blocks[candidate].prevBlock = InvalidBlock
			return candidate, nil
		}

		r.errorCount++
		r.log.Warnw("failed to erase block when allocating, demoting to bad list",
			"block", r.driver.PhysicalBlock(candidate), "error", err)
		r.blocks[candidate].nextBlock = InvalidBlock
		r.blocks[candidate].prevBlock = InvalidBlock
		r.listAdd(&r.bad, candidate)
	}

	r.log.Warnw("no free blocks available")
	return InvalidBlock, statusErrorf(CodeFailedStore, nil, "no free blocks available")
}

// format reclaims every block on the device, as bplib_store_flash_init does
// under BP_FLASH_INIT_FORMAT. Returns the number of blocks successfully
// reclaimed (i.e. not bad).
func (r *registry) format() int {
	reclaimed := 0
	for b := BlockIndex(0); int32(b) < int32(len(r.blocks)); b++ {
		if r.reclaim(b) == nil {
			reclaimed++
		}
	}
	r.errorCount = 0
	r.usedCount = 0
	return reclaimed
}

// validAddr reports whether addr names an in-range block and page. Block
// bounds are checked before addr.Block is ever used to index r.blocks, and
// both fields are rejected if negative, so a stale or corrupted address
// (e.g. one decoded from a bad SID) can never panic the caller.
func (r *registry) validAddr(addr Address) bool {
	if addr.Block < 0 || int32(addr.Block) >= int32(len(r.blocks)) {
		return false
	}
	return addr.Page >= 0 && addr.Page < r.blocks[addr.Block].maxPages
}

// stats is the snapshot returned by Queue.Stats.
type stats struct {
	FreeBlocks int
	UsedBlocks int
	BadBlocks  int
	ErrorCount int
}

func (r *registry) snapshot() stats {
	return stats{
		FreeBlocks: r.free.count,
		UsedBlocks: r.usedCount,
		BadBlocks:  r.bad.count,
		ErrorCount: r.errorCount,
	}
}

// badBlocks returns the physical ids of every block on the bad list, in
// list order, for diagnostic logging.
func (r *registry) badBlocks() []int64 {
	out := make([]int64, 0, r.bad.count)
	for b := r.bad.out; b != InvalidBlock; b = r.blocks[b].nextBlock {
		out = append(out, r.driver.PhysicalBlock(b))
	}
	return out
}
