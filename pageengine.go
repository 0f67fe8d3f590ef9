package bplib

// dataWrite writes size bytes from buf starting at *addr, walking forward
// page by page and chaining in fresh blocks as needed. *addr is updated in
// place to one page past the last byte written.
//
// On a page-write failure mid-block, the current block is truncated (if
// the failure was not on its first page) or reclaimed and bridged around
// (if it was), and a freshly allocated replacement block is spliced in
// after the truncated block, or in place of the reclaimed one, so that
// forward traversal never reaches the failed page again.
func (r *registry) dataWrite(addr *Address, buf []byte, size int32) error {
	if !r.validAddr(*addr) {
		return statusErrorf(CodeFailedStore, nil, "invalid address provided to write: %d.%d",
			r.driver.PhysicalBlock(addr.Block), addr.Page)
	}

	dataIndex := int32(0)
	bytesLeft := size
	pageSize := r.driver.PageSize()

	for bytesLeft > 0 {
		bytesToCopy := bytesLeft
		if bytesToCopy > pageSize {
			bytesToCopy = pageSize
		}

		err := r.driver.WritePage(*addr, buf[dataIndex:dataIndex+bytesToCopy])
		if err == nil {
			dataIndex += bytesToCopy
			bytesLeft -= bytesToCopy
		} else {
			r.errorCount++
			r.log.Warnw("error writing data to flash",
				"block", r.driver.PhysicalBlock(addr.Block), "page", addr.Page, "error", err)

			// Capture the chain position before any reclaim, since reclaim
			// resets the failed block's own prevBlock/nextBlock fields —
			// reading it afterward would always see InvalidBlock and the
			// replacement would never splice into the real chain position.
			prev := r.blocks[addr.Block].prevBlock

			if addr.Page > 0 {
				// The written prefix stays in the chain; the replacement
				// follows it.
				r.blocks[addr.Block].maxPages = addr.Page
				prev = addr.Block
			} else if rerr := r.reclaim(addr.Block); rerr != nil {
				r.log.Warnw("failed to reclaim block after write error",
					"block", r.driver.PhysicalBlock(addr.Block), "error", rerr)
			}

			next, aerr := r.allocate()
			if aerr != nil {
				return statusErrorf(CodeFailedStore, aerr, "failed to write data to flash address: %d.%d",
					r.driver.PhysicalBlock(addr.Block), addr.Page)
			}

			if prev != InvalidBlock {
				r.blocks[prev].nextBlock = next
			}
			r.blocks[next].prevBlock = prev

			addr.Block = next
			addr.Page = 0
			continue
		}

		addr.Page++
		if addr.Page == r.blocks[addr.Block].maxPages {
			next, aerr := r.allocate()
			if aerr != nil {
				return statusErrorf(CodeFailedStore, aerr, "failed to retrieve next free block in middle of flash write at block %d",
					r.driver.PhysicalBlock(addr.Block))
			}
			r.blocks[addr.Block].nextBlock = next
			r.blocks[next].prevBlock = addr.Block
			addr.Block = next
			addr.Page = 0
		}
	}

	return nil
}

// dataRead reads size bytes into buf starting at *addr, following
// nextBlock across block boundaries. *addr is updated in place to one page
// past the last byte read. A missing next block mid-read, or a driver read
// error, is a hard (unrecoverable) failure.
func (r *registry) dataRead(addr *Address, buf []byte, size int32) error {
	if !r.validAddr(*addr) {
		return statusErrorf(CodeFailedStore, nil, "invalid address provided to read: %d.%d",
			r.driver.PhysicalBlock(addr.Block), addr.Page)
	}

	dataIndex := int32(0)
	bytesLeft := size
	pageSize := r.driver.PageSize()

	for bytesLeft > 0 {
		bytesToCopy := bytesLeft
		if bytesToCopy > pageSize {
			bytesToCopy = pageSize
		}

		if err := r.driver.ReadPage(*addr, buf[dataIndex:dataIndex+bytesToCopy]); err != nil {
			r.errorCount++
			return statusErrorf(CodeFailedStore, err, "failed to read data at flash address: %d.%d",
				r.driver.PhysicalBlock(addr.Block), addr.Page)
		}
		dataIndex += bytesToCopy
		bytesLeft -= bytesToCopy
		addr.Page++

		if addr.Page == r.blocks[addr.Block].maxPages {
			next := r.blocks[addr.Block].nextBlock
			if next == InvalidBlock {
				return statusErrorf(CodeFailedStore, nil, "failed to retrieve next block in middle of flash read at block %d",
					r.driver.PhysicalBlock(addr.Block))
			}
			addr.Block = next
			addr.Page = 0
		}
	}

	return nil
}
