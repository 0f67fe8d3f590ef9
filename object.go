package bplib

import "encoding/binary"

// objectSync is the 64-bit magic identifying the start of an on-flash
// object header: "BP FLASH" in ASCII, matching the original C source's
// FLASH_OBJECT_SYNC constant.
const objectSync uint64 = 0x425020464C415348

// headerSize is the fixed, wire-exact size of an on-flash object header:
// sync(8) + timestamp(8) + handle(4) + size(4) + sid(8), little-endian.
const headerSize = 8 + 8 + 4 + 4 + 8

// Object is the borrowed view of a dequeued or retrieved object: header
// fields plus a Payload slice into the owning store's read-stage buffer.
// The Payload is only valid until the next Release/Dequeue/Retrieve on the
// same store — see Queue's state-machine docs.
type Object struct {
	Handle Handle
	Size   int32
	SID    SID

	Payload []byte
}

// objectHeader is the decoded form of the fixed on-flash header. Replaces
// the C source's pointer-cast-onto-buffer trick with explicit little-endian
// decoding, per the design notes.
type objectHeader struct {
	sync      uint64
	timestamp uint64
	handle    uint32
	size      uint32
	sid       uint64
}

func encodeHeader(buf []byte, h objectHeader) {
	binary.LittleEndian.PutUint64(buf[0:8], h.sync)
	binary.LittleEndian.PutUint64(buf[8:16], h.timestamp)
	binary.LittleEndian.PutUint32(buf[16:20], h.handle)
	binary.LittleEndian.PutUint32(buf[20:24], h.size)
	binary.LittleEndian.PutUint64(buf[24:32], h.sid)
}

func decodeHeader(buf []byte) objectHeader {
	return objectHeader{
		sync:      binary.LittleEndian.Uint64(buf[0:8]),
		timestamp: binary.LittleEndian.Uint64(buf[8:16]),
		handle:    binary.LittleEndian.Uint32(buf[16:20]),
		size:      binary.LittleEndian.Uint32(buf[20:24]),
		sid:       binary.LittleEndian.Uint64(buf[24:32]),
	}
}

// objectWrite frames an object (header + up to two scattered input
// buffers) into store's write-stage buffer and hands it to dataWrite,
// advancing store.writeAddr in place.
func (r *registry) objectWrite(store *storeRecord, handle Handle, now uint64, d1, d2 []byte) (SID, error) {
	needed := headerSize + len(d1) + len(d2)

	bytesAvailable := int64(r.free.count) * int64(r.pagesPerBlock) * int64(r.driver.PageSize())
	if bytesAvailable < int64(needed) || int64(store.attributes.MaxDataSize) < int64(needed) {
		return 0, statusErrorf(CodeStoreFull, nil,
			"insufficient room in flash storage, max: %d, available: %d, needed: %d",
			store.attributes.MaxDataSize, bytesAvailable, needed)
	}

	sid := sidFor(store.writeAddr, r.pagesPerBlock)
	hdr := objectHeader{
		sync:      objectSync,
		timestamp: now,
		handle:    uint32(handle),
		size:      uint32(len(d1) + len(d2)),
		sid:       uint64(sid),
	}

	encodeHeader(store.writeStage, hdr)
	copy(store.writeStage[headerSize:], d1)
	copy(store.writeStage[headerSize+len(d1):], d2)

	if err := r.dataWrite(&store.writeAddr, store.writeStage[:needed], int32(needed)); err != nil {
		return 0, err
	}
	return sid, nil
}

// objectRead validates and reads exactly one object at *addr into store's
// read-stage buffer, refusing if the stage is already checked out. On
// success it locks the stage and returns a borrowed Object view into it.
func (r *registry) objectRead(store *storeRecord, handle Handle, addr *Address) (*Object, error) {
	if store.stageLocked {
		return nil, statusErrorf(CodeFailedStore, nil, "object read cannot proceed when object stage is locked")
	}

	pageSize := r.driver.PageSize()
	if err := r.dataRead(addr, store.readStage[:pageSize], pageSize); err != nil {
		return nil, err
	}

	hdr := decodeHeader(store.readStage)
	if int64(hdr.size) > int64(store.attributes.MaxDataSize) || hdr.handle != uint32(handle) || hdr.sync != objectSync {
		return nil, statusErrorf(CodeFailedStore, nil,
			"object read from flash fails validation, size (%d, %d), handle (%d, %d), sync (%016X, %016X)",
			hdr.size, store.attributes.MaxDataSize, hdr.handle, handle, hdr.sync, objectSync)
	}

	bytesRead := pageSize - headerSize
	remaining := int32(hdr.size) - bytesRead
	if remaining > 0 {
		if err := r.dataRead(addr, store.readStage[pageSize:int64(pageSize)+int64(remaining)], remaining); err != nil {
			return nil, err
		}
	}

	store.stageLocked = true
	return &Object{
		Handle:  Handle(hdr.handle),
		Size:    int32(hdr.size),
		SID:     SID(hdr.sid),
		Payload: store.readStage[headerSize : int64(headerSize)+int64(hdr.size)],
	}, nil
}

// objectScan forward-walks pages from *addr, reading only a header-sized
// prefix, until it finds a page whose sync magic matches, or runs off the
// end of the chain. Used to resynchronize a store's read cursor after a
// failed dequeue.
func (r *registry) objectScan(addr *Address) error {
	scratch := make([]byte, headerSize)

	for addr.Block != InvalidBlock {
		// dataRead advances addr past the header-sized probe itself; on a
		// miss we additionally skip a page, matching the original engine's
		// scan cadence (it is a resynchronization heuristic, not a dense
		// byte-for-byte scan).
		err := r.dataRead(addr, scratch, headerSize)
		if err == nil && decodeHeader(scratch).sync == objectSync {
			return nil
		}

		addr.Page++
		if addr.Page >= r.blocks[addr.Block].maxPages {
			addr.Block = r.blocks[addr.Block].nextBlock
			addr.Page = 0
		}
	}

	return statusErrorf(CodeFailedStore, nil, "object scan exhausted chain without finding sync")
}

// objectDelete marks every page belonging to the object named by sid as
// deleted, reclaiming (and splicing out of its chain) any block that
// becomes entirely deleted as a result.
func (r *registry) objectDelete(sid SID) error {
	addr := addrForSID(sid, r.pagesPerBlock)
	if !r.validAddr(addr) {
		return statusErrorf(CodeFailedStore, nil, "invalid address provided to delete: %d.%d",
			r.driver.PhysicalBlock(addr.Block), addr.Page)
	}

	hdrAddr := addr
	scratch := make([]byte, headerSize)
	if err := r.dataRead(&hdrAddr, scratch, headerSize); err != nil {
		return statusErrorf(CodeFailedStore, err, "unable to read object header at %d.%d in delete",
			r.driver.PhysicalBlock(addr.Block), addr.Page)
	}
	hdr := decodeHeader(scratch)
	if SID(hdr.sid) != sid {
		return statusErrorf(CodeFailedStore, nil, "attempting to delete object with invalid SID: %d != %d", hdr.sid, sid)
	}

	currentBlock := InvalidBlock
	currentBlockFreePages := int32(0)
	bytesLeft := int32(hdr.size) + headerSize

	pageSize := r.driver.PageSize()

	for bytesLeft > 0 {
		if currentBlock != addr.Block {
			currentBlock = addr.Block
			currentBlockFreePages = r.blocks[currentBlock].pageUse.countClear(r.pagesPerBlock)
		}

		if r.blocks[addr.Block].pageUse.clear(addr.Page) {
			currentBlockFreePages++
		}

		bytesToDelete := bytesLeft
		if bytesToDelete > pageSize {
			bytesToDelete = pageSize
		}
		bytesLeft -= bytesToDelete
		addr.Page++

		if addr.Page == r.blocks[addr.Block].maxPages {
			next := r.blocks[addr.Block].nextBlock
			if next == InvalidBlock {
				return statusErrorf(CodeFailedStore, nil, "failed to retrieve next block in middle of flash delete at block %d",
					r.driver.PhysicalBlock(addr.Block))
			}
			addr.Block = next
			addr.Page = 0
		}

		if currentBlockFreePages >= r.blocks[currentBlock].maxPages {
			if bytesLeft != 0 {
				return statusErrorf(CodeFailedStore, nil, "reclaiming block %d which contains undeleted data at page %d",
					r.driver.PhysicalBlock(currentBlock), addr.Page)
			}

			prev := r.blocks[currentBlock].prevBlock
			next := r.blocks[currentBlock].nextBlock
			if prev != InvalidBlock {
				r.blocks[prev].nextBlock = next
			}
			if next != InvalidBlock {
				r.blocks[next].prevBlock = prev
			}

			if err := r.reclaim(currentBlock); err != nil {
				r.log.Warnw("failed to reclaim fully-deleted block", "block", r.driver.PhysicalBlock(currentBlock), "error", err)
			}
		}
	}

	return nil
}
