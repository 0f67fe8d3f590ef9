package bplib

// BlockIndex identifies a logical block within the block registry.
type BlockIndex int32

// InvalidBlock is the sentinel terminating block-list traversals;
// zero is a valid block index so the sentinel must be negative.
const InvalidBlock BlockIndex = -1

// Address names a single page: a logical block plus a page offset within it.
type Address struct {
	Block BlockIndex
	Page  int32
}

// SID (Storage IDentifier) is a one-based, opaque integer naming the
// (block, page) of an object's header. Callers must never manufacture a
// SID; it must come from Enqueue's return value or a previously read
// Object.SID.
type SID uint64

// sidFor computes the one-based SID for addr, given pagesPerBlock.
func sidFor(addr Address, pagesPerBlock int32) SID {
	return SID(int64(addr.Block)*int64(pagesPerBlock) + int64(addr.Page) + 1)
}

// addrForSID inverts sidFor.
func addrForSID(sid SID, pagesPerBlock int32) Address {
	zero := int64(sid) - 1
	return Address{
		Block: BlockIndex(zero / int64(pagesPerBlock)),
		Page:  int32(zero % int64(pagesPerBlock)),
	}
}
