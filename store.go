package bplib

// Attributes configures a store created via Queue.Create.
type Attributes struct {
	// MaxDataSize bounds the total size (header + payload) of any single
	// object written to this store. Create adds headerSize to whatever is
	// supplied here, so the field ends up naming the total buffer bound,
	// matching the C source's accounting.
	MaxDataSize int32
}

// storeRecord is one live handle's worth of state: its read/write cursors,
// its staging buffers, and its object count. One handle is one logical
// queue; many can multiplex a single device.
type storeRecord struct {
	inUse      bool
	attributes Attributes

	writeAddr Address
	readAddr  Address

	writeStage []byte
	readStage  []byte

	stageLocked bool
	objectCount int
}

// Handle is an opaque reference to a live store, returned by Queue.Create.
type Handle int

// InvalidHandle is returned by Create on failure.
const InvalidHandle Handle = -1
