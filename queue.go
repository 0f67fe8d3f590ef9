package bplib

import (
	"sync"

	"github.com/google/uuid"
)

// InitMode selects the behavior of Init.
type InitMode int

const (
	// ModeFormat reclaims every block on the device, discarding any
	// previously stored objects. Mandatory on first use of a device.
	ModeFormat InitMode = iota
	// ModeRecover is reserved for a future crash-recovery implementation.
	// It currently leaves the free/bad lists empty, exactly like a device
	// with zero usable blocks — see design notes on recovery mode.
	ModeRecover
)

// DefaultMaxStores is used by Config when MaxStores is left at zero,
// matching the original source's FLASH_MAX_STORES compile-time constant.
const DefaultMaxStores = 16

// Config configures a Queue. Driver is required; Logger and Clock default
// to a no-op logger and time.Now respectively when left nil.
type Config struct {
	Driver    Driver
	Logger    Logger
	Clock     Clock
	MaxStores int
}

// Queue is the owning context for one flash device: the block registry, the
// store table, and the single process-wide lock serializing every
// device-touching operation. It replaces the C source's file-scope globals
// (see design notes on process-wide state) so tests can instantiate
// independent, isolated queues.
type Queue struct {
	driver Driver
	log    Logger
	clock  Clock

	mu       sync.Mutex
	registry *registry
	stores   []storeRecord

	sessionID uuid.UUID
}

// Init constructs a Queue over driver in the given mode and returns it
// along with the number of blocks reclaimed by ModeFormat (always 0 for
// ModeRecover, since recovery is unimplemented).
func Init(cfg Config, mode InitMode) (*Queue, int, error) {
	if cfg.Driver == nil {
		return nil, 0, statusErrorf(CodeFailedOS, nil, "config requires a Driver")
	}

	log := cfg.Logger
	if log == nil {
		log = noopLogger{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}
	maxStores := cfg.MaxStores
	if maxStores <= 0 {
		maxStores = DefaultMaxStores
	}

	q := &Queue{
		driver:    cfg.Driver,
		log:       log,
		clock:     clock,
		registry:  newRegistry(cfg.Driver, log),
		stores:    make([]storeRecord, maxStores),
		sessionID: uuid.New(),
	}

	reclaimed := 0
	switch mode {
	case ModeFormat:
		reclaimed = q.registry.format()
	case ModeRecover:
		// Reserved: a faithful port leaves recovery unimplemented. A future
		// implementation would scan every block for valid sync magic,
		// rebuild per-store chains by timestamp ordering, and rebuild
		// page-use bitmaps from observed object extents.
	}

	log.Infow("flash queue initialized",
		"session", q.sessionID, "mode", mode, "reclaimed", reclaimed, "max_stores", maxStores)

	return q, reclaimed, nil
}

// Stats is a snapshot of the registry counters returned by Queue.Stats.
type Stats struct {
	FreeBlocks int
	UsedBlocks int
	BadBlocks  int
	ErrorCount int
}

// Stats snapshots the registry counters. If logStats is set, it also logs
// the counts and enumerates bad blocks. If reset is set, ErrorCount is
// zeroed afterward.
func (q *Queue) Stats(logStats, reset bool) Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := q.registry.snapshot()
	out := Stats(snap)

	if logStats {
		q.log.Debugw("flash queue stats",
			"session", q.sessionID,
			"free_blocks", out.FreeBlocks, "used_blocks", out.UsedBlocks,
			"bad_blocks", out.BadBlocks, "error_count", out.ErrorCount)
		for _, phys := range q.registry.badBlocks() {
			q.log.Debugw("bad block", "session", q.sessionID, "block", phys)
		}
	}

	if reset {
		q.registry.errorCount = 0
	}

	return out
}

// Create allocates a new store slot with the given attributes (or
// page-size-only defaults when attr is nil) and returns its Handle.
// Returns InvalidHandle if every slot is in use, or attr requests a
// MaxDataSize smaller than one page.
func (q *Queue) Create(attr *Attributes) Handle {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.stores {
		if q.stores[i].inUse {
			continue
		}

		var attrs Attributes
		if attr != nil {
			if attr.MaxDataSize < q.driver.PageSize() {
				q.log.Warnw("invalid attributes for create", "max_data_size", attr.MaxDataSize)
				return InvalidHandle
			}
			attrs = *attr
		} else {
			attrs.MaxDataSize = q.driver.PageSize()
		}
		attrs.MaxDataSize += headerSize

		q.stores[i] = storeRecord{
			inUse:      true,
			attributes: attrs,
			writeAddr:  Address{Block: InvalidBlock, Page: 0},
			readAddr:   Address{Block: InvalidBlock, Page: 0},
			writeStage: make([]byte, attrs.MaxDataSize),
			readStage:  make([]byte, attrs.MaxDataSize),
		}
		return Handle(i)
	}

	q.log.Warnw("no free store handle available")
	return InvalidHandle
}

// Destroy releases handle's staging buffers and frees the slot. It does not
// reclaim blocks still referenced by the store's chain: callers must drain
// a store before destroying it, or those blocks leak until the whole
// device is re-formatted.
func (q *Queue) Destroy(handle Handle) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, err := q.storeAt(handle)
	if err != nil {
		return err
	}
	s.writeStage = nil
	s.readStage = nil
	s.inUse = false
	return nil
}

func (q *Queue) storeAt(handle Handle) (*storeRecord, error) {
	if handle < 0 || int(handle) >= len(q.stores) {
		return nil, statusErrorf(CodeInvalidHandle, nil, "handle %d out of range", handle)
	}
	s := &q.stores[handle]
	if !s.inUse {
		return nil, statusErrorf(CodeInvalidHandle, nil, "handle %d not in use", handle)
	}
	return s, nil
}
