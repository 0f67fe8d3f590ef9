package bplib

// Enqueue frames and writes one object made of up to two scattered buffers
// (d2 may be nil) into handle's store, in order. timeout is accepted for
// interface stability but ignored: writes never block beyond whatever the
// Driver itself blocks on.
func (q *Queue) Enqueue(handle Handle, d1, d2 []byte, timeout int) (SID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, err := q.storeAt(handle)
	if err != nil {
		return 0, err
	}

	if s.writeAddr.Block == InvalidBlock {
		block, aerr := q.registry.allocate()
		if aerr != nil {
			return 0, statusErrorf(CodeFailedStore, aerr, "failed to allocate write block first time")
		}
		s.writeAddr = Address{Block: block, Page: 0}
	}
	if s.readAddr.Block == InvalidBlock {
		s.readAddr = s.writeAddr
	}

	now := uint64(q.clock.Now().Unix())
	sid, err := q.registry.objectWrite(s, handle, now, d1, d2)
	if err != nil {
		return 0, err
	}

	s.objectCount++
	return sid, nil
}

// Dequeue reads and locks the next object in handle's store, stepping over
// objects that were relinquished before being dequeued, and returns
// TIMEOUT if no object is left. On a validation failure, the read cursor
// is advanced past the bad data via a scan before the error is returned, so
// subsequent dequeues can make progress. timeout is accepted but ignored.
func (q *Queue) Dequeue(handle Handle, timeout int) (*Object, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, err := q.storeAt(handle)
	if err != nil {
		return nil, err
	}

	// A relinquished object stays on flash until its block is reclaimed;
	// step over any whose header page is marked deleted.
	for s.readAddr != s.writeAddr && q.registry.validAddr(s.readAddr) &&
		!q.registry.blocks[s.readAddr.Block].pageUse.isSet(s.readAddr.Page) {
		probe := s.readAddr
		scratch := make([]byte, headerSize)
		if err := q.registry.dataRead(&probe, scratch, headerSize); err != nil {
			return nil, err
		}
		skip := make([]byte, headerSize+int(decodeHeader(scratch).size))
		if err := q.registry.dataRead(&s.readAddr, skip, int32(len(skip))); err != nil {
			return nil, err
		}
	}

	if s.readAddr == s.writeAddr {
		return nil, ErrTimeout
	}

	obj, err := q.registry.objectRead(s, handle, &s.readAddr)
	if err != nil {
		q.registry.objectScan(&s.readAddr)
		return nil, err
	}
	return obj, nil
}

// Retrieve reads (without dequeuing) the object named by sid, leaving
// handle's read cursor untouched. timeout is accepted but ignored.
func (q *Queue) Retrieve(handle Handle, sid SID, timeout int) (*Object, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, err := q.storeAt(handle)
	if err != nil {
		return nil, err
	}

	addr := addrForSID(sid, q.registry.pagesPerBlock)
	return q.registry.objectRead(s, handle, &addr)
}

// Release unlocks handle's read stage, permitting a new Dequeue/Retrieve.
// sid must match the object currently checked out; a mismatch leaves the
// stage locked and returns an error. Unlocked, like GetCount: it only
// touches one store's stage flag and header, never the registry.
func (q *Queue) Release(handle Handle, sid SID) error {
	s, err := q.storeAt(handle)
	if err != nil {
		return err
	}

	hdr := decodeHeader(s.readStage)
	if SID(hdr.sid) != sid {
		return statusErrorf(CodeFailedStore, nil, "object being released does not have correct SID, requested: %d, actual: %d", sid, hdr.sid)
	}

	s.stageLocked = false
	return nil
}

// Relinquish deletes the object named by sid, regardless of whether it was
// ever dequeued, and decrements handle's object count on success.
func (q *Queue) Relinquish(handle Handle, sid SID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, err := q.storeAt(handle)
	if err != nil {
		return err
	}

	if err := q.registry.objectDelete(sid); err != nil {
		return err
	}
	s.objectCount--
	return nil
}

// GetCount returns handle's current object count. Unlocked: it is a single
// integer read whose sole writer is Enqueue/Relinquish under the lock.
func (q *Queue) GetCount(handle Handle) (int, error) {
	if handle < 0 || int(handle) >= len(q.stores) {
		return 0, statusErrorf(CodeInvalidHandle, nil, "handle %d out of range", handle)
	}
	s := &q.stores[handle]
	if !s.inUse {
		return 0, statusErrorf(CodeInvalidHandle, nil, "handle %d not in use", handle)
	}
	return s.objectCount, nil
}
