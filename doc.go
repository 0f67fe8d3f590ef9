// Package bplib implements a persistent, queue-like object store layered
// over a page-addressable, erase-before-write flash device.
//
// Producers enqueue variable-sized objects into a named store; consumers
// dequeue them in roughly FIFO order, may retain the returned Storage
// IDentifier (SID) to retrieve the object again later, and relinquish it
// once it is no longer needed. Multiple stores can multiplex one physical
// device, each with its own read/write cursor and staging buffers.
//
// The engine does not talk to real hardware: it consumes a Driver supplied
// by the caller (see sim for an in-memory and a memory-mapped-file
// implementation used by the tests and the CLI).
package bplib
