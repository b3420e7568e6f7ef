package kfmt

import "io"

// ringBufferSize defines size of the ring buffer that buffers early Printf
// output. It is large enough to hold the memory map report printed while the
// memory subsystem boots.
const ringBufferSize = 4096

// ringBuffer keeps the last ringBufferSize bytes written to it. Reads drain
// the buffer in FIFO order.
type ringBuffer struct {
	buffer [ringBufferSize]byte

	// start is the index of the oldest unread byte and count the number
	// of unread bytes.
	start, count int
}

// Write writes len(p) bytes from p to the ringBuffer, overwriting the oldest
// unread data if the buffer is full.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[(rb.start+rb.count)%ringBufferSize] = b
		if rb.count == ringBufferSize {
			rb.start = (rb.start + 1) % ringBufferSize
		} else {
			rb.count++
		}
	}

	return len(p), nil
}

// Read reads up to len(p) bytes into p. It returns io.EOF once the buffer has
// been drained.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.count == 0 {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) && rb.count > 0 {
		// Copy the contiguous run that starts at rb.start
		run := ringBufferSize - rb.start
		if run > rb.count {
			run = rb.count
		}

		copied := copy(p[n:], rb.buffer[rb.start:rb.start+run])
		n += copied
		rb.count -= copied
		rb.start = (rb.start + copied) % ringBufferSize
	}

	return n, nil
}

// Len returns the number of unread bytes.
func (rb *ringBuffer) Len() int {
	return rb.count
}
