package wstestclient

import (
	"context"
	"fmt"
	"sync"
)

// Single slot synchronized cell which holds the last received text message.
//
// Each Store overwrites the previous value (last write wins) and increments a sequence number.
// Waiters are released by closing the current notification channel, which is then replaced.
type receivedText struct {
	mu sync.Mutex
	// Last stored value
	value string
	// Number of stored values
	seq uint64
	// Closed and replaced on each Store or on Close
	changed chan struct{}
	// Set once the cell has been closed
	closed bool
	// Cause recorded on Close
	cause error
}

func newReceivedText() *receivedText {
	return &receivedText{changed: make(chan struct{})}
}

// Overwrite the stored value and wake up waiters. Values stored after Close are dropped.
func (cell *receivedText) Store(value string) uint64 {
	cell.mu.Lock()
	defer cell.mu.Unlock()
	if cell.closed {
		return cell.seq
	}
	cell.value = value
	cell.seq++
	close(cell.changed)
	cell.changed = make(chan struct{})
	return cell.seq
}

// Return the last stored value and its sequence number. Value is empty when nothing was stored.
func (cell *receivedText) Load() (string, uint64) {
	cell.mu.Lock()
	defer cell.mu.Unlock()
	return cell.value, cell.seq
}

// # Description
//
// Block until the sequence number is greater than after, then return the last stored value and
// its sequence number.
//
// # Return
//
// The method returns an error wrapping ErrConnectionClosed when the cell is closed before a
// newer value is stored or the context error when ctx is done first.
func (cell *receivedText) WaitNewer(ctx context.Context, after uint64) (string, uint64, error) {
	for {
		cell.mu.Lock()
		value, seq, closed, cause, changed := cell.value, cell.seq, cell.closed, cell.cause, cell.changed
		cell.mu.Unlock()
		if seq > after {
			return value, seq, nil
		}
		if closed {
			if cause != nil {
				return value, seq, fmt.Errorf("%w: %v", ErrConnectionClosed, cause)
			}
			return value, seq, ErrConnectionClosed
		}
		select {
		case <-ctx.Done():
			return value, seq, ctx.Err()
		case <-changed:
		}
	}
}

// Close the cell and release waiters. The last stored value stays readable. Only the first call
// records its cause.
func (cell *receivedText) Close(cause error) {
	cell.mu.Lock()
	defer cell.mu.Unlock()
	if cell.closed {
		return
	}
	cell.closed = true
	cell.cause = cause
	close(cell.changed)
}
