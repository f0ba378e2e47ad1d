// Package transport isolates the raw socket primitives the event loop
// drives: accept, non-blocking read/write, close, and readiness waiting.
// Handles are plain integers so server state can be keyed by them without
// holding OS resources anywhere but here.
package transport

import (
	"errors"
	"time"
)

// ErrWouldBlock is returned by Accept, Read, and Write when the operation
// cannot make progress without blocking. It is the normal end condition of
// the event loop's drain loops, not a failure.
var ErrWouldBlock = errors.New("operation would block")

// Interest describes which readiness events a handle should be watched
// for in a Wait call.
type Interest uint8

const (
	// Readable watches for incoming data or pending connections.
	Readable Interest = 1 << iota
	// Writable watches for outgoing buffer space.
	Writable
)

// Ready reports the readiness state of one handle after a Wait call. Err
// covers error and hangup conditions; the loop responds by dropping the
// connection.
type Ready struct {
	ID       int
	Readable bool
	Writable bool
	Err      bool
}

// Transport is the minimal socket surface the event loop needs. All
// methods are called from the single loop goroutine; implementations do
// not need to be safe for concurrent use.
type Transport interface {
	// Listener returns the handle of the listening socket.
	Listener() int

	// Accept takes one pending connection off the listener. It returns
	// the new non-blocking handle and the peer's remote address, or
	// ErrWouldBlock when no connection is pending.
	Accept() (int, string, error)

	// Read performs one non-blocking read. It returns ErrWouldBlock when
	// no data is available and io.EOF when the peer closed its write
	// side. The returned slice is only valid until the next Read call.
	Read(id int) ([]byte, error)

	// Write performs one non-blocking write and returns the number of
	// bytes actually sent, which may be less than len(p). ErrWouldBlock
	// means nothing could be sent.
	Write(id int, p []byte) (int, error)

	// Close releases the handle. Closing an already closed handle is a
	// no-op.
	Close(id int)

	// Wait blocks until at least one watched handle is ready or the
	// timeout elapses, returning the ready handles. An empty result with
	// a nil error means the wait was interrupted or timed out; the
	// caller just loops.
	Wait(interest map[int]Interest, timeout time.Duration) ([]Ready, error)
}
