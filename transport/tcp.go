package transport

import (
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// readChunkSize is the per-call read size.
const readChunkSize = 4096

// TCP is the production Transport over an IPv4 listening socket.
// Connection handles are raw file descriptors: created by Accept,
// released by Close.
type TCP struct {
	listener int
	buf      [readChunkSize]byte
}

// NewTCP opens a non-blocking listener bound to host:port. An empty host
// binds all interfaces. Failures here are fatal to the caller; nothing is
// left open on error.
func NewTCP(host string, port int) (*TCP, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	if host != "" {
		ip := net.ParseIP(host)
		if ip == nil || ip.To4() == nil {
			unix.Close(fd)
			return nil, fmt.Errorf("listen host %q is not an IPv4 address", host)
		}
		copy(sa.Addr[:], ip.To4())
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set nonblock: %w", err)
	}

	return &TCP{listener: fd}, nil
}

// Listener returns the listening socket's handle.
func (t *TCP) Listener() int { return t.listener }

// Addr returns the address the listener is bound to, which pins down the
// real port when the socket was opened with port 0.
func (t *TCP) Addr() string {
	sa, err := unix.Getsockname(t.listener)
	if err != nil {
		return ""
	}
	return sockaddrString(sa)
}

// Accept takes one pending connection, sets it non-blocking, and returns
// its handle with the peer address.
func (t *TCP) Accept() (int, string, error) {
	fd, sa, err := unix.Accept(t.listener)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, "", ErrWouldBlock
		}
		return 0, "", fmt.Errorf("accept: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return 0, "", fmt.Errorf("set nonblock: %w", err)
	}
	return fd, sockaddrString(sa), nil
}

// Read performs one non-blocking read of up to readChunkSize bytes. The
// returned slice aliases an internal buffer and is only valid until the
// next Read call.
func (t *TCP) Read(id int) ([]byte, error) {
	n, err := unix.Read(id, t.buf[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("read: %w", err)
	}
	if n == 0 {
		return nil, io.EOF
	}
	return t.buf[:n], nil
}

// Write performs one non-blocking write. Partial writes return the bytes
// actually sent.
func (t *TCP) Write(id int, p []byte) (int, error) {
	n, err := unix.Write(id, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("write: %w", err)
	}
	return n, nil
}

// Close releases the handle. Errors are ignored; the descriptor is gone
// either way.
func (t *TCP) Close(id int) {
	unix.Close(id)
}

// Wait polls the watched handles. A negative timeout blocks until an
// event arrives. Interrupted waits return an empty result with a nil
// error so the loop simply runs another iteration.
func (t *TCP) Wait(interest map[int]Interest, timeout time.Duration) ([]Ready, error) {
	ids := make([]int, 0, len(interest))
	for id := range interest {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fds := make([]unix.PollFd, 0, len(ids))
	for _, id := range ids {
		var events int16
		if interest[id]&Readable != 0 {
			events |= unix.POLLIN
		}
		if interest[id]&Writable != 0 {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(id), Events: events})
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	ready := make([]Ready, 0, n)
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		ready = append(ready, Ready{
			ID:       int(pfd.Fd),
			Readable: pfd.Revents&unix.POLLIN != 0,
			Writable: pfd.Revents&unix.POLLOUT != 0,
			Err:      pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0,
		})
	}
	return ready, nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		return ""
	}
}
