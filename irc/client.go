package irc

import (
	"bytes"
	"net"
	"time"

	"github.com/google/uuid"
)

// MaxInputBuffer caps the bytes a connection may accumulate in its input
// buffer without a line terminator. Exceeding it forces a disconnect.
const MaxInputBuffer = 8192

// Client represents one connected peer. All fields are owned by the event
// loop; nothing here is safe for concurrent use and nothing needs to be.
type Client struct {
	id   int
	uid  string
	host string

	inbuf  []byte
	outbuf []byte

	authenticated bool
	registered    bool
	nickname      string
	username      string
	realname      string

	modes    UserMode
	channels map[string]bool

	caps           map[string]bool
	capNegotiating bool

	pendingDisconnect bool
	quitReason        string
	peerClosed        bool

	connectedAt time.Time
}

// NewClient creates the per-connection state for a freshly accepted
// transport handle. addr is the peer's remote address; its host part
// becomes the host in nick!user@host prefixes.
func NewClient(id int, addr string) *Client {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil && h != "" {
		host = h
	}
	return &Client{
		id:          id,
		uid:         uuid.NewString(),
		host:        host,
		channels:    make(map[string]bool),
		caps:        make(map[string]bool),
		connectedAt: time.Now(),
	}
}

// ID returns the transport handle this client is keyed by.
func (c *Client) ID() int { return c.id }

// UID returns the stable opaque identifier assigned at accept time. It is
// used by the admin surface, never on the wire.
func (c *Client) UID() string { return c.uid }

// Nickname returns the client's current nickname, empty until NICK.
func (c *Client) Nickname() string { return c.nickname }

// Registered reports whether the client completed registration.
func (c *Client) Registered() bool { return c.registered }

// hostmask returns the nick!user@host source prefix for relayed messages.
func (c *Client) hostmask() string {
	return FormatHostmask(c.nickname, c.username, c.host)
}

// displayNick returns the nickname for numeric-reply targets, or "*"
// before one is set.
func (c *Client) displayNick() string {
	if c.nickname == "" {
		return "*"
	}
	return c.nickname
}

// AppendInput adds received bytes to the input buffer. It returns
// ErrInputBufferFull when the unframed backlog would exceed
// MaxInputBuffer; the caller must then drop the connection.
func (c *Client) AppendInput(data []byte) error {
	if len(c.inbuf)+len(data) > MaxInputBuffer {
		return ErrInputBufferFull
	}
	c.inbuf = append(c.inbuf, data...)
	return nil
}

// NextLine extracts the first complete line from the input buffer,
// consuming it. Both \n and \r\n terminate a line; the terminator is not
// part of the returned text. The second return is false when no complete
// line is buffered.
func (c *Client) NextLine() (string, bool) {
	i := bytes.IndexByte(c.inbuf, '\n')
	if i < 0 {
		return "", false
	}
	line := c.inbuf[:i]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	out := string(line)
	c.inbuf = append(c.inbuf[:0], c.inbuf[i+1:]...)
	return out, true
}

// AppendOutput queues an already formatted wire line for sending. The
// caller is responsible for requesting write interest.
func (c *Client) AppendOutput(line string) {
	c.outbuf = append(c.outbuf, line...)
}

// HasOutput reports whether unsent bytes remain queued.
func (c *Client) HasOutput() bool { return len(c.outbuf) > 0 }

// Output returns the pending output bytes. The slice is only valid until
// the next buffer mutation.
func (c *Client) Output() []byte { return c.outbuf }

// ConsumeOutput drops the first n bytes of the output buffer after a
// (possibly partial) write.
func (c *Client) ConsumeOutput(n int) {
	if n >= len(c.outbuf) {
		c.outbuf = c.outbuf[:0]
		return
	}
	c.outbuf = append(c.outbuf[:0], c.outbuf[n:]...)
}

// markForDisconnect flags the client for teardown in the event loop's
// end-of-iteration cleanup pass. The first reason sticks.
func (c *Client) markForDisconnect(reason string) {
	if c.pendingDisconnect {
		return
	}
	c.pendingDisconnect = true
	c.quitReason = reason
}

// shouldDisconnect reports whether the cleanup pass must tear this
// connection down.
func (c *Client) shouldDisconnect() bool { return c.pendingDisconnect }

// markPeerClosed records that the peer half-closed its write side (zero
// read). The connection stays up until the output buffer drains.
func (c *Client) markPeerClosed() { c.peerClosed = true }

// isPeerClosed reports whether the peer already half-closed.
func (c *Client) isPeerClosed() bool { return c.peerClosed }

// hasCap reports whether the named capability was negotiated on.
func (c *Client) hasCap(name string) bool { return c.caps[name] }
