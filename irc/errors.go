package irc

import "errors"

// Sentinel errors returned by the message codec. Callers match them with
// errors.Is rather than comparing strings.
var (
	// ErrMalformedMessage is returned by ParseMessage for input that cannot
	// be interpreted as an IRC message: an empty line, a line containing
	// only whitespace, or a line with a prefix but no command.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrMessageTooLong is returned by the message builders when the
	// assembled line, including the trailing CRLF, exceeds 512 bytes.
	ErrMessageTooLong = errors.New("message exceeds 512 bytes")

	// ErrInputBufferFull is returned by Client.AppendInput when a
	// connection has accumulated more unframed input than the server
	// allows. The event loop responds by force-disconnecting the peer.
	ErrInputBufferFull = errors.New("input buffer full")
)
