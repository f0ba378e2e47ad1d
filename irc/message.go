package irc

import (
	"fmt"
	"strings"
)

// Message represents a parsed IRC message. Trailing holds the final
// parameter when it was introduced by " :"; an empty Trailing is treated
// the same as an absent one.
type Message struct {
	Prefix   string
	Command  string
	Params   []string
	Trailing string
}

// HasTrailing reports whether the message carries a non-empty trailing
// parameter.
func (m *Message) HasTrailing() bool {
	return m.Trailing != ""
}

// ParseMessage parses a raw IRC line. Line terminators are stripped before
// tokenizing. It returns ErrMalformedMessage when no command token is
// present: an empty line, a whitespace-only line, or a prefix with nothing
// after it.
func ParseMessage(line string) (*Message, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, ErrMalformedMessage
	}

	msg := &Message{
		Params: make([]string, 0),
	}

	// Check if the message has a prefix
	if line[0] == ':' {
		parts := strings.SplitN(line[1:], " ", 2)
		if len(parts) < 2 || parts[0] == "" {
			return nil, ErrMalformedMessage
		}
		msg.Prefix = parts[0]
		line = parts[1]
	}

	// The command is the next token
	line = strings.TrimLeft(line, " ")
	if line == "" {
		return nil, ErrMalformedMessage
	}
	parts := strings.SplitN(line, " ", 2)
	msg.Command = strings.ToUpper(parts[0])
	if len(parts) < 2 {
		return msg, nil
	}

	// Collect parameters until the trailing marker
	rest := parts[1]
	for rest != "" {
		rest = strings.TrimLeft(rest, " ")
		if rest == "" {
			break
		}
		if rest[0] == ':' {
			msg.Trailing = rest[1:]
			break
		}
		parts := strings.SplitN(rest, " ", 2)
		msg.Params = append(msg.Params, parts[0])
		if len(parts) < 2 {
			break
		}
		rest = parts[1]
	}

	return msg, nil
}

// Param returns the i-th positional parameter or the empty string when the
// message has fewer parameters.
func (m *Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// String returns the wire representation of the message without a
// terminator. It is used for logging, not for the wire; replies go
// through the builders.
func (m *Message) String() string {
	var builder strings.Builder

	if m.Prefix != "" {
		builder.WriteString(":")
		builder.WriteString(m.Prefix)
		builder.WriteString(" ")
	}

	builder.WriteString(m.Command)

	for _, param := range m.Params {
		builder.WriteString(" ")
		builder.WriteString(param)
	}
	if m.HasTrailing() {
		builder.WriteString(" :")
		builder.WriteString(m.Trailing)
	}

	return builder.String()
}

// FormatHostmask formats a nick!user@host source prefix.
func FormatHostmask(nick, user, host string) string {
	return fmt.Sprintf("%s!%s@%s", nick, user, host)
}
