package irc

import (
	"fmt"
	"strings"
)

// MaxMessageLength is the maximum formatted wire message length in bytes,
// terminator included.
const MaxMessageLength = 512

// BuildNumeric formats a numeric reply:
//
//	:<server> <3-digit code> <target> :<text>
//
// The code is zero-padded to three digits. Returns ErrMessageTooLong when
// the formatted line exceeds MaxMessageLength.
func BuildNumeric(server string, code int, target, text string) (string, error) {
	return terminate(fmt.Sprintf(":%s %03d %s :%s", server, code, target, text))
}

// BuildError formats a numeric error reply carrying one positional
// parameter before the text:
//
//	:<server> <3-digit code> <target> <param> :<text>
func BuildError(server string, code int, target, param, text string) (string, error) {
	return terminate(fmt.Sprintf(":%s %03d %s %s :%s", server, code, target, param, text))
}

// BuildCommand formats a relayed command message:
//
//	:<prefix> <command> [param ...] [:<trailing>]
//
// An empty trailing is omitted.
func BuildCommand(prefix, command string, params []string, trailing string) (string, error) {
	var builder strings.Builder

	builder.WriteString(":")
	builder.WriteString(prefix)
	builder.WriteString(" ")
	builder.WriteString(command)

	for _, param := range params {
		builder.WriteString(" ")
		builder.WriteString(param)
	}

	if trailing != "" {
		builder.WriteString(" :")
		builder.WriteString(trailing)
	}

	return terminate(builder.String())
}

func terminate(line string) (string, error) {
	line += "\r\n"
	if len(line) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return line, nil
}
