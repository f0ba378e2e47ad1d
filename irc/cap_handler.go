package irc

import (
	"fmt"
	"sort"
	"strings"
)

// handleCap drives capability negotiation. CAP works before
// registration; LS and REQ from an unregistered client suspend
// registration until CAP END so negotiation finishes ahead of the
// welcome burst.
func (s *Server) handleCap(c *Client, msg *Message) {
	sub := strings.ToUpper(msg.Param(0))
	if sub == "" {
		s.sendError(c, ERR_NEEDMOREPARAMS, "CAP", "Not enough parameters")
		return
	}

	switch sub {
	case "LS":
		s.capLS(c, msg.Param(1))
	case "LIST":
		s.capList(c)
	case "REQ":
		request := msg.Trailing
		if request == "" {
			request = msg.Param(1)
		}
		s.capReq(c, request)
	case "END":
		s.capEnd(c)
	case "ACK", "NAK":
		// Server-to-client subcommands, ignored from clients.
	default:
		s.sendError(c, ERR_INVALIDCAPCMD, sub, "Invalid CAP subcommand")
	}
}

// capLS advertises the supported capabilities. Clients announcing CAP
// version 302 get the multiline form: continuation lines marked with *,
// then an empty terminator line.
func (s *Server) capLS(c *Client, version string) {
	if !c.registered {
		c.capNegotiating = true
	}

	caps := make([]string, 0, len(serverCapabilities))
	for _, name := range capabilityNames() {
		caps = append(caps, serverCapabilities[name].String())
	}
	list := strings.Join(caps, " ")
	target := c.displayNick()

	if version == "302" {
		s.sendRaw(c, fmt.Sprintf(":%s CAP %s LS * :%s\r\n", s.config.ServerName, target, list))
		s.sendRaw(c, fmt.Sprintf(":%s CAP %s LS :\r\n", s.config.ServerName, target))
		return
	}
	s.relay(c, s.config.ServerName, "CAP", []string{target, "LS"}, list)
}

// capList reports the capabilities currently enabled on the connection.
func (s *Server) capList(c *Client) {
	names := make([]string, 0, len(c.caps))
	for name := range c.caps {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		s.sendRaw(c, fmt.Sprintf(":%s CAP %s LIST :\r\n", s.config.ServerName, c.displayNick()))
		return
	}
	s.relay(c, s.config.ServerName, "CAP", []string{c.displayNick(), "LIST"}, strings.Join(names, " "))
}

// capReq enables or disables the requested capabilities. The request is
// atomic: one unknown name, removal included, rejects the whole set
// with a NAK echoing the request.
func (s *Server) capReq(c *Client, request string) {
	if !c.registered {
		c.capNegotiating = true
	}

	request = strings.TrimSpace(request)
	tokens := strings.Fields(request)
	if len(tokens) == 0 {
		s.sendRaw(c, fmt.Sprintf(":%s CAP %s NAK :\r\n", s.config.ServerName, c.displayNick()))
		return
	}

	for _, token := range tokens {
		name := strings.TrimPrefix(token, "-")
		if _, ok := serverCapabilities[name]; !ok {
			s.relay(c, s.config.ServerName, "CAP", []string{c.displayNick(), "NAK"}, request)
			return
		}
	}

	for _, token := range tokens {
		if name, removed := strings.CutPrefix(token, "-"); removed {
			delete(c.caps, name)
		} else {
			c.caps[name] = true
		}
	}
	s.relay(c, s.config.ServerName, "CAP", []string{c.displayNick(), "ACK"}, request)
}

// capEnd closes negotiation and lets a suspended registration proceed.
func (s *Server) capEnd(c *Client) {
	c.capNegotiating = false
	s.maybeRegister(c)
}
