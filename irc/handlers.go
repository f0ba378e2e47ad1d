package irc

import (
	"fmt"
	"strings"
)

// isNickSpecial reports whether b is one of the special characters RFC
// 1459 allows in nicknames.
func isNickSpecial(b byte) bool {
	switch b {
	case '[', ']', '\\', '`', '_', '^', '{', '|', '}':
		return true
	}
	return false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// isValidNickname validates a nickname against the RFC 1459 grammar:
// 1-9 characters, first a letter or special, the rest alphanumeric or
// special.
func isValidNickname(nickname string) bool {
	if nickname == "" || len(nickname) > 9 {
		return false
	}
	first := nickname[0]
	if !isLetter(first) && !isNickSpecial(first) {
		return false
	}
	for i := 1; i < len(nickname); i++ {
		c := nickname[i]
		if !isLetter(c) && !isDigit(c) && !isNickSpecial(c) {
			return false
		}
	}
	return true
}

// isNicknameInUse reports whether another connection already holds the
// nickname. Comparison is case-sensitive; excludeID lets a client keep
// its own nick on a no-op change.
func (s *Server) isNicknameInUse(nickname string, excludeID int) bool {
	for id, c := range s.clients {
		if id == excludeID {
			continue
		}
		if c.nickname == nickname {
			return true
		}
	}
	return false
}

// handlePass authenticates the connection against the server password.
// A mismatch is an error reply, not a disconnect; the client may retry.
func (s *Server) handlePass(c *Client, msg *Message) {
	if c.registered {
		s.sendNumeric(c, ERR_ALREADYREGISTERED, "Unauthorized command (already registered)")
		return
	}

	password := msg.Param(0)
	if password == "" && msg.HasTrailing() {
		password = msg.Trailing
	}
	if password == "" {
		s.sendError(c, ERR_NEEDMOREPARAMS, "PASS", "Not enough parameters")
		return
	}

	if password != s.config.Password {
		s.sendNumeric(c, ERR_PASSWDMISMATCH, "Password incorrect")
		return
	}

	c.authenticated = true
	s.maybeRegister(c)
}

// handleNick sets or changes the nickname. A change after registration
// is announced once to every client sharing a channel, the changer
// included.
func (s *Server) handleNick(c *Client, msg *Message) {
	nick := msg.Param(0)
	if nick == "" && msg.HasTrailing() {
		nick = msg.Trailing
	}
	if nick == "" {
		s.sendNumeric(c, ERR_NONICKNAMEGIVEN, "No nickname given")
		return
	}

	if !isValidNickname(nick) {
		s.sendError(c, ERR_ERRONEOUSNICK, nick, "Erroneous nickname")
		return
	}
	if s.isNicknameInUse(nick, c.id) {
		s.sendError(c, ERR_NICKNAMEINUSE, nick, "Nickname is already in use")
		return
	}

	if c.registered && c.nickname != nick {
		line, err := BuildCommand(c.hostmask(), "NICK", nil, nick)
		c.nickname = nick
		if err == nil {
			s.notifySharedMembers(c, line, false)
		}
		return
	}

	c.nickname = nick
	s.maybeRegister(c)
}

// handleUser stores the user info. The hostname and servername
// parameters are accepted but ignored.
func (s *Server) handleUser(c *Client, msg *Message) {
	if c.registered {
		s.sendNumeric(c, ERR_ALREADYREGISTERED, "Unauthorized command (already registered)")
		return
	}

	if len(msg.Params) < 3 || !msg.HasTrailing() {
		s.sendError(c, ERR_NEEDMOREPARAMS, "USER", "Not enough parameters")
		return
	}

	c.username = msg.Param(0)
	c.realname = msg.Trailing
	s.maybeRegister(c)
}

// handlePing echoes a PONG carrying the client's token, or the server
// name when none was supplied. Client PONGs get the same treatment.
func (s *Server) handlePing(c *Client, msg *Message) {
	if !c.registered {
		s.sendNumeric(c, ERR_NOTREGISTERED, "You have not registered")
		return
	}

	token := msg.Param(0)
	if token == "" && msg.HasTrailing() {
		token = msg.Trailing
	}
	if token == "" {
		token = s.config.ServerName
	}
	s.relay(c, s.config.ServerName, "PONG", []string{s.config.ServerName}, token)
}

func (s *Server) handlePong(c *Client, msg *Message) {
	s.handlePing(c, msg)
}

// handleQuit announces the departure, removes the client from its
// channels, and marks the connection for disconnection. Socket teardown
// happens in the cleanup pass, never here.
func (s *Server) handleQuit(c *Client, msg *Message) {
	reason := msg.Trailing
	if reason == "" {
		reason = "Client exited"
	}

	if c.registered {
		s.quitChannels(c, reason)
	}
	c.markForDisconnect(reason)
}

// quitChannels announces a QUIT once to every client sharing a channel
// with c, then removes c from all of them, deleting any channel left
// empty. Shared by QUIT and KILL.
func (s *Server) quitChannels(c *Client, reason string) {
	if len(c.channels) == 0 {
		return
	}

	line, err := BuildCommand(c.hostmask(), "QUIT", nil, reason)
	if err == nil {
		s.notifySharedMembers(c, line, true)
	}

	for _, ch := range s.channelsOf(c) {
		ch.RemoveMember(c.id)
		ch.ClearInvite(c.id)
		if ch.IsEmpty() {
			s.removeChannel(ch.Name())
		}
	}
	c.channels = make(map[string]bool)
}

// handlePrivmsg routes a message to a channel or a nickname.
func (s *Server) handlePrivmsg(c *Client, msg *Message) {
	s.deliverMessage(c, msg, "PRIVMSG", false)
}

// handleNotice is PRIVMSG without error replies: every failure is
// dropped silently so automated messages never trigger reply loops.
func (s *Server) handleNotice(c *Client, msg *Message) {
	s.deliverMessage(c, msg, "NOTICE", true)
}

func (s *Server) deliverMessage(c *Client, msg *Message, command string, silent bool) {
	if !c.registered {
		if !silent {
			s.sendNumeric(c, ERR_NOTREGISTERED, "You have not registered")
		}
		return
	}

	target := msg.Param(0)
	if target == "" {
		if !silent {
			s.sendNumeric(c, ERR_NORECIPIENT, fmt.Sprintf("No recipient given (%s)", command))
		}
		return
	}

	text := msg.Trailing
	if text == "" {
		text = msg.Param(1)
	}
	if text == "" {
		if !silent {
			s.sendNumeric(c, ERR_NOTEXTTOSEND, "No text to send")
		}
		return
	}

	// The relayed form carries the sender's hostmask, so a client line
	// near the limit can overflow it. Truncate the text to fit.
	overhead := 1 + len(c.hostmask()) + 1 + len(command) + 1 + len(target) + 2 + 2
	if room := MaxMessageLength - overhead; len(text) > room {
		if room <= 0 {
			return
		}
		text = text[:room]
	}

	line, err := BuildCommand(c.hostmask(), command, []string{target}, text)
	if err != nil {
		return
	}

	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		ch := s.findChannel(target)
		if ch == nil {
			if !silent {
				s.sendError(c, ERR_NOSUCHCHANNEL, target, "No such channel")
			}
			return
		}
		if !ch.IsMember(c.id) {
			if !silent {
				s.sendError(c, ERR_CANNOTSENDTOCHAN, target, "Cannot send to channel")
			}
			return
		}
		s.broadcastChannel(ch, line, c.id)
		if c.hasCap("echo-message") {
			s.sendRaw(c, line)
		}
		return
	}

	peer := s.FindClientByNickname(target)
	if peer == nil {
		if !silent {
			s.sendError(c, ERR_NOSUCHNICK, target, "No such nick/channel")
		}
		return
	}
	s.sendRaw(peer, line)
	if c.hasCap("echo-message") {
		s.sendRaw(c, line)
	}
}
