package irc

import (
	"fmt"
	"log"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// handleKick ejects a member from a channel. The KICK is announced to
// the full membership, the target included, before the member set
// shrinks so the target sees its own removal.
func (s *Server) handleKick(c *Client, msg *Message) {
	if !c.registered {
		s.sendNumeric(c, ERR_NOTREGISTERED, "You have not registered")
		return
	}

	name := msg.Param(0)
	nick := msg.Param(1)
	if name == "" || nick == "" {
		s.sendError(c, ERR_NEEDMOREPARAMS, "KICK", "Not enough parameters")
		return
	}

	ch := s.findChannel(name)
	if ch == nil {
		s.sendError(c, ERR_NOSUCHCHANNEL, name, "No such channel")
		return
	}
	if !ch.IsMember(c.id) {
		s.sendError(c, ERR_NOTONCHANNEL, name, "You're not on that channel")
		return
	}
	if !ch.IsOperator(c.id) {
		s.sendError(c, ERR_CHANOPRIVSNEEDED, ch.Name(), "You're not channel operator")
		return
	}

	target := s.FindClientByNickname(nick)
	if target == nil || !ch.IsMember(target.id) {
		s.sendReply(c, ERR_USERNOTINCHANNEL, []string{nick, ch.Name()}, "They aren't on that channel")
		return
	}

	reason := msg.Trailing
	if reason == "" {
		reason = msg.Param(2)
	}
	if reason == "" {
		reason = c.displayNick()
	}

	line, err := BuildCommand(c.hostmask(), "KICK", []string{ch.Name(), nick}, reason)
	if err == nil {
		s.broadcastChannel(ch, line, -1)
	}

	ch.RemoveMember(target.id)
	delete(target.channels, name)
	if ch.IsEmpty() {
		s.removeChannel(ch.Name())
	}
}

// sharesChannel reports whether two clients have at least one channel
// in common.
func (s *Server) sharesChannel(a, b *Client) bool {
	for name := range a.channels {
		ch := s.findChannel(name)
		if ch != nil && ch.IsMember(b.id) {
			return true
		}
	}
	return false
}

// whoFlags renders the status column of a WHO reply: here-marker, IRC
// operator star, and channel operator prefix.
func whoFlags(ch *Channel, target *Client) string {
	flags := "H"
	if target.modes.Operator {
		flags += "*"
	}
	if ch != nil && ch.IsOperator(target.id) {
		flags += "@"
	}
	return flags
}

func (s *Server) sendWhoReply(c *Client, channelName string, ch *Channel, target *Client) {
	s.sendReply(c, RPL_WHOREPLY,
		[]string{channelName, target.username, target.host, s.config.ServerName, target.displayNick(), whoFlags(ch, target)},
		"0 "+target.realname)
}

// handleWho answers a WHO query for a channel or a nickname. Invisible
// users are listed only to themselves and to clients sharing a channel
// with them; a channel query from a member lists everyone.
func (s *Server) handleWho(c *Client, msg *Message) {
	if !c.registered {
		s.sendNumeric(c, ERR_NOTREGISTERED, "You have not registered")
		return
	}

	mask := msg.Param(0)
	if mask == "" {
		s.sendError(c, ERR_NEEDMOREPARAMS, "WHO", "Not enough parameters")
		return
	}

	if ch := s.findChannel(mask); ch != nil {
		requesterIsMember := ch.IsMember(c.id)
		for _, id := range ch.Members() {
			member, ok := s.clients[id]
			if !ok {
				continue
			}
			if !requesterIsMember && member.modes.Invisible && member != c {
				continue
			}
			s.sendWhoReply(c, ch.Name(), ch, member)
		}
		s.sendError(c, RPL_ENDOFWHO, mask, "End of /WHO list")
		return
	}

	if target := s.FindClientByNickname(mask); target != nil && target.registered {
		visible := !target.modes.Invisible || target == c || s.sharesChannel(c, target)
		if visible {
			s.sendWhoReply(c, "*", nil, target)
		}
	}
	s.sendError(c, RPL_ENDOFWHO, mask, "End of /WHO list")
}

// handleList lists channels with their member counts and topics, all of
// them or just the one named.
func (s *Server) handleList(c *Client, msg *Message) {
	if !c.registered {
		s.sendNumeric(c, ERR_NOTREGISTERED, "You have not registered")
		return
	}

	s.sendReply(c, RPL_LISTSTART, []string{"Channel"}, "Users  Name")

	if name := msg.Param(0); name != "" {
		if ch := s.findChannel(name); ch != nil {
			s.sendReply(c, RPL_LIST, []string{ch.Name(), strconv.Itoa(ch.MemberCount())}, ch.Topic())
		}
	} else {
		for _, name := range s.channelNames() {
			ch := s.channels[name]
			s.sendReply(c, RPL_LIST, []string{ch.Name(), strconv.Itoa(ch.MemberCount())}, ch.Topic())
		}
	}

	s.sendNumeric(c, RPL_LISTEND, "End of /LIST")
}

// handleMotd sends the message of the day from the configuration, or
// 422 when none is configured.
func (s *Server) handleMotd(c *Client, msg *Message) {
	if !c.registered {
		s.sendNumeric(c, ERR_NOTREGISTERED, "You have not registered")
		return
	}

	if len(s.config.MOTD) == 0 {
		s.sendNumeric(c, ERR_NOMOTD, "MOTD File is missing")
		return
	}

	s.sendNumeric(c, RPL_MOTDSTART, fmt.Sprintf("- %s Message of the day - ", s.config.ServerName))
	for _, line := range s.config.MOTD {
		s.sendNumeric(c, RPL_MOTD, "- "+line)
	}
	s.sendNumeric(c, RPL_ENDOFMOTD, "End of /MOTD command")
}

// handleVersion reports the server software version.
func (s *Server) handleVersion(c *Client, msg *Message) {
	if !c.registered {
		s.sendNumeric(c, ERR_NOTREGISTERED, "You have not registered")
		return
	}
	s.sendReply(c, RPL_VERSION, []string{Version, s.config.ServerName}, "")
}

// handleOper grants IRC operator status against the configured
// operator credentials. Both a missing name and a wrong password
// produce the same reply, so the operator list cannot be probed.
func (s *Server) handleOper(c *Client, msg *Message) {
	if !c.registered {
		s.sendNumeric(c, ERR_NOTREGISTERED, "You have not registered")
		return
	}

	name := msg.Param(0)
	password := msg.Param(1)
	if password == "" && msg.HasTrailing() {
		password = msg.Trailing
	}
	if name == "" || password == "" {
		s.sendError(c, ERR_NEEDMOREPARAMS, "OPER", "Not enough parameters")
		return
	}

	op, ok := s.config.FindOperator(name)
	if !ok || bcrypt.CompareHashAndPassword([]byte(op.Hash), []byte(password)) != nil {
		s.sendNumeric(c, ERR_PASSWDMISMATCH, "Password incorrect")
		return
	}

	c.modes.Operator = true
	log.Printf("[%s] %s authenticated as operator %s", c.host, c.nickname, name)
	s.sendNumeric(c, RPL_YOUREOPER, "You are now an IRC operator")
	s.relay(c, s.config.ServerName, "MODE", []string{c.nickname, "+o"}, "")
}

// handleKill forcibly disconnects a client, IRC operators only. The
// victim sees the KILL line, its channels see a QUIT, and the
// connection is torn down in the cleanup pass.
func (s *Server) handleKill(c *Client, msg *Message) {
	if !c.registered {
		s.sendNumeric(c, ERR_NOTREGISTERED, "You have not registered")
		return
	}
	if !c.modes.Operator {
		s.sendNumeric(c, ERR_NOPRIVILEGES, "Permission Denied - You're not an IRC operator")
		return
	}

	nick := msg.Param(0)
	reason := msg.Trailing
	if reason == "" {
		reason = msg.Param(1)
	}
	if nick == "" || reason == "" {
		s.sendError(c, ERR_NEEDMOREPARAMS, "KILL", "Not enough parameters")
		return
	}

	victim := s.FindClientByNickname(nick)
	if victim == nil {
		s.sendError(c, ERR_NOSUCHNICK, nick, "No such nick/channel")
		return
	}

	s.relay(victim, c.hostmask(), "KILL", []string{nick}, reason)

	quitReason := fmt.Sprintf("Killed by %s (%s)", c.displayNick(), reason)
	s.quitChannels(victim, quitReason)
	victim.markForDisconnect(quitReason)
	log.Printf("[%s] killed by %s (%s)", victim.host, c.nickname, reason)
}
