package irc

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// isValidChannelName validates a channel name: a '#' or '&' sigil
// followed by 1-49 bytes free of spaces, commas, and the ^G separator.
func isValidChannelName(name string) bool {
	if len(name) < 2 || len(name) > 50 {
		return false
	}
	if name[0] != '#' && name[0] != '&' {
		return false
	}
	return !strings.ContainsAny(name[1:], " ,\a")
}

// handleJoin adds the client to a channel, creating it when absent. The
// creator becomes its sole operator. Joining an existing channel is
// gated on invite-only, key, and user-limit modes, in that order.
func (s *Server) handleJoin(c *Client, msg *Message) {
	if !c.registered {
		s.sendNumeric(c, ERR_NOTREGISTERED, "You have not registered")
		return
	}

	name := msg.Param(0)
	if name == "" {
		s.sendError(c, ERR_NEEDMOREPARAMS, "JOIN", "Not enough parameters")
		return
	}
	if !isValidChannelName(name) {
		s.sendError(c, ERR_NOSUCHCHANNEL, name, "No such channel")
		return
	}

	ch := s.findChannel(name)
	if ch != nil && ch.IsMember(c.id) {
		return
	}

	if ch == nil {
		ch = s.createChannel(name)
		ch.AddOperator(c.id)
	} else {
		if ch.InviteOnly() && !ch.IsInvited(c.id) {
			s.sendError(c, ERR_INVITEONLYCHAN, name, "Cannot join channel (+i)")
			return
		}
		if ch.HasKey() && msg.Param(1) != ch.Key() {
			s.sendError(c, ERR_BADCHANNELKEY, name, "Cannot join channel (+k)")
			return
		}
		if ch.IsFull() {
			s.sendError(c, ERR_CHANNELISFULL, name, "Cannot join channel (+l)")
			return
		}
	}

	ch.ClearInvite(c.id)
	ch.AddMember(c.id)
	c.channels[name] = true

	line, err := BuildCommand(c.hostmask(), "JOIN", nil, name)
	if err == nil {
		s.broadcastChannel(ch, line, -1)
	}

	s.sendNames(c, ch)
	if ch.HasTopic() {
		s.sendError(c, RPL_TOPIC, name, ch.Topic())
	} else {
		s.sendError(c, RPL_NOTOPIC, name, "No topic is set")
	}
}

// handlePart removes the client from a channel. The departure is
// announced to the full membership, the departing client included,
// before the member set shrinks.
func (s *Server) handlePart(c *Client, msg *Message) {
	if !c.registered {
		s.sendNumeric(c, ERR_NOTREGISTERED, "You have not registered")
		return
	}

	name := msg.Param(0)
	if name == "" {
		s.sendError(c, ERR_NEEDMOREPARAMS, "PART", "Not enough parameters")
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

	line, err := BuildCommand(c.hostmask(), "PART", []string{ch.Name()}, msg.Trailing)
	if err == nil {
		s.broadcastChannel(ch, line, -1)
	}

	ch.RemoveMember(c.id)
	delete(c.channels, name)
	if ch.IsEmpty() {
		s.removeChannel(ch.Name())
	}
}

// handleTopic queries or sets a channel topic. Without a trailing
// argument it is a query; with one it sets the topic, which on a +t
// channel requires operator status.
func (s *Server) handleTopic(c *Client, msg *Message) {
	if !c.registered {
		s.sendNumeric(c, ERR_NOTREGISTERED, "You have not registered")
		return
	}

	name := msg.Param(0)
	if name == "" {
		s.sendError(c, ERR_NEEDMOREPARAMS, "TOPIC", "Not enough parameters")
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

	if !msg.HasTrailing() {
		if ch.HasTopic() {
			s.sendError(c, RPL_TOPIC, ch.Name(), ch.Topic())
		} else {
			s.sendError(c, RPL_NOTOPIC, ch.Name(), "No topic is set")
		}
		return
	}

	if ch.TopicProtected() && !ch.IsOperator(c.id) {
		s.sendError(c, ERR_CHANOPRIVSNEEDED, ch.Name(), "You're not channel operator")
		return
	}

	ch.SetTopic(msg.Trailing)
	line, err := BuildCommand(c.hostmask(), "TOPIC", []string{ch.Name()}, msg.Trailing)
	if err == nil {
		s.broadcastChannel(ch, line, -1)
	}
}

// handleInvite invites a nickname into a channel. On an invite-only
// channel only operators may invite; elsewhere any member may.
func (s *Server) handleInvite(c *Client, msg *Message) {
	if !c.registered {
		s.sendNumeric(c, ERR_NOTREGISTERED, "You have not registered")
		return
	}

	nick := msg.Param(0)
	name := msg.Param(1)
	if nick == "" || name == "" {
		s.sendError(c, ERR_NEEDMOREPARAMS, "INVITE", "Not enough parameters")
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
	if ch.InviteOnly() && !ch.IsOperator(c.id) {
		s.sendError(c, ERR_CHANOPRIVSNEEDED, name, "You're not channel operator")
		return
	}

	target := s.FindClientByNickname(nick)
	if target == nil {
		s.sendError(c, ERR_NOSUCHNICK, nick, "No such nick/channel")
		return
	}
	if ch.IsMember(target.id) {
		s.sendReply(c, ERR_USERONCHANNEL, []string{nick, ch.Name()}, "is already on channel")
		return
	}

	ch.Invite(target.id)
	s.relay(target, c.hostmask(), "INVITE", []string{nick}, ch.Name())
	s.sendReply(c, RPL_INVITING, []string{nick, ch.Name()}, "")
}

// handleNames lists the members of one channel, or of every channel
// when no argument is given.
func (s *Server) handleNames(c *Client, msg *Message) {
	if !c.registered {
		s.sendNumeric(c, ERR_NOTREGISTERED, "You have not registered")
		return
	}

	if name := msg.Param(0); name != "" {
		if ch := s.findChannel(name); ch != nil {
			s.sendNames(c, ch)
		} else {
			s.sendError(c, RPL_ENDOFNAMES, name, "End of /NAMES list")
		}
		return
	}

	for _, name := range s.channelNames() {
		s.sendNames(c, s.channels[name])
	}
}

// sendNames sends the 353/366 name listing for one channel. Operators
// carry the @ prefix; members are listed in join-id order.
func (s *Server) sendNames(c *Client, ch *Channel) {
	var names []string
	for _, id := range ch.Members() {
		member, ok := s.clients[id]
		if !ok {
			continue
		}
		nick := member.displayNick()
		if ch.IsOperator(id) {
			nick = "@" + nick
		}
		names = append(names, nick)
	}

	s.sendReply(c, RPL_NAMREPLY, []string{"=", ch.Name()}, strings.Join(names, " "))
	s.sendError(c, RPL_ENDOFNAMES, ch.Name(), "End of /NAMES list")
}

// channelNames returns all channel names in sorted order.
func (s *Server) channelNames() []string {
	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// modeChange records one applied mode transition for the change
// announcement. Only transitions that altered state are recorded, so
// redundant requests produce no broadcast.
type modeChange struct {
	add  bool
	mode byte
	arg  string
}

// formatModeChanges renders applied transitions as a mode string plus
// arguments, grouping consecutive changes of the same sign.
func formatModeChanges(changes []modeChange) (string, []string) {
	var modes strings.Builder
	var args []string
	var sign byte

	for _, mc := range changes {
		want := byte('-')
		if mc.add {
			want = '+'
		}
		if sign != want {
			modes.WriteByte(want)
			sign = want
		}
		modes.WriteByte(mc.mode)
		if mc.arg != "" {
			args = append(args, mc.arg)
		}
	}
	return modes.String(), args
}

// handleMode dispatches on the target sigil: channel targets get
// channel mode handling, anything else is treated as a user mode
// target.
func (s *Server) handleMode(c *Client, msg *Message) {
	if !c.registered {
		s.sendNumeric(c, ERR_NOTREGISTERED, "You have not registered")
		return
	}

	target := msg.Param(0)
	if target == "" {
		s.sendError(c, ERR_NEEDMOREPARAMS, "MODE", "Not enough parameters")
		return
	}

	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		s.channelMode(c, msg)
		return
	}
	s.userMode(c, msg)
}

// channelMode queries or changes channel modes. A query needs no
// privilege; changes need operator status. The mode string is processed
// left to right under a running +/- sign, and a single MODE line
// announcing every applied change goes to the full membership.
func (s *Server) channelMode(c *Client, msg *Message) {
	name := msg.Param(0)
	ch := s.findChannel(name)
	if ch == nil {
		s.sendError(c, ERR_NOSUCHCHANNEL, name, "No such channel")
		return
	}

	modes := msg.Param(1)
	if modes == "" {
		s.sendReply(c, RPL_CHANNELMODEIS, append([]string{ch.Name()}, strings.Fields(ch.ModeString())...), "")
		return
	}

	if !ch.IsOperator(c.id) {
		s.sendError(c, ERR_CHANOPRIVSNEEDED, ch.Name(), "You're not channel operator")
		return
	}

	args := msg.Params[2:]
	argIndex := 0
	nextArg := func() (string, bool) {
		if argIndex < len(args) {
			arg := args[argIndex]
			argIndex++
			return arg, true
		}
		return "", false
	}

	adding := true
	var applied []modeChange

	for i := 0; i < len(modes); i++ {
		switch m := modes[i]; m {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'i':
			if ch.InviteOnly() != adding {
				ch.SetInviteOnly(adding)
				applied = append(applied, modeChange{add: adding, mode: m})
			}
		case 't':
			if ch.TopicProtected() != adding {
				ch.SetTopicProtected(adding)
				applied = append(applied, modeChange{add: adding, mode: m})
			}
		case 'k':
			arg, ok := nextArg()
			if !ok {
				continue
			}
			if adding {
				if ch.Key() != arg {
					ch.SetKey(arg)
					applied = append(applied, modeChange{add: true, mode: m, arg: arg})
				}
			} else if ch.HasKey() {
				ch.RemoveKey()
				applied = append(applied, modeChange{add: false, mode: m, arg: arg})
			}
		case 'l':
			if !adding {
				if ch.UserLimit() > 0 {
					ch.SetUserLimit(0)
					applied = append(applied, modeChange{add: false, mode: m})
				}
				continue
			}
			arg, ok := nextArg()
			if !ok {
				continue
			}
			limit, err := strconv.Atoi(arg)
			if err != nil || limit <= 0 {
				continue
			}
			if ch.UserLimit() != limit {
				ch.SetUserLimit(limit)
				applied = append(applied, modeChange{add: true, mode: m, arg: arg})
			}
		case 'o':
			arg, ok := nextArg()
			if !ok {
				continue
			}
			target := s.FindClientByNickname(arg)
			if target == nil {
				s.sendError(c, ERR_NOSUCHNICK, arg, "No such nick/channel")
				continue
			}
			if !ch.IsMember(target.id) {
				s.sendReply(c, ERR_USERNOTINCHANNEL, []string{arg, ch.Name()}, "They aren't on that channel")
				continue
			}
			if ch.IsOperator(target.id) != adding {
				if adding {
					ch.AddOperator(target.id)
				} else {
					ch.RemoveOperator(target.id)
				}
				applied = append(applied, modeChange{add: adding, mode: m, arg: arg})
			}
		default:
			s.sendError(c, ERR_UNKNOWNMODE, string(m), "is unknown mode char to me")
		}
	}

	if len(applied) == 0 {
		return
	}

	modeStr, modeArgs := formatModeChanges(applied)
	line, err := BuildCommand(c.hostmask(), "MODE", append([]string{ch.Name(), modeStr}, modeArgs...), "")
	if err == nil {
		s.broadcastChannel(ch, line, -1)
	}
}

// userMode queries or changes the client's own user modes. Changing
// another user's modes is rejected. +o is ignored here; operator status
// is only granted through OPER.
func (s *Server) userMode(c *Client, msg *Message) {
	if msg.Param(0) != c.nickname {
		s.sendNumeric(c, ERR_USERSDONTMATCH, "Cannot change mode for other users")
		return
	}

	modes := msg.Param(1)
	if modes == "" {
		view := c.modes.String()
		if view == "" {
			view = "+"
		}
		s.sendReply(c, RPL_UMODEIS, []string{view}, "")
		return
	}

	adding := true
	var applied []modeChange
	for i := 0; i < len(modes); i++ {
		m := rune(modes[i])
		switch m {
		case '+':
			adding = true
			continue
		case '-':
			adding = false
			continue
		}
		// Self-granting +o is silently ignored.
		if m == 'o' && adding {
			continue
		}
		had := c.modes.HasMode(m)
		if err := c.modes.ApplyMode(m, adding); err != nil {
			if errors.Is(err, ErrUnknownModeFlag) {
				s.sendNumeric(c, ERR_UMODEUNKNOWNFLAG, "Unknown MODE flag")
			}
			continue
		}
		if had != adding {
			applied = append(applied, modeChange{add: adding, mode: byte(m)})
		}
	}

	if len(applied) == 0 {
		return
	}

	modeStr, _ := formatModeChanges(applied)
	s.relay(c, c.hostmask(), "MODE", []string{c.nickname}, modeStr)
}
