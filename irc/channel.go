package irc

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Channel is a named group of connections. Membership, operator grants,
// and invites are tracked by connection id; dereferencing an id back to a
// Client always goes through the server's connection registry, so channel
// state never outlives connection teardown.
type Channel struct {
	name  string
	topic string
	key   string

	members   map[int]bool
	operators map[int]bool
	invited   map[int]bool

	inviteOnly     bool
	topicProtected bool
	userLimit      int

	createdAt time.Time
}

// NewChannel creates an empty channel with all modes disabled.
func NewChannel(name string) *Channel {
	return &Channel{
		name:      name,
		members:   make(map[int]bool),
		operators: make(map[int]bool),
		invited:   make(map[int]bool),
		createdAt: time.Now(),
	}
}

// Name returns the channel name the server routes by.
func (ch *Channel) Name() string { return ch.name }

// Topic returns the current topic, empty when unset.
func (ch *Channel) Topic() string { return ch.topic }

// SetTopic sets the topic visible to members.
func (ch *Channel) SetTopic(topic string) { ch.topic = topic }

// HasTopic reports whether a topic is set.
func (ch *Channel) HasTopic() bool { return ch.topic != "" }

// AddMember adds a connection id to the member set.
func (ch *Channel) AddMember(id int) { ch.members[id] = true }

// RemoveMember removes a connection id from the member set and drops any
// operator grant with it.
func (ch *Channel) RemoveMember(id int) {
	delete(ch.members, id)
	delete(ch.operators, id)
}

// IsMember reports whether the connection id is in the member set.
func (ch *Channel) IsMember(id int) bool { return ch.members[id] }

// Members returns the member ids in ascending order. Sorting keeps reply
// and broadcast order stable.
func (ch *Channel) Members() []int {
	ids := make([]int, 0, len(ch.members))
	for id := range ch.members {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// MemberCount returns the number of members.
func (ch *Channel) MemberCount() int { return len(ch.members) }

// IsEmpty reports whether the channel has no members left.
func (ch *Channel) IsEmpty() bool { return len(ch.members) == 0 }

// AddOperator grants operator status to a member id.
func (ch *Channel) AddOperator(id int) { ch.operators[id] = true }

// RemoveOperator revokes operator status.
func (ch *Channel) RemoveOperator(id int) { delete(ch.operators, id) }

// IsOperator reports whether the id holds operator status.
func (ch *Channel) IsOperator(id int) bool { return ch.operators[id] }

// Invite adds a connection id to the invited set, letting it through an
// invite-only gate once.
func (ch *Channel) Invite(id int) { ch.invited[id] = true }

// IsInvited reports whether the id holds an outstanding invite.
func (ch *Channel) IsInvited(id int) bool { return ch.invited[id] }

// ClearInvite removes an id from the invited set, after a successful join
// or on teardown.
func (ch *Channel) ClearInvite(id int) { delete(ch.invited, id) }

// SetInviteOnly toggles +i.
func (ch *Channel) SetInviteOnly(enable bool) { ch.inviteOnly = enable }

// InviteOnly reports whether +i is enabled.
func (ch *Channel) InviteOnly() bool { return ch.inviteOnly }

// SetTopicProtected toggles +t.
func (ch *Channel) SetTopicProtected(enable bool) { ch.topicProtected = enable }

// TopicProtected reports whether +t is enabled.
func (ch *Channel) TopicProtected() bool { return ch.topicProtected }

// SetKey sets the channel key for +k.
func (ch *Channel) SetKey(key string) { ch.key = key }

// RemoveKey clears the channel key.
func (ch *Channel) RemoveKey() { ch.key = "" }

// HasKey reports whether a key is set.
func (ch *Channel) HasKey() bool { return ch.key != "" }

// Key returns the current key.
func (ch *Channel) Key() string { return ch.key }

// SetUserLimit sets the member cap for +l; zero or less means unlimited.
func (ch *Channel) SetUserLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	ch.userLimit = limit
}

// UserLimit returns the member cap, zero when unlimited.
func (ch *Channel) UserLimit() int { return ch.userLimit }

// IsFull reports whether a limit is set and reached.
func (ch *Channel) IsFull() bool {
	return ch.userLimit > 0 && len(ch.members) >= ch.userLimit
}

// ModeString returns the channel's mode summary in itkl order with the
// key and limit arguments appended, or "+" when no mode is set.
func (ch *Channel) ModeString() string {
	var flags strings.Builder
	var args []string

	flags.WriteString("+")
	if ch.inviteOnly {
		flags.WriteString("i")
	}
	if ch.topicProtected {
		flags.WriteString("t")
	}
	if ch.HasKey() {
		flags.WriteString("k")
		args = append(args, ch.key)
	}
	if ch.userLimit > 0 {
		flags.WriteString("l")
		args = append(args, strconv.Itoa(ch.userLimit))
	}

	if len(args) == 0 {
		return flags.String()
	}
	return flags.String() + " " + strings.Join(args, " ")
}

// Broadcast appends an already formatted wire line to every member's
// output buffer except excludeID (pass -1 to reach everyone). It returns
// the ids that received the line so the caller can request write
// interest for each.
func (ch *Channel) Broadcast(conns map[int]*Client, line string, excludeID int) []int {
	recipients := make([]int, 0, len(ch.members))
	for _, id := range ch.Members() {
		if id == excludeID {
			continue
		}
		c, ok := conns[id]
		if !ok {
			continue
		}
		c.AppendOutput(line)
		recipients = append(recipients, id)
	}
	return recipients
}
