package irc

import (
	"sort"
	"time"
)

// Snapshot is an immutable view of server state, published by the event
// loop at the end of an iteration. Goroutines outside the loop (the admin
// surface) read the latest pointer instead of touching live state, so the
// core stays lock-free.
type Snapshot struct {
	ServerName string    `json:"server_name"`
	StartTime  time.Time `json:"start_time"`
	TakenAt    time.Time `json:"taken_at"`

	Clients  []ClientInfo  `json:"clients"`
	Channels []ChannelInfo `json:"channels"`
}

// ClientInfo describes one connection at snapshot time.
type ClientInfo struct {
	UID         string    `json:"uid"`
	Nickname    string    `json:"nickname"`
	Username    string    `json:"username"`
	Realname    string    `json:"realname"`
	Host        string    `json:"host"`
	Registered  bool      `json:"registered"`
	Operator    bool      `json:"operator"`
	Channels    []string  `json:"channels"`
	ConnectedAt time.Time `json:"connected_at"`
}

// ChannelInfo describes one channel at snapshot time. The key itself is
// never exposed, only whether one is set.
type ChannelInfo struct {
	Name           string   `json:"name"`
	Topic          string   `json:"topic"`
	Members        []string `json:"members"`
	Operators      []string `json:"operators"`
	InviteOnly     bool     `json:"invite_only"`
	TopicProtected bool     `json:"topic_protected"`
	HasKey         bool     `json:"has_key"`
	UserLimit      int      `json:"user_limit"`
}

// Snapshot returns the most recently published view. Never nil.
func (s *Server) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// publishSnapshot rebuilds the immutable view from live state. Only the
// event loop calls this.
func (s *Server) publishSnapshot() {
	snap := &Snapshot{
		ServerName: s.config.ServerName,
		StartTime:  s.startTime,
		TakenAt:    time.Now(),
		Clients:    make([]ClientInfo, 0, len(s.clients)),
		Channels:   make([]ChannelInfo, 0, len(s.channels)),
	}

	for _, id := range s.clientIDs() {
		c := s.clients[id]
		chans := make([]string, 0, len(c.channels))
		for name := range c.channels {
			chans = append(chans, name)
		}
		sort.Strings(chans)
		snap.Clients = append(snap.Clients, ClientInfo{
			UID:         c.uid,
			Nickname:    c.nickname,
			Username:    c.username,
			Realname:    c.realname,
			Host:        c.host,
			Registered:  c.registered,
			Operator:    c.modes.Operator,
			Channels:    chans,
			ConnectedAt: c.connectedAt,
		})
	}

	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ch := s.channels[name]
		members := make([]string, 0, ch.MemberCount())
		operators := make([]string, 0)
		for _, id := range ch.Members() {
			c, ok := s.clients[id]
			if !ok {
				continue
			}
			members = append(members, c.nickname)
			if ch.IsOperator(id) {
				operators = append(operators, c.nickname)
			}
		}
		snap.Channels = append(snap.Channels, ChannelInfo{
			Name:           ch.Name(),
			Topic:          ch.Topic(),
			Members:        members,
			Operators:      operators,
			InviteOnly:     ch.InviteOnly(),
			TopicProtected: ch.TopicProtected(),
			HasKey:         ch.HasKey(),
			UserLimit:      ch.UserLimit(),
		})
	}

	s.snapshot.Store(snap)
}
