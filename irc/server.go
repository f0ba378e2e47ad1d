package irc

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/presbrey/ircserv/config"
	"github.com/presbrey/ircserv/metrics"
	"github.com/presbrey/ircserv/transport"
)

// Version is the server version string reported in the welcome burst and
// by VERSION.
const Version = "1.0"

// waitInterval bounds each readiness wait so a stop request is noticed
// promptly even on an idle server.
const waitInterval = 250 * time.Millisecond

type handlerFunc func(*Client, *Message)

// Server owns every connection and channel and runs the event loop that
// drives them. All state behind it is mutated from the loop goroutine
// only; the sole cross-goroutine surfaces are Stop and Snapshot.
type Server struct {
	config  *config.Config
	tr      transport.Transport
	metrics *metrics.Metrics

	clients  map[int]*Client
	channels map[string]*Channel
	interest map[int]transport.Interest

	handlers map[string]handlerFunc

	stopRequested atomic.Bool
	snapshot      atomic.Pointer[Snapshot]

	startTime time.Time
}

// NewServer wires a server around the given transport. The command table
// is built here, once; dispatch is a map lookup.
func NewServer(cfg *config.Config, tr transport.Transport, m *metrics.Metrics) *Server {
	s := &Server{
		config:    cfg,
		tr:        tr,
		metrics:   m,
		clients:   make(map[int]*Client),
		channels:  make(map[string]*Channel),
		interest:  map[int]transport.Interest{tr.Listener(): transport.Readable},
		startTime: time.Now(),
	}

	s.handlers = map[string]handlerFunc{
		"PASS":    s.handlePass,
		"NICK":    s.handleNick,
		"USER":    s.handleUser,
		"CAP":     s.handleCap,
		"PING":    s.handlePing,
		"PONG":    s.handlePong,
		"QUIT":    s.handleQuit,
		"PRIVMSG": s.handlePrivmsg,
		"NOTICE":  s.handleNotice,
		"JOIN":    s.handleJoin,
		"PART":    s.handlePart,
		"KICK":    s.handleKick,
		"INVITE":  s.handleInvite,
		"TOPIC":   s.handleTopic,
		"MODE":    s.handleMode,
		"NAMES":   s.handleNames,
		"LIST":    s.handleList,
		"WHO":     s.handleWho,
		"MOTD":    s.handleMotd,
		"VERSION": s.handleVersion,
		"OPER":    s.handleOper,
		"KILL":    s.handleKill,
	}

	s.publishSnapshot()
	return s
}

// Run drives the event loop until Stop is called or the transport fails.
// One iteration is: wait for readiness, accept, pump reads and writes,
// then tear down connections marked for disconnection.
func (s *Server) Run() error {
	log.Printf("%s ready, waiting for connections", s.config.ServerName)

	for !s.stopRequested.Load() {
		ready, err := s.tr.Wait(s.interest, waitInterval)
		if err != nil {
			return fmt.Errorf("readiness wait: %w", err)
		}

		for _, ev := range ready {
			if ev.ID == s.tr.Listener() {
				if ev.Readable {
					s.acceptClients()
				}
				continue
			}

			c, ok := s.clients[ev.ID]
			if !ok {
				continue
			}
			if ev.Err {
				c.markForDisconnect("Connection error")
				continue
			}
			if ev.Readable {
				s.receiveData(c)
			}
			if ev.Writable {
				s.sendData(c)
			}
		}

		cleaned := s.cleanupDisconnected()
		if len(ready) > 0 || cleaned {
			s.publishSnapshot()
		}
	}

	s.shutdown()
	return nil
}

// Stop requests a graceful shutdown. Safe to call from any goroutine; the
// loop notices within one wait interval.
func (s *Server) Stop() {
	s.stopRequested.Store(true)
}

// acceptClients drains the listener until no connection is pending.
func (s *Server) acceptClients() {
	for {
		id, addr, err := s.tr.Accept()
		if err != nil {
			if !errors.Is(err, transport.ErrWouldBlock) {
				log.Printf("accept failed: %v", err)
			}
			return
		}

		c := NewClient(id, addr)
		if s.config.Password == "" {
			c.authenticated = true
		}
		s.clients[id] = c
		s.interest[id] = transport.Readable
		s.metrics.ConnectionsAccepted.Inc()
		s.metrics.CurrentConnections.Inc()
		log.Printf("[%s] *** New client connected", c.host)
	}
}

// receiveData reads until the transport would block, framing and
// dispatching every complete command in the burst.
func (s *Server) receiveData(c *Client) {
	for {
		data, err := s.tr.Read(c.id)
		if err != nil {
			switch {
			case errors.Is(err, transport.ErrWouldBlock):
			case errors.Is(err, io.EOF):
				// Peer half-closed: stop watching reads, keep the
				// connection up until pending output is flushed.
				c.markPeerClosed()
				s.interest[c.id] &^= transport.Readable
				if !c.HasOutput() {
					c.markForDisconnect("Connection closed")
				}
			default:
				log.Printf("[%s] read failed: %v", c.host, err)
				c.markForDisconnect("Read error")
			}
			return
		}

		if err := c.AppendInput(data); err != nil {
			log.Printf("[%s] input buffer overflow (limit %d)", c.host, MaxInputBuffer)
			c.markForDisconnect("Input buffer exceeded")
			return
		}

		s.drainCommands(c)
		if c.shouldDisconnect() {
			return
		}
	}
}

// drainCommands hands every framed line to the dispatcher. Clients
// commonly pipeline several commands in one packet; all of them must be
// processed before returning to the multiplexer.
func (s *Server) drainCommands(c *Client) {
	for !c.shouldDisconnect() {
		line, ok := c.NextLine()
		if !ok {
			return
		}
		s.dispatch(c, line)
	}
}

// dispatch parses one line and routes it through the command table.
// Malformed lines are logged and dropped without a reply; per-command
// failures never escape their handler.
func (s *Server) dispatch(c *Client, line string) {
	s.metrics.MessagesReceived.Inc()

	msg, err := ParseMessage(line)
	if err != nil {
		log.Printf("[%s] dropping malformed line: %v", c.host, err)
		return
	}

	handler, ok := s.handlers[msg.Command]
	if !ok {
		s.metrics.Commands.WithLabelValues("unknown").Inc()
		s.sendError(c, ERR_UNKNOWNCOMMAND, msg.Command, "Unknown command")
		return
	}
	s.metrics.Commands.WithLabelValues(msg.Command).Inc()
	handler(c, msg)
}

// sendData flushes as much pending output as one write allows. Partial
// writes consume only the bytes actually sent.
func (s *Server) sendData(c *Client) {
	if !c.HasOutput() {
		s.interest[c.id] &^= transport.Writable
		return
	}

	n, err := s.tr.Write(c.id, c.Output())
	if err != nil {
		if errors.Is(err, transport.ErrWouldBlock) {
			return
		}
		log.Printf("[%s] write failed: %v", c.host, err)
		c.markForDisconnect("Write error")
		return
	}

	c.ConsumeOutput(n)
	if !c.HasOutput() {
		s.interest[c.id] &^= transport.Writable
		if c.isPeerClosed() {
			c.markForDisconnect("Connection closed")
		}
	}
}

// cleanupDisconnected tears down every connection marked during this
// iteration. Teardown never happens inside a dispatch call.
func (s *Server) cleanupDisconnected() bool {
	var ids []int
	for id, c := range s.clients {
		if c.shouldDisconnect() {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	for _, id := range ids {
		s.teardownClient(id)
	}
	return len(ids) > 0
}

// teardownClient closes the handle and removes the client from the
// registry and every channel structure that references its id. Channels
// emptied by the removal are deleted.
func (s *Server) teardownClient(id int) {
	c, ok := s.clients[id]
	if !ok {
		return
	}

	// A forced disconnect (EOF, error, overflow) still owes the client's
	// channels a QUIT. Protocol QUIT and KILL already emptied c.channels.
	if c.registered && len(c.channels) > 0 {
		s.quitChannels(c, c.quitReason)
	}

	var emptied []string
	for name, ch := range s.channels {
		ch.RemoveMember(id)
		ch.ClearInvite(id)
		if ch.IsEmpty() {
			emptied = append(emptied, name)
		}
	}
	for _, name := range emptied {
		s.removeChannel(name)
	}

	// One flush attempt so a queued KILL or error notice reaches the
	// peer before the handle goes away.
	if c.HasOutput() {
		if n, err := s.tr.Write(id, c.Output()); err == nil {
			c.ConsumeOutput(n)
		}
	}

	s.tr.Close(id)
	delete(s.clients, id)
	delete(s.interest, id)

	s.metrics.ConnectionsClosed.Inc()
	s.metrics.CurrentConnections.Dec()
	if c.registered {
		s.metrics.RegisteredClients.Dec()
	}
	log.Printf("[%s] *** Client disconnected (%s)", c.host, c.quitReason)
}

// shutdown notifies every client, makes one flush attempt each, then
// closes all handles and the listener.
func (s *Server) shutdown() {
	log.Printf("shutting down, notifying %d clients", len(s.clients))

	notice, err := BuildCommand(s.config.ServerName, "NOTICE", []string{"*"}, "Server shutting down")
	if err == nil {
		for id, c := range s.clients {
			c.AppendOutput(notice)
			if n, werr := s.tr.Write(id, c.Output()); werr == nil {
				c.ConsumeOutput(n)
			}
		}
	}

	for id := range s.clients {
		s.tr.Close(id)
	}
	s.tr.Close(s.tr.Listener())
	s.clients = make(map[int]*Client)
	s.channels = make(map[string]*Channel)
	s.interest = make(map[int]transport.Interest)
	s.publishSnapshot()
}

// wantWrite enables write-readiness watching for a connection that has
// pending output. This is the only backpressure mechanism; nothing is
// ever written synchronously from a dispatch call.
func (s *Server) wantWrite(id int) {
	if in, ok := s.interest[id]; ok {
		s.interest[id] = in | transport.Writable
	}
}

// sendRaw queues one formatted wire line for a client and requests write
// interest.
func (s *Server) sendRaw(c *Client, line string) {
	c.AppendOutput(line)
	s.wantWrite(c.id)
	s.metrics.MessagesSent.Inc()
}

// sendNumeric sends a text-only numeric reply to a client.
func (s *Server) sendNumeric(c *Client, code int, text string) {
	line, err := BuildNumeric(s.config.ServerName, code, c.displayNick(), text)
	if err != nil {
		log.Printf("[%s] dropping oversized %03d reply: %v", c.host, code, err)
		return
	}
	s.sendRaw(c, line)
}

// sendError sends a numeric error reply carrying one parameter, usually
// the offending command or name.
func (s *Server) sendError(c *Client, code int, param, text string) {
	line, err := BuildError(s.config.ServerName, code, c.displayNick(), param, text)
	if err != nil {
		log.Printf("[%s] dropping oversized %03d reply: %v", c.host, code, err)
		return
	}
	s.sendRaw(c, line)
}

// sendReply sends a numeric reply with positional parameters, for the
// replies whose shape is richer than target-plus-text.
func (s *Server) sendReply(c *Client, code int, params []string, trailing string) {
	all := append([]string{c.displayNick()}, params...)
	line, err := BuildCommand(s.config.ServerName, fmt.Sprintf("%03d", code), all, trailing)
	if err != nil {
		log.Printf("[%s] dropping oversized %03d reply: %v", c.host, code, err)
		return
	}
	s.sendRaw(c, line)
}

// relay sends a prefixed command message to one client.
func (s *Server) relay(c *Client, prefix, command string, params []string, trailing string) {
	line, err := BuildCommand(prefix, command, params, trailing)
	if err != nil {
		log.Printf("[%s] dropping oversized %s relay: %v", c.host, command, err)
		return
	}
	s.sendRaw(c, line)
}

// broadcastChannel queues a line for every channel member except
// excludeID and flags write interest for each recipient.
func (s *Server) broadcastChannel(ch *Channel, line string, excludeID int) {
	for _, id := range ch.Broadcast(s.clients, line, excludeID) {
		s.wantWrite(id)
		s.metrics.MessagesSent.Inc()
	}
}

// notifySharedMembers queues a line once for every client sharing at
// least one channel with c. QUIT excludes the quitter; NICK includes it
// so the change echoes back through the shared channel.
func (s *Server) notifySharedMembers(c *Client, line string, excludeSelf bool) {
	notified := make(map[int]bool)
	for _, ch := range s.channelsOf(c) {
		for _, id := range ch.Members() {
			if excludeSelf && id == c.id {
				continue
			}
			if notified[id] {
				continue
			}
			peer, ok := s.clients[id]
			if !ok {
				continue
			}
			notified[id] = true
			peer.AppendOutput(line)
			s.wantWrite(id)
			s.metrics.MessagesSent.Inc()
		}
	}
}

// channelsOf returns the channels c belongs to, sorted by name so
// broadcast order is stable.
func (s *Server) channelsOf(c *Client) []*Channel {
	names := make([]string, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	sort.Strings(names)

	chans := make([]*Channel, 0, len(names))
	for _, name := range names {
		if ch, ok := s.channels[name]; ok {
			chans = append(chans, ch)
		}
	}
	return chans
}

// FindClientByNickname returns the client holding the exact nickname, or
// nil. Comparison is case-sensitive.
func (s *Server) FindClientByNickname(nickname string) *Client {
	for _, id := range s.clientIDs() {
		if c := s.clients[id]; c.nickname == nickname {
			return c
		}
	}
	return nil
}

// clientIDs returns all connection ids in ascending order.
func (s *Server) clientIDs() []int {
	ids := make([]int, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// findChannel returns the channel by name, or nil.
func (s *Server) findChannel(name string) *Channel {
	return s.channels[name]
}

// createChannel returns the existing channel or creates an empty one.
func (s *Server) createChannel(name string) *Channel {
	if ch, ok := s.channels[name]; ok {
		return ch
	}
	ch := NewChannel(name)
	s.channels[name] = ch
	s.metrics.ChannelsCurrent.Inc()
	log.Printf("channel %s created", name)
	return ch
}

// removeChannel deletes a channel from the registry.
func (s *Server) removeChannel(name string) {
	if _, ok := s.channels[name]; !ok {
		return
	}
	delete(s.channels, name)
	s.metrics.ChannelsCurrent.Dec()
	log.Printf("channel %s removed", name)
}

// maybeRegister fires the registration transition when password, nick,
// and user info are all in place. It runs after every PASS, NICK, and
// USER and transitions at most once; capability negotiation holds it
// open until CAP END.
func (s *Server) maybeRegister(c *Client) {
	if c.registered || c.capNegotiating {
		return
	}
	if !c.authenticated || c.nickname == "" || c.username == "" {
		return
	}

	c.registered = true
	s.metrics.RegisteredClients.Inc()
	log.Printf("[%s] registered as %s", c.host, c.nickname)

	s.sendNumeric(c, RPL_WELCOME, "Welcome to the IRC Network")
	s.sendNumeric(c, RPL_YOURHOST, fmt.Sprintf("Your host is %s, running version %s", s.config.ServerName, Version))
	s.sendNumeric(c, RPL_CREATED, "This server was created "+s.startTime.Format("Mon Jan 2 2006 at 15:04:05 MST"))
	s.sendReply(c, RPL_MYINFO, []string{s.config.ServerName, Version, "io", "itkol"}, "")
}
