package irc_test

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/presbrey/ircserv/config"
	"github.com/presbrey/ircserv/irc"
	"github.com/presbrey/ircserv/metrics"
	"github.com/presbrey/ircserv/transport"
	"github.com/presbrey/ircserv/wait"
)

type IRCClient struct {
	Conn   net.Conn
	Reader *bufio.Reader
}

// NewIRCClient connects a raw TCP client to the server
func NewIRCClient(t *testing.T, address string) *IRCClient {
	conn, err := net.Dial("tcp", address)
	require.NoError(t, err, "Should connect to the server")

	return &IRCClient{
		Conn:   conn,
		Reader: bufio.NewReader(conn),
	}
}

// Send sends a message to the server
func (c *IRCClient) Send(message string) error {
	_, err := c.Conn.Write([]byte(message + "\r\n"))
	return err
}

// Expect waits for a message containing the expected string
func (c *IRCClient) Expect(t *testing.T, expected string, timeout time.Duration) (string, error) {
	c.Conn.SetReadDeadline(time.Now().Add(timeout))
	defer c.Conn.SetReadDeadline(time.Time{})

	for {
		line, err := c.Reader.ReadString('\n')
		if err != nil {
			return "", err
		}

		line = strings.TrimSpace(line)
		if strings.Contains(line, expected) {
			return line, nil
		}
	}
}

// ExpectCommand waits for a message whose command (or numeric) matches,
// returning the parsed form.
func (c *IRCClient) ExpectCommand(t *testing.T, command string, timeout time.Duration) (ircmsg.Message, error) {
	c.Conn.SetReadDeadline(time.Now().Add(timeout))
	defer c.Conn.SetReadDeadline(time.Time{})

	for {
		line, err := c.Reader.ReadString('\n')
		if err != nil {
			return ircmsg.Message{}, err
		}

		msg, err := ircmsg.ParseLine(strings.TrimSpace(line))
		if err != nil {
			continue
		}
		if msg.Command == command {
			return msg, nil
		}
	}
}

// ExpectMultiple waits for multiple messages
func (c *IRCClient) ExpectMultiple(t *testing.T, expected []string, timeout time.Duration) error {
	c.Conn.SetReadDeadline(time.Now().Add(timeout))
	defer c.Conn.SetReadDeadline(time.Time{})

	remaining := make(map[string]bool)
	for _, exp := range expected {
		remaining[exp] = true
	}

	for len(remaining) > 0 {
		line, err := c.Reader.ReadString('\n')
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		for exp := range remaining {
			if strings.Contains(line, exp) {
				delete(remaining, exp)
			}
		}
	}

	return nil
}

// ReadUntil reads until a specific pattern is found
func (c *IRCClient) ReadUntil(t *testing.T, pattern string, timeout time.Duration) ([]string, error) {
	c.Conn.SetReadDeadline(time.Now().Add(timeout))
	defer c.Conn.SetReadDeadline(time.Time{})

	lines := []string{}
	for {
		line, err := c.Reader.ReadString('\n')
		if err != nil {
			return lines, err
		}

		line = strings.TrimSpace(line)
		lines = append(lines, line)

		if strings.Contains(line, pattern) {
			return lines, nil
		}
	}
}

// Close closes the connection
func (c *IRCClient) Close() error {
	return c.Conn.Close()
}

func linesContain(lines []string, substr string) bool {
	for _, line := range lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// startTestServer runs a server on an ephemeral port and returns its
// address plus a stop function that asserts a clean loop exit.
func startTestServer(t *testing.T, cfg *config.Config) (string, func()) {
	t.Helper()

	tr, err := transport.NewTCP("127.0.0.1", 0)
	require.NoError(t, err, "Should open a listener")

	srv := irc.NewServer(cfg, tr, metrics.New())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run()
	}()
	require.NoError(t, wait.ForTCP(tr.Addr()), "Server should accept connections")

	stop := func() {
		srv.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err, "Should stop the server")
		case <-time.After(2 * time.Second):
			t.Error("server did not stop in time")
		}
	}
	return tr.Addr(), stop
}

// TestIntegration drives the server over real sockets with the
// configuration loaded from a file.
func TestIntegration(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("adminpass"), bcrypt.MinCost)
	require.NoError(t, err, "Should hash the operator password")

	// Create a temporary config file
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")
	configContent := fmt.Sprintf(`
server_name: test.irc.local
host: 127.0.0.1
port: 6667
password: "hunter2"

motd:
  - "integration test server"

operators:
  - name: admin
    hash: "%s"
`, hash)

	err = os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err, "Should write the config file")

	// Load the configuration
	cfg, err := config.Load(configPath)
	require.NoError(t, err, "Should load the configuration")
	assert.Equal(t, "test.irc.local", cfg.ServerName, "Should read the server name from the file")
	assert.Equal(t, configPath, cfg.Source, "Should record the config source")

	// The listener binds an ephemeral port; the file's port is ignored here.
	addr, stop := startTestServer(t, cfg)
	defer stop()

	// Connect two clients
	client1 := NewIRCClient(t, addr)
	defer client1.Close()

	client2 := NewIRCClient(t, addr)
	defer client2.Close()

	// Register client 1
	client1.Send("PASS hunter2")
	client1.Send("NICK user1")
	client1.Send("USER user1 0 * :Test User 1")

	// Register client 2
	client2.Send("PASS hunter2")
	client2.Send("NICK user2")
	client2.Send("USER user2 0 * :Test User 2")

	// Both clients get the full registration burst
	err = client1.ExpectMultiple(t, []string{"001 user1", "002 user1", "003 user1", "004 user1"}, 5*time.Second)
	assert.NoError(t, err, "Should receive the registration burst")

	welcome, err := client2.Expect(t, "Welcome to the IRC Network", 5*time.Second)
	assert.NoError(t, err, "Should receive welcome message")
	assert.True(t, strings.HasPrefix(welcome, ":test.irc.local 001 user2"), "Welcome should come from the configured server name")

	// The MOTD from the config file is part of the burst
	_, err = client2.Expect(t, "integration test server", 1*time.Second)
	assert.NoError(t, err, "Should receive the configured MOTD")

	// A wrong password earns a 464 but keeps the connection open
	client3 := NewIRCClient(t, addr)
	defer client3.Close()

	client3.Send("PASS wrong")
	client3.Send("NICK user3")
	client3.Send("USER user3 0 * :Test User 3")

	denied, err := client3.ExpectCommand(t, "464", 1*time.Second)
	assert.NoError(t, err, "Should receive 464 for a wrong password")
	assert.Equal(t, "Password incorrect", denied.Params[len(denied.Params)-1])

	// Retrying with the right password completes registration
	client3.Send("PASS hunter2")
	_, err = client3.Expect(t, "001 user3", 1*time.Second)
	assert.NoError(t, err, "Should register after retrying the password")

	// Join a channel with both clients
	client1.Send("JOIN #test")
	joinBurst, err := client1.ReadUntil(t, " 366 ", 1*time.Second)
	assert.NoError(t, err, "Should join the channel")
	assert.True(t, linesContain(joinBurst, ":user1!user1@127.0.0.1 JOIN :#test"), "Join should be echoed back")
	assert.True(t, linesContain(joinBurst, "@user1"), "First joiner should hold channel operator status")

	client2.Send("JOIN #test")
	_, err = client2.Expect(t, "JOIN :#test", 1*time.Second)
	assert.NoError(t, err, "Should join the channel")

	// Client 1 sees client 2 arrive
	_, err = client1.Expect(t, ":user2!user2@127.0.0.1 JOIN :#test", 1*time.Second)
	assert.NoError(t, err, "Client 1 should see client 2 join")

	// Send a message from client 1 to the channel
	client1.Send("PRIVMSG #test :Hello, world!")
	relayed, err := client2.Expect(t, "PRIVMSG #test :Hello, world!", 1*time.Second)
	assert.NoError(t, err, "Client 2 should receive the message")
	assert.True(t, strings.HasPrefix(relayed, ":user1!user1@"), "Relay should carry the sender's hostmask")

	// A key-protected channel rejects joins without the key
	client1.Send("JOIN #locked")
	_, err = client1.ReadUntil(t, " 366 ", 1*time.Second)
	assert.NoError(t, err, "Should create the locked channel")

	client1.Send("MODE #locked +k sesame")
	_, err = client1.Expect(t, "MODE #locked +k sesame", 1*time.Second)
	assert.NoError(t, err, "Should set the channel key")

	client2.Send("JOIN #locked")
	rejected, err := client2.ExpectCommand(t, "475", 1*time.Second)
	assert.NoError(t, err, "Should be rejected without the key")
	assert.Equal(t, "Cannot join channel (+k)", rejected.Params[len(rejected.Params)-1])

	client2.Send("JOIN #locked sesame")
	_, err = client2.Expect(t, "JOIN :#locked", 1*time.Second)
	assert.NoError(t, err, "Should join with the key")

	// Let client 1 become an operator
	client1.Send("OPER admin adminpass")
	_, err = client1.Expect(t, "You are now an IRC operator", 1*time.Second)
	assert.NoError(t, err, "Should receive 381")
	_, err = client1.Expect(t, "MODE user1 +o", 1*time.Second)
	assert.NoError(t, err, "Client 1 should become an operator")

	// Let client 1 kick client 2
	client1.Send("KICK #test user2 :Testing kick")

	// Client 2 should receive the kick
	_, err = client2.Expect(t, "KICK #test user2 :Testing kick", 1*time.Second)
	assert.NoError(t, err, "Client 2 should receive the kick")

	// Let client 2 join the channel again
	client2.Send("JOIN #test")
	_, err = client2.Expect(t, "JOIN :#test", 1*time.Second)
	assert.NoError(t, err, "Client 2 should join the channel again")

	// Drain anything still queued on client2's connection
	client2.Conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	for {
		_, err := client2.Reader.ReadString('\n')
		if err != nil {
			client2.Conn.SetReadDeadline(time.Time{})
			break
		}
	}

	// Let client 1 kill client 2
	client1.Send("KILL user2 :Testing kill")

	// First, client2 should receive the KILL message
	killMsg, err := client2.Expect(t, "KILL user2", 1*time.Second)
	assert.NoError(t, err, "Client 2 should receive the KILL message")
	assert.Contains(t, killMsg, "Testing kill", "Kill message should carry the reason")

	// Client 1 shares #test with the victim and hears the quit
	_, err = client1.Expect(t, "QUIT :Killed by user1 (Testing kill)", 1*time.Second)
	assert.NoError(t, err, "Survivors should see the kill as a QUIT")

	// AFTER receiving the kill message, the connection should be closed
	time.Sleep(100 * time.Millisecond)
	client2.Conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	s, err := client2.Reader.ReadString('\n')
	assert.Error(t, err, "Client 2's connection should be closed")
	assert.Equal(t, "", s)
}

// TestEventClientSession runs a callback-driven client against the
// server alongside a raw observer on the same channel.
func TestEventClientSession(t *testing.T) {
	cfg := config.New()
	cfg.ServerName = "events.irc.local"
	cfg.Password = "hunter2"

	addr, stop := startTestServer(t, cfg)
	defer stop()

	// A raw client watches the channel from the inside.
	watcher := NewIRCClient(t, addr)
	defer watcher.Close()

	watcher.Send("PASS hunter2")
	watcher.Send("NICK watcher")
	watcher.Send("USER watcher 0 * :Watcher")
	_, err := watcher.Expect(t, "001 watcher", 5*time.Second)
	require.NoError(t, err, "Should register the watcher")

	watcher.Send("JOIN #events")
	_, err = watcher.ReadUntil(t, " 366 ", 1*time.Second)
	require.NoError(t, err, "Should join the channel")

	// The event client handles PASS/NICK/USER itself. With no MOTD
	// configured, 422 marks the end of the registration burst.
	received := make(chan string, 4)
	conn := &ircevent.Connection{
		Server:      addr,
		Nick:        "carol",
		User:        "carol",
		RealName:    "Carol",
		Password:    "hunter2",
		QuitMessage: "done",
	}
	conn.AddCallback("422", func(e ircmsg.Message) {
		conn.Send("JOIN", "#events")
	})
	conn.AddCallback("PRIVMSG", func(e ircmsg.Message) {
		if len(e.Params) >= 2 {
			received <- e.Params[len(e.Params)-1]
		}
	})

	require.NoError(t, conn.Connect(), "Should connect the event client")
	defer conn.Quit()
	go conn.Loop()

	// The watcher sees the event client arrive.
	_, err = watcher.Expect(t, ":carol!carol@127.0.0.1 JOIN :#events", 5*time.Second)
	assert.NoError(t, err, "Watcher should see the event client join")

	// Channel traffic reaches the event client's callback.
	watcher.Send("PRIVMSG #events :ping from watcher")
	select {
	case text := <-received:
		assert.Equal(t, "ping from watcher", text)
	case <-time.After(5 * time.Second):
		t.Fatal("event client never received the channel message")
	}

	// And its replies reach the watcher with a full hostmask.
	conn.Privmsg("#events", "pong from carol")
	reply, err := watcher.Expect(t, "PRIVMSG #events :pong from carol", 5*time.Second)
	assert.NoError(t, err, "Watcher should receive the event client's message")
	assert.True(t, strings.HasPrefix(reply, ":carol!carol@"), "Relay should carry the event client's hostmask")
}
