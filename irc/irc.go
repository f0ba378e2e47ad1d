/*
Package irc implements a single-threaded Internet Relay Chat (IRC) server
speaking the classic RFC 1459 client protocol.

# Features

## Connection and Registration

  - Full registration sequence (PASS, NICK, USER) with the four-reply
    welcome burst
  - Connection password protection with the PASS command
  - CAP LS/LIST/REQ/END capability negotiation (echo-message)
  - PING/PONG keep-alive
  - Operator authentication with OPER against bcrypt-hashed credentials

## Channel Operations

  - Channel creation and membership (JOIN, PART); the creator becomes the
    channel's sole operator
  - Channel modes: i (invite-only), t (topic protection), k (key),
    l (user limit), o (operator grant)
  - Topic management with TOPIC, invitations with INVITE, removal with
    KICK
  - Listings with NAMES, LIST, and WHO

## Messaging

  - Private and channel messages with PRIVMSG
  - NOTICE with the protocol's silent-failure convention
  - User modes i (invisible) and o (operator); KILL for operators

# Architecture

Everything runs on one event loop: a readiness wait over the transport,
then accepts, reads, command dispatch, and buffered writes, then
teardown of connections marked for disconnect. Server, Client, and
Channel state is touched only from that loop, so the core needs no
locks. The two cross-goroutine surfaces are Stop, which flips an atomic
flag the loop polls, and Snapshot, an immutable view republished after
every active iteration for the admin API.

Messages are parsed with ParseMessage and rendered with BuildNumeric,
BuildError, and BuildCommand, all of which enforce the 512-byte wire
ceiling.

# Usage

	cfg := config.New()
	cfg.Port = 6667
	cfg.Password = "secret"

	tr, err := transport.NewTCP(cfg.Host, cfg.Port)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	srv := irc.NewServer(cfg, tr, metrics.New())
	if err := srv.Run(); err != nil {
		log.Fatalf("server: %v", err)
	}

Call Stop from a signal handler for a graceful shutdown: connected
clients receive a shutdown notice before their connections close.
*/
package irc
