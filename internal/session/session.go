// Package session implements the per-connection session state machine
// (spec.md C9): NICK/PASS/USER registration, the authentication
// dispatch, command routing to C8 channels, and teardown. It is the
// component that owns the socket and drives everything else, grounded
// on original_source/passerd's protocol handler (ircd.py) for the
// control flow and on girc's Client/Conn split for the Go shape.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/passerd-irc/passerd/internal/auth"
	"github.com/passerd-irc/passerd/internal/channel"
	"github.com/passerd-irc/passerd/internal/feed"
	"github.com/passerd-irc/passerd/internal/identity"
	"github.com/passerd-irc/passerd/internal/ircd"
	"github.com/passerd-irc/passerd/internal/oauth1"
	"github.com/passerd-irc/passerd/internal/protoerr"
	"github.com/passerd-irc/passerd/internal/scheduler"
	"github.com/passerd-irc/passerd/internal/store"
	"github.com/passerd-irc/passerd/internal/twitterapi"
)

// State is the registration state (spec.md §4.9).
type State int

const (
	StateRaw State = iota
	StateRegistering
	StateAuthenticated
	StateAnonymous
)

// BasicAuthVerifier checks (nick, password) against the remote service's
// basic-auth endpoint, the second step of _do_auth. Concrete
// implementations are out of this core's scope (spec.md §1); the core
// only depends on this interface.
type BasicAuthVerifier interface {
	VerifyBasicAuth(ctx context.Context, nick, password string) error
}

// ErrMissingOAuthRegistration is returned by doAuth when the account has
// no usable delegated token and must go through #new-user-setup.
type ErrMissingOAuthRegistration struct{ Nick string }

func (e *ErrMissingOAuthRegistration) Error() string {
	return fmt.Sprintf("session: %s has no delegated registration", e.Nick)
}

// Session owns one client connection end to end.
type Session struct {
	Conn       *ircd.Conn
	ServerName string
	BotNick    string

	Store      store.Store
	Identities *identity.Cache
	API        twitterapi.Client
	Transport  oauth1.Transport
	BasicAuth  BasicAuthVerifier

	Scheduler *scheduler.Scheduler

	log *logrus.Entry

	state State
	nick  string
	user  string
	real  string
	pass  string

	account *store.Account
	creds   twitterapi.Credentials

	channels map[string]*channel.Channel
	pairing  *auth.PairingDialog
	dmFeed   *feed.Feed

	closed bool
}

// New builds a Session bound to an already-accepted connection. Callers
// still need to set Store/Identities/API/Transport/BasicAuth before
// calling Run.
func New(conn *ircd.Conn, serverName, botNick string) *Session {
	return &Session{
		Conn:       conn,
		ServerName: serverName,
		BotNick:    botNick,
		Scheduler:  scheduler.New(),
		channels:   make(map[string]*channel.Channel),
		log:        logrus.WithField("component", "session"),
	}
}

// Run drives the read loop until the connection closes or QUIT is
// received. It never returns an error worth reporting further up; by the
// time it returns, Teardown has already run.
func (s *Session) Run() {
	defer s.Teardown()

	for {
		e, err := s.Conn.ReadEvent()
		if err != nil {
			return
		}
		s.dispatch(e)
		if s.closed {
			return
		}
	}
}

// dispatch is the guarded shell of spec.md §7: a protoerr.Reply becomes a
// numeric, anything else is logged and surfaced as a single notice, and
// the connection always survives a non-fatal handler error.
func (s *Session) dispatch(e *ircd.Event) {
	h, ok := commandTable[e.Command]
	if !ok {
		s.numericf(ircd.ERR_UNKNOWNCOMMAND, []string{e.Command}, "Unknown command")
		return
	}

	if err := h(s, e); err != nil {
		s.guardedError(e.Command, err)
	}
}

func (s *Session) guardedError(cmd string, err error) {
	if reply, ok := err.(*protoerr.Reply); ok {
		s.numericf(reply.Numeric, reply.Args, reply.Text)
		return
	}
	s.log.WithError(err).WithField("command", cmd).Warn("command handler failed")
	s.notice(s.ServerName, s.nick, fmt.Sprintf("internal error handling %s: %s", cmd, err))
}

func (s *Session) numericf(numeric string, args []string, trailing string) {
	nick := s.nick
	if nick == "" {
		nick = "*"
	}
	_ = s.Conn.WriteEvent(ircd.NumericReply(s.ServerName, nick, numeric, args, trailing))
}

func (s *Session) notice(from, target, text string) {
	_ = s.Conn.WriteEvent(ircd.Notice(ircd.NewSource(from, "", s.ServerName), target, text))
}

// Privmsg/Notice/Join/Kick implement channel.Sender so a *Session can be
// handed directly to each channel.Channel it owns.
func (s *Session) Privmsg(from, target, text string) {
	_ = s.Conn.WriteEvent(ircd.Privmsg(ircd.NewSource(from, from, s.ServerName), target, text))
}

func (s *Session) Notice(from, target, text string) { s.notice(from, target, text) }

func (s *Session) Join(nick, ch string) {
	_ = s.Conn.WriteEvent(&ircd.Event{Source: ircd.NewSource(nick, nick, s.ServerName), Command: ircd.JOIN, Params: []string{ch}})
}

func (s *Session) Kick(ch, nick, by, reason string) {
	_ = s.Conn.WriteEvent(&ircd.Event{Source: ircd.NewSource(by, by, s.ServerName), Command: ircd.KICK, Params: []string{ch, nick}, Trailing: reason})
}

// Teardown stops every feed this session owns, the scheduler, and closes
// the connection (spec.md §4.9 "Tear-down").
func (s *Session) Teardown() {
	if s.dmFeed != nil {
		s.dmFeed.StopRefreshing()
	}
	for _, c := range s.channels {
		for _, f := range c.Feeds {
			f.StopRefreshing()
		}
	}
	s.Scheduler.Stop()
	_ = s.Conn.Close()
}

var _ channel.Sender = (*Session)(nil)
var _ feed.Store = (store.Store)(nil)
