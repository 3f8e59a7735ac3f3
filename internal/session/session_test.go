package session

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passerd-irc/passerd/internal/auth"
	"github.com/passerd-irc/passerd/internal/identity"
	"github.com/passerd-irc/passerd/internal/ircd"
	"github.com/passerd-irc/passerd/internal/oauth1"
	"github.com/passerd-irc/passerd/internal/store"
	"github.com/passerd-irc/passerd/internal/twitterapi"
)

type memStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*store.Account
	vars     map[string]string
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[int64]*store.Account), vars: make(map[string]string)}
}

func (s *memStore) GetUser(ctx context.Context, remoteID, screenName string, create bool) (*store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if remoteID != "" && a.RemoteID == remoteID {
			return a, nil
		}
		if screenName != "" && strings.EqualFold(a.ScreenName, screenName) {
			return a, nil
		}
	}
	if !create {
		return nil, store.ErrNotFound
	}
	s.nextID++
	a := &store.Account{ID: s.nextID, RemoteID: remoteID, ScreenName: screenName}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *memStore) SaveAccount(ctx context.Context, a *store.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
	return nil
}

func (s *memStore) SetVar(ctx context.Context, accountID int64, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
	return nil
}

func (s *memStore) GetVar(ctx context.Context, accountID int64, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[name]
	return v, ok, nil
}

func (s *memStore) Commit() error                         { return nil }
func (s *memStore) CreateTables(ctx context.Context) error { return nil }
func (s *memStore) Close() error                           { return nil }

type fakeBasicAuth struct{ ok bool }

func (f fakeBasicAuth) VerifyBasicAuth(ctx context.Context, nick, password string) error {
	if f.ok {
		return nil
	}
	return errors.New("bad credentials")
}

type fakeTransport struct{}

func (fakeTransport) RequestToken() (oauth1.Token, error) { return oauth1.Token{}, nil }
func (fakeTransport) AuthorizeURL(oauth1.Token) string     { return "https://example.com/authorize" }
func (fakeTransport) AccessToken(oauth1.Token, string) (oauth1.Token, error) {
	return oauth1.Token{}, nil
}

type fakeAddr struct{}

func (fakeAddr) Network() string { return "fake" }
func (fakeAddr) String() string  { return "fake" }

// fakeConn is a minimal net.Conn whose Write appends to an in-memory
// buffer and whose Read is never exercised, since tests drive the
// session via dispatch() directly rather than through the read loop.
type fakeConn struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (c *fakeConn) Read(b []byte) (int, error)          { return 0, io.EOF }
func (c *fakeConn) Write(b []byte) (int, error)         { c.mu.Lock(); defer c.mu.Unlock(); return c.buf.Write(b) }
func (c *fakeConn) Close() error                        { return nil }
func (c *fakeConn) LocalAddr() net.Addr                 { return fakeAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr                { return fakeAddr{} }
func (c *fakeConn) SetDeadline(t time.Time) error       { return nil }
func (c *fakeConn) SetReadDeadline(t time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error  { return nil }

func (c *fakeConn) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw := strings.TrimRight(c.buf.String(), "\r\n")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\r\n")
}

func newTestSession(basicAuthOK bool) (*Session, *fakeConn, *memStore, *twitterapi.Fake) {
	conn := &fakeConn{}
	st := newMemStore()
	api := twitterapi.NewFake()
	s := New(ircd.NewConn(conn), "passerd.local", "passerd-bot")
	s.Store = st
	s.Identities = identity.New()
	s.API = api
	s.Transport = fakeTransport{}
	s.BasicAuth = fakeBasicAuth{ok: basicAuthOK}
	return s, conn, st, api
}

func send(s *Session, line string) {
	s.dispatch(ircd.ParseEvent(line))
}

func TestAnonymousRegistrationRedirectsToSetup(t *testing.T) {
	s, conn, _, _ := newTestSession(false)

	send(s, "NICK newuser")
	send(s, "USER newuser 0 * :New User")

	assert.Equal(t, StateAnonymous, s.state)
	assert.Contains(t, s.channels, "#new-user-setup")

	joined := strings.Join(conn.lines(), "\n")
	assert.Contains(t, joined, " 001 ")
	assert.Contains(t, joined, "#new-user-setup")
}

func TestLocalPasswordAuthenticates(t *testing.T) {
	s, _, st, _ := newTestSession(false)

	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	st.accounts[1] = &store.Account{ID: 1, ScreenName: "alice", LocalPasswordHash: hash}

	send(s, "PASS hunter2")
	send(s, "NICK alice")
	send(s, "USER alice 0 * :Alice")

	assert.Equal(t, StateAuthenticated, s.state)
	assert.Contains(t, s.channels, "#twitter")
	assert.Contains(t, s.channels, "#mentions")
	assert.NotNil(t, s.dmFeed)
}

func TestBadPasswordDropsConnection(t *testing.T) {
	s, conn, _, _ := newTestSession(false)

	send(s, "PASS wrongpass")
	send(s, "NICK bob")
	send(s, "USER bob 0 * :Bob")

	assert.True(t, s.closed, "expected the connection to be marked closed on fatal auth failure")
	assert.Contains(t, strings.Join(conn.lines(), "\n"), " 464 ")
}

func TestMissingOAuthRegistrationDuringEarlyAuthRedirects(t *testing.T) {
	s, _, st, _ := newTestSession(true)
	st.accounts[1] = &store.Account{ID: 1, ScreenName: "carol"} // no delegated token

	send(s, "PASS goodpass")
	send(s, "NICK carol")
	send(s, "USER carol 0 * :Carol")

	assert.Equal(t, StateAnonymous, s.state, "expected a redirect to setup")
	assert.Contains(t, s.channels, "#new-user-setup")
}

func authenticatedSession(t *testing.T) (*Session, *fakeConn, *twitterapi.Fake) {
	t.Helper()
	s, conn, st, api := newTestSession(false)
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	st.accounts[1] = &store.Account{ID: 1, ScreenName: "alice", LocalPasswordHash: hash}

	send(s, "PASS hunter2")
	send(s, "NICK alice")
	send(s, "USER alice 0 * :Alice")
	require.Equal(t, StateAuthenticated, s.state, "setup failed")
	return s, conn, api
}

func TestJoinUserChannelWiresFeed(t *testing.T) {
	s, conn, _ := authenticatedSession(t)

	send(s, "JOIN #@bob")

	c, ok := s.channels["#@bob"]
	require.True(t, ok, "expected #@bob to have been created")
	assert.Len(t, c.Feeds, 1)
	assert.Contains(t, strings.Join(conn.lines(), "\n"), "366")
}

func TestModeBanListReturnsTerminatorOnly(t *testing.T) {
	s, conn, _ := authenticatedSession(t)

	send(s, "MODE #twitter b")

	joined := strings.Join(conn.lines(), "\n")
	assert.Contains(t, joined, " 368 ")
	assert.NotContains(t, joined, " 367 ")
}

func TestPrivmsgBraveModePostsDirectly(t *testing.T) {
	s, _, api := authenticatedSession(t)

	send(s, "PRIVMSG #twitter :just chatting")

	require.Len(t, api.Posted, 1)
	assert.Equal(t, "just chatting", api.Posted[0].Text)
}

func TestPrivmsgActionBypassesCarefulMode(t *testing.T) {
	s, _, api := authenticatedSession(t)
	s.channels["#twitter"].Config.Careful = true

	send(s, "PRIVMSG #twitter :\x01ACTION waves\x01")

	require.Len(t, api.Posted, 1, "expected a direct post of the action text despite careful mode")
	assert.Equal(t, "waves", api.Posted[0].Text)
}

func TestWhoisEmitsAwayWithDisplayNameBeforeEndOfWhois(t *testing.T) {
	s, conn, _ := authenticatedSession(t)
	s.Identities.Update("remote-1", "bob", "Bob Example")

	send(s, "WHOIS bob")

	lines := conn.lines()
	var awayIdx, endIdx int = -1, -1
	for i, l := range lines {
		if strings.Contains(l, " 301 ") {
			awayIdx = i
			assert.Contains(t, l, "Bob Example")
		}
		if strings.Contains(l, " 318 ") {
			endIdx = i
		}
	}
	require.NotEqual(t, -1, awayIdx, "expected a 301 AWAY reply")
	require.NotEqual(t, -1, endIdx, "expected a 318 ENDOFWHOIS reply")
	assert.True(t, awayIdx < endIdx, "301 must precede 318")
}

func TestLoginMessageToBotAuthenticatesAnonymousSession(t *testing.T) {
	s, _, st, _ := newTestSession(false)
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	st.accounts[1] = &store.Account{ID: 1, ScreenName: "dave", LocalPasswordHash: hash}

	send(s, "NICK dave")
	send(s, "USER dave 0 * :Dave")
	require.Equal(t, StateAnonymous, s.state, "expected anonymous before login")

	send(s, "PRIVMSG passerd-bot :login dave hunter2")

	assert.Equal(t, StateAuthenticated, s.state)
}
