package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/passerd-irc/passerd/internal/oauth1"
	"github.com/passerd-irc/passerd/internal/store"
	"github.com/passerd-irc/passerd/internal/twitterapi"
)

type memAccountStore struct {
	nextID   int64
	accounts map[int64]*store.Account
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{accounts: make(map[int64]*store.Account)}
}

func (s *memAccountStore) GetUser(ctx context.Context, remoteID, screenName string, create bool) (*store.Account, error) {
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

func (s *memAccountStore) SaveAccount(ctx context.Context, a *store.Account) error {
	s.accounts[a.ID] = a
	return nil
}
func (s *memAccountStore) SetVar(ctx context.Context, accountID int64, name, value string) error {
	return nil
}
func (s *memAccountStore) GetVar(ctx context.Context, accountID int64, name string) (string, bool, error) {
	return "", false, nil
}
func (s *memAccountStore) Commit() error                        { return nil }
func (s *memAccountStore) CreateTables(ctx context.Context) error { return nil }
func (s *memAccountStore) Close() error                          { return nil }

type fakeTransport struct {
	reqToken     oauth1.Token
	wantVerifier string
	accessToken  oauth1.Token
	failAccess   bool
}

func (t *fakeTransport) RequestToken() (oauth1.Token, error) { return t.reqToken, nil }
func (t *fakeTransport) AuthorizeURL(rt oauth1.Token) string { return "https://example.com/authorize?oauth_token=" + rt.Key }
func (t *fakeTransport) AccessToken(rt oauth1.Token, verifier string) (oauth1.Token, error) {
	if t.failAccess || verifier != t.wantVerifier {
		return oauth1.Token{}, errors.New("invalid verifier")
	}
	return t.accessToken, nil
}

func newTestDialog(st *memAccountStore, api *twitterapi.Fake, tr *fakeTransport) (*PairingDialog, *[]string) {
	d := NewPairingDialog(context.Background(), st, 0, api, tr)
	var msgs []string
	d.SetMessageFunc(func(msg string) { msgs = append(msgs, msg) })
	return d, &msgs
}

func TestPairingHappyPathSetsLocalPassword(t *testing.T) {
	st := newMemAccountStore()
	api := twitterapi.NewFake()
	api.Users["tok-123"] = twitterapi.Identity{RemoteID: "9", ScreenName: "alice"}
	tr := &fakeTransport{
		reqToken:     oauth1.Token{Key: "rt", Secret: "rts"},
		wantVerifier: "123456",
		accessToken:  oauth1.Token{Key: "tok-123", Secret: "toksecret"},
	}

	var paired *store.Account
	d, msgs := newTestDialog(st, api, tr)
	d.OnPaired = func(a *store.Account, creds twitterapi.Credentials) { paired = a }

	d.RecvMessage("hi")
	d.RecvMessage("yes")
	d.RecvMessage("123456")
	d.RecvMessage("local")
	d.RecvMessage("hunter22")

	if paired == nil {
		t.Fatal("OnPaired was never called")
	}
	if paired.ScreenName != "alice" {
		t.Errorf("ScreenName = %q, want alice", paired.ScreenName)
	}
	if !paired.HasLocalPassword() {
		t.Error("expected a local password hash to be set")
	}
	if !CheckPassword(paired.LocalPasswordHash, "hunter22") {
		t.Error("stored hash does not verify against the chosen password")
	}

	joined := strings.Join(*msgs, "\n")
	if !strings.Contains(joined, "Password set to: hunter22") {
		t.Errorf("transcript missing password confirmation:\n%s", joined)
	}
}

func TestPairingBadPINAsksRestart(t *testing.T) {
	st := newMemAccountStore()
	api := twitterapi.NewFake()
	tr := &fakeTransport{reqToken: oauth1.Token{Key: "rt"}, wantVerifier: "999999"}

	d, msgs := newTestDialog(st, api, tr)
	d.RecvMessage("hi")
	d.RecvMessage("yes")
	d.RecvMessage("000000")

	joined := strings.Join(*msgs, "\n")
	if !strings.Contains(joined, "didn't work") {
		t.Errorf("expected a PIN failure message, got:\n%s", joined)
	}
	if !strings.Contains(joined, "restart") {
		t.Errorf("expected askRestart prompt, got:\n%s", joined)
	}
}

func TestPairingRestartRewindsAtAnyStage(t *testing.T) {
	st := newMemAccountStore()
	api := twitterapi.NewFake()
	tr := &fakeTransport{reqToken: oauth1.Token{Key: "rt"}, wantVerifier: "123456"}

	d, msgs := newTestDialog(st, api, tr)
	d.RecvMessage("hi")
	d.RecvMessage("yes")
	before := len(*msgs)
	d.RecvMessage("restart")

	if len(*msgs) <= before {
		t.Fatal("restart should re-trigger the welcome message")
	}
	if !strings.Contains((*msgs)[len(*msgs)-1], "ready") {
		t.Errorf("expected restart to land back on the welcome prompt, got %q", (*msgs)[len(*msgs)-1])
	}
}

func TestPairingRemoteOptionSkipsLocalPassword(t *testing.T) {
	st := newMemAccountStore()
	api := twitterapi.NewFake()
	api.Users["tok-1"] = twitterapi.Identity{RemoteID: "1", ScreenName: "bob"}
	tr := &fakeTransport{
		reqToken:     oauth1.Token{Key: "rt"},
		wantVerifier: "111222",
		accessToken:  oauth1.Token{Key: "tok-1", Secret: "sec"},
	}

	var paired *store.Account
	d, _ := newTestDialog(st, api, tr)
	d.OnPaired = func(a *store.Account, creds twitterapi.Credentials) { paired = a }

	d.RecvMessage("hi")
	d.RecvMessage("yes")
	d.RecvMessage("111222")
	d.RecvMessage("remote")

	if paired == nil {
		t.Fatal("OnPaired was never called")
	}
	if paired.HasLocalPassword() {
		t.Error("choosing the remote-password option should not set a local password")
	}
}
