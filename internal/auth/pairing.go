// Package auth implements the #new-user-setup pairing flow (spec.md
// C10): a scripted dialog.Dialog that walks a new user through the
// OAuth1 handshake and an optional local password, grounded on
// original_source/passerd's NewUserDialog (ircd.py).
package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	"github.com/passerd-irc/passerd/internal/dialog"
	"github.com/passerd-irc/passerd/internal/oauth1"
	"github.com/passerd-irc/passerd/internal/store"
	"github.com/passerd-irc/passerd/internal/twitterapi"
)

const generatedPasswordLength = 16

const generatedPasswordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// HashPassword hashes a local password for storage.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(h), err
}

// CheckPassword reports whether password matches a stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func generatePassword() (string, error) {
	b := make([]byte, generatedPasswordLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(generatedPasswordAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = generatedPasswordAlphabet[n.Int64()]
	}
	return string(b), nil
}

// PairingDialog drives the #new-user-setup scripted conversation.
type PairingDialog struct {
	dialog.Dialog

	ctx       context.Context
	Store     store.Store
	API       twitterapi.Client
	Transport oauth1.Transport

	AccountID int64

	// OnPaired fires once a delegated token has verified successfully,
	// letting the caller (the session) rename its nick to the resolved
	// screen name and offer the account as authenticated going forward.
	OnPaired func(account *store.Account, creds twitterapi.Credentials)

	requestToken oauth1.Token
	verified     twitterapi.Identity
	account      *store.Account
}

// NewPairingDialog builds a dialog that starts itself on the first
// message received, matching original_source's
// `UserSetupChannel.wait_for('.*', begin)` wiring.
func NewPairingDialog(ctx context.Context, st store.Store, accountID int64, api twitterapi.Client, transport oauth1.Transport) *PairingDialog {
	d := &PairingDialog{ctx: ctx, Store: st, AccountID: accountID, API: api, Transport: transport}
	d.WaitFor(`.*`, func(msg string, m []string) error {
		d.welcome()
		return nil
	})
	return d
}

// a stage pattern, paired with its handler.
type stagePattern struct {
	expr string
	fn   func(msg string, m []string) error
}

// stage resets the pattern list to the given patterns, registered in
// ascending precedence (later entries win ties), then adds the restart
// utterance last so it always takes precedence over every other
// pattern at every stage (spec.md §4.10), including catch-alls like
// `.+` that would otherwise swallow the literal word "restart".
func (d *PairingDialog) stage(patterns ...stagePattern) {
	d.ClearPatterns()
	for _, p := range patterns {
		d.WaitFor(p.expr, p.fn)
	}
	d.WaitFor(`^restart$`, func(msg string, m []string) error {
		d.welcome()
		return nil
	})
}

func (d *PairingDialog) welcome() {
	d.Message("Welcome!")
	d.Message("On this channel, we will set up an account for you.")
	d.Message("We will use the OAuth authentication method on the remote service,")
	d.Message("so you don't even need to give me your account password. :)")
	d.Message("Please tell me when you are ready, and we'll start the process")
	d.Message("Are you ready? (yes/no)")
	d.stage(
		stagePattern{`^n|no`, func(msg string, m []string) error {
			d.Message("no problem...")
			return nil
		}},
		stagePattern{`^(y|yes|ok|start)$`, func(msg string, m []string) error {
			d.start()
			return nil
		}},
	)
}

func (d *PairingDialog) start() {
	d.Message("OK, let's do it:")
	d.Message("(Note: at any moment, you can type 'restart', and the process will be restarted)")

	rt, err := d.Transport.RequestToken()
	if err != nil {
		d.Message(fmt.Sprintf("Error while trying to get a token: %s", err))
		d.askRestart()
		return
	}
	d.requestToken = rt
	d.showURL()
}

func (d *PairingDialog) askRestart() {
	d.Message("Do you want to restart?")
	d.stage(stagePattern{`^y|yes`, func(msg string, m []string) error {
		d.welcome()
		return nil
	}})
}

func (d *PairingDialog) showURL() {
	d.Message("Now, go to: " + d.Transport.AuthorizeURL(d.requestToken))
	d.Message("After authorizing, you'll get a PIN")
	d.Message("Please paste the PIN here")
	d.stage(stagePattern{`[0-9][0-9][0-9]+`, func(msg string, m []string) error {
		d.gotPIN(m[0])
		return nil
	}})
}

func (d *PairingDialog) gotPIN(pin string) {
	d.Message("Got it. Thanks!")
	token, err := d.Transport.AccessToken(d.requestToken, pin)
	if err != nil {
		d.Message(fmt.Sprintf("The PIN didn't work. I got this error: %s", err))
		d.askRestart()
		return
	}
	d.probeToken(token)
}

func (d *PairingDialog) probeToken(token oauth1.Token) {
	d.Message("Now I will check if I can access your account...")
	creds := twitterapi.Credentials{Token: token.Key, Secret: token.Secret}
	identity, err := d.API.VerifyCredentials(d.ctx, creds)
	if err != nil {
		d.Message("The authentication didn't work. Sorry  :(")
		d.Message(fmt.Sprintf("Error message: %s", err))
		d.askRestart()
		return
	}

	d.Message("Authentication worked!")
	d.verified = identity

	account, err := d.Store.GetUser(d.ctx, identity.RemoteID, identity.ScreenName, true)
	if err != nil {
		d.Message(fmt.Sprintf("Internal error while saving your account: %s", err))
		d.askRestart()
		return
	}
	account.Token = token.Key
	account.TokenSecret = token.Secret
	if err := d.Store.SaveAccount(d.ctx, account); err != nil {
		d.Message(fmt.Sprintf("Internal error while saving your account: %s", err))
		d.askRestart()
		return
	}
	d.account = account

	d.Message(fmt.Sprintf("Welcome to passerd, %s", identity.ScreenName))
	d.Message("Passerd can now post to your account, but you still need to authenticate when connecting.")
	d.offerPasswordOption(creds)
}

func (d *PairingDialog) offerPasswordOption(creds twitterapi.Credentials) {
	d.Message("You have two authentication options:")
	d.Message("1) Local password (recommended): set a password just for passerd, then you'll never need to reveal your remote-service password")
	d.Message("2) Remote-service password: just use your normal password when connecting to passerd")
	d.Message("Which option do you want to use? (local/remote)")

	d.stage(
		stagePattern{`^remote|^2$`, func(msg string, m []string) error {
			d.instructReconnect(creds, "")
			return nil
		}},
		stagePattern{`^loc|^1$`, func(msg string, m []string) error {
			d.setupPassword(creds)
			return nil
		}},
	)
}

func (d *PairingDialog) setupPassword(creds twitterapi.Credentials) {
	d.Message("OK. Send your password as a message to the channel, and I will set it")
	d.Message("Alternatively, type 'generate' and I will create a random one for you")
	d.Message("What will be your password?")

	d.stage(
		stagePattern{`.+`, func(msg string, m []string) error {
			return d.confirmShortPassword(creds, msg)
		}},
		stagePattern{`^generate$`, func(msg string, m []string) error {
			pw, err := generatePassword()
			if err != nil {
				return err
			}
			return d.setPassword(creds, pw)
		}},
	)
}

func (d *PairingDialog) confirmShortPassword(creds twitterapi.Credentials, pw string) error {
	if len(pw) >= 6 {
		return d.setPassword(creds, pw)
	}
	d.Message("This is a short password! Are you sure you want to use it?")
	d.stage(
		stagePattern{`.*`, func(msg string, m []string) error {
			d.setupPassword(creds)
			return nil
		}},
		stagePattern{`^y|yes`, func(msg string, m []string) error {
			return d.setPassword(creds, pw)
		}},
	)
	return nil
}

func (d *PairingDialog) setPassword(creds twitterapi.Credentials, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	d.account.LocalPasswordHash = hash
	if err := d.Store.SaveAccount(d.ctx, d.account); err != nil {
		return err
	}
	d.Message("Password set to: " + password)
	d.instructReconnect(creds, password)
	return nil
}

func (d *PairingDialog) instructReconnect(creds twitterapi.Credentials, localPassword string) {
	if localPassword != "" {
		d.Message(fmt.Sprintf("Just reconnect to passerd using your passerd password: %s", localPassword))
	} else {
		d.Message("Just reconnect to passerd using your remote-service password,")
	}
	d.Message(fmt.Sprintf("and your account name (%s) as nickname", d.verified.ScreenName))

	if d.OnPaired != nil {
		d.OnPaired(d.account, creds)
	}

	d.stage(stagePattern{`.*`, func(msg string, m []string) error {
		d.Message(fmt.Sprintf("Just reconnect to passerd using your account name (%s) as nickname", d.verified.ScreenName))
		return nil
	}})
}

// Login handles "/MSG passerd-bot login nick password" (spec.md §4.10),
// used outside the pairing flow proper.
func Login(ctx context.Context, st store.Store, nick, password string) (*store.Account, bool) {
	a, err := st.GetUser(ctx, "", nick, false)
	if err != nil {
		return nil, false
	}
	if !a.HasLocalPassword() || !CheckPassword(a.LocalPasswordHash, password) {
		return nil, false
	}
	return a, true
}
