package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/passerd-irc/passerd/internal/auth"
	"github.com/passerd-irc/passerd/internal/channel"
	"github.com/passerd-irc/passerd/internal/feed"
	"github.com/passerd-irc/passerd/internal/ircd"
	"github.com/passerd-irc/passerd/internal/store"
	"github.com/passerd-irc/passerd/internal/twitterapi"
)

// maybeCompleteRegistration re-evaluates the registration preconditions
// after PASS/NICK/USER and attempts authentication once all three have
// arrived (spec.md §4.9).
func (s *Session) maybeCompleteRegistration(ctx context.Context) error {
	if s.state == StateAuthenticated || s.state == StateAnonymous {
		return nil
	}
	if s.nick == "" || s.user == "" || s.pass == "" {
		return nil
	}

	account, err := s.doAuth(ctx, s.nick, s.pass)
	if err != nil {
		if _, ok := err.(*ErrMissingOAuthRegistration); ok {
			return s.promoteAnonymous(ctx)
		}
		// Fatal authentication failure (spec.md §7 kind 7): drop the
		// connection after the numeric, regardless of the underlying
		// cause (bad basic-auth credentials or an unexpected remote
		// error while verifying the delegated token).
		s.numericf(ircd.ERR_PASSWDMISMATCH, nil, "Password incorrect")
		s.closed = true
		return nil
	}
	return s.completeAuth(ctx, account)
}

// doAuth implements `_do_auth(nick, password)` (spec.md §4.9).
func (s *Session) doAuth(ctx context.Context, nick, password string) (*store.Account, error) {
	account, lookupErr := s.Store.GetUser(ctx, "", nick, false)
	if lookupErr == nil && account.HasLocalPassword() && auth.CheckPassword(account.LocalPasswordHash, password) {
		return account, nil
	}

	if s.BasicAuth == nil || s.BasicAuth.VerifyBasicAuth(ctx, nick, password) != nil {
		return nil, fmt.Errorf("session: basic-auth verification failed for %s", nick)
	}

	if lookupErr != nil || !account.HasDelegatedToken() {
		return nil, &ErrMissingOAuthRegistration{Nick: nick}
	}

	creds := twitterapi.Credentials{Token: account.Token, Secret: account.TokenSecret}
	identity, err := s.API.VerifyCredentials(ctx, creds)
	if err != nil {
		if _, ok := err.(*twitterapi.AuthError); ok {
			return nil, &ErrMissingOAuthRegistration{Nick: nick}
		}
		return nil, err
	}

	account.ScreenName = identity.ScreenName
	if err := s.Store.SaveAccount(ctx, account); err != nil {
		return nil, err
	}
	s.creds = creds
	return account, nil
}

// promoteAnonymous sends the welcome sequence and redirects the user to
// #new-user-setup (spec.md §4.9 "On MissingOAuthRegistration...").
func (s *Session) promoteAnonymous(ctx context.Context) error {
	s.state = StateAnonymous
	s.sendWelcome()

	setup := s.getOrCreateChannel(channel.Setup, channel.Params{})
	s.pairing = auth.NewPairingDialog(ctx, s.Store, 0, s.API, s.Transport)
	s.pairing.OnPaired = func(account *store.Account, creds twitterapi.Credentials) {
		s.account = account
		s.creds = creds
	}
	s.pairing.SetMessageFunc(func(msg string) { s.Notice(s.BotNick, setup.Name, msg) })
	s.autoJoin(setup)

	s.Notice(s.BotNick, s.nick, "You're not paired yet. Join #new-user-setup to link your account.")
	return nil
}

// completeAuth binds the API client, starts the scheduler, and joins the
// always-on channels (spec.md §4.9 step 3 "on success").
func (s *Session) completeAuth(ctx context.Context, account *store.Account) error {
	s.state = StateAuthenticated
	s.account = account
	if account.ScreenName != "" {
		s.nick = account.ScreenName
	}
	s.Scheduler.Start()
	s.sendWelcome()

	home := s.getOrCreateChannel(channel.Home, channel.Params{})
	mentions := s.getOrCreateChannel(channel.Mentions, channel.Params{})
	s.wireChannelFeeds(home, feed.Home, feed.Params{})
	s.wireChannelFeeds(mentions, feed.Mentions, feed.Params{})
	s.autoJoin(home)
	s.autoJoin(mentions)

	s.dmFeed = &feed.Feed{
		Kind: feed.DirectMessages, AccountID: account.ID,
		Creds: s.creds, API: s.API, Store: s.Store, Scheduler: s.Scheduler,
	}
	s.dmFeed.StartRefreshing(ctx)

	return nil
}

func (s *Session) sendWelcome() {
	s.numericf(ircd.RPL_WELCOME, nil, fmt.Sprintf("Welcome to passerd, %s", s.nick))
	s.numericf(ircd.RPL_YOURHOST, nil, fmt.Sprintf("Your host is %s", s.ServerName))
	s.numericf(ircd.RPL_CREATED, nil, "This server has no particular creation date")
	s.numericf(ircd.RPL_MYINFO, []string{s.ServerName, "passerd"}, "")
}

// getOrCreateChannel returns a session-owned Channel, creating and
// wiring it on first reference.
func (s *Session) getOrCreateChannel(kind channel.Kind, params channel.Params) *channel.Channel {
	name := kind.Name(params)
	key := strings.ToLower(name)
	if c, ok := s.channels[key]; ok {
		return c
	}
	c := channel.New(kind, params, s.nick, s.BotNick)
	c.Identities = s.Identities
	c.Sender = s
	c.API = s.API
	c.Creds = s.creds
	s.channels[key] = c
	return c
}

// wireChannelFeeds registers a new Feed delivering into c, and starts it
// refreshing immediately.
func (s *Session) wireChannelFeeds(c *channel.Channel, kind feed.Kind, params feed.Params) {
	f := &feed.Feed{
		Kind: kind, Params: params, AccountID: s.account.ID,
		Creds: s.creds, API: s.API, Store: s.Store, Scheduler: s.Scheduler,
	}
	f.Entries.Add(func(args ...interface{}) error {
		c.Deliver(args[0].(twitterapi.Entry))
		return nil
	})
	c.Feeds = append(c.Feeds, f)
	f.StartRefreshing(context.Background())
}

// wireChannelFeedsForKind maps a JOIN-created channel.Kind onto its
// corresponding feed.Kind; Home/Mentions are wired once at completeAuth
// and Setup never has a feed.
func (s *Session) wireChannelFeedsForKind(c *channel.Channel, kind channel.Kind, params channel.Params) {
	switch kind {
	case channel.User:
		s.wireChannelFeeds(c, feed.UserTimeline, feed.Params{User: params.User})
	case channel.List:
		s.wireChannelFeeds(c, feed.ListTimeline, feed.Params{ListOwner: params.ListOwner, ListName: params.ListName})
	}
}

// autoJoin emits the JOIN broadcast and the NAMES reply for a channel the
// session has just entered.
func (s *Session) autoJoin(c *channel.Channel) {
	s.Join(s.nick, c.Name)
	s.sendNames(context.Background(), c)
}

// sendNames emits chunked 353/366 replies for a channel's member list
// (spec.md §4.8 "NAMES replies are chunked in batches of 30 nicks").
func (s *Session) sendNames(ctx context.Context, c *channel.Channel) {
	members, err := c.Members(ctx)
	if err != nil {
		s.log.WithError(err).WithField("channel", c.Name).Warn("failed to compute channel membership")
		members = []string{s.nick, s.BotNick}
	}
	for _, chunk := range channel.NamesChunks(members) {
		s.numericf(ircd.RPL_NAMREPLY, []string{"=", c.Name}, strings.Join(chunk, " "))
	}
	s.numericf(ircd.RPL_ENDOFNAMES, []string{c.Name}, "End of NAMES list")
}
