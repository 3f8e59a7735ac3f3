// Package channel implements the virtual channel model (spec.md C8):
// mapping a timeline/follow-set pair onto IRC channel members, topic, and
// join semantics, dispatching `!`-commands through an embedded
// dialog.CommandDialog.
package channel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/passerd-irc/passerd/internal/dialog"
	"github.com/passerd-irc/passerd/internal/feed"
	"github.com/passerd-irc/passerd/internal/identity"
	"github.com/passerd-irc/passerd/internal/twitterapi"
)

// Kind distinguishes the five channel flavors spec.md §4.8 defines.
type Kind int

const (
	Home Kind = iota
	Mentions
	List
	User
	Setup
)

const (
	ringSize          = 100 // spec.md REPLY_HISTORY_SIZE
	minLatestPostAge  = 2 * time.Second
	maxFriendPageReqs = 10
	namesChunkSize    = 30
	lengthLimit       = 140
)

// Params names the list/user a List or User channel targets; zero value
// for Home/Mentions/Setup.
type Params struct {
	User      string
	ListOwner string
	ListName  string
}

// Name returns the IRC channel name for this kind (spec.md §4.8/§6).
func (k Kind) Name(p Params) string {
	switch k {
	case Home:
		return "#twitter"
	case Mentions:
		return "#mentions"
	case Setup:
		return "#new-user-setup"
	case User:
		return "#@" + p.User
	case List:
		return fmt.Sprintf("#@%s/%s", p.ListOwner, p.ListName)
	default:
		panic("channel: unknown kind")
	}
}

// RequiresAuth reports whether joining this channel requires an
// authenticated session (every kind except Setup).
func (k Kind) RequiresAuth() bool { return k != Setup }

// Sender is the outbound half of the IRC transport a Channel needs:
// enough to emit chat lines and membership changes without depending on
// the session/connection types directly.
type Sender interface {
	Privmsg(from, target, text string)
	Notice(from, target, text string)
	Join(nick, channel string)
	Kick(channel, nick, by, reason string)
}

// Config holds the per-user formatting/behavior flags (spec.md §6
// "Config keys").
type Config struct {
	RTInline  bool
	Multiline bool
	Careful   bool
}

type recentPost struct {
	author   string // lowercased screen name.
	statusID string
	at       time.Time
}

// Channel is one virtual IRC channel: a set of feeds, a member list, a
// recent-post ring for reply-thread detection, and an embedded
// CommandDialog implementing the `!`-command surface.
type Channel struct {
	Name   string
	Kind   Kind
	Params Params

	BotNick     string
	SessionNick string

	Identities *identity.Cache
	Feeds      []*feed.Feed

	Sender Sender
	API    twitterapi.Client
	Creds  twitterapi.Credentials

	Config Config

	Commands *dialog.CommandDialog

	ring []recentPost

	log *logrus.Entry
}

// New builds a Channel and wires its `!`-command dialog.
func New(kind Kind, params Params, sessionNick, botNick string) *Channel {
	c := &Channel{
		Kind:        kind,
		Params:      params,
		Name:        kind.Name(params),
		SessionNick: sessionNick,
		BotNick:     botNick,
		log:         logrus.WithField("component", "channel"),
	}
	c.Commands = newCommandDialog(c)
	c.Commands.SetCmdPrefix("!")
	c.Commands.SetMessageFunc(func(msg string) {
		c.Sender.Notice(c.BotNick, c.Name, msg)
	})
	return c
}

// recordPost appends to the recent-post ring, evicting the oldest entry
// once full (spec.md REPLY_HISTORY_SIZE).
func (c *Channel) recordPost(author, statusID string, at time.Time) {
	author = strings.ToLower(author)
	if len(c.ring) >= ringSize {
		c.ring = c.ring[1:]
	}
	c.ring = append(c.ring, recentPost{author: author, statusID: statusID, at: at})
}

// latestPostBy returns the most recent ring entry by author, if any,
// scanning back-to-front since the ring is capped at REPLY_HISTORY_SIZE
// entries and this runs once per outgoing PRIVMSG.
func (c *Channel) latestPostBy(author string) (recentPost, bool) {
	author = strings.ToLower(author)
	for i := len(c.ring) - 1; i >= 0; i-- {
		if c.ring[i].author == author {
			return c.ring[i], true
		}
	}
	return recentPost{}, false
}

// Deliver handles one incoming feed entry: caches author identity, rings
// it, and formats+emits it through Sender (spec.md §4.8 "Incoming feed
// entries").
func (c *Channel) Deliver(e twitterapi.Entry) {
	c.Identities.Update(e.Author.RemoteID, e.Author.ScreenName, e.Author.DisplayName)
	c.recordPost(e.Author.ScreenName, e.ID, time.Unix(e.CreatedAt, 0))

	if e.Retweeted != nil {
		c.Identities.Update(e.Retweeted.Author.RemoteID, e.Retweeted.Author.ScreenName, e.Retweeted.Author.DisplayName)
		c.recordPost(e.Retweeted.Author.ScreenName, e.Retweeted.ID, time.Unix(e.Retweeted.CreatedAt, 0))
	}

	for _, line := range c.formatEntry(e) {
		c.Sender.Privmsg(e.Author.ScreenName, c.Name, line)
	}
}

// NamesChunks returns nicks chunked for NAMREPLY batches of 30 (spec.md
// §4.8 "NAMES replies are chunked in batches of 30 nicks").
func NamesChunks(nicks []string) [][]string {
	var out [][]string
	for len(nicks) > 0 {
		n := namesChunkSize
		if n > len(nicks) {
			n = len(nicks)
		}
		out = append(out, nicks[:n])
		nicks = nicks[n:]
	}
	return out
}

// HandleInvite translates an INVITE on the home channel into a follow of
// the invited nick, per spec.md §4.8.
func (c *Channel) HandleInvite(ctx context.Context, nick string) error {
	if c.Kind != Home {
		return fmt.Errorf("channel: INVITE only meaningful on the home channel")
	}
	if err := c.API.FollowUser(ctx, c.Creds, nick); err != nil {
		return err
	}
	c.Sender.Join(nick, c.Name)
	return nil
}

// HandleKick translates a KICK on the home channel into an unfollow of
// the kicked nick, per spec.md §4.8.
func (c *Channel) HandleKick(ctx context.Context, nick, by, reason string) error {
	if c.Kind != Home {
		return fmt.Errorf("channel: KICK only meaningful on the home channel")
	}
	if err := c.API.UnfollowUser(ctx, c.Creds, nick); err != nil {
		return err
	}
	c.Sender.Kick(c.Name, nick, by, reason)
	return nil
}
