package channel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/passerd-irc/passerd/internal/dialog"
	"github.com/passerd-irc/passerd/internal/protoerr"
)

// newCommandDialog builds the `!`-command surface described in spec.md
// §4.8: refresh, posting, retweeting, rate status, config toggles, and
// login/diagnostics.
func newCommandDialog(c *Channel) *dialog.CommandDialog {
	cd := dialog.NewCommandDialog()

	cd.AddCommand("", func(args string) error { return c.cmdRefresh(false) },
		dialog.WithShortHelp("force a refresh"), dialog.WithImportance(dialog.CommonCmd))
	cd.AddCommand("!", func(args string) error { return c.cmdRefresh(true) },
		dialog.WithShortHelp("force a refresh, resetting the watermark"), dialog.WithImportance(dialog.CommonCmd))

	cd.AddCommand("tw", func(args string) error { return c.cmdPost(context.Background(), args) },
		dialog.WithShortHelp("post a status"), dialog.WithImportance(dialog.ImportantCmd))
	for _, alias := range []string{"s", "post", "update"} {
		cd.AddAlias(alias, "tw")
	}

	cd.AddCommand("rt", func(args string) error { return c.cmdRetweet(context.Background(), args) },
		dialog.WithShortHelp("retweet a recent post: !rt nick [fragment]"), dialog.WithImportance(dialog.CommonCmd))

	cd.AddCommand("rate", func(args string) error { return c.cmdRate() },
		dialog.WithShortHelp("show the current API rate-limit snapshot"), dialog.WithImportance(dialog.InterestingCmd))

	cd.AddCommand("be", func(args string) error { return c.cmdBe(args) },
		dialog.WithShortHelp("!be {careful,brave,concise,verbose}"), dialog.WithImportance(dialog.CommonCmd))

	cd.AddCommand("config", func(args string) error { return c.cmdConfig(args) },
		dialog.WithShortHelp("!config {set,show} [opt [value]]"), dialog.WithImportance(dialog.AdvancedCmd))

	cd.AddCommand("login", func(args string) error { return c.cmdLogin(args) },
		dialog.WithShortHelp("!login user password"), dialog.WithImportance(dialog.AdvancedCmd))

	cd.AddCommand("gc", func(args string) error { return c.cmdGC() },
		dialog.WithShortHelp("print diagnostics"), dialog.WithImportance(dialog.DebuggingCmd))

	cd.AddCommand("recent", func(args string) error { return c.cmdRecent() },
		dialog.WithShortHelp("list the recent-post ring"), dialog.WithImportance(dialog.DebuggingCmd))

	return cd
}

// Post posts text directly, bypassing careful-mode gating. Used for CTCP
// ACTION messages, which post regardless of mode (spec.md §9).
func (c *Channel) Post(ctx context.Context, text string) error {
	return c.cmdPost(ctx, text)
}

func (c *Channel) cmdRefresh(resetWatermark bool) error {
	ctx := context.Background()
	for _, f := range c.Feeds {
		if resetWatermark {
			f.ResetWatermark(ctx)
		}
		f.Refresh(ctx)
	}
	return nil
}

// TryPost implements "Outgoing posts" (spec.md §4.8): a PRIVMSG to this
// channel that does not start with "!". In careful mode it is first
// tried as a `!`-command; if that fails to parse, the user is nudged
// toward !tw instead of posting directly.
func (c *Channel) TryPost(ctx context.Context, text string) error {
	if strings.HasPrefix(text, "!") {
		c.Commands.RecvMessage(strings.TrimPrefix(text, "!"))
		return nil
	}

	if c.Config.Careful {
		if handled, _, _ := c.Commands.TryMsg(text); handled {
			return nil
		}
		c.Sender.Notice(c.BotNick, c.Name, "in careful mode; use !tw to post, or !be brave to disable it")
		return nil
	}

	return c.cmdPost(ctx, text)
}

func (c *Channel) cmdPost(ctx context.Context, text string) error {
	if len([]rune(text)) > lengthLimit {
		return protoerr.CannotSendToChan(c.Name, "message too long")
	}

	inReplyTo, rewritten := c.detectReplyTo(text, time.Now())
	_, err := c.API.Update(ctx, c.Creds, rewritten, inReplyTo)
	if err != nil {
		return err
	}
	c.Sender.Notice(c.BotNick, c.Name, "posted!")
	return nil
}

func (c *Channel) cmdRetweet(ctx context.Context, args string) error {
	fields := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if fields[0] == "" {
		return fmt.Errorf("usage: !rt nick [fragment]")
	}
	nick := fields[0]

	post, ok := c.latestPostBy(nick)
	if !ok {
		return fmt.Errorf("no recent post by %s", nick)
	}
	if err := c.API.Retweet(ctx, c.Creds, post.statusID); err != nil {
		return err
	}
	c.Sender.Notice(c.BotNick, c.Name, fmt.Sprintf("retweeted %s's post", nick))
	return nil
}

func (c *Channel) cmdRate() error {
	rl := c.API.RateLimit()
	c.Sender.Notice(c.BotNick, c.Name, fmt.Sprintf("rate limit: %d/%d remaining, resets at unix %d",
		rl.Remaining, rl.Limit, rl.ResetUnix))
	return nil
}

func (c *Channel) cmdBe(args string) error {
	switch strings.TrimSpace(strings.ToLower(args)) {
	case "careful":
		c.Config.Careful = true
	case "brave":
		c.Config.Careful = false
	case "concise":
		c.Config.Multiline = false
	case "verbose":
		c.Config.Multiline = true
	default:
		return fmt.Errorf("usage: !be {careful,brave,concise,verbose}")
	}
	c.Sender.Notice(c.BotNick, c.Name, "ok")
	return nil
}

func (c *Channel) cmdConfig(args string) error {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return fmt.Errorf("usage: !config {set,show} [opt [value]]")
	}
	switch strings.ToLower(fields[0]) {
	case "show":
		c.Sender.Notice(c.BotNick, c.Name, fmt.Sprintf("rt_inline=%v multiline=%v careful=%v",
			c.Config.RTInline, c.Config.Multiline, c.Config.Careful))
		return nil
	case "set":
		if len(fields) != 3 {
			return fmt.Errorf("usage: !config set opt value")
		}
		return c.setConfigValue(fields[1], fields[2])
	default:
		return fmt.Errorf("usage: !config {set,show} [opt [value]]")
	}
}

// truthy config values, per spec.md §6 "Config keys".
var truthyValues = map[string]bool{"true": true, "t": true, "1": true, "y": true, "yes": true, "on": true}

func (c *Channel) setConfigValue(opt, value string) error {
	v := truthyValues[strings.ToLower(value)]
	switch strings.ToLower(opt) {
	case "rt_inline":
		c.Config.RTInline = v
	case "multiline":
		c.Config.Multiline = v
	case "careful":
		c.Config.Careful = v
	default:
		return fmt.Errorf("unknown config option: %s", opt)
	}
	c.Sender.Notice(c.BotNick, c.Name, "ok")
	return nil
}

func (c *Channel) cmdLogin(args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return fmt.Errorf("usage: !login user password")
	}
	// The actual credential check belongs to the session/auth layer; a
	// channel only has the entry point, since it is the one thing with a
	// message channel back to the user inside an established connection.
	c.Sender.Notice(c.BotNick, c.Name, "use /MSG passerd-bot login "+fields[0]+" ****** instead")
	return nil
}

func (c *Channel) cmdGC() error {
	c.Sender.Notice(c.BotNick, c.Name, fmt.Sprintf("channel=%s kind=%d feeds=%d ring=%d", c.Name, c.Kind, len(c.Feeds), len(c.ring)))
	return nil
}

func (c *Channel) cmdRecent() error {
	if len(c.ring) == 0 {
		c.Sender.Notice(c.BotNick, c.Name, "no recent posts cached")
		return nil
	}
	for i := len(c.ring) - 1; i >= 0 && i >= len(c.ring)-10; i-- {
		p := c.ring[i]
		c.Sender.Notice(c.BotNick, c.Name, fmt.Sprintf("%s: %s", p.author, p.statusID))
	}
	return nil
}
