package channel

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/passerd-irc/passerd/internal/twitterapi"
)

const boldCode = "\x02"

// formatEntry renders one feed entry into one or more PRIVMSG lines,
// governed by the RTInline/Multiline config flags (spec.md §4.8
// "Incoming feed entries").
func (c *Channel) formatEntry(e twitterapi.Entry) []string {
	text := e.Text

	if e.Retweeted != nil {
		if c.Config.RTInline {
			text = fmt.Sprintf("%s %s[RT by @%s]%s", e.Retweeted.Text, boldCode, e.Author.ScreenName, boldCode)
		} else {
			text = e.Retweeted.Text
		}
	}

	lines := c.wrapLines(text)

	if e.Retweeted != nil && !c.Config.RTInline {
		lines = append(lines, fmt.Sprintf("(%s retweeted by %s)", e.Retweeted.Author.ScreenName, e.Author.ScreenName))
	}

	return lines
}

// wrapLines applies the Multiline flag: either one PRIVMSG per source
// newline (continuation lines prefixed "[...] "), or newlines collapsed
// to spaces for a single line.
func (c *Channel) wrapLines(text string) []string {
	if !c.Config.Multiline {
		return []string{strings.Join(strings.Fields(strings.ReplaceAll(text, "\n", " ")), " ")}
	}

	parts := strings.Split(text, "\n")
	lines := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = "[...] " + p
		}
		lines = append(lines, p)
	}
	return lines
}

// replyTarget matches a leading "@name", "name:" or "name," token -- but
// not a bare "name " without the "@" (spec.md §4.8 "Outgoing posts").
var replyTarget = regexp.MustCompile(`^@?([A-Za-z0-9_]+)([:,])?`)

// detectReplyTo inspects the leading word of an outgoing post and, if it
// names a user with a post in the ring old enough to be unambiguous (at
// least minLatestPostAge old -- a post that just landed might still be
// mid-conversation and not "the one" the user means), returns the status
// id to reply to and the post text with an "@" prefix ensured.
func (c *Channel) detectReplyTo(text string, now time.Time) (inReplyTo, rewritten string) {
	fields := strings.SplitN(text, " ", 2)
	if len(fields) == 0 {
		return "", text
	}

	first := fields[0]
	hasAt := strings.HasPrefix(first, "@")
	m := replyTarget.FindStringSubmatch(first)
	if m == nil {
		return "", text
	}
	// A bare "name" with neither "@" nor trailing ":"/"," is not a
	// reply-address -- it's just the first word of the post.
	if !hasAt && m[2] == "" {
		return "", text
	}

	name := m[1]
	post, ok := c.latestPostBy(name)
	if !ok || now.Sub(post.at) < minLatestPostAge {
		return "", text
	}

	if !hasAt {
		rest := ""
		if len(fields) > 1 {
			rest = " " + fields[1]
		}
		rewritten = "@" + text[:len(first)] + rest
	} else {
		rewritten = text
	}
	return post.statusID, rewritten
}
