package channel

import (
	"context"

	"github.com/passerd-irc/passerd/internal/twitterapi"
)

// Members computes this channel's IRC member list (spec.md §4.8 "Member
// computation"). Home/User channels resolve a follow-set; List channels
// resolve list membership; Mentions/Setup have a fixed membership.
func (c *Channel) Members(ctx context.Context) ([]string, error) {
	switch c.Kind {
	case Mentions, Setup:
		return []string{c.SessionNick, c.BotNick}, nil
	case Home:
		ids, err := c.followSet(ctx, c.SessionNick)
		if err != nil {
			return nil, err
		}
		return append([]string{c.SessionNick, c.BotNick}, ids...), nil
	case User:
		ids, err := c.followSet(ctx, c.Params.User)
		if err != nil {
			return nil, err
		}
		return append([]string{c.SessionNick, c.BotNick}, ids...), nil
	case List:
		members, err := c.listMembers(ctx)
		if err != nil {
			return nil, err
		}
		return append([]string{c.SessionNick, c.BotNick}, members...), nil
	default:
		panic("channel: unknown kind")
	}
}

// followSet fetches screenName's follow-set as a paginated id stream,
// then runs a second pagination pass to backfill identity info for any
// member still uncached, capped at MAX_FRIEND_PAGE_REQS (spec.md §4.8).
func (c *Channel) followSet(ctx context.Context, screenName string) ([]string, error) {
	ids, err := c.API.FriendsIDs(ctx, c.Creds, screenName, twitterapi.Params{Count: 5000}, func(next, prev string) {})
	if err != nil {
		return nil, err
	}

	nicks := make([]string, 0, len(ids))
	unresolved := make(map[string]bool)
	for _, id := range ids {
		if info, ok := c.Identities.LookupByID(id); ok {
			nicks = append(nicks, info.ScreenName)
		} else {
			unresolved[id] = true
			nicks = append(nicks, id) // lazily a CachedTwitterIrcUser keyed by id until resolved.
		}
	}

	if len(unresolved) == 0 {
		return nicks, nil
	}

	cursor := ""
	for page := 0; page < maxFriendPageReqs && len(unresolved) > 0; page++ {
		friends, err := c.API.ListFriends(ctx, c.Creds, screenName, twitterapi.Params{Cursor: cursor, Count: 200}, func(next, prev string) { cursor = next })
		if err != nil {
			return nil, err
		}
		for _, u := range friends {
			if unresolved[u.RemoteID] {
				c.Identities.Update(u.RemoteID, u.ScreenName, u.DisplayName)
				delete(unresolved, u.RemoteID)
			}
		}
		if cursor == "0" || cursor == "" {
			break
		}
	}

	// Re-resolve nicks now that the backing-fill pass ran.
	for i, n := range nicks {
		if info, ok := c.Identities.LookupByID(n); ok {
			nicks[i] = info.ScreenName
		}
	}
	return nicks, nil
}

func (c *Channel) listMembers(ctx context.Context) ([]string, error) {
	members, err := c.API.ListMembers(ctx, c.Creds, c.Params.ListOwner, c.Params.ListName, twitterapi.Params{Count: 200}, func(next, prev string) {})
	if err != nil {
		return nil, err
	}
	nicks := make([]string, 0, len(members))
	for _, u := range members {
		c.Identities.Update(u.RemoteID, u.ScreenName, u.DisplayName)
		nicks = append(nicks, u.ScreenName)
	}
	return nicks, nil
}
