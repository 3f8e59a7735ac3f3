package twitterapi

import (
	"context"
	"fmt"
)

// Fake is an in-memory Client used by tests elsewhere in this module. It
// is not a teacher-grounded production API client: spec.md §1 explicitly
// puts the real HTTP client for this collaborator out of scope, so the
// only concrete instance this module ships is this in-memory fake.
type Fake struct {
	HomeEntries     []Entry
	MentionsEntries []Entry
	DMEntries       []Entry
	UserEntries     map[string][]Entry
	ListEntries     map[string][]Entry // key: "owner/name"

	Friends   map[string][]Identity // key: screen name of the account.
	Users     map[string]Identity   // key: screen name.
	RateLimitStatus RateLimit

	NextRateLimitErr bool
	Posted           []Entry
	Retweeted        []string
	DirectMessagesSent []string

	nextID int
}

func NewFake() *Fake {
	return &Fake{
		UserEntries: make(map[string][]Entry),
		ListEntries: make(map[string][]Entry),
		Friends:     make(map[string][]Identity),
		Users:       make(map[string]Identity),
	}
}

func (f *Fake) since(entries []Entry, sinceID string) []Entry {
	if sinceID == "" {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		if idGreater(e.ID, sinceID) {
			out = append(out, e)
		}
	}
	return out
}

// idGreater compares two decimal status ids numerically without parsing
// them into an integer type, since remote ids may exceed int64 precision
// on the wire. Shorter decimal strings are always smaller; same-length
// strings compare lexically, which matches decimal order.
func idGreater(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}

func (f *Fake) deliver(entries []Entry, params Params, delegate Delegate) error {
	if f.NextRateLimitErr {
		f.NextRateLimitErr = false
		return &RateLimitError{RateLimit: f.RateLimitStatus}
	}
	for _, e := range f.since(entries, params.SinceID) {
		delegate(e)
	}
	return nil
}

func (f *Fake) HomeTimeline(ctx context.Context, creds Credentials, params Params, delegate Delegate) error {
	return f.deliver(f.HomeEntries, params, delegate)
}

func (f *Fake) Mentions(ctx context.Context, creds Credentials, params Params, delegate Delegate) error {
	return f.deliver(f.MentionsEntries, params, delegate)
}

func (f *Fake) DirectMessages(ctx context.Context, creds Credentials, params Params, delegate Delegate) error {
	return f.deliver(f.DMEntries, params, delegate)
}

func (f *Fake) UserTimeline(ctx context.Context, creds Credentials, user string, params Params, delegate Delegate) error {
	return f.deliver(f.UserEntries[user], params, delegate)
}

func (f *Fake) ListTimeline(ctx context.Context, creds Credentials, owner, name string, params Params, delegate Delegate) error {
	return f.deliver(f.ListEntries[owner+"/"+name], params, delegate)
}

func (f *Fake) FriendsIDs(ctx context.Context, creds Credentials, screenName string, params Params, page PageDelegate) ([]string, error) {
	var ids []string
	for _, u := range f.Friends[screenName] {
		ids = append(ids, u.RemoteID)
	}
	page("0", "0")
	return ids, nil
}

func (f *Fake) ListFriends(ctx context.Context, creds Credentials, user string, params Params, page PageDelegate) ([]Identity, error) {
	page("0", "0")
	return f.Friends[user], nil
}

func (f *Fake) ListMembers(ctx context.Context, creds Credentials, owner, name string, params Params, page PageDelegate) ([]Identity, error) {
	page("0", "0")
	return f.Friends[owner+"/"+name], nil
}

func (f *Fake) FollowUser(ctx context.Context, creds Credentials, nick string) error {
	f.Friends[creds.Token] = append(f.Friends[creds.Token], f.Users[nick])
	return nil
}

func (f *Fake) UnfollowUser(ctx context.Context, creds Credentials, nick string) error {
	friends := f.Friends[creds.Token]
	for i, u := range friends {
		if u.ScreenName == nick {
			f.Friends[creds.Token] = append(friends[:i], friends[i+1:]...)
			break
		}
	}
	return nil
}

func (f *Fake) ShowUser(ctx context.Context, creds Credentials, name string) (Identity, error) {
	u, ok := f.Users[name]
	if !ok {
		return Identity{}, fmt.Errorf("twitterapi: no such user %q", name)
	}
	return u, nil
}

func (f *Fake) Update(ctx context.Context, creds Credentials, text string, inReplyTo string) (Entry, error) {
	f.nextID++
	e := Entry{ID: fmt.Sprintf("%d", f.nextID), Text: text, InReplyToStatusID: inReplyTo}
	f.Posted = append(f.Posted, e)
	return e, nil
}

func (f *Fake) Retweet(ctx context.Context, creds Credentials, id string) error {
	f.Retweeted = append(f.Retweeted, id)
	return nil
}

func (f *Fake) SendDirectMessage(ctx context.Context, creds Credentials, text, recipient string) error {
	f.DirectMessagesSent = append(f.DirectMessagesSent, recipient+": "+text)
	return nil
}

func (f *Fake) VerifyCredentials(ctx context.Context, creds Credentials) (Identity, error) {
	u, ok := f.Users[creds.Token]
	if !ok {
		return Identity{}, &AuthError{Status: 401}
	}
	return u, nil
}

func (f *Fake) RateLimit() RateLimit { return f.RateLimitStatus }
