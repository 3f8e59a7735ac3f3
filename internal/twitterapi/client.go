// Package twitterapi pins down the abstract remote microblog API
// collaborator (spec.md §6). The HTTP client itself is explicitly out of
// this core's scope (spec.md §1); only the interface the rest of the
// engine programs against lives here, plus Entry/cursor/rate-limit types.
package twitterapi

import "context"

// Entry is an opaque remote post: a status update, mention, direct
// message, or retweet wrapper (spec.md data model). Entries are
// immutable once constructed.
type Entry struct {
	ID                 string
	Author             Identity
	Text               string
	CreatedAt          int64 // unix seconds.
	Retweeted          *Entry
	InReplyToStatusID  string
}

// Identity is the author information embedded on an Entry.
type Identity struct {
	RemoteID    string
	ScreenName  string
	DisplayName string
}

// RateLimit mirrors the status attributes exposed on the remote client
// (spec.md §6).
type RateLimit struct {
	Limit     int
	Remaining int
	ResetUnix int64
}

// RateLimitError is returned by any call when the remote API signals cap
// exhaustion (HTTP 400 with remaining=0, spec.md §7 kind 3).
type RateLimitError struct {
	RateLimit
}

func (e *RateLimitError) Error() string { return "twitterapi: rate limit exhausted" }

// AuthError is returned when a delegated token fails verification (HTTP
// 401, spec.md §7 kind 4). The session promotes this into a
// "missing delegated registration" signal.
type AuthError struct{ Status int }

func (e *AuthError) Error() string { return "twitterapi: authentication failed" }

// Delegate receives entries as they arrive from a timeline request, in
// arrival (not necessarily chronological) order.
type Delegate func(Entry)

// PageDelegate receives pagination cursor state; "0" means the final
// page, matching the remote API's convention (spec.md §6).
type PageDelegate func(nextCursor, prevCursor string)

// Params bundles the common request parameters (since_id/count/cursor).
type Params struct {
	SinceID string
	Count   int
	Cursor  string
}

// Credentials identifies which account's delegated token signs a request.
type Credentials struct {
	Token  string
	Secret string
}

// Client is the abstract remote microblog API (spec.md §6). Every method
// returns once the corresponding request has completed (or errored);
// entries are delivered through the supplied delegate as they are
// received.
type Client interface {
	HomeTimeline(ctx context.Context, creds Credentials, params Params, delegate Delegate) error
	Mentions(ctx context.Context, creds Credentials, params Params, delegate Delegate) error
	DirectMessages(ctx context.Context, creds Credentials, params Params, delegate Delegate) error
	UserTimeline(ctx context.Context, creds Credentials, user string, params Params, delegate Delegate) error
	ListTimeline(ctx context.Context, creds Credentials, owner, name string, params Params, delegate Delegate) error

	FriendsIDs(ctx context.Context, creds Credentials, screenName string, params Params, page PageDelegate) ([]string, error)
	ListFriends(ctx context.Context, creds Credentials, user string, params Params, page PageDelegate) ([]Identity, error)
	ListMembers(ctx context.Context, creds Credentials, owner, name string, params Params, page PageDelegate) ([]Identity, error)

	FollowUser(ctx context.Context, creds Credentials, nick string) error
	UnfollowUser(ctx context.Context, creds Credentials, nick string) error
	ShowUser(ctx context.Context, creds Credentials, name string) (Identity, error)

	Update(ctx context.Context, creds Credentials, text string, inReplyTo string) (Entry, error)
	Retweet(ctx context.Context, creds Credentials, id string) error
	SendDirectMessage(ctx context.Context, creds Credentials, text, recipient string) error

	VerifyCredentials(ctx context.Context, creds Credentials) (Identity, error)

	RateLimit() RateLimit
}
