// Package feed implements the per-timeline incremental feed (spec.md C4):
// pulling entries from the remote API against a persisted watermark and
// delivering them to subscribers in chronological order.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/passerd-irc/passerd/internal/callback"
	"github.com/passerd-irc/passerd/internal/scheduler"
	"github.com/passerd-irc/passerd/internal/store"
	"github.com/passerd-irc/passerd/internal/throttle"
	"github.com/passerd-irc/passerd/internal/twitterapi"
)

// QueryCount is the fixed "count" parameter used on every refresh
// (spec.md §6).
const QueryCount = 100

// Kind identifies which remote timeline a Feed pulls from.
type Kind int

const (
	Home Kind = iota
	Mentions
	DirectMessages
	UserTimeline
	ListTimeline
)

// Store is the narrow interface a Feed needs back into the persistence
// adapter: just enough to read/write its own watermark (spec.md §9 "break
// cyclic references by giving feeds only a narrow interface").
type Store interface {
	GetVar(ctx context.Context, accountID int64, name string) (string, bool, error)
	SetVar(ctx context.Context, accountID int64, name, value string) error
}

var _ Store = (store.Store)(nil)

// Feed pulls one timeline incrementally against a persisted watermark.
type Feed struct {
	Kind   Kind
	Params Params // list owner/name or user, depending on Kind.

	AccountID int64
	Creds     twitterapi.Credentials
	API       twitterapi.Client
	Store     Store

	// Entries fires once per dispatched entry, in ascending id order.
	Entries callback.List
	// Throttler gates how raw errors are surfaced; see spec.md §4.3/§4.4.
	Throttler *throttle.Throttler

	Scheduler *scheduler.Scheduler
	handle    *scheduler.Handle

	loading   bool
	watermark string
	loaded    bool

	log *logrus.Entry
}

// Params names which list/user a ListTimeline/UserTimeline feed targets.
type Params struct {
	User       string // UserTimeline
	ListOwner  string // ListTimeline
	ListName   string // ListTimeline
}

// WatermarkKey returns the persisted variable name for this feed's
// watermark (spec.md §6 "Watermark keys").
func (f *Feed) WatermarkKey() string {
	switch f.Kind {
	case Home:
		return "home_last_status_id"
	case Mentions:
		return "mentions_last_status_id"
	case DirectMessages:
		return "direct_messages_last_id"
	case UserTimeline:
		return fmt.Sprintf("last_status_id_@%s", f.Params.User)
	case ListTimeline:
		return fmt.Sprintf("last_status_id_@%s/%s", f.Params.ListOwner, f.Params.ListName)
	default:
		panic("feed: unknown kind")
	}
}

func (f *Feed) watermarkValue(ctx context.Context) string {
	if !f.loaded {
		if v, ok, _ := f.Store.GetVar(ctx, f.AccountID, f.WatermarkKey()); ok {
			f.watermark = v
		}
		f.loaded = true
	}
	return f.watermark
}

func (f *Feed) updateWatermark(ctx context.Context, id string) {
	if f.watermark == "" || idGreater(id, f.watermark) {
		f.watermark = id
		_ = f.Store.SetVar(ctx, f.AccountID, f.WatermarkKey(), id)
	}
}

// ResetWatermark clears both the in-memory and persisted watermark, so the
// next Refresh re-pulls the timeline from the remote API's own default
// (no since_id), per the "!!" forced-refresh command (spec.md §4.8).
func (f *Feed) ResetWatermark(ctx context.Context) {
	f.watermark = ""
	f.loaded = true
	_ = f.Store.SetVar(ctx, f.AccountID, f.WatermarkKey(), "")
}

// idGreater compares two decimal status ids numerically without parsing
// them into an integer type, since remote ids may exceed int64 precision
// on the wire (spec.md §6). Shorter decimal strings are always smaller;
// same-length strings compare lexically, which matches decimal order.
func idGreater(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}

// fetch dispatches to the right API call for this feed's kind.
func (f *Feed) fetch(ctx context.Context, params twitterapi.Params, delegate twitterapi.Delegate) error {
	switch f.Kind {
	case Home:
		return f.API.HomeTimeline(ctx, f.Creds, params, delegate)
	case Mentions:
		return f.API.Mentions(ctx, f.Creds, params, delegate)
	case DirectMessages:
		return f.API.DirectMessages(ctx, f.Creds, params, delegate)
	case UserTimeline:
		return f.API.UserTimeline(ctx, f.Creds, f.Params.User, params, delegate)
	case ListTimeline:
		return f.API.ListTimeline(ctx, f.Creds, f.Params.ListOwner, f.Params.ListName, params, delegate)
	default:
		panic("feed: unknown kind")
	}
}

// Refresh implements the refresh() contract of spec.md §4.4. It is
// idempotent: if a refresh is already in flight it does nothing.
func (f *Feed) Refresh(ctx context.Context) {
	if f.loading {
		return
	}
	f.loading = true
	defer func() { f.loading = false }()

	since := f.watermarkValue(ctx)
	params := twitterapi.Params{SinceID: since, Count: QueryCount}

	// Entries are prepended as they arrive, then dispatched in reverse
	// (i.e. chronological/ascending-id) order, per spec.md §4.4 step 3.
	var received []twitterapi.Entry
	err := f.fetch(ctx, params, func(e twitterapi.Entry) {
		received = append([]twitterapi.Entry{e}, received...)
	})

	if err != nil {
		f.handleError(ctx, err)
		f.reschedule()
		return
	}

	for _, e := range received {
		_ = f.Entries.Call(e)
		f.updateWatermark(ctx, e.ID)
	}

	if f.Throttler != nil {
		f.Throttler.Ok()
	}
	f.reschedule()
}

func (f *Feed) handleError(ctx context.Context, err error) {
	if rl, ok := err.(*twitterapi.RateLimitError); ok {
		if f.Scheduler != nil {
			f.Scheduler.WaitRateLimit(time.Unix(rl.ResetUnix, 0))
		}
	}

	if f.log != nil {
		f.log.WithError(err).Warn("feed refresh failed")
	}
	if f.Throttler != nil {
		f.Throttler.Error(err.Error())
	}
}

func (f *Feed) reschedule() {
	if f.handle != nil {
		f.handle.Resched()
	}
}

// StartRefreshing registers this feed with its scheduler and kicks off
// an immediate refresh, matching passerd's "cheat" of not waiting for the
// first natural tick (feeds.py start_refreshing).
func (f *Feed) StartRefreshing(ctx context.Context) {
	if f.handle != nil {
		return
	}
	if f.Scheduler != nil {
		f.handle = f.Scheduler.Register(func() { f.Refresh(ctx) })
	}
	f.Refresh(ctx)
}

// StopRefreshing destroys the scheduler handle so this feed is never
// invoked again.
func (f *Feed) StopRefreshing() {
	if f.handle != nil {
		f.handle.Destroy()
		f.handle = nil
	}
}
