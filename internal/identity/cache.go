// Package identity implements the remote-id -> (screen_name, display_name)
// cache (spec.md C2). It is process-global: the underlying table is
// shared across all sessions, behind the persistence adapter.
package identity

import (
	"strings"
	"sync"

	cmap "github.com/orcaman/concurrent-map"

	"github.com/passerd-irc/passerd/internal/callback"
)

// Info is one identity row: the remote screen name and display name for a
// remote id.
type Info struct {
	RemoteID    string
	ScreenName  string
	DisplayName string
}

// Change is the event fired on every Update, carrying the prior row state
// (nil if the row didn't previously exist) and the new state. Subscribers
// always see Old *before* the underlying row is mutated (spec.md §5).
type Change struct {
	RemoteID string
	Old      *Info
	New      Info
}

// Cache is the process-global identity table. Safe for concurrent use
// across sessions.
type Cache struct {
	byID cmap.ConcurrentMap

	mu          sync.RWMutex
	byScreename map[string][]string // lowercased screen_name -> remote ids sharing it.

	Changed callback.List
}

// New creates an empty identity cache.
func New() *Cache {
	return &Cache{
		byID:        cmap.New(),
		byScreename: make(map[string][]string),
	}
}

// Update records (or overwrites) the (screen_name, display_name) for a
// remote id. The Changed fanout fires with the row's prior state before
// the row is mutated.
func (c *Cache) Update(remoteID, screenName, displayName string) {
	var old *Info
	if v, ok := c.byID.Get(remoteID); ok {
		prev := v.(Info)
		old = &prev
	}

	_ = c.Changed.Call(Change{RemoteID: remoteID, Old: old, New: Info{
		RemoteID: remoteID, ScreenName: screenName, DisplayName: displayName,
	}})

	c.mu.Lock()
	if old != nil {
		c.removeScreenameIndex(old.ScreenName, remoteID)
	}
	c.addScreenameIndex(screenName, remoteID)
	c.mu.Unlock()

	c.byID.Set(remoteID, Info{RemoteID: remoteID, ScreenName: screenName, DisplayName: displayName})
}

func (c *Cache) addScreenameIndex(screenName, remoteID string) {
	key := strings.ToLower(screenName)
	ids := c.byScreename[key]
	for _, id := range ids {
		if id == remoteID {
			return
		}
	}
	c.byScreename[key] = append(ids, remoteID)
}

func (c *Cache) removeScreenameIndex(screenName, remoteID string) {
	key := strings.ToLower(screenName)
	ids := c.byScreename[key]
	for i, id := range ids {
		if id == remoteID {
			c.byScreename[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(c.byScreename[key]) == 0 {
		delete(c.byScreename, key)
	}
}

// LookupByID returns the cached identity for a remote id, if any.
func (c *Cache) LookupByID(remoteID string) (Info, bool) {
	v, ok := c.byID.Get(remoteID)
	if !ok {
		return Info{}, false
	}
	return v.(Info), true
}

// LookupByScreenName does a case-insensitive screen-name lookup. It
// returns nothing (ok == false) when more than one remote id currently
// shares that screen name, protecting against screen-name-reuse
// collisions (spec.md §4.2).
func (c *Cache) LookupByScreenName(screenName string) (Info, bool) {
	c.mu.RLock()
	ids := c.byScreename[strings.ToLower(screenName)]
	c.mu.RUnlock()

	if len(ids) != 1 {
		return Info{}, false
	}
	return c.LookupByID(ids[0])
}
