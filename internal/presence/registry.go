// Package presence tracks who is currently listening where, from repeated
// heartbeats rather than held connections.
//
// Every listen cycle refreshes its Key. An entry whose last heartbeat is
// older than the grace period is treated as departed; nobody ever sends a
// leave signal.
package presence

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Key identifies one logical listener. Two connections from the same user
// watching the same set of parents are the same Key, so a reconnect merges
// into the existing entry.
type Key struct {
	UserID int64
	// Scope is the canonical form of the watched parent ids: sorted,
	// deduplicated, comma separated.
	Scope string
}

// NewKey builds a Key with a canonical scope.
func NewKey(userID int64, scopeIDs []int64) Key {
	ids := slices.Clone(scopeIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return Key{UserID: userID, Scope: strings.Join(parts, ",")}
}

// DefaultRetention is how long an unread entry outlives its last heartbeat.
const DefaultRetention = 10 * time.Minute

// Registry holds heartbeat times per group. The zero value is not usable;
// call NewRegistry.
type Registry struct {
	now       func() time.Time
	retention time.Duration

	mu        sync.Mutex
	groups    map[string]map[Key]time.Time
	lastSweep time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithRetention bounds how long an entry may go without a heartbeat before
// Update sweeps it, whether or not its group is ever read. It should be at
// least the longest grace passed to Decay or Counts.
func WithRetention(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.retention = d
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		now:       time.Now,
		retention: DefaultRetention,
		groups:    make(map[string]map[Key]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Update records a heartbeat for each key in group. At most once per
// retention period it also sweeps every group of entries older than that.
func (r *Registry) Update(group string, keys ...Key) {
	if len(keys) == 0 {
		return
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.groups[group]
	if entries == nil {
		entries = make(map[Key]time.Time)
		r.groups[group] = entries
	}
	for _, k := range keys {
		if last, ok := entries[k]; !ok || now.After(last) {
			entries[k] = now
		}
	}
	if now.Sub(r.lastSweep) >= r.retention {
		r.sweepLocked(now)
	}
}

// Decay drops entries of group not refreshed within grace and returns the
// survivors ordered by user id, then scope. An entry exactly grace old
// survives.
func (r *Registry) Decay(group string, grace time.Duration) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()

	live := r.decayLocked(group, grace)
	keys := make([]Key, 0, len(live))
	for k := range live {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		return cmp.Or(cmp.Compare(a.UserID, b.UserID), strings.Compare(a.Scope, b.Scope))
	})
	return keys
}

// Counts is Decay folded into a multiset: how many live scopes each user
// holds in group.
func (r *Registry) Counts(group string, grace time.Duration) map[int64]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[int64]int)
	for k := range r.decayLocked(group, grace) {
		counts[k.UserID]++
	}
	return counts
}

// Forget removes keys from group. With no keys the whole group goes.
func (r *Registry) Forget(group string, keys ...Key) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(keys) == 0 {
		delete(r.groups, group)
		return
	}
	entries := r.groups[group]
	for _, k := range keys {
		delete(entries, k)
	}
	if len(entries) == 0 {
		delete(r.groups, group)
	}
}

// Groups returns the number of groups with at least one entry.
func (r *Registry) Groups() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

// sweepLocked drops entries older than the retention period from every
// group. Caller holds r.mu.
func (r *Registry) sweepLocked(now time.Time) {
	cutoff := now.Add(-r.retention)
	for group, entries := range r.groups {
		for k, last := range entries {
			if last.Before(cutoff) {
				delete(entries, k)
			}
		}
		if len(entries) == 0 {
			delete(r.groups, group)
		}
	}
	r.lastSweep = now
}

// decayLocked prunes group in place. Caller holds r.mu.
func (r *Registry) decayLocked(group string, grace time.Duration) map[Key]time.Time {
	entries := r.groups[group]
	if entries == nil {
		return nil
	}
	cutoff := r.now().Add(-grace)
	for k, last := range entries {
		if last.Before(cutoff) {
			delete(entries, k)
		}
	}
	if len(entries) == 0 {
		delete(r.groups, group)
	}
	return entries
}
