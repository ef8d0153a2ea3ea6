// Package typing aggregates remote typing signals into per-channel sets of
// active typists that expire on their own.
package typing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/chatlink/internal/protocol"
)

// DefaultTTL is how long a typing signal stays visible without a refresh.
const DefaultTTL = 3000 * time.Millisecond

// DefaultSweepInterval is how often expired entries are removed.
const DefaultSweepInterval = time.Second

// Entry is one user typing in one channel.
type Entry struct {
	ChatID    protocol.ChatID
	UserID    protocol.UserID
	Name      string
	ExpiresAt time.Time
}

// Config configures an Aggregator.
type Config struct {
	// TTL is the lifetime of a typing signal.
	// Default: 3s
	TTL time.Duration

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// Aggregator tracks who is typing where. An entry whose ExpiresAt has
// passed is treated as absent even before Sweep removes it.
//
// Aggregator is owned by the client loop and is not safe for concurrent use.
type Aggregator struct {
	ttl     time.Duration
	now     func() time.Time
	entries map[protocol.ChatID][]*Entry
}

// NewAggregator creates an aggregator. A nil config uses the defaults.
func NewAggregator(config *Config) *Aggregator {
	a := &Aggregator{
		ttl:     DefaultTTL,
		now:     time.Now,
		entries: make(map[protocol.ChatID][]*Entry),
	}
	if config != nil {
		if config.TTL > 0 {
			a.ttl = config.TTL
		}
		if config.Now != nil {
			a.now = config.Now
		}
	}
	return a
}

// TTL returns the configured signal lifetime.
func (a *Aggregator) TTL() time.Duration { return a.ttl }

func (a *Aggregator) live(e *Entry, now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

func (a *Aggregator) find(chatID protocol.ChatID, userID protocol.UserID) int {
	for i, e := range a.entries[chatID] {
		if e.UserID == userID {
			return i
		}
	}
	return -1
}

func (a *Aggregator) removeAt(chatID protocol.ChatID, i int) {
	list := a.entries[chatID]
	list = append(list[:i:i], list[i+1:]...)
	if len(list) == 0 {
		delete(a.entries, chatID)
		return
	}
	a.entries[chatID] = list
}

// OnTypingSignal inserts or refreshes the user's entry. It reports whether
// the visible set changed: a refresh of a live entry with the same name is
// not a change.
func (a *Aggregator) OnTypingSignal(chatID protocol.ChatID, userID protocol.UserID, name string) bool {
	now := a.now()
	expires := now.Add(a.ttl)

	if i := a.find(chatID, userID); i >= 0 {
		e := a.entries[chatID][i]
		if a.live(e, now) {
			e.ExpiresAt = expires
			if name != "" && name != e.Name {
				e.Name = name
				return true
			}
			return false
		}
		// Expired but not yet swept: a fresh signal starts a new entry.
		a.removeAt(chatID, i)
	}

	a.entries[chatID] = append(a.entries[chatID], &Entry{
		ChatID:    chatID,
		UserID:    userID,
		Name:      name,
		ExpiresAt: expires,
	})
	return true
}

// OnStopSignal removes the user's entry. It reports whether one existed.
func (a *Aggregator) OnStopSignal(chatID protocol.ChatID, userID protocol.UserID) bool {
	i := a.find(chatID, userID)
	if i < 0 {
		return false
	}
	a.removeAt(chatID, i)
	return true
}

// ClearChat drops every entry for a channel. It reports whether any were
// still live.
func (a *Aggregator) ClearChat(chatID protocol.ChatID) bool {
	now := a.now()
	changed := false
	for _, e := range a.entries[chatID] {
		if a.live(e, now) {
			changed = true
		}
	}
	delete(a.entries, chatID)
	return changed
}

// ClearAll drops every entry and returns the channels that had a live one,
// sorted by id.
func (a *Aggregator) ClearAll() []protocol.ChatID {
	now := a.now()
	var changed []protocol.ChatID
	for chatID, list := range a.entries {
		for _, e := range list {
			if a.live(e, now) {
				changed = append(changed, chatID)
				break
			}
		}
	}
	a.entries = make(map[protocol.ChatID][]*Entry)
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed
}

// ActiveTypers returns the live entries for a channel in insertion order.
func (a *Aggregator) ActiveTypers(chatID protocol.ChatID) []Entry {
	now := a.now()
	var out []Entry
	for _, e := range a.entries[chatID] {
		if a.live(e, now) {
			out = append(out, *e)
		}
	}
	return out
}

// Sweep removes expired entries and returns the channels that lost at
// least one, sorted by id.
func (a *Aggregator) Sweep() []protocol.ChatID {
	now := a.now()
	var changed []protocol.ChatID
	for chatID, list := range a.entries {
		kept := list[:0]
		for _, e := range list {
			if a.live(e, now) {
				kept = append(kept, e)
			}
		}
		if len(kept) == len(list) {
			continue
		}
		for i := len(kept); i < len(list); i++ {
			list[i] = nil
		}
		if len(kept) == 0 {
			delete(a.entries, chatID)
		} else {
			a.entries[chatID] = kept
		}
		changed = append(changed, chatID)
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed
}

// Describe renders a typing indicator line for the given entries.
func Describe(entries []Entry) string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			name = e.UserID.String()
		}
		names = append(names, name)
	}

	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing…"
	case 2:
		return names[0] + " and " + names[1] + " are typing…"
	case 3:
		return fmt.Sprintf("%s, %s and 1 other are typing…", names[0], names[1])
	default:
		return fmt.Sprintf("%s, %s and %d others are typing…", names[0], names[1], len(names)-2)
	}
}
