// Package presence keeps the last known online status of each user.
package presence

import (
	"sort"
	"time"

	"github.com/haasonsaas/chatlink/internal/protocol"
)

// Status is a user's presence.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusUnknown Status = "unknown"
)

// Record is the last presence event seen for a user.
type Record struct {
	UserID    protocol.UserID `json:"user_id"`
	Status    Status          `json:"status"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Tracker stores presence records for the lifetime of the client. Records
// are only ever replaced by a later explicit event.
//
// Tracker is owned by the client loop and is not safe for concurrent use.
type Tracker struct {
	records map[protocol.UserID]Record
	now     func() time.Time
}

// NewTracker creates an empty tracker. A nil now uses time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		records: make(map[protocol.UserID]Record),
		now:     now,
	}
}

// SetStatus upserts the user's status and returns the stored record.
func (t *Tracker) SetStatus(userID protocol.UserID, status Status) Record {
	rec := Record{UserID: userID, Status: status, UpdatedAt: t.now()}
	t.records[userID] = rec
	return rec
}

// Status returns the last known status, or StatusUnknown.
func (t *Tracker) Status(userID protocol.UserID) Status {
	if rec, ok := t.Get(userID); ok {
		return rec.Status
	}
	return StatusUnknown
}

// Get returns the user's record, if any.
func (t *Tracker) Get(userID protocol.UserID) (Record, bool) {
	rec, ok := t.records[userID]
	return rec, ok
}

// Online returns the users currently believed online, sorted by id.
func (t *Tracker) Online() []protocol.UserID {
	var out []protocol.UserID
	for id, rec := range t.records {
		if rec.Status == StatusOnline {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
