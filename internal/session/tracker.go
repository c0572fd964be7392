// Package session holds the open, not yet committed call and mute intervals
// of users currently in a call. State lives for the process lifetime only.
package session

import (
	"sync"
	"time"

	"voicetime/internal/models"
)

type entry struct {
	callStart time.Time
	muteStart time.Time
	muted     bool
}

// Tracker maps user ids to their open intervals. It is safe for concurrent
// use; every method holds the lock only for the map access.
//
// Closing an interval and committing it to the ledger happen in two steps.
// Settle and View order those steps against readers that combine the ledger
// with SnapshotAll, so a reader sees each interval exactly once.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	settle sync.RWMutex
}

func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*entry)}
}

// Settle runs fn with no View in progress. fn should close intervals and
// commit them; it must not call View.
func (t *Tracker) Settle(fn func() error) error {
	t.settle.Lock()
	defer t.settle.Unlock()
	return fn()
}

// View runs fn with no Settle in progress. Views may run concurrently.
func (t *Tracker) View(fn func() error) error {
	t.settle.RLock()
	defer t.settle.RUnlock()
	return fn()
}

// elapsed returns whole seconds between start and end, floored, never negative.
func elapsed(start, end time.Time) int64 {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

// StartCall opens a call for userID at at. It reports whether a new session
// was opened; an already open call keeps its original start.
func (t *Tracker) StartCall(userID string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[userID]; ok {
		return false
	}
	t.sessions[userID] = &entry{callStart: at}
	return true
}

// EndCall closes userID's call and any mute interval inside it, returning the
// elapsed call and muted seconds. Ending a call that was never started
// returns zeros.
func (t *Tracker) EndCall(userID string, at time.Time) (callSeconds, mutedSeconds int64) {
	t.mu.Lock()
	e, ok := t.sessions[userID]
	delete(t.sessions, userID)
	t.mu.Unlock()

	if !ok {
		return 0, 0
	}
	callSeconds = elapsed(e.callStart, at)
	if e.muted {
		mutedSeconds = elapsed(e.muteStart, at)
	}
	return callSeconds, mutedSeconds
}

// StartMute opens a mute interval for userID. It is a no-op, returning false,
// when the user has no open call or is already muted.
func (t *Tracker) StartMute(userID string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.sessions[userID]
	if !ok || e.muted {
		return false
	}
	e.muted = true
	e.muteStart = at
	return true
}

// EndMute closes userID's mute interval and returns its elapsed seconds; zero
// when no mute interval was open. The call stays open.
func (t *Tracker) EndMute(userID string, at time.Time) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.sessions[userID]
	if !ok || !e.muted {
		return 0
	}
	e.muted = false
	s := elapsed(e.muteStart, at)
	e.muteStart = time.Time{}
	return s
}

// HasCall reports whether userID has an open call.
func (t *Tracker) HasCall(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.sessions[userID]
	return ok
}

// Snapshot returns a copy of userID's open intervals, or nil when none.
func (t *Tracker) Snapshot(userID string) *models.UserSession {
	t.mu.RLock()
	e, ok := t.sessions[userID]
	if !ok {
		t.mu.RUnlock()
		return nil
	}
	cp := *e
	t.mu.RUnlock()
	return toModel(userID, cp)
}

// SnapshotAll returns a copy of every open session keyed by user id.
func (t *Tracker) SnapshotAll() map[string]*models.UserSession {
	t.mu.RLock()
	copies := make(map[string]entry, len(t.sessions))
	for id, e := range t.sessions {
		copies[id] = *e
	}
	t.mu.RUnlock()

	out := make(map[string]*models.UserSession, len(copies))
	for id, e := range copies {
		out[id] = toModel(id, e)
	}
	return out
}

// Len returns the number of open sessions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

func toModel(userID string, e entry) *models.UserSession {
	s := &models.UserSession{UserID: userID}
	callStart := e.callStart
	s.CallStartedAt = &callStart
	if e.muted {
		muteStart := e.muteStart
		s.MuteStartedAt = &muteStart
	}
	return s
}

// Elapsed returns the live call and muted seconds of s as of ref.
func Elapsed(s *models.UserSession, ref time.Time) (callSeconds, mutedSeconds int64) {
	if s == nil {
		return 0, 0
	}
	if s.CallStartedAt != nil {
		callSeconds = elapsed(*s.CallStartedAt, ref)
	}
	if s.MuteStartedAt != nil {
		mutedSeconds = elapsed(*s.MuteStartedAt, ref)
	}
	return callSeconds, mutedSeconds
}
