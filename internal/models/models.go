package models

import (
	"sort"
	"time"
)

// Field names a counter of a DurationRecord
type Field string

const (
	FieldCall  Field = "call"
	FieldMuted Field = "muted"
)

// DurationRecord represents a user's committed voice time in the ledger
type DurationRecord struct {
	UserID       string
	CallSeconds  int64
	MutedSeconds int64
}

// UserSession is a snapshot of a user's open call and mute intervals.
// MuteStartedAt is only set while CallStartedAt is set.
type UserSession struct {
	UserID        string
	CallStartedAt *time.Time
	MuteStartedAt *time.Time
}

// Stat represents a user's voice time as of a reference instant
type Stat struct {
	UserID       string
	CallSeconds  int64
	MutedSeconds int64
}

// SortStats orders stats by call time descending, then muted time ascending,
// then user id so equal totals render in a stable order.
func SortStats(stats []Stat) {
	sort.SliceStable(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.CallSeconds != b.CallSeconds {
			return a.CallSeconds > b.CallSeconds
		}
		if a.MutedSeconds != b.MutedSeconds {
			return a.MutedSeconds < b.MutedSeconds
		}
		return a.UserID < b.UserID
	})
}
