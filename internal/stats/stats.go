// Package stats reports voice time as of a reference instant by adding the
// live part of any open session to the committed ledger totals.
package stats

import (
	"context"
	"fmt"
	"time"

	"voicetime/internal/models"
	"voicetime/internal/session"
)

// Reader is the read side of the duration store.
type Reader interface {
	Get(ctx context.Context, userID string) (*models.DurationRecord, error)
	ListAll(ctx context.Context) ([]models.DurationRecord, error)
}

type Query struct {
	ledger  Reader
	tracker *session.Tracker
}

func NewQuery(ledger Reader, tracker *session.Tracker) *Query {
	return &Query{ledger: ledger, tracker: tracker}
}

// Query returns ranked stats as of ref. With a userID only that user is
// reported, as zeros when nothing was committed yet; otherwise every ledger
// record is reported.
func (q *Query) Query(ctx context.Context, userID string, ref time.Time) ([]models.Stat, error) {
	var (
		records []models.DurationRecord
		open    map[string]*models.UserSession
	)
	// the ledger and the open sessions are read as of one instant
	err := q.tracker.View(func() error {
		if userID != "" {
			rec, err := q.ledger.Get(ctx, userID)
			if err != nil {
				return fmt.Errorf("failed to read stats for %s: %w", userID, err)
			}
			if rec == nil {
				rec = &models.DurationRecord{UserID: userID}
			}
			records = []models.DurationRecord{*rec}
		} else {
			all, err := q.ledger.ListAll(ctx)
			if err != nil {
				return fmt.Errorf("failed to read stats: %w", err)
			}
			records = all
		}
		open = q.tracker.SnapshotAll()
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats := make([]models.Stat, 0, len(records))
	for _, rec := range records {
		st := models.Stat{UserID: rec.UserID, CallSeconds: rec.CallSeconds, MutedSeconds: rec.MutedSeconds}
		call, muted := session.Elapsed(open[rec.UserID], ref)
		st.CallSeconds += call
		st.MutedSeconds += muted
		stats = append(stats, st)
	}

	models.SortStats(stats)
	return stats, nil
}
