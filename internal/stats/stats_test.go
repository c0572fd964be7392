package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"voicetime/internal/database"
	"voicetime/internal/models"
	"voicetime/internal/session"
	"voicetime/internal/voice"
)

var t0 = time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

func seed(t *testing.T, l *database.MemoryRepository, recs ...models.DurationRecord) {
	t.Helper()
	ctx := context.Background()
	for _, r := range recs {
		if err := l.EnsureExists(ctx, r.UserID); err != nil {
			t.Fatal(err)
		}
		if err := l.Increment(ctx, r.UserID, models.FieldCall, r.CallSeconds); err != nil {
			t.Fatal(err)
		}
		if err := l.Increment(ctx, r.UserID, models.FieldMuted, r.MutedSeconds); err != nil {
			t.Fatal(err)
		}
	}
}

func TestQuery_Ranking(t *testing.T) {
	l := database.NewMemoryRepository()
	seed(t, l,
		models.DurationRecord{UserID: "A", CallSeconds: 100, MutedSeconds: 10},
		models.DurationRecord{UserID: "B", CallSeconds: 100, MutedSeconds: 5},
		models.DurationRecord{UserID: "C", CallSeconds: 200},
	)

	got, err := NewQuery(l, session.NewTracker()).Query(context.Background(), "", t0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := []string{"C", "B", "A"}
	if len(got) != len(want) {
		t.Fatalf("got %d stats, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].UserID != id {
			t.Errorf("rank %d = %s, want %s", i+1, got[i].UserID, id)
		}
	}
}

func TestQuery_UnknownUserIsZero(t *testing.T) {
	got, err := NewQuery(database.NewMemoryRepository(), session.NewTracker()).Query(context.Background(), "ghost", t0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0] != (models.Stat{UserID: "ghost"}) {
		t.Errorf("got %+v, want a single zero stat", got)
	}
}

func TestQuery_AddsLiveDelta(t *testing.T) {
	l := database.NewMemoryRepository()
	seed(t, l, models.DurationRecord{UserID: "alice", CallSeconds: 100, MutedSeconds: 10})

	tr := session.NewTracker()
	tr.StartCall("alice", t0)
	tr.StartMute("alice", t0.Add(30*time.Second))
	q := NewQuery(l, tr)

	ref := t0.Add(90*time.Second + 700*time.Millisecond)
	got, err := q.Query(context.Background(), "alice", ref)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got[0].CallSeconds != 190 || got[0].MutedSeconds != 70 {
		t.Errorf("live = %d/%d, want 190/70", got[0].CallSeconds, got[0].MutedSeconds)
	}

	// committing at ref must not change the reported total
	call, muted := tr.EndCall("alice", ref)
	ctx := context.Background()
	if err := l.Increment(ctx, "alice", models.FieldCall, call); err != nil {
		t.Fatal(err)
	}
	if err := l.Increment(ctx, "alice", models.FieldMuted, muted); err != nil {
		t.Fatal(err)
	}
	after, err := q.Query(ctx, "alice", ref)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if after[0] != got[0] {
		t.Errorf("after commit = %+v, before = %+v", after[0], got[0])
	}
}

func TestQuery_LeaderboardUsesLedgerUsers(t *testing.T) {
	l := database.NewMemoryRepository()
	seed(t, l,
		models.DurationRecord{UserID: "alice", CallSeconds: 50},
		models.DurationRecord{UserID: "bob", CallSeconds: 100},
	)
	tr := session.NewTracker()
	tr.StartCall("alice", t0)
	tr.StartCall("newcomer", t0)

	got, err := NewQuery(l, tr).Query(context.Background(), "", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %+v, want only ledger users", got)
	}
	if got[0].UserID != "alice" || got[0].CallSeconds != 110 {
		t.Errorf("alice should lead with 110, got %+v", got[0])
	}
}

type brokenReader struct{}

var errBroken = errors.New("connection reset")

func (brokenReader) Get(context.Context, string) (*models.DurationRecord, error) { return nil, errBroken }
func (brokenReader) ListAll(context.Context) ([]models.DurationRecord, error)     { return nil, errBroken }

func TestQuery_PropagatesReadErrors(t *testing.T) {
	q := NewQuery(brokenReader{}, session.NewTracker())
	for _, user := range []string{"", "alice"} {
		if _, err := q.Query(context.Background(), user, t0); !errors.Is(err, errBroken) {
			t.Errorf("Query(%q) error = %v, want errBroken", user, err)
		}
	}
}

// interleavedReader starts fn once, right after the first ledger read, and
// gives it a moment to finish before the read returns.
type interleavedReader struct {
	Reader
	fn   func()
	done chan struct{}
	once sync.Once
}

func (r *interleavedReader) Get(ctx context.Context, userID string) (*models.DurationRecord, error) {
	rec, err := r.Reader.Get(ctx, userID)
	r.once.Do(func() {
		go func() {
			r.fn()
			close(r.done)
		}()
		select {
		case <-r.done:
		case <-time.After(50 * time.Millisecond):
		}
	})
	return rec, err
}

func TestQuery_CommitDuringReadIsCountedOnce(t *testing.T) {
	l := database.NewMemoryRepository()
	tr := session.NewTracker()
	r := voice.NewReducer("g", tr, l, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	room := &voice.Channel{ID: "room", Members: []voice.Member{{ID: "alice"}, {ID: "bob"}}}
	if _, err := r.Handle(ctx, voice.Event{GuildID: "g", UserID: "bob", NewChannelID: "room", NewChannel: room}, t0); err != nil {
		t.Fatalf("Handle join: %v", err)
	}

	ref := t0.Add(100 * time.Second)
	// bob leaves, which ends alice's call and commits her 100 seconds
	leave := voice.Event{
		GuildID:      "g",
		UserID:       "bob",
		OldChannelID: "room",
		OldChannel:   &voice.Channel{ID: "room", Members: []voice.Member{{ID: "alice"}}},
	}
	reader := &interleavedReader{
		Reader: l,
		done:   make(chan struct{}),
		fn: func() {
			if _, err := r.Handle(ctx, leave, ref); err != nil {
				t.Errorf("Handle leave: %v", err)
			}
		},
	}
	q := NewQuery(reader, tr)

	during, err := q.Query(ctx, "alice", ref)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	select {
	case <-reader.done:
	case <-time.After(5 * time.Second):
		t.Fatal("commit never finished")
	}
	after, err := q.Query(ctx, "alice", ref)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if during[0].CallSeconds != 100 {
		t.Errorf("query concurrent with commit reported %d, want 100", during[0].CallSeconds)
	}
	if after[0].CallSeconds != 100 {
		t.Errorf("query after commit reported %d, want 100", after[0].CallSeconds)
	}
	if tr.HasCall("alice") {
		t.Error("alice's call should be closed")
	}
}
