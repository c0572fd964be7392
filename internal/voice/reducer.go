package voice

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"voicetime/internal/models"
	"voicetime/internal/session"
)

// Ledger is the commit side of the duration store.
type Ledger interface {
	EnsureExists(ctx context.Context, userID string) error
	Increment(ctx context.Context, userID string, field models.Field, delta int64) error
}

// EffectKind names a session transition.
type EffectKind int

const (
	EffectStartCall EffectKind = iota + 1
	EffectEndCall
	EffectStartMute
	EffectEndMute
)

func (k EffectKind) String() string {
	switch k {
	case EffectStartCall:
		return "start_call"
	case EffectEndCall:
		return "end_call"
	case EffectStartMute:
		return "start_mute"
	case EffectEndMute:
		return "end_mute"
	}
	return fmt.Sprintf("effect(%d)", int(k))
}

// Effect is a transition applied while handling an event. CallSeconds and
// MutedSeconds are the amounts committed by end effects.
type Effect struct {
	Kind         EffectKind
	UserID       string
	CallSeconds  int64
	MutedSeconds int64
}

// DefaultCommitTimeout bounds each ledger call made by a commit.
const DefaultCommitTimeout = 5 * time.Second

// Reducer turns voice events into session transitions and ledger commits.
// It must be driven by a single goroutine.
type Reducer struct {
	guildID       string
	tracker       *session.Tracker
	ledger        Ledger
	log           *zap.SugaredLogger
	commitTimeout time.Duration
}

// NewReducer creates a reducer for guildID. An empty guildID accepts every guild.
func NewReducer(guildID string, tracker *session.Tracker, ledger Ledger, log *zap.SugaredLogger) *Reducer {
	return &Reducer{guildID: guildID, tracker: tracker, ledger: ledger, log: log, commitTimeout: DefaultCommitTimeout}
}

// SetCommitTimeout changes the per-commit deadline. Zero or less disables it.
func (r *Reducer) SetCommitTimeout(d time.Duration) {
	r.commitTimeout = d
}

// Handle applies ev observed at at. Every user touched by ev is charged
// against the same at. On a commit error processing stops and the effects
// applied so far are returned with the error.
func (r *Reducer) Handle(ctx context.Context, ev Event, at time.Time) ([]Effect, error) {
	if ev.Bot {
		return nil, nil
	}
	if r.guildID != "" && ev.GuildID != r.guildID {
		return nil, nil
	}

	a := &applier{r: r, ctx: ctx, at: at}

	if ev.ChannelChanged() {
		if ev.Disconnected() {
			if err := a.endCall(ev.UserID); err != nil {
				return a.effects, err
			}
		}

		if ev.OldChannelID != "" {
			if ev.OldChannel == nil {
				r.log.Warnw("old channel not resolvable, skipping it", "user_id", ev.UserID, "channel_id", ev.OldChannelID)
			} else if err := a.reconcile(ev.OldChannel.without(ev.UserID)); err != nil {
				return a.effects, err
			}
		}

		if ev.NewChannelID != "" {
			if ev.NewChannel == nil {
				r.log.Warnw("new channel not resolvable, skipping it", "user_id", ev.UserID, "channel_id", ev.NewChannelID)
			} else if err := a.reconcile(ev.NewChannel.with(Member{ID: ev.UserID, SelfMute: ev.NewSelfMute})); err != nil {
				return a.effects, err
			}
		}
	}

	// A mute toggle can arrive in the same update as a channel switch; the
	// call may still be open afterwards, so the toggle is applied either way.
	if ev.NewChannelID != "" && r.tracker.HasCall(ev.UserID) {
		switch {
		case ev.OldSelfMute && !ev.NewSelfMute:
			if err := a.endMute(ev.UserID); err != nil {
				return a.effects, err
			}
		case !ev.OldSelfMute && ev.NewSelfMute:
			a.startMute(ev.UserID)
		}
	}

	return a.effects, nil
}

// Sync reconciles ch as if its membership had just changed. Used to pick up
// calls already in progress when the gateway connects.
func (r *Reducer) Sync(ctx context.Context, ch *Channel, at time.Time) ([]Effect, error) {
	a := &applier{r: r, ctx: ctx, at: at}
	err := a.reconcile(ch)
	return a.effects, err
}

// applier carries the per-event timestamp and collects applied effects.
type applier struct {
	r       *Reducer
	ctx     context.Context
	at      time.Time
	effects []Effect
}

// reconcile opens or closes the session of every human in ch depending on
// whether ch still holds a call.
func (a *applier) reconcile(ch *Channel) error {
	isCall := ch.IsCall()
	a.r.log.Debugw("reconciling channel", "channel_id", ch.ID, "humans", ch.Humans(), "call", isCall)

	for _, m := range ch.Members {
		if m.Bot {
			continue
		}
		if isCall {
			a.startCall(m)
			continue
		}
		if err := a.endCall(m.ID); err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) startCall(m Member) {
	if a.r.tracker.StartCall(m.ID, a.at) {
		a.r.log.Infow("call started", "user_id", m.ID)
		a.effects = append(a.effects, Effect{Kind: EffectStartCall, UserID: m.ID})
	}
	if m.SelfMute && a.r.tracker.StartMute(m.ID, a.at) {
		a.r.log.Infow("mute started with call", "user_id", m.ID)
		a.effects = append(a.effects, Effect{Kind: EffectStartMute, UserID: m.ID})
	}
}

func (a *applier) startMute(userID string) {
	if a.r.tracker.StartMute(userID, a.at) {
		a.r.log.Infow("mute started", "user_id", userID)
		a.effects = append(a.effects, Effect{Kind: EffectStartMute, UserID: userID})
	}
}

// endCall closes userID's call. A user with no open call is left alone.
func (a *applier) endCall(userID string) error {
	if !a.r.tracker.HasCall(userID) {
		return nil
	}
	return a.r.tracker.Settle(func() error {
		call, muted := a.r.tracker.EndCall(userID, a.at)
		a.r.log.Infow("call ended", "user_id", userID, "call_seconds", call, "muted_seconds", muted)
		a.effects = append(a.effects, Effect{Kind: EffectEndCall, UserID: userID, CallSeconds: call, MutedSeconds: muted})

		if err := a.r.commit(a.ctx, userID, models.FieldCall, call); err != nil {
			return err
		}
		return a.r.commit(a.ctx, userID, models.FieldMuted, muted)
	})
}

// endMute closes userID's mute interval, if one is open.
func (a *applier) endMute(userID string) error {
	if s := a.r.tracker.Snapshot(userID); s == nil || s.MuteStartedAt == nil {
		return nil
	}
	return a.r.tracker.Settle(func() error {
		muted := a.r.tracker.EndMute(userID, a.at)
		a.r.log.Infow("mute ended", "user_id", userID, "muted_seconds", muted)
		a.effects = append(a.effects, Effect{Kind: EffectEndMute, UserID: userID, MutedSeconds: muted})
		return a.r.commit(a.ctx, userID, models.FieldMuted, muted)
	})
}

// commit ensures userID's record exists, then adds delta to field.
func (r *Reducer) commit(ctx context.Context, userID string, field models.Field, delta int64) error {
	if r.commitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.commitTimeout)
		defer cancel()
	}
	if err := r.ledger.EnsureExists(ctx, userID); err != nil {
		return fmt.Errorf("commit %s for %s: %w", field, userID, err)
	}
	if err := r.ledger.Increment(ctx, userID, field, delta); err != nil {
		return fmt.Errorf("commit %s for %s: %w", field, userID, err)
	}
	return nil
}
