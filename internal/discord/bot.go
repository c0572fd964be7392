package discord

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"voicetime/internal/clock"
	"voicetime/internal/stats"
	"voicetime/internal/voice"
)

// Bot connects the Discord gateway to the voice worker and serves /stats
type Bot struct {
	session *discordgo.Session
	guildID string
	worker  *voice.Worker
	query   *stats.Query
	clock   clock.Clock
	log     *zap.SugaredLogger

	cooldown   time.Duration
	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter // key: userID
}

// Options configures a Bot
type Options struct {
	Token         string
	GuildID       string
	StatsCooldown time.Duration
}

// New creates a new Discord bot
func New(opts Options, worker *voice.Worker, query *stats.Query, clk clock.Clock, log *zap.SugaredLogger) (*Bot, error) {
	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates

	// Handlers run on the gateway goroutine in delivery order; voice events
	// are only snapshotted there and handed to the worker.
	session.SyncEvents = true
	session.StateEnabled = true
	session.State.TrackVoice = true
	session.State.TrackMembers = true
	session.State.TrackChannels = true

	bot := &Bot{
		session:  session,
		guildID:  opts.GuildID,
		worker:   worker,
		query:    query,
		clock:    clk,
		log:      log,
		cooldown: opts.StatsCooldown,
		limiters: make(map[string]*rate.Limiter),
	}

	session.AddHandler(bot.ready)
	session.AddHandler(bot.guildCreate)
	session.AddHandler(bot.voiceStateUpdate)
	session.AddHandler(bot.interactionCreate)

	return bot, nil
}

// Start opens the gateway connection
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	b.log.Infow("bot is running", "guild_id", b.guildID)
	return nil
}

// Stop closes the gateway connection
func (b *Bot) Stop() error {
	return b.session.Close()
}

// ready registers the slash commands for the allow-listed guild
func (b *Bot) ready(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Infow("logged in", "user", r.User.String())

	appID := r.User.ID
	if r.Application != nil && r.Application.ID != "" {
		appID = r.Application.ID
	}
	go func() {
		if _, err := s.ApplicationCommandBulkOverwrite(appID, b.guildID, commands); err != nil {
			b.log.Errorw("failed to register commands", "guild_id", b.guildID, "error", err)
			return
		}
		b.log.Infow("commands registered", "guild_id", b.guildID, "count", len(commands))
	}()
}

// guildCreate reconciles every voice channel so calls already running when
// the bot connects start accruing
func (b *Bot) guildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.ID != b.guildID {
		return
	}
	at := b.clock.Now()
	for _, ch := range b.voiceChannels(s.State, g.ID) {
		if _, err := b.worker.SubmitSync(*ch, at); err != nil {
			b.log.Warnw("failed to queue channel sync", "channel_id", ch.ID, "error", err)
			return
		}
	}
}

// voiceStateUpdate snapshots both sides of the transition and queues it
func (b *Bot) voiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.GuildID != b.guildID {
		return
	}
	at := b.clock.Now()

	ev, ok := b.buildEvent(s.State, vs)
	if !ok {
		return
	}

	id, err := b.worker.Submit(ev, at)
	if err != nil {
		b.log.Warnw("dropping voice event", "user_id", ev.UserID, "error", err)
		return
	}
	b.log.Debugw("voice event queued", "event_id", id, "user_id", ev.UserID)
}

// interactionCreate dispatches slash commands off the gateway goroutine
func (b *Bot) interactionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	switch i.ApplicationCommandData().Name {
	case statsCommandName:
		go b.handleStats(s, i)
	}
}
