package discord

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"voicetime/internal/models"
	"voicetime/pkg/utils"
)

const (
	statsCommandName = "stats"
	statsUserOption  = "user"

	colorAqua = 0x1abc9c
	colorRed  = 0xe74c3c

	// embed description limit
	maxDescriptionLen = 4096
	queryTimeout      = 10 * time.Second
)

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        statsCommandName,
		Description: "shows stats of guild members",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        statsUserOption,
				Description: "user to check stats",
				Required:    false,
			},
		},
	},
}

// handleStats answers /stats with a single-user report or the leaderboard
func (b *Bot) handleStats(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID != b.guildID {
		b.log.Infow("replying: guild is not whitelisted", "guild_id", i.GuildID)
		b.replyError(s, i, "This guild is not whitelisted")
		return
	}

	if !b.allow(invokerID(i)) {
		b.replyError(s, i, "Slow down, try again in a few seconds")
		return
	}

	data := i.ApplicationCommandData()
	userID, isBotUser := targetUser(data)
	if isBotUser {
		b.log.Infow("replying: user param is a bot", "user_id", userID)
		b.replyError(s, i, "Bots' voice time is not tracked")
		return
	}

	at := b.requestTime(i)

	// the query can outlive Discord's 3s acknowledgement window
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		b.log.Errorw("failed to defer stats reply", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	result, err := b.query.Query(ctx, userID, at)
	if err != nil {
		b.log.Errorw("stats query failed", "user_id", userID, "error", err)
		result = nil
		if userID != "" {
			result = []models.Stat{{UserID: userID}}
		}
	}
	b.log.Debugw("stats fetched", "user_id", userID, "size", len(result))

	embed := statsEmbed(userID, result, at)
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
	}); err != nil {
		b.log.Errorw("error in sending embed", "error", err)
	}
}

func (b *Bot) replyError(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{{Description: msg, Color: colorRed}},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.Errorw("failed to reply", "error", err)
	}
}

// allow applies the per-user /stats cooldown. A zero cooldown disables it.
func (b *Bot) allow(userID string) bool {
	if b.cooldown <= 0 {
		return true
	}
	b.limitersMu.Lock()
	l, ok := b.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(b.cooldown), 1)
		b.limiters[userID] = l
	}
	b.limitersMu.Unlock()
	return l.Allow()
}

// requestTime returns when the interaction was created, taken from its
// snowflake id, or the clock when the id does not parse.
func (b *Bot) requestTime(i *discordgo.InteractionCreate) time.Time {
	if t, err := discordgo.SnowflakeTimestamp(i.ID); err == nil {
		return t.UTC()
	}
	return b.clock.Now()
}

func invokerID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// targetUser returns the optional user argument and whether it is a bot.
func targetUser(data discordgo.ApplicationCommandInteractionData) (string, bool) {
	for _, opt := range data.Options {
		if opt.Name != statsUserOption {
			continue
		}
		id, _ := opt.Value.(string)
		if id == "" {
			return "", false
		}
		if data.Resolved != nil {
			if u, ok := data.Resolved.Users[id]; ok && u != nil {
				return id, u.Bot
			}
		}
		return id, false
	}
	return "", false
}

// statsEmbed renders a single-user report when userID is set, the leaderboard otherwise
func statsEmbed(userID string, result []models.Stat, at time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:     "Voice time",
		Color:     colorAqua,
		Timestamp: at.Format(time.RFC3339),
	}

	if userID != "" {
		st := models.Stat{UserID: userID}
		if len(result) > 0 {
			st = result[0]
		}
		embed.Description = utils.FormatUserMention(userID) + "'s voice time"
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Call time", Value: utils.FormatDuration(st.CallSeconds), Inline: true},
			{Name: "Muted time", Value: utils.FormatDuration(st.MutedSeconds), Inline: true},
		}
		return embed
	}

	if len(result) == 0 {
		embed.Description = "No voice time recorded yet."
		return embed
	}

	entries := make([]string, 0, len(result))
	for i, st := range result {
		entries = append(entries, utils.FormatLeaderboardEntry(i+1, st.UserID, st.CallSeconds, st.MutedSeconds))
	}
	embed.Description = utils.TruncateString(strings.Join(entries, "\n\n"), maxDescriptionLen)
	return embed
}
