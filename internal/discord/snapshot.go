package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"

	"voicetime/internal/voice"
)

var errNotVoice = errors.New("not a voice channel")

func isVoice(ch *discordgo.Channel) bool {
	return ch.Type == discordgo.ChannelTypeGuildVoice || ch.Type == discordgo.ChannelTypeGuildStageVoice
}

// buildEvent turns a gateway update into a voice.Event with membership
// resolved from the state cache. It reports false when the event should be
// dropped because a side is not a voice channel.
func (b *Bot) buildEvent(st *discordgo.State, u *discordgo.VoiceStateUpdate) (voice.Event, bool) {
	ev := voice.Event{
		GuildID:      u.GuildID,
		UserID:       u.UserID,
		NewChannelID: u.ChannelID,
		NewSelfMute:  u.SelfMute,
	}
	if before := u.BeforeUpdate; before != nil {
		ev.OldChannelID = before.ChannelID
		ev.OldSelfMute = before.SelfMute
	}
	ev.Bot = isBot(st, u.GuildID, u.VoiceState)

	if ev.Bot {
		return ev, true
	}

	var ok bool
	if ev.OldChannel, ok = b.resolve(st, u.GuildID, ev.OldChannelID, "old"); !ok {
		return ev, false
	}
	if ev.NewChannel, ok = b.resolve(st, u.GuildID, ev.NewChannelID, "new"); !ok {
		return ev, false
	}
	return ev, true
}

// resolve snapshots channelID. A nil channel with ok=true means the side is
// absent or unresolvable; ok=false means the channel is not a voice channel.
func (b *Bot) resolve(st *discordgo.State, guildID, channelID, side string) (*voice.Channel, bool) {
	if channelID == "" {
		return nil, true
	}
	ch, err := channelSnapshot(st, guildID, channelID)
	if errors.Is(err, errNotVoice) {
		b.log.Debugw("ignoring non-voice channel", "channel_id", channelID, "side", side)
		return nil, false
	}
	if err != nil {
		b.log.Warnw("channel not resolvable", "channel_id", channelID, "side", side, "error", err)
		return nil, true
	}
	return ch, true
}

// channelSnapshot lists the current occupants of channelID from the state cache.
func channelSnapshot(st *discordgo.State, guildID, channelID string) (*voice.Channel, error) {
	ch, err := st.Channel(channelID)
	if err != nil {
		return nil, err
	}
	if !isVoice(ch) {
		return nil, errNotVoice
	}
	states, err := guildVoiceStates(st, guildID)
	if err != nil {
		return nil, err
	}

	out := &voice.Channel{ID: channelID}
	for _, vs := range states {
		if vs.ChannelID != channelID {
			continue
		}
		out.Members = append(out.Members, voice.Member{
			ID:       vs.UserID,
			Bot:      isBot(st, guildID, &vs),
			SelfMute: vs.SelfMute,
		})
	}
	return out, nil
}

// voiceChannels snapshots every voice channel of guildID.
func (b *Bot) voiceChannels(st *discordgo.State, guildID string) []*voice.Channel {
	g, err := st.Guild(guildID)
	if err != nil {
		b.log.Warnw("guild not in state", "guild_id", guildID, "error", err)
		return nil
	}
	st.RLock()
	ids := make([]string, 0, len(g.Channels))
	for _, ch := range g.Channels {
		if isVoice(ch) {
			ids = append(ids, ch.ID)
		}
	}
	st.RUnlock()

	var out []*voice.Channel
	for _, id := range ids {
		ch, err := channelSnapshot(st, guildID, id)
		if err != nil {
			b.log.Warnw("channel not resolvable", "channel_id", id, "error", err)
			continue
		}
		out = append(out, ch)
	}
	return out
}

// guildVoiceStates copies the guild's voice states under the state lock.
func guildVoiceStates(st *discordgo.State, guildID string) ([]discordgo.VoiceState, error) {
	g, err := st.Guild(guildID)
	if err != nil {
		return nil, err
	}
	st.RLock()
	defer st.RUnlock()
	out := make([]discordgo.VoiceState, 0, len(g.VoiceStates))
	for _, vs := range g.VoiceStates {
		out = append(out, *vs)
	}
	return out, nil
}

// isBot reads the bot flag from the voice state's member, falling back to the
// member cache. Unknown users count as human.
func isBot(st *discordgo.State, guildID string, vs *discordgo.VoiceState) bool {
	if vs == nil {
		return false
	}
	if vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	if m, err := st.Member(guildID, vs.UserID); err == nil && m.User != nil {
		return m.User.Bot
	}
	return false
}
