package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap/zaptest"
)

const testGuild = "g1"

func newTestState(t *testing.T) *discordgo.State {
	t.Helper()
	st := discordgo.NewState()
	err := st.GuildAdd(&discordgo.Guild{
		ID: testGuild,
		Channels: []*discordgo.Channel{
			{ID: "v1", GuildID: testGuild, Type: discordgo.ChannelTypeGuildVoice},
			{ID: "v2", GuildID: testGuild, Type: discordgo.ChannelTypeGuildVoice},
			{ID: "stage", GuildID: testGuild, Type: discordgo.ChannelTypeGuildStageVoice},
			{ID: "t1", GuildID: testGuild, Type: discordgo.ChannelTypeGuildText},
		},
		Members: []*discordgo.Member{
			{GuildID: testGuild, User: &discordgo.User{ID: "alice"}},
			{GuildID: testGuild, User: &discordgo.User{ID: "bob"}},
			{GuildID: testGuild, User: &discordgo.User{ID: "music", Bot: true}},
		},
		VoiceStates: []*discordgo.VoiceState{
			{GuildID: testGuild, UserID: "alice", ChannelID: "v1", SelfMute: true},
			{GuildID: testGuild, UserID: "music", ChannelID: "v1"},
			{GuildID: testGuild, UserID: "bob", ChannelID: "v2"},
		},
	})
	if err != nil {
		t.Fatalf("GuildAdd: %v", err)
	}
	return st
}

func newTestBot(t *testing.T) *Bot {
	t.Helper()
	return &Bot{guildID: testGuild, log: zaptest.NewLogger(t).Sugar()}
}

func TestChannelSnapshot(t *testing.T) {
	st := newTestState(t)

	ch, err := channelSnapshot(st, testGuild, "v1")
	if err != nil {
		t.Fatalf("channelSnapshot: %v", err)
	}
	if len(ch.Members) != 2 {
		t.Fatalf("got %+v, want alice and music", ch.Members)
	}
	for _, m := range ch.Members {
		switch m.ID {
		case "alice":
			if m.Bot || !m.SelfMute {
				t.Errorf("alice = %+v, want human and self-muted", m)
			}
		case "music":
			if !m.Bot {
				t.Error("music should be flagged as a bot from the member cache")
			}
		default:
			t.Errorf("unexpected member %s", m.ID)
		}
	}
	if ch.IsCall() {
		t.Error("one human and a bot is not a call")
	}

	if _, err := channelSnapshot(st, testGuild, "t1"); err != errNotVoice {
		t.Errorf("text channel error = %v, want errNotVoice", err)
	}
	if _, err := channelSnapshot(st, testGuild, "missing"); err == nil {
		t.Error("unknown channel should fail to resolve")
	}
	if ch, err := channelSnapshot(st, testGuild, "stage"); err != nil || len(ch.Members) != 0 {
		t.Errorf("stage channel = %+v, %v; want empty voice channel", ch, err)
	}
}

func TestBuildEvent(t *testing.T) {
	st := newTestState(t)
	b := newTestBot(t)

	// bob moved v1 -> v2 and muted; the state already reflects the new channel
	ev, ok := b.buildEvent(st, &discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{GuildID: testGuild, UserID: "bob", ChannelID: "v2", SelfMute: true},
		BeforeUpdate: &discordgo.VoiceState{GuildID: testGuild, UserID: "bob", ChannelID: "v1"},
	})
	if !ok {
		t.Fatal("event should be kept")
	}
	if ev.OldChannelID != "v1" || ev.NewChannelID != "v2" || ev.OldSelfMute || !ev.NewSelfMute {
		t.Errorf("unexpected transition %+v", ev)
	}
	if ev.Bot {
		t.Error("bob is human")
	}
	if ev.OldChannel == nil || len(ev.OldChannel.Members) != 2 {
		t.Errorf("old snapshot = %+v", ev.OldChannel)
	}
	if ev.NewChannel == nil || len(ev.NewChannel.Members) != 1 || ev.NewChannel.Members[0].ID != "bob" {
		t.Errorf("new snapshot = %+v", ev.NewChannel)
	}
}

func TestBuildEvent_FirstJoinHasNoOldSide(t *testing.T) {
	st := newTestState(t)
	b := newTestBot(t)

	ev, ok := b.buildEvent(st, &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{GuildID: testGuild, UserID: "alice", ChannelID: "v1", SelfMute: true},
	})
	if !ok {
		t.Fatal("event should be kept")
	}
	if ev.OldChannelID != "" || ev.OldChannel != nil {
		t.Errorf("old side should be absent: %+v", ev)
	}
	if ev.NewChannel == nil {
		t.Fatal("new side should resolve")
	}
}

func TestBuildEvent_Unresolvable(t *testing.T) {
	st := newTestState(t)
	b := newTestBot(t)

	ev, ok := b.buildEvent(st, &discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{GuildID: testGuild, UserID: "bob", ChannelID: "v2"},
		BeforeUpdate: &discordgo.VoiceState{GuildID: testGuild, UserID: "bob", ChannelID: "uncached"},
	})
	if !ok {
		t.Fatal("an unresolvable side keeps the event")
	}
	if ev.OldChannelID != "uncached" || ev.OldChannel != nil {
		t.Errorf("old side should be marked unresolvable: %+v", ev)
	}
	if ev.NewChannel == nil {
		t.Error("new side should still resolve")
	}
}

func TestBuildEvent_NonVoiceDropped(t *testing.T) {
	st := newTestState(t)
	b := newTestBot(t)

	_, ok := b.buildEvent(st, &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{GuildID: testGuild, UserID: "bob", ChannelID: "t1"},
	})
	if ok {
		t.Error("events touching a text channel are dropped")
	}
}

func TestBuildEvent_Bot(t *testing.T) {
	st := newTestState(t)
	b := newTestBot(t)

	ev, ok := b.buildEvent(st, &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{GuildID: testGuild, UserID: "music", ChannelID: "v2"},
	})
	if !ok || !ev.Bot {
		t.Errorf("bot event = %+v, %v", ev, ok)
	}
}

func TestVoiceChannels(t *testing.T) {
	st := newTestState(t)
	b := newTestBot(t)

	chans := b.voiceChannels(st, testGuild)
	if len(chans) != 3 {
		t.Fatalf("got %d channels, want v1, v2 and stage", len(chans))
	}
	if b.voiceChannels(st, "unknown") != nil {
		t.Error("unknown guild yields no channels")
	}
}
