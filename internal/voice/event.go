package voice

// Member is one occupant of a voice channel at the instant an event was observed.
type Member struct {
	ID       string
	Bot      bool
	SelfMute bool
}

// Channel is a voice channel's membership snapshot.
type Channel struct {
	ID      string
	Members []Member
}

// Humans counts the non-bot members.
func (c *Channel) Humans() int {
	n := 0
	for _, m := range c.Members {
		if !m.Bot {
			n++
		}
	}
	return n
}

// IsCall reports whether more than one human is present.
func (c *Channel) IsCall() bool {
	return c.Humans() > 1
}

// without returns a copy of c minus userID.
func (c *Channel) without(userID string) *Channel {
	out := &Channel{ID: c.ID, Members: make([]Member, 0, len(c.Members))}
	for _, m := range c.Members {
		if m.ID != userID {
			out.Members = append(out.Members, m)
		}
	}
	return out
}

// with returns a copy of c in which m is present exactly once, replacing any
// stale entry for the same id.
func (c *Channel) with(m Member) *Channel {
	out := c.without(m.ID)
	out.Members = append(out.Members, m)
	return out
}

// Event is a voice presence change for one user. An empty channel id means
// "not in a channel". A nil snapshot for a non-empty id means the channel
// could not be resolved.
type Event struct {
	GuildID string
	UserID  string
	Bot     bool

	OldChannelID string
	NewChannelID string
	OldSelfMute  bool
	NewSelfMute  bool

	OldChannel *Channel
	NewChannel *Channel
}

// ChannelChanged reports whether the user joined, left or switched channels.
func (e Event) ChannelChanged() bool {
	return e.OldChannelID != e.NewChannelID
}

// Disconnected reports whether the user left voice entirely.
func (e Event) Disconnected() bool {
	return e.OldChannelID != "" && e.NewChannelID == ""
}
