package utils

import (
	"fmt"
	"strings"
)

var digitNames = [...]string{
	"zero", "one", "two", "three", "four",
	"five", "six", "seven", "eight", "nine",
}

// FormatUserMention formats a user ID as a Discord nickname mention
func FormatUserMention(userID string) string {
	return fmt.Sprintf("<@!%s>", userID)
}

// RankEmojis renders a rank as Discord digit emojis, e.g. 12 -> ":one::two:"
func RankEmojis(rank int) string {
	if rank < 0 {
		rank = 0
	}
	var b strings.Builder
	for _, c := range fmt.Sprint(rank) {
		b.WriteString(":" + digitNames[c-'0'] + ":")
	}
	return b.String()
}

// FormatLeaderboardEntry formats one leaderboard block with rank, user, call and muted durations
func FormatLeaderboardEntry(rank int, userID string, callSeconds, mutedSeconds int64) string {
	return fmt.Sprintf("**%s %s**\nCall time: `%s`\nMuted time: `%s`",
		RankEmojis(rank), FormatUserMention(userID), FormatDuration(callSeconds), FormatDuration(mutedSeconds))
}

// TruncateString truncates a string to max length and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
