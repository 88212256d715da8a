package leaderboard

import (
	"fmt"
	"strings"

	"github.com/disgoorg/snowflake/v2"

	"github.com/tbourn/go-mod-assistant/internal/domain"
)

// Navigation emoji added to every leaderboard message.
const (
	EmojiPrevious = "◀"
	EmojiNext     = "▶"
)

// Direction is a navigation step.
type Direction int

const (
	Next Direction = iota
	Previous
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Previous {
		return "previous"
	}
	return "next"
}

// DirectionForEmoji maps a reaction emoji to a direction.
func DirectionForEmoji(emoji string) (Direction, bool) {
	switch strings.TrimSuffix(emoji, "\uFE0F") {
	case EmojiNext:
		return Next, true
	case EmojiPrevious:
		return Previous, true
	}
	return 0, false
}

// RankedEntry is an entry with its 1-based rank in the frozen ordering.
type RankedEntry struct {
	Rank int `json:"rank"`
	domain.LeaderboardEntry
}

// PageView is one page of a session.
type PageView struct {
	Session   SessionID     `json:"session,omitempty"`
	Owner     snowflake.ID  `json:"owner,omitempty"`
	Page      int           `json:"page"`
	PageCount int           `json:"page_count"`
	PageSize  int           `json:"page_size"`
	Total     int           `json:"total"`
	Entries   []RankedEntry `json:"entries"`
}

// Render formats v as the chat message body.
func Render(v PageView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Leaderboard** (page %d/%d)\n", v.Page+1, v.PageCount)
	if len(v.Entries) == 0 {
		b.WriteString("Nobody has any points yet.")
		return b.String()
	}
	for _, e := range v.Entries {
		fmt.Fprintf(&b, "%d. <@%s>: %d\n", e.Rank, e.UserID, e.Score)
	}
	return strings.TrimRight(b.String(), "\n")
}

// pageOf slices the frozen entries for page p.
func pageOf(entries []domain.LeaderboardEntry, p, size int) []RankedEntry {
	start := p * size
	if start >= len(entries) {
		return []RankedEntry{}
	}
	end := min(start+size, len(entries))
	out := make([]RankedEntry, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, RankedEntry{Rank: i + 1, LeaderboardEntry: entries[i]})
	}
	return out
}

// pageCount is at least 1 so an empty ranking still renders one page.
func pageCount(total, size int) int {
	if total == 0 {
		return 1
	}
	return (total + size - 1) / size
}
