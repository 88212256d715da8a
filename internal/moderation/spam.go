package moderation

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
)

// SpamPolicy configures the spam filter. Thresholds are inclusive; a zero
// threshold disables that check.
type SpamPolicy struct {
	MuteDuration             time.Duration
	ConsecutiveWordThreshold int
	FullMessageWordThreshold int
	IncludeMentions          bool
	MentionsThreshold        int
	IncludeEmotes            bool
	CheckForDefaultEmotes    bool
	EmotesThreshold          int
}

// DefaultSpamPolicy mirrors the stock policy file.
func DefaultSpamPolicy() SpamPolicy {
	return SpamPolicy{
		MuteDuration:             30 * time.Second,
		ConsecutiveWordThreshold: 5,
		FullMessageWordThreshold: 15,
		MentionsThreshold:        8,
		EmotesThreshold:          8,
	}
}

// SpamReason names the check that flagged a message.
type SpamReason string

const (
	SpamNone             SpamReason = ""
	SpamConsecutiveWords SpamReason = "consecutive_words"
	SpamRepeatedWords    SpamReason = "repeated_words"
	SpamMentions         SpamReason = "mentions"
	SpamEmotes           SpamReason = "emotes"
)

var (
	mentionRe     = regexp.MustCompile(`<(?:@[!&]?|#)\d+>`)
	customEmoteRe = regexp.MustCompile(`<a?:\w+:(\d+)>`)
)

// SpamFilter flags messages that look like spam.
type SpamFilter struct {
	policy SpamPolicy
}

// NewSpamFilter returns a filter for p.
func NewSpamFilter(p SpamPolicy) *SpamFilter {
	return &SpamFilter{policy: p}
}

// Policy returns the configured policy.
func (f *SpamFilter) Policy() SpamPolicy { return f.policy }

// Inspect returns the first check content trips, or SpamNone.
func (f *SpamFilter) Inspect(content string) SpamReason {
	p := f.policy

	if p.IncludeMentions && p.MentionsThreshold > 0 &&
		len(mentionRe.FindAllStringIndex(content, -1)) >= p.MentionsThreshold {
		return SpamMentions
	}
	if p.IncludeEmotes && p.EmotesThreshold > 0 && f.emoteFlood(content) {
		return SpamEmotes
	}

	words := strings.Fields(cases.Fold().String(mentionRe.ReplaceAllString(content, " ")))
	if len(words) == 0 {
		return SpamNone
	}

	if p.ConsecutiveWordThreshold > 0 {
		run := 1
		for i := 1; i < len(words); i++ {
			if words[i] == words[i-1] {
				run++
				if run >= p.ConsecutiveWordThreshold {
					return SpamConsecutiveWords
				}
				continue
			}
			run = 1
		}
	}

	if p.FullMessageWordThreshold > 0 {
		counts := make(map[string]int, len(words))
		for _, w := range words {
			counts[w]++
			if counts[w] >= p.FullMessageWordThreshold {
				return SpamRepeatedWords
			}
		}
	}
	return SpamNone
}

// emoteFlood reports whether a single emote appears EmotesThreshold times.
// Custom emotes are keyed by id; default emoji by rune when enabled.
func (f *SpamFilter) emoteFlood(content string) bool {
	counts := make(map[string]int)
	for _, m := range customEmoteRe.FindAllStringSubmatch(content, -1) {
		counts[m[1]]++
		if counts[m[1]] >= f.policy.EmotesThreshold {
			return true
		}
	}
	if !f.policy.CheckForDefaultEmotes {
		return false
	}
	for _, r := range customEmoteRe.ReplaceAllString(content, "") {
		if !unicode.Is(unicode.So, r) {
			continue
		}
		k := string(r)
		counts[k]++
		if counts[k] >= f.policy.EmotesThreshold {
			return true
		}
	}
	return false
}
