package bot

import (
	"strings"
	"unicode"

	"github.com/disgoorg/snowflake/v2"
)

// Command is a parsed "<prefix><name> args..." message.
type Command struct {
	Name string   // lower case
	Args []string // whitespace-separated arguments
	Raw  string   // everything after the name, trimmed
}

// ParseCommand splits content into a command when it starts with prefix.
func ParseCommand(prefix, content string) (Command, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return Command{}, false
	}
	body := content[len(prefix):]
	if body == "" || unicode.IsSpace(rune(body[0])) {
		return Command{}, false
	}
	name, raw := body, ""
	if i := strings.IndexFunc(body, unicode.IsSpace); i >= 0 {
		name, raw = body[:i], body[i:]
	}
	raw = strings.TrimSpace(raw)
	return Command{Name: strings.ToLower(name), Args: strings.Fields(raw), Raw: raw}, true
}

// Tail returns Raw with its first n arguments removed. Line breaks inside
// the remainder are kept.
func (c Command) Tail(n int) string {
	s := c.Raw
	for i := 0; i < n; i++ {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		j := strings.IndexFunc(s, unicode.IsSpace)
		if j < 0 {
			return ""
		}
		s = s[j:]
	}
	return strings.TrimSpace(s)
}

// ParseUserID accepts a user mention (<@id> or <@!id>) or a raw id.
func ParseUserID(s string) (snowflake.ID, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<@") && strings.HasSuffix(s, ">") {
		s = strings.TrimPrefix(s[2:len(s)-1], "!")
	}
	id, err := snowflake.Parse(s)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// Mention renders a user mention.
func Mention(id snowflake.ID) string { return "<@" + id.String() + ">" }
