package moderation

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/text/cases"
)

// TemplateChecker enforces the job-post templates in the job channels.
type TemplateChecker struct {
	patterns []*regexp.Regexp
	channels func() []snowflake.ID
}

// NewTemplateChecker compiles patterns. channels lists the channels the
// templates apply to and is consulted on every check, so settings changes are
// picked up without a restart.
func NewTemplateChecker(patterns []string, channels func() []snowflake.ID) (*TemplateChecker, error) {
	tc := &TemplateChecker{channels: channels}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, p, err)
		}
		tc.patterns = append(tc.patterns, re)
	}
	return tc, nil
}

// Applies reports whether channel is a job channel.
func (tc *TemplateChecker) Applies(channel snowflake.ID) bool {
	if tc.channels == nil {
		return false
	}
	return slices.Contains(tc.channels(), channel)
}

// Violates reports whether content posted in channel breaks the templates:
// the channel is a job channel and the case-folded content matches none of
// the patterns.
func (tc *TemplateChecker) Violates(channel snowflake.ID, content string) bool {
	if len(tc.patterns) == 0 || !tc.Applies(channel) {
		return false
	}
	folded := cases.Fold().String(strings.TrimSpace(content))
	for _, re := range tc.patterns {
		if re.MatchString(folded) {
			return false
		}
	}
	return true
}

// DefaultJobTemplates are the stock job-post templates. Content is folded to
// lower case before matching, so the patterns are lower case too.
var DefaultJobTemplates = []string{
	"(?s)```.*\\[hiring\\].*name:.*required:.*portfolio.*description:.*```",
	"(?s)```.*\\[looking for work\\].*role:.*skills:.*portfolio.*```",
	"(?s)```.*\\[recruiting\\].*name:.*project description:.*```",
	"(?s)```.*\\[looking to mentor\\].*interest:.*rates.*```",
	"(?s)```.*\\[looking for a mentor\\].*interest:.*rates.*```",
}
