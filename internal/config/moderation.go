package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tbourn/go-mod-assistant/internal/moderation"
)

// spamFilterFile is the spamFilter block of the policy file. Pointers tell
// an absent field from an explicit zero.
type spamFilterFile struct {
	MuteDuration             *int  `yaml:"muteDuration"` // seconds
	ConsecutiveWordThreshold *int  `yaml:"consecutiveWordThreshold"`
	FullMessageWordThreshold *int  `yaml:"fullMessageWordThreshold"`
	IncludeMentions          *bool `yaml:"includeMentions"`
	MentionsThreshold        *int  `yaml:"mentionsThreshold"`
	IncludeEmotes            *bool `yaml:"includeEmotes"`
	CheckForDefaultEmotes    *bool `yaml:"checkForDefaultEmotes"`
	EmotesThreshold          *int  `yaml:"emotesThreshold"`
}

type policyFile struct {
	SpamFilter   spamFilterFile `yaml:"spamFilter"`
	JobTemplates []string       `yaml:"jobTemplates"`
}

// ModerationPolicy is the parsed moderation policy file.
type ModerationPolicy struct {
	Spam         moderation.SpamPolicy
	JobTemplates []string
}

// DefaultModerationPolicy is used when no policy file exists.
func DefaultModerationPolicy() ModerationPolicy {
	return ModerationPolicy{
		Spam:         moderation.DefaultSpamPolicy(),
		JobTemplates: append([]string(nil), moderation.DefaultJobTemplates...),
	}
}

// LoadModerationPolicy reads the YAML policy at path. A missing file or an
// empty path yields the defaults; fields absent from the file keep their
// default values.
func LoadModerationPolicy(path string) (ModerationPolicy, error) {
	p := DefaultModerationPolicy()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read moderation policy: %w", err)
	}

	var f policyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return p, fmt.Errorf("parse moderation policy %s: %w", path, err)
	}

	s := &p.Spam
	if v := f.SpamFilter.MuteDuration; v != nil {
		if *v < 0 {
			return p, errors.New("spamFilter.muteDuration must be >= 0")
		}
		s.MuteDuration = time.Duration(*v) * time.Second
	}
	setInt(&s.ConsecutiveWordThreshold, f.SpamFilter.ConsecutiveWordThreshold)
	setInt(&s.FullMessageWordThreshold, f.SpamFilter.FullMessageWordThreshold)
	setInt(&s.MentionsThreshold, f.SpamFilter.MentionsThreshold)
	setInt(&s.EmotesThreshold, f.SpamFilter.EmotesThreshold)
	setBool(&s.IncludeMentions, f.SpamFilter.IncludeMentions)
	setBool(&s.IncludeEmotes, f.SpamFilter.IncludeEmotes)
	setBool(&s.CheckForDefaultEmotes, f.SpamFilter.CheckForDefaultEmotes)

	if f.JobTemplates != nil {
		p.JobTemplates = f.JobTemplates
	}
	return p, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
