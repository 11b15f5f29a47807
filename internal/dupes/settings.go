package dupes

import "strings"

const (
	DefaultSearchDays = 14
	MaxSearchDays     = 365
	DefaultTagName    = "🔴 DUPLICAT-CANCELED"
	DefaultTagColor   = "red"
)

// Settings is passed into every scan by value; the engine never keeps a copy
// between calls.
type Settings struct {
	SearchDays     int    `json:"searchDays"`
	TagName        string `json:"tagName"`
	TagColor       string `json:"tagColor,omitempty"`
	AutoCancel     bool   `json:"autoCancel"`
	WebhookEnabled bool   `json:"webhookEnabled"`
}

func DefaultSettings() Settings {
	return Settings{
		SearchDays:     DefaultSearchDays,
		TagName:        DefaultTagName,
		TagColor:       DefaultTagColor,
		AutoCancel:     true,
		WebhookEnabled: true,
	}
}

// Normalize clamps out-of-range values instead of rejecting them.
func (s Settings) Normalize() Settings {
	s.SearchDays = ClampSearchDays(s.SearchDays)
	s.TagName = strings.TrimSpace(s.TagName)
	if s.TagName == "" {
		s.TagName = DefaultTagName
	}
	s.TagColor = strings.TrimSpace(s.TagColor)
	if s.TagColor == "" {
		s.TagColor = DefaultTagColor
	}
	return s
}

func ClampSearchDays(days int) int {
	if days < 1 {
		return DefaultSearchDays
	}
	if days > MaxSearchDays {
		return MaxSearchDays
	}
	return days
}
