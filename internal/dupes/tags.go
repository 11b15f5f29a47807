package dupes

import "strings"

// Tags is an ordered tag set. The wire format is a single ", " joined string.
type Tags []string

func ParseTags(raw string) Tags {
	out := Tags{}
	for _, part := range strings.Split(raw, ",") {
		tag := strings.TrimSpace(part)
		if tag == "" || out.Has(tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}

func (t Tags) String() string {
	return strings.Join(t, ", ")
}

func (t Tags) Has(tag string) bool {
	tag = strings.TrimSpace(tag)
	for _, existing := range t {
		if existing == tag {
			return true
		}
	}
	return false
}

// Add returns the union of t and tag. The second result reports whether the
// set changed.
func (t Tags) Add(tag string) (Tags, bool) {
	tag = strings.TrimSpace(tag)
	if tag == "" || t.Has(tag) {
		return append(Tags{}, t...), false
	}
	out := make(Tags, 0, len(t)+1)
	out = append(out, t...)
	return append(out, tag), true
}

func (t Tags) Remove(tag string) (Tags, bool) {
	tag = strings.TrimSpace(tag)
	out := make(Tags, 0, len(t))
	removed := false
	for _, existing := range t {
		if existing == tag {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	return out, removed
}
