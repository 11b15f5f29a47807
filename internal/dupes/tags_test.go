package dupes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTagsTrimsAndDedupes(t *testing.T) {
	tags := ParseTags("vip,  wholesale, vip, , 🔴 DUPLICAT-CANCELED")
	assert.Equal(t, Tags{"vip", "wholesale", "🔴 DUPLICAT-CANCELED"}, tags)
	assert.Equal(t, "vip, wholesale, 🔴 DUPLICAT-CANCELED", tags.String())
	assert.Empty(t, ParseTags(""))
}

func TestTagsAddIsIdempotent(t *testing.T) {
	once, changed := Tags{"vip"}.Add("dup")
	require.True(t, changed)
	twice, changed := once.Add("dup")
	assert.False(t, changed)
	assert.Equal(t, Tags{"vip", "dup"}, twice)
}

func TestTagsRemoveAbsentIsNoop(t *testing.T) {
	tags := Tags{"vip", "dup", "wholesale"}
	removed, changed := tags.Remove("dup")
	require.True(t, changed)
	assert.Equal(t, Tags{"vip", "wholesale"}, removed)

	again, changed := removed.Remove("dup")
	assert.False(t, changed)
	assert.Equal(t, removed, again)
}

func TestAppendNoteIsAdditive(t *testing.T) {
	assert.Equal(t, "first", AppendNote("", "first"))
	assert.Equal(t, "first\n\nsecond", AppendNote("first", "second"))
	assert.Equal(t, "first", AppendNote("first", "  "))
	assert.Len(t, NoteEntries(AppendNote("a\nb", "c\nd")), 2)
}
