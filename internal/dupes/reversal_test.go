package dupes

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverseRoundTrip(t *testing.T) {
	store := newScenarioAStore()
	ctx := context.Background()
	settings := DefaultSettings()

	result := (&Remediator{Mutator: store, Now: fixedNow}).Apply(ctx, settings, TriggerBatch, scenarioADecision(t, store))
	require.True(t, result.Complete())
	require.True(t, store.get("1001").Canceled())

	reverser := &Reverser{Mutator: store, Now: fixedNow}
	require.NoError(t, reverser.Reverse(ctx, settings, "1001", true))

	order := store.get("1001")
	assert.False(t, order.Canceled())
	assert.False(t, order.Tags.Has(settings.TagName))
	assert.True(t, order.Tags.Has("vip"))

	entries := NoteEntries(order.Note)
	require.Len(t, entries, 3)
	assert.True(t, strings.HasPrefix(entries[1], "MANUAL DUPLICATE DETECTION"))
	assert.True(t, strings.HasPrefix(entries[2], ReopenNoteMarker))
	assert.Contains(t, entries[2], "Considered legitimate order, not a duplicate.")
}

func TestReverseKeepTagLeavesTags(t *testing.T) {
	store := newScenarioAStore()
	order := store.get("1001")
	order.Tags = Tags{DefaultTagName}
	store.orders["1001"] = order

	require.NoError(t, (&Reverser{Mutator: store}).Reverse(context.Background(), DefaultSettings(), "1001", false))
	assert.Equal(t, Tags{DefaultTagName}, store.get("1001").Tags)
}

func TestReverseAbsentTagIsNoop(t *testing.T) {
	store := newScenarioAStore()
	require.NoError(t, (&Reverser{Mutator: store}).Reverse(context.Background(), DefaultSettings(), "1001", true))
	require.NoError(t, (&Reverser{Mutator: store}).Reverse(context.Background(), DefaultSettings(), "1001", true))
	assert.Equal(t, Tags{"vip"}, store.get("1001").Tags)
	assert.NotContains(t, store.callLog(), "tag:1001")
}

func TestReverseReportsFailuresWithoutRollback(t *testing.T) {
	store := newScenarioAStore()
	order := store.get("1001")
	order.Tags = Tags{"vip", DefaultTagName}
	store.orders["1001"] = order
	store.failOn("1001", StepNote, errors.New("note rejected"))

	err := (&Reverser{Mutator: store}).Reverse(context.Background(), DefaultSettings(), "1001", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReversalFailed)

	var reversalErr *ReversalError
	require.True(t, errors.As(err, &reversalErr))
	assert.Equal(t, []Step{StepNote}, reversalErr.FailedSteps())
	assert.Equal(t, Tags{"vip"}, store.get("1001").Tags)
	assert.Equal(t, []string{"reopen:1001", "tag:1001", "note:1001"}, store.callLog())
}

func TestReverseAttemptsEveryStepWhenReopenFails(t *testing.T) {
	store := newScenarioAStore()
	store.failOn("1001", StepReopen, errors.New("order is not canceled"))

	err := (&Reverser{Mutator: store}).Reverse(context.Background(), DefaultSettings(), "1001", true)
	var reversalErr *ReversalError
	require.True(t, errors.As(err, &reversalErr))
	assert.Equal(t, []Step{StepReopen}, reversalErr.FailedSteps())
	assert.Contains(t, store.get("1001").Note, ReopenNoteMarker)
}
