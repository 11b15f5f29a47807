package shopify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

var memoryNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func TestMemoryStoreListsNewestFirst(t *testing.T) {
	store := NewMemoryStore(func() time.Time { return memoryNow }, SampleOrders(memoryNow)...)

	orders, err := store.FetchOrdersCreatedSince(context.Background(), memoryNow.Add(-48*time.Hour))
	require.NoError(t, err)
	names := make([]string, 0, len(orders))
	for _, order := range orders {
		names = append(names, order.Name)
	}
	assert.Equal(t, []string{"#1004", "#1003", "#1001", "#1002"}, names)
}

func TestMemoryStoreSampleProducesTwoDuplicateGroups(t *testing.T) {
	store := NewMemoryStore(func() time.Time { return memoryNow }, SampleOrders(memoryNow)...)
	scanner := dupes.NewScanner(dupes.ScannerOptions{
		Directory: store,
		Mutator:   store,
		Now:       func() time.Time { return memoryNow },
	})

	report, err := scanner.RunBatch(context.Background(), dupes.DefaultSettings(), dupes.BatchOptions{})
	require.NoError(t, err)
	require.Len(t, report.Decisions, 2)
	assert.Equal(t, "#1004", report.Decisions[0].CanonicalName)
	assert.Equal(t, []string{"#1005"}, report.Decisions[0].DuplicateNames)
	assert.Equal(t, "#1001", report.Decisions[1].CanonicalName)
	assert.Empty(t, report.Failed)

	canceled, err := scanner.CanceledDuplicates(context.Background(), dupes.DefaultSettings())
	require.NoError(t, err)
	assert.Len(t, canceled, 2)

	require.NoError(t, scanner.Reverse(context.Background(), dupes.DefaultSettings(), "12345", true))
	reopened, err := store.FetchOrder(context.Background(), "12345")
	require.NoError(t, err)
	assert.False(t, reopened.Canceled())
	assert.False(t, reopened.Tags.Has(dupes.DefaultTagName))
	assert.Len(t, dupes.NoteEntries(reopened.Note), 2)
}

func TestMemoryStoreRescanLeavesCanceledOrdersAlone(t *testing.T) {
	store := NewMemoryStore(func() time.Time { return memoryNow }, SampleOrders(memoryNow)...)
	scanner := dupes.NewScanner(dupes.ScannerOptions{
		Directory: store,
		Mutator:   store,
		Now:       func() time.Time { return memoryNow },
	})

	for run := 0; run < 2; run++ {
		report, err := scanner.RunBatch(context.Background(), dupes.DefaultSettings(), dupes.BatchOptions{})
		require.NoError(t, err)
		assert.Len(t, report.Decisions, 2)
		assert.Empty(t, report.Failed, "run %d", run+1)
	}
}

func TestMemoryStoreRejectsDoubleCancel(t *testing.T) {
	store := NewMemoryStore(nil, dupes.Order{ID: "1", Name: "#1", CreatedAt: memoryNow})
	ctx := context.Background()

	require.NoError(t, store.Cancel(ctx, "1", dupes.CancelOptions{}))
	assert.ErrorIs(t, store.Cancel(ctx, "1", dupes.CancelOptions{}), ErrAlreadyCanceled)

	order, err := store.FetchOrder(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, dupes.CancelReasonOther, order.CancelReason)
	assert.ErrorIs(t, store.Reopen(ctx, "missing"), dupes.ErrOrderNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(nil, dupes.Order{ID: "1", Tags: dupes.Tags{"a"}})
	order, err := store.FetchOrder(context.Background(), "1")
	require.NoError(t, err)
	order.Tags[0] = "mutated"

	again, err := store.FetchOrder(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, dupes.Tags{"a"}, again.Tags)
}
