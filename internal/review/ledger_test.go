package review

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/bookshelf/internal/catalog"
)

func newTestLedger(t *testing.T) (*Ledger, *catalog.MemoryStore) {
	t.Helper()
	books, err := catalog.NewSeededStore()
	require.NoError(t, err)
	return NewLedger(books), books
}

func TestUpsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	ledger, books := newTestLedger(t)

	got, err := ledger.Upsert(ctx, "0001", "great book", "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "great book"}, got)

	got, err = ledger.Upsert(ctx, "0001", "even better", "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "even better"}, got)

	stored, err := books.Reviews(ctx, "0001")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "even better"}, stored)
}

func TestUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)

	first, err := ledger.Upsert(ctx, "0002", "same", "alice")
	require.NoError(t, err)
	second, err := ledger.Upsert(ctx, "0002", "same", "alice")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUpsertKeepsOtherUsers(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)

	_, err := ledger.Upsert(ctx, "0001", "mine", "alice")
	require.NoError(t, err)
	got, err := ledger.Upsert(ctx, "0001", "also mine", "bob")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "mine", "bob": "also mine"}, got)
}

func TestUpsertErrors(t *testing.T) {
	ctx := context.Background()
	ledger, books := newTestLedger(t)

	_, err := ledger.Upsert(ctx, "0001", "text", "")
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = ledger.Upsert(ctx, "0001", "", "alice")
	assert.ErrorIs(t, err, ErrEmptyReview)

	_, err = ledger.Upsert(ctx, "9999", "text", "alice")
	assert.ErrorIs(t, err, catalog.ErrBookNotFound)

	stored, err := books.Reviews(ctx, "0001")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestDeleteStateMachine(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)

	// absent -> absent は拒否
	_, err := ledger.Delete(ctx, "0001", "alice")
	assert.ErrorIs(t, err, ErrReviewNotFound)

	_, err = ledger.Upsert(ctx, "0001", "Nice", "alice")
	require.NoError(t, err)
	_, err = ledger.Upsert(ctx, "0001", "Meh", "bob")
	require.NoError(t, err)

	got, err := ledger.Delete(ctx, "0001", "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"bob": "Meh"}, got)

	_, err = ledger.Delete(ctx, "0001", "alice")
	assert.ErrorIs(t, err, ErrReviewNotFound)
}

func TestDeleteOnlyOwnReview(t *testing.T) {
	ctx := context.Background()
	ledger, books := newTestLedger(t)

	_, err := ledger.Upsert(ctx, "0004", "ancient", "alice")
	require.NoError(t, err)

	_, err = ledger.Delete(ctx, "0004", "bob")
	assert.ErrorIs(t, err, ErrReviewNotFound)

	stored, err := books.Reviews(ctx, "0004")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "ancient"}, stored)
}

func TestDeleteErrors(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t)

	_, err := ledger.Delete(ctx, "0001", "")
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = ledger.Delete(ctx, "9999", "alice")
	assert.ErrorIs(t, err, catalog.ErrBookNotFound)
}

func TestConcurrentUpsertsSameBook(t *testing.T) {
	ctx := context.Background()
	ledger, books := newTestLedger(t)

	users := []string{"alice", "bob", "carol", "dave", "erin", "frank", "grace", "heidi"}
	var wg sync.WaitGroup
	for _, u := range users {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				_, err := ledger.Upsert(ctx, "0005", "review by "+u, u)
				assert.NoError(t, err)
			}(u)
		}
	}
	wg.Wait()

	stored, err := books.Reviews(ctx, "0005")
	require.NoError(t, err)
	require.Len(t, stored, len(users))
	for _, u := range users {
		assert.Equal(t, "review by "+u, stored[u])
	}
}
