package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/runcoach/internal/domain"
)

func openTestLedger(t *testing.T, path string) *Ledger {
	t.Helper()
	ledger, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestLedgerMarkProcessedRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	ledger := openTestLedger(t, filepath.Join(t.TempDir(), "events.db"))

	processed, err := ledger.IsProcessed(ctx, 12345)
	require.NoError(t, err)
	require.False(t, processed)

	require.NoError(t, ledger.MarkProcessed(ctx, 12345))
	require.ErrorIs(t, ledger.MarkProcessed(ctx, 12345), domain.ErrDuplicateEvent)

	processed, err = ledger.IsProcessed(ctx, 12345)
	require.NoError(t, err)
	require.True(t, processed)

	var row processedEvent
	require.NoError(t, ledger.db.Where("event_id = ?", 12345).First(&row).Error)
	require.False(t, row.ProcessedAt.IsZero())
}

func TestLedgerInitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := openTestLedger(t, filepath.Join(t.TempDir(), "events.db"))

	require.NoError(t, ledger.MarkProcessed(ctx, 9))
	require.NoError(t, ledger.Init(ctx))

	processed, err := ledger.IsProcessed(ctx, 9)
	require.NoError(t, err)
	require.True(t, processed, "re-init must not drop rows")
}

func TestLedgerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "events.db")

	first, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.MarkProcessed(ctx, 42))
	require.NoError(t, first.Close())

	second := openTestLedger(t, path)
	processed, err := second.IsProcessed(ctx, 42)
	require.NoError(t, err)
	require.True(t, processed)
}

func TestLedgerConcurrentMarkHasOneWinner(t *testing.T) {
	ctx := context.Background()
	ledger := openTestLedger(t, filepath.Join(t.TempDir(), "events.db"))

	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		dupes atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ledger.MarkProcessed(ctx, 777)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrDuplicateEvent):
				dupes.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(15), dupes.Load())
}
