package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnibridge/pkg/storage"
	"omnibridge/pkg/types"
)

func newTestStore(t *testing.T, maxRecords int) *Store {
	t.Helper()
	kv, err := storage.NewFileStore(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	s, err := NewStore(context.Background(), kv, "0xSender", maxRecords)
	require.NoError(t, err)
	return s
}

func record(hash string, ts time.Time) types.TransferRecord {
	return types.TransferRecord{
		TxHash:             hash,
		SourceNetwork:      "arbitrum",
		DestinationNetwork: "base",
		Token:              "USDC",
		Amount:             "100",
		Status:             types.StatusPending,
		Timestamp:          ts,
	}
}

func TestAddUpsertsByHashCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 10)

	now := time.Now().UTC()
	require.NoError(t, s.Add(ctx, record("0xABCDEF", now)))

	updated := record("0xabcdef", now)
	updated.Status = types.StatusCompleted
	require.NoError(t, s.Add(ctx, updated))

	assert.Equal(t, 1, s.Len())
	got, ok := s.Get("0xAbCdEf")
	require.True(t, ok)
	assert.Equal(t, types.StatusCompleted, got.Status)
}

func TestAddEvictsOldestPastCap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 3)

	base := time.Now().UTC()
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Add(ctx, record(fmt.Sprintf("0x%02d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	assert.Equal(t, 3, s.Len())
	_, ok := s.Get("0x00")
	assert.False(t, ok, "oldest record should be evicted")

	// most recent first
	records := s.List(Filter{})
	require.Len(t, records, 3)
	assert.Equal(t, "0x03", records[0].TxHash)
	assert.Equal(t, "0x01", records[2].TxHash)
}

func TestUpdateStatusStampsCompletion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 10)

	require.NoError(t, s.Add(ctx, record("0xaa", time.Now().UTC())))
	require.NoError(t, s.UpdateStatus(ctx, "0xAA", types.StatusCompleted))

	got, ok := s.Get("0xaa")
	require.True(t, ok)
	assert.Equal(t, types.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	// unknown hashes are a silent no-op
	require.NoError(t, s.UpdateStatus(ctx, "0xmissing", types.StatusFailed))
	assert.Equal(t, 1, s.Len())
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 10)

	base := time.Now().UTC()
	early := record("0x01", base.Add(-2*time.Hour))
	early.SourceNetwork = "ethereum"
	early.Status = types.StatusCompleted
	require.NoError(t, s.Add(ctx, early))

	late := record("0x02", base)
	require.NoError(t, s.Add(ctx, late))

	byNetwork := s.List(Filter{Network: "Ethereum"})
	require.Len(t, byNetwork, 1)
	assert.Equal(t, "0x01", byNetwork[0].TxHash)

	// destination network matches too
	assert.Len(t, s.List(Filter{Network: "base"}), 2)

	byStatus := s.List(Filter{Status: types.StatusPending})
	require.Len(t, byStatus, 1)
	assert.Equal(t, "0x02", byStatus[0].TxHash)

	recent := s.List(Filter{From: base.Add(-time.Hour)})
	require.Len(t, recent, 1)
	assert.Equal(t, "0x02", recent[0].TxHash)
}

func TestStoreReloadsFromBackend(t *testing.T) {
	ctx := context.Background()
	kv, err := storage.NewFileStore(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)

	s, err := NewStore(ctx, kv, "0xSender", 10)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, record("0xpersisted", time.Now().UTC())))

	reloaded, err := NewStore(ctx, kv, "0xsender", 10)
	require.NoError(t, err)
	_, ok := reloaded.Get("0xpersisted")
	assert.True(t, ok)
}

func TestFeeSamplesBounded(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 10)

	base := time.Now().UTC()
	for i := 0; i < maxFeeSamples+5; i++ {
		require.NoError(t, s.AddFeeSample(ctx, types.FeeSample{
			SourceNetwork:      "arbitrum",
			DestinationNetwork: "base",
			Token:              "USDC",
			FeeUSD:             decimal.NewFromInt(int64(i)),
			Timestamp:          base.Add(time.Duration(i) * time.Minute),
		}))
	}

	samples, err := s.FeeSamples(ctx, "Arbitrum", "Base", "usdc")
	require.NoError(t, err)
	require.Len(t, samples, maxFeeSamples)

	// oldest samples were dropped, order preserved
	assert.Equal(t, int64(5), samples[0].FeeUSD.IntPart())
	assert.Equal(t, int64(maxFeeSamples+4), samples[len(samples)-1].FeeUSD.IntPart())
}

func TestFeeSamplesEmptyRoute(t *testing.T) {
	s := newTestStore(t, 10)
	samples, err := s.FeeSamples(context.Background(), "arbitrum", "base", "USDC")
	require.NoError(t, err)
	assert.Empty(t, samples)
}
