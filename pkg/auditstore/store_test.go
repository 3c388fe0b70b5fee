// SPDX-License-Identifier: Apache-2.0

package auditstore

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexchoi/bqdrift/pkg/drift"
)

func TestNullInt64Conversions(t *testing.T) {
	assert.Nil(t, nullInt64ToPtr(sql.NullInt64{}))
	assert.Nil(t, nullInt64ToIntPtr(sql.NullInt64{}))

	got := nullInt64ToPtr(sql.NullInt64{Valid: true, Int64: 42})
	require.NotNil(t, got)
	assert.Equal(t, int64(42), *got)

	gotInt := nullInt64ToIntPtr(sql.NullInt64{Valid: true, Int64: 7})
	require.NotNil(t, gotInt)
	assert.Equal(t, 7, *gotInt)
}

func TestUpstreamStatesToWireNilBecomesEmptyMap(t *testing.T) {
	got := upstreamStatesToWire(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// withStore connects to the Postgres instance named by BQDRIFT_TEST_DSN and
// returns an initialized Store on a throwaway schema, or skips the test when
// no test database is configured. The corpus's testcontainers-backed harness
// (internal/testutils.WithStateAndConnectionToContainer) isn't available
// here, so CI wires BQDRIFT_TEST_DSN to a real instance instead.
func withStore(t *testing.T, fn func(t *testing.T, store *Store)) {
	t.Helper()

	dsn := os.Getenv("BQDRIFT_TEST_DSN")
	if dsn == "" {
		t.Skip("BQDRIFT_TEST_DSN not set, skipping auditstore integration test")
	}

	ctx := context.Background()
	store, err := Open(ctx, dsn, "bqdrift_test")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Init(ctx))

	fn(t, store)
}

func TestStoreRecordAndLoadForQuery(t *testing.T) {
	withStore(t, func(t *testing.T, store *Store) {
		ctx := context.Background()
		date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

		revision := 2
		state := drift.PartitionState{
			QueryName:      "orders_daily",
			PartitionDate:  date,
			Version:        1,
			SQLRevision:    &revision,
			EffectiveFrom:  date,
			SQLChecksum:    "aaaaaaaaaaaaaaaa",
			SchemaChecksum: "bbbbbbbbbbbbbbbb",
			YAMLChecksum:   "cccccccccccccccc",
			ExecutedSQLB64: "c29tZSBzcWw=",
			ExecutedAt:     time.Now().UTC(),
			Status:         drift.StatusSuccess,
		}

		require.NoError(t, store.RecordRun(ctx, state))

		loaded, err := store.LoadForQuery(ctx, "orders_daily", date.AddDate(0, 0, -1), date.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, "orders_daily", loaded[0].QueryName)
		assert.Equal(t, "aaaaaaaaaaaaaaaa", loaded[0].SQLChecksum)
		require.NotNil(t, loaded[0].SQLRevision)
		assert.Equal(t, 2, *loaded[0].SQLRevision)
	})
}

func TestStoreLatestRunReturnsMostRecentExecution(t *testing.T) {
	withStore(t, func(t *testing.T, store *Store) {
		ctx := context.Background()
		date := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

		older := drift.PartitionState{
			QueryName: "signups_daily", PartitionDate: date, Version: 1,
			EffectiveFrom: date, SQLChecksum: "1111111111111111", SchemaChecksum: "2222222222222222",
			YAMLChecksum: "3333333333333333", ExecutedSQLB64: "eA==",
			ExecutedAt: time.Now().UTC().Add(-time.Hour), Status: drift.StatusSuccess,
		}
		newer := older
		newer.SQLChecksum = "4444444444444444"
		newer.ExecutedAt = time.Now().UTC()

		require.NoError(t, store.RecordRun(ctx, older))
		require.NoError(t, store.RecordRun(ctx, newer))

		latest, err := store.LatestRun(ctx, "signups_daily", date)
		require.NoError(t, err)
		assert.Equal(t, "4444444444444444", latest.SQLChecksum)
	})
}

func TestStoreLatestRunNoRunsReturnsErrNoRuns(t *testing.T) {
	withStore(t, func(t *testing.T, store *Store) {
		_, err := store.LatestRun(context.Background(), "never_run_query", time.Now())
		assert.ErrorIs(t, err, ErrNoRuns)
	})
}
