package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.TempDir()+"/ledger.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func TestSQLiteRoundTrip(t *testing.T) {
	store := openSQLite(t)
	l := New(store).WithClock(testClock())
	ctx := context.Background()

	c := testCommit("fdc-1", "k1")
	c.Scope = []string{"billing", "tooling"}
	out, err := l.AppendCommit(ctx, c)
	require.NoError(t, err)

	got, err := store.GetByFdcID(ctx, "acme", "fdc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, out.Commit.ChainHash, got.ChainHash)
	require.Equal(t, []string{"billing", "tooling"}, got.Scope)
	require.Equal(t, out.Commit.GeneratedAt.UTC(), got.GeneratedAt.UTC())
}

func TestSQLiteChainSurvivesReload(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	l := New(store).WithClock(testClock())
	for _, key := range []string{"k1", "k2", "k3"} {
		_, err := l.AppendCommit(ctx, testCommit("fdc-"+key, key))
		require.NoError(t, err)
	}

	// A fresh ledger over the same store must verify and keep chaining.
	l2 := New(store).WithClock(func() time.Time {
		return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	})
	require.NoError(t, l2.VerifyChain(ctx, "acme"))

	out, err := l2.AppendCommit(ctx, testCommit("fdc-k4", "k4"))
	require.NoError(t, err)
	require.Equal(t, "fdc-k3", out.Commit.PreviousFdcID)
	require.NoError(t, l2.VerifyChain(ctx, "acme"))
}

func TestSQLiteIdempotencyLookup(t *testing.T) {
	store := openSQLite(t)
	l := New(store).WithClock(testClock())
	ctx := context.Background()

	_, err := l.AppendCommit(ctx, testCommit("fdc-1", "k1"))
	require.NoError(t, err)

	again, err := l.AppendCommit(ctx, testCommit("fdc-2", "k1"))
	require.NoError(t, err)
	require.True(t, again.Reused)

	missing, err := store.GetByIdempotencyKey(ctx, "acme", "absent")
	require.NoError(t, err)
	require.Nil(t, missing)
}
