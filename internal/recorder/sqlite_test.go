package recorder

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "journal.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRecordAndCount(t *testing.T) {
	t.Parallel()

	r := newTestRecorder(t)
	require.NoError(t, r.RecordKick(&KickEvent{Pool: "p", Borrower: "0x1", Bond: "1.5", Outcome: OutcomeSuccess}))
	require.NoError(t, r.RecordKick(&KickEvent{Pool: "p", Borrower: "0x2", Outcome: OutcomeInsufficient}))
	require.NoError(t, r.RecordKick(&KickEvent{Pool: "p", Borrower: "0x3", Outcome: OutcomeSuccess}))
	require.NoError(t, r.RecordTake(&TakeEvent{Pool: "p", Borrower: "0x4", BucketIndex: 3696, DryRun: true, Outcome: OutcomeDryRun}))
	require.NoError(t, r.RecordDisposal(&DisposalEvent{Action: "transfer", Token: "0xt", Amount: "10", Outcome: OutcomeFailed, Error: "reverted"}))
	require.NoError(t, r.RecordLPCollect(&LPCollectEvent{Pool: "p", BucketIndex: 1, RedeemAs: "quote", Outcome: OutcomeSuccess}))
	require.NoError(t, r.RecordBondWithdraw(&BondWithdrawEvent{Pool: "p", Claimable: "3", Outcome: OutcomeSuccess}))

	counts, err := r.CountSince(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, map[string]int{
		"kicks/success":            2,
		"kicks/insufficient_funds": 1,
		"takes/dry_run":            1,
		"disposals/failed":         1,
		"lp_collections/success":   1,
		"bond_withdrawals/success": 1,
	}, counts)
}

func TestCountSinceFiltersOldRows(t *testing.T) {
	t.Parallel()

	r := newTestRecorder(t)
	r.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	require.NoError(t, r.RecordKick(&KickEvent{Pool: "p", Borrower: "0x1", Outcome: OutcomeSuccess}))
	r.now = time.Now
	require.NoError(t, r.RecordKick(&KickEvent{Pool: "p", Borrower: "0x2", Outcome: OutcomeFailed}))

	counts, err := r.CountSince(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Equal(t, map[string]int{"kicks/failed": 1}, counts)
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.db")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r1, err := NewSQLiteRecorder(path, log)
	require.NoError(t, err)
	require.NoError(t, r1.RecordKick(&KickEvent{Pool: "p", Borrower: "0x1", Outcome: OutcomeSuccess}))
	require.NoError(t, r1.Close())

	r2, err := NewSQLiteRecorder(path, log)
	require.NoError(t, err)
	defer r2.Close()
	counts, err := r2.CountSince(time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, counts["kicks/success"])
}
