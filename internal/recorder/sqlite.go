package recorder

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists the action journal to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *slog.Logger
	now func() time.Time
}

var journalTables = []string{"kicks", "takes", "disposals", "lp_collections", "bond_withdrawals"}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *slog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite recorder opened", "path", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kicks (
			id          TEXT PRIMARY KEY,
			timestamp   INTEGER NOT NULL,
			pool        TEXT NOT NULL,
			borrower    TEXT NOT NULL,
			bond        TEXT,
			limit_index INTEGER,
			dry_run     INTEGER NOT NULL,
			outcome     TEXT NOT NULL,
			error       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_kicks_ts ON kicks(timestamp)`,

		`CREATE TABLE IF NOT EXISTS takes (
			id            TEXT PRIMARY KEY,
			timestamp     INTEGER NOT NULL,
			pool          TEXT NOT NULL,
			borrower      TEXT NOT NULL,
			bucket_index  INTEGER,
			auction_price TEXT,
			hpb           TEXT,
			dry_run       INTEGER NOT NULL,
			outcome       TEXT NOT NULL,
			error         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_takes_ts ON takes(timestamp)`,

		`CREATE TABLE IF NOT EXISTS disposals (
			id        TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			action    TEXT NOT NULL,
			token     TEXT NOT NULL,
			target    TEXT,
			amount    TEXT,
			dry_run   INTEGER NOT NULL DEFAULT 0,
			outcome   TEXT NOT NULL,
			error     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_disposals_ts ON disposals(timestamp)`,

		`CREATE TABLE IF NOT EXISTS lp_collections (
			id           TEXT PRIMARY KEY,
			timestamp    INTEGER NOT NULL,
			pool         TEXT NOT NULL,
			bucket_index INTEGER,
			redeem_as    TEXT,
			amount       TEXT,
			lp_consumed  TEXT,
			dry_run      INTEGER NOT NULL,
			outcome      TEXT NOT NULL,
			error        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lp_ts ON lp_collections(timestamp)`,

		`CREATE TABLE IF NOT EXISTS bond_withdrawals (
			id        TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			pool      TEXT NOT NULL,
			claimable TEXT,
			dry_run   INTEGER NOT NULL,
			outcome   TEXT NOT NULL,
			error     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bonds_ts ON bond_withdrawals(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) exec(query string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	args = append([]any{uuid.NewString(), r.now().Unix()}, args...)
	_, err := r.db.Exec(query, args...)
	return err
}

func (r *SQLiteRecorder) RecordKick(evt *KickEvent) error {
	return r.exec(`INSERT INTO kicks
		(id, timestamp, pool, borrower, bond, limit_index, dry_run, outcome, error)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		evt.Pool, evt.Borrower, evt.Bond, evt.LimitIndex, evt.DryRun, evt.Outcome, evt.Error,
	)
}

func (r *SQLiteRecorder) RecordTake(evt *TakeEvent) error {
	return r.exec(`INSERT INTO takes
		(id, timestamp, pool, borrower, bucket_index, auction_price, hpb, dry_run, outcome, error)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		evt.Pool, evt.Borrower, evt.BucketIndex, evt.AuctionPrice, evt.HPB, evt.DryRun, evt.Outcome, evt.Error,
	)
}

func (r *SQLiteRecorder) RecordDisposal(evt *DisposalEvent) error {
	return r.exec(`INSERT INTO disposals
		(id, timestamp, action, token, target, amount, outcome, error)
		VALUES (?,?,?,?,?,?,?,?)`,
		evt.Action, evt.Token, evt.Target, evt.Amount, evt.Outcome, evt.Error,
	)
}

func (r *SQLiteRecorder) RecordLPCollect(evt *LPCollectEvent) error {
	return r.exec(`INSERT INTO lp_collections
		(id, timestamp, pool, bucket_index, redeem_as, amount, lp_consumed, dry_run, outcome, error)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		evt.Pool, evt.BucketIndex, evt.RedeemAs, evt.Amount, evt.LPConsumed, evt.DryRun, evt.Outcome, evt.Error,
	)
}

func (r *SQLiteRecorder) RecordBondWithdraw(evt *BondWithdrawEvent) error {
	return r.exec(`INSERT INTO bond_withdrawals
		(id, timestamp, pool, claimable, dry_run, outcome, error)
		VALUES (?,?,?,?,?,?,?)`,
		evt.Pool, evt.Claimable, evt.DryRun, evt.Outcome, evt.Error,
	)
}

func (r *SQLiteRecorder) CountSince(since time.Time) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int)
	for _, table := range journalTables {
		rows, err := r.db.Query(
			fmt.Sprintf(`SELECT outcome, COUNT(*) FROM %s WHERE timestamp >= ? GROUP BY outcome`, table),
			since.Unix(),
		)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		for rows.Next() {
			var (
				outcome string
				n       int
			)
			if err := rows.Scan(&outcome, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s: %w", table, err)
			}
			counts[table+"/"+outcome] = n
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return counts, nil
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}
