// Package store persists governance records to SQLite. It owns the schema
// and the transactional primitives the engines rely on: the conditional
// debit, the compare-and-set signature insert, and conditional status
// transitions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for concurrent readers (score and anomaly batches read while
	// the ledger writes).
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] store opened: %s", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS group_pools (
			group_id   TEXT PRIMARY KEY,
			balance    INTEGER NOT NULL CHECK (balance >= 0),
			last_tx_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS members (
			member_id TEXT NOT NULL,
			group_id  TEXT NOT NULL,
			joined_at INTEGER NOT NULL,
			active    INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (group_id, member_id)
		)`,

		`CREATE TABLE IF NOT EXISTS contributions (
			id          TEXT PRIMARY KEY,
			group_id    TEXT NOT NULL,
			member_id   TEXT NOT NULL,
			amount      INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contrib_group ON contributions(group_id)`,

		`CREATE TABLE IF NOT EXISTS expenses (
			id          TEXT PRIMARY KEY,
			group_id    TEXT NOT NULL,
			member_id   TEXT NOT NULL,
			amount      INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expense_member ON expenses(member_id, recorded_at)`,

		`CREATE TABLE IF NOT EXISTS proposals (
			id            TEXT PRIMARY KEY,
			group_id      TEXT NOT NULL,
			amount        INTEGER NOT NULL,
			option_id     TEXT NOT NULL,
			initiator_id  TEXT NOT NULL,
			status        TEXT NOT NULL,
			fail_reason   TEXT NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL,
			executed_at   INTEGER,
			maturity_date INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_proposal_status ON proposals(status)`,

		`CREATE TABLE IF NOT EXISTS investments (
			id               TEXT PRIMARY KEY,
			proposal_id      TEXT NOT NULL UNIQUE,
			group_id         TEXT NOT NULL,
			principal_amount INTEGER NOT NULL,
			maturity_amount  INTEGER,
			status           TEXT NOT NULL,
			executed_at      INTEGER NOT NULL,
			matured_at       INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS wealth_reports (
			investment_id  TEXT NOT NULL,
			member_id      TEXT NOT NULL,
			profit_amount  INTEGER NOT NULL,
			distributed_at INTEGER NOT NULL,
			PRIMARY KEY (investment_id, member_id)
		)`,

		`CREATE TABLE IF NOT EXISTS approval_requests (
			id           TEXT PRIMARY KEY,
			subject_type TEXT NOT NULL,
			subject_id   TEXT NOT NULL,
			rule_kind    TEXT NOT NULL,
			rule_n       INTEGER NOT NULL DEFAULT 0,
			rule_percent TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL,
			created_at   INTEGER NOT NULL,
			expires_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_approval_subject ON approval_requests(subject_type, subject_id)`,

		`CREATE TABLE IF NOT EXISTS approval_signers (
			request_id TEXT NOT NULL,
			member_id  TEXT NOT NULL,
			PRIMARY KEY (request_id, member_id)
		)`,

		`CREATE TABLE IF NOT EXISTS signatures (
			request_id  TEXT NOT NULL,
			approver_id TEXT NOT NULL,
			decision    TEXT NOT NULL,
			signed_at   INTEGER NOT NULL,
			PRIMARY KEY (request_id, approver_id)
		)`,

		`CREATE TABLE IF NOT EXISTS credit_scores (
			member_id   TEXT NOT NULL,
			score       REAL NOT NULL,
			components  TEXT NOT NULL,
			computed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_score_member ON credit_scores(member_id, computed_at)`,

		`CREATE TABLE IF NOT EXISTS loans (
			id           TEXT PRIMARY KEY,
			group_id     TEXT NOT NULL,
			member_id    TEXT NOT NULL,
			amount       INTEGER NOT NULL,
			repaid       INTEGER NOT NULL DEFAULT 0,
			repaid_late  INTEGER NOT NULL DEFAULT 0,
			disbursed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_loan_member ON loans(member_id)`,

		`CREATE TABLE IF NOT EXISTS meeting_attendance (
			meeting_id TEXT NOT NULL,
			group_id   TEXT NOT NULL,
			member_id  TEXT NOT NULL,
			attended   INTEGER NOT NULL,
			held_at    INTEGER NOT NULL,
			PRIMARY KEY (meeting_id, member_id)
		)`,

		`CREATE TABLE IF NOT EXISTS anomaly_alerts (
			id          TEXT PRIMARY KEY,
			subject_ref TEXT NOT NULL,
			member_id   TEXT NOT NULL,
			metric      TEXT NOT NULL,
			z_score     REAL NOT NULL,
			severity    TEXT NOT NULL,
			detected_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS votes (
			id              TEXT PRIMARY KEY,
			group_id        TEXT NOT NULL,
			question        TEXT NOT NULL,
			rule            TEXT NOT NULL,
			eligible_voters TEXT NOT NULL,
			status          TEXT NOT NULL,
			result          TEXT NOT NULL DEFAULT '',
			yes_count       INTEGER NOT NULL DEFAULT 0,
			no_count        INTEGER NOT NULL DEFAULT 0,
			opened_at       INTEGER NOT NULL,
			deadline        INTEGER NOT NULL,
			closed_at       INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS ballots (
			vote_id     TEXT NOT NULL,
			voter_id    TEXT NOT NULL,
			choice      TEXT NOT NULL,
			is_proxy    INTEGER NOT NULL,
			proxy_for   TEXT NOT NULL DEFAULT '',
			counted_for TEXT NOT NULL,
			cast_at     INTEGER NOT NULL,
			PRIMARY KEY (vote_id, counted_for)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	log.Println("[INFO] closing store")
	return s.db.Close()
}

// tx runs fn inside an immediate transaction, committing on nil error.
func (s *Store) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// isUniqueViolation reports whether err is a SQLite unique-constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
