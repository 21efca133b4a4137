package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amanah-erp/amanah-erp/internal/platform/db"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the PostgreSQL-backed reconciliation repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *repository) ListUnmatchedTransactions(ctx context.Context, statementID int64) ([]BankTransaction, error) {
	rows, err := r.db.Query(ctx, `SELECT id, statement_id, date, amount, reference, matched, created_at
FROM bank_transactions WHERE statement_id=$1 AND matched=FALSE ORDER BY date, id`, statementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txs []BankTransaction
	for rows.Next() {
		var t BankTransaction
		if err := rows.Scan(&t.ID, &t.StatementID, &t.Date, &t.Amount, &t.Reference, &t.Matched, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// CandidateEntries returns posted entries inside the window that carry no
// active match. The entry amount is its total debit side.
func (r *repository) CandidateEntries(ctx context.Context, from, to time.Time) ([]CandidateEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT e.id, e.date, e.memo, COALESCE(SUM(l.debit), 0)
FROM journal_entries e
JOIN journal_lines l ON l.je_id = e.id
WHERE e.status='POSTED' AND e.date >= $1 AND e.date <= $2
AND NOT EXISTS (SELECT 1 FROM reconciliation_matches m WHERE m.journal_entry_id = e.id)
GROUP BY e.id, e.date, e.memo
ORDER BY e.date, e.id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []CandidateEntry
	for rows.Next() {
		var e CandidateEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.Memo, &e.Amount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) GetTransaction(ctx context.Context, id int64) (BankTransaction, error) {
	row := r.db.QueryRow(ctx, `SELECT id, statement_id, date, amount, reference, matched, created_at
FROM bank_transactions WHERE id=$1`, id)
	var t BankTransaction
	if err := row.Scan(&t.ID, &t.StatementID, &t.Date, &t.Amount, &t.Reference, &t.Matched, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankTransaction{}, ErrNotFound
		}
		return BankTransaction{}, err
	}
	return t, nil
}

func (r *repository) ListMatches(ctx context.Context, statementID int64) ([]Match, error) {
	rows, err := r.db.Query(ctx, `SELECT m.id, m.bank_transaction_id, m.journal_entry_id, m.type, m.confidence, m.notes, m.matched_by, m.matched_at
FROM reconciliation_matches m
JOIN bank_transactions t ON t.id = m.bank_transaction_id
WHERE t.statement_id=$1 ORDER BY m.id`, statementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.BankTransactionID, &m.JournalEntryID, &m.Type, &m.Confidence, &m.Notes, &m.MatchedBy, &m.MatchedAt); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *repository) OpenStatements(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT statement_id FROM bank_transactions
WHERE matched=FALSE ORDER BY statement_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, id int64) (BankTransaction, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, statement_id, date, amount, reference, matched, created_at
FROM bank_transactions WHERE id=$1 FOR UPDATE`, id)
	var t BankTransaction
	if err := row.Scan(&t.ID, &t.StatementID, &t.Date, &t.Amount, &t.Reference, &t.Matched, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankTransaction{}, ErrNotFound
		}
		return BankTransaction{}, err
	}
	return t, nil
}

func (r *txRepository) EntryMatched(ctx context.Context, entryID int64) (bool, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM reconciliation_matches WHERE journal_entry_id=$1`, entryID).Scan(&count)
	return count > 0, err
}

// InsertMatch relies on unique indexes over bank_transaction_id and
// journal_entry_id as the authoritative duplicate guard.
func (r *txRepository) InsertMatch(ctx context.Context, m Match) (Match, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO reconciliation_matches
(bank_transaction_id, journal_entry_id, type, confidence, notes, matched_by, matched_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		m.BankTransactionID, m.JournalEntryID, m.Type, m.Confidence, m.Notes, m.MatchedBy, m.MatchedAt)
	if err := row.Scan(&m.ID); err != nil {
		if db.IsUniqueViolation(err) {
			return Match{}, ErrDuplicateMatch
		}
		return Match{}, err
	}
	return m, nil
}

func (r *txRepository) MarkTransactionMatched(ctx context.Context, txID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE bank_transactions SET matched=TRUE WHERE id=$1`, txID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
