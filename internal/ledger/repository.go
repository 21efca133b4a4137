package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the PostgreSQL-backed ledger repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
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

func (r *repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT id, code, name, type, side, balance, version, is_active, created_at, updated_at
FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Side, &a.Balance, &a.Version, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	row := r.db.QueryRow(ctx, `SELECT id, number, date, memo, source_module, source_id, status, reversal_of, posted_by, posted_at
FROM journal_entries WHERE id=$1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	lines, err := entryLines(ctx, r.db, id)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *repository) ListEntries(ctx context.Context, from, to time.Time) ([]JournalEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, number, date, memo, source_module, source_id, status, reversal_of, posted_by, posted_at
FROM journal_entries WHERE date >= $1 AND date <= $2 ORDER BY number`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// AccountMovements aggregates per-account debits and credits for entries
// dated up to asOf. The line/entry pair joins first so a line dated after
// the cutoff drops out entirely instead of surviving the outer join.
func (r *repository) AccountMovements(ctx context.Context, asOf time.Time) ([]AccountMovement, error) {
	rows, err := r.db.Query(ctx, `SELECT a.code, a.name, a.type,
COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM accounts a
LEFT JOIN (journal_lines l
	JOIN journal_entries e ON e.id = l.je_id AND e.date <= $1)
	ON l.account_id = a.id
GROUP BY a.code, a.name, a.type
ORDER BY a.code`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []AccountMovement
	for rows.Next() {
		var m AccountMovement
		if err := rows.Scan(&m.Code, &m.Name, &m.Type, &m.Debit, &m.Credit); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *repository) IncomeTotals(ctx context.Context, from, to time.Time) (IncomeTotals, error) {
	totals := IncomeTotals{From: from, To: to}
	row := r.db.QueryRow(ctx, `SELECT
COALESCE(SUM(CASE WHEN a.type='REVENUE' THEN l.credit - l.debit ELSE 0 END), 0),
COALESCE(SUM(CASE WHEN a.type='EXPENSE' THEN l.debit - l.credit ELSE 0 END), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.je_id
JOIN accounts a ON a.id = l.account_id
WHERE e.date >= $1 AND e.date <= $2 AND a.type IN ('REVENUE','EXPENSE')`, from, to)
	if err := row.Scan(&totals.Revenue, &totals.Expense); err != nil {
		return IncomeTotals{}, err
	}
	return totals, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) AccountsByID(ctx context.Context, ids []int64) (map[int64]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, code, name, type, side, balance, version, is_active, created_at, updated_at
FROM accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := make(map[int64]Account, len(ids))
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Side, &a.Balance, &a.Version, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts[a.ID] = a
	}
	return accounts, rows.Err()
}

func (r *txRepository) InsertEntry(ctx context.Context, in PostingInput, reversalOf *int64) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (date, memo, source_module, source_id, status, reversal_of, posted_by, posted_at)
VALUES ($1,$2,$3,$4,'POSTED',$5,$6,NOW()) RETURNING id, number, posted_at`, in.Date, in.Memo, in.SourceModule, in.SourceID, reversalOf, in.PostedBy)
	entry := JournalEntry{
		Date:         in.Date,
		Memo:         in.Memo,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Status:       EntryStatusPosted,
		ReversalOf:   reversalOf,
		PostedBy:     in.PostedBy,
	}
	if err := row.Scan(&entry.ID, &entry.Number, &entry.PostedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (je_id, account_id, debit, credit)
VALUES ($1,$2,$3,$4)`, entryID, line.AccountID, line.Debit, line.Credit); err != nil {
			return err
		}
	}
	return nil
}

// UpdateBalances performs the optimistic writes: each UPDATE matches the
// version stamp read earlier in the transaction and increments it. A row
// that no longer matches means a concurrent posting won; the whole
// transaction is rolled back and retried by the service.
func (r *txRepository) UpdateBalances(ctx context.Context, updates []BalanceUpdate) error {
	for _, upd := range updates {
		tag, err := r.tx.Exec(ctx, `UPDATE accounts SET balance=$1, version=version+1, updated_at=NOW()
WHERE id=$2 AND version=$3`, upd.NewBalance, upd.AccountID, upd.ExpectedVersion)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, number, date, memo, source_module, source_id, status, reversal_of, posted_by, posted_at
FROM journal_entries WHERE id=$1 FOR UPDATE`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	lines, err := entryLines(ctx, r.tx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *txRepository) MarkReversed(ctx context.Context, id, reversalID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='REVERSED', reversed_by=$1 WHERE id=$2 AND status='POSTED'`, reversalID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyReversed
	}
	return nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func entryLines(ctx context.Context, q queryer, entryID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, je_id, account_id, debit, credit FROM journal_lines WHERE je_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var l JournalLine
		var debit, credit decimal.Decimal
		if err := rows.Scan(&l.ID, &l.JournalID, &l.AccountID, &debit, &credit); err != nil {
			return nil, err
		}
		l.Debit = debit
		l.Credit = credit
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var entry JournalEntry
	if err := row.Scan(&entry.ID, &entry.Number, &entry.Date, &entry.Memo, &entry.SourceModule, &entry.SourceID,
		&entry.Status, &entry.ReversalOf, &entry.PostedBy, &entry.PostedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}
