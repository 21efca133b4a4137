package fiscalyear

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

// NewRepository returns the PostgreSQL-backed fiscal year repository.
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

const yearColumns = `id, code, start_date, end_date, status, opening_balance, created_at, updated_at`

func (r *repository) GetYear(ctx context.Context, id int64) (FiscalYear, error) {
	row := r.db.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE id=$1`, id)
	return scanYear(row)
}

func (r *repository) YearForDate(ctx context.Context, date time.Time) (FiscalYear, error) {
	row := r.db.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years
WHERE start_date <= $1 AND end_date >= $1`, date)
	return scanYear(row)
}

func (r *repository) ListYears(ctx context.Context) ([]FiscalYear, error) {
	rows, err := r.db.Query(ctx, `SELECT `+yearColumns+` FROM fiscal_years ORDER BY start_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var years []FiscalYear
	for rows.Next() {
		year, err := scanYear(rows)
		if err != nil {
			return nil, err
		}
		years = append(years, year)
	}
	return years, rows.Err()
}

func (r *repository) GetClosing(ctx context.Context, yearID int64) (Closing, error) {
	row := r.db.QueryRow(ctx, `SELECT id, fiscal_year_id, opening_balance, net_income, closing_balance,
waqf_corpus, next_opening_balance, retention_pct, policy, is_closed, closed_by, closed_at
FROM fiscal_year_closings WHERE fiscal_year_id=$1`, yearID)
	var c Closing
	if err := row.Scan(&c.ID, &c.FiscalYearID, &c.OpeningBalance, &c.NetIncome, &c.ClosingBalance,
		&c.WaqfCorpus, &c.NextOpeningBalance, &c.RetentionPct, &c.Policy, &c.IsClosed, &c.ClosedBy, &c.ClosedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Closing{}, ErrNotFound
		}
		return Closing{}, err
	}
	return c, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertYear(ctx context.Context, in CreateYearInput) (FiscalYear, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO fiscal_years (code, start_date, end_date, status, opening_balance, created_at, updated_at)
VALUES ($1,$2,$3,'OPEN',$4,NOW(),NOW()) RETURNING `+yearColumns, in.Code, in.StartDate, in.EndDate, in.OpeningBalance)
	return scanYear(row)
}

func (r *txRepository) RangeConflict(ctx context.Context, start, end time.Time) (bool, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM fiscal_years
WHERE start_date <= $2 AND end_date >= $1`, start, end).Scan(&count)
	return count > 0, err
}

func (r *txRepository) GetYearForUpdate(ctx context.Context, id int64) (FiscalYear, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE id=$1 FOR UPDATE`, id)
	return scanYear(row)
}

func (r *txRepository) SetYearStatus(ctx context.Context, id int64, status YearStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE fiscal_years SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertClosing relies on the unique index over fiscal_year_id as the
// authoritative one-closing-per-year guard.
func (r *txRepository) InsertClosing(ctx context.Context, c Closing) (Closing, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO fiscal_year_closings
(fiscal_year_id, opening_balance, net_income, closing_balance, waqf_corpus, next_opening_balance, retention_pct, policy, is_closed, closed_by, closed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		c.FiscalYearID, c.OpeningBalance, c.NetIncome, c.ClosingBalance, c.WaqfCorpus,
		c.NextOpeningBalance, c.RetentionPct, c.Policy, c.IsClosed, c.ClosedBy, c.ClosedAt)
	if err := row.Scan(&c.ID); err != nil {
		if db.IsUniqueViolation(err) {
			return Closing{}, ErrAlreadyClosed
		}
		return Closing{}, err
	}
	return c, nil
}

func (r *txRepository) YearStartingAfter(ctx context.Context, end time.Time) (FiscalYear, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years
WHERE start_date > $1 ORDER BY start_date LIMIT 1`, end)
	return scanYear(row)
}

func (r *txRepository) SetOpeningBalance(ctx context.Context, id int64, closing Closing) error {
	_, err := r.tx.Exec(ctx, `UPDATE fiscal_years SET opening_balance=$1, updated_at=NOW() WHERE id=$2`,
		closing.NextOpeningBalance, id)
	return err
}

func scanYear(row pgx.Row) (FiscalYear, error) {
	var y FiscalYear
	if err := row.Scan(&y.ID, &y.Code, &y.StartDate, &y.EndDate, &y.Status, &y.OpeningBalance, &y.CreatedAt, &y.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, ErrNotFound
		}
		return FiscalYear{}, err
	}
	return y, nil
}
