package distribution

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the PostgreSQL-backed distribution repository.
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

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Distribution, error) {
	row := r.db.QueryRow(ctx, `SELECT id, period_start, period_end, total_revenue, nazer_pct, charity_pct,
nazer_share, charity_share, distributable, held_amount, status, journal_entry_id, created_by, created_at, updated_at
FROM distributions WHERE id=$1`, id)
	dist, err := scanDistribution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Distribution{}, ErrNotFound
		}
		return Distribution{}, err
	}
	details, err := r.details(ctx, id)
	if err != nil {
		return Distribution{}, err
	}
	dist.Details = details
	return dist, nil
}

func (r *repository) CountPendingInRange(ctx context.Context, from, to time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM distributions
WHERE status='PENDING_APPROVAL' AND period_start >= $1 AND period_end <= $2`, from, to).Scan(&count)
	return count, err
}

func (r *repository) details(ctx context.Context, id uuid.UUID) ([]Detail, error) {
	rows, err := r.db.Query(ctx, `SELECT d.id, d.distribution_id, d.beneficiary_id, b.name, b.iban, d.weight, d.amount
FROM distribution_details d JOIN beneficiaries b ON b.id = d.beneficiary_id
WHERE d.distribution_id=$1 ORDER BY d.id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var details []Detail
	for rows.Next() {
		var d Detail
		if err := rows.Scan(&d.ID, &d.DistributionID, &d.BeneficiaryID, &d.Name, &d.IBAN, &d.Weight, &d.Amount); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Insert(ctx context.Context, d Distribution) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO distributions
(id, period_start, period_end, total_revenue, nazer_pct, charity_pct, nazer_share, charity_share, distributable, held_amount, status, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		d.ID, d.PeriodStart, d.PeriodEnd, d.TotalRevenue, d.NazerPct, d.CharityPct,
		d.NazerShare, d.CharityShare, d.Distributable, d.HeldAmount, d.Status, d.CreatedBy, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *txRepository) InsertDetails(ctx context.Context, id uuid.UUID, details []Detail) error {
	for _, detail := range details {
		if _, err := r.tx.Exec(ctx, `INSERT INTO distribution_details (distribution_id, beneficiary_id, weight, amount)
VALUES ($1,$2,$3,$4)`, id, detail.BeneficiaryID, detail.Weight, detail.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (Distribution, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, period_start, period_end, total_revenue, nazer_pct, charity_pct,
nazer_share, charity_share, distributable, held_amount, status, journal_entry_id, created_by, created_at, updated_at
FROM distributions WHERE id=$1 FOR UPDATE`, id)
	dist, err := scanDistribution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Distribution{}, ErrNotFound
		}
		return Distribution{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT d.id, d.distribution_id, d.beneficiary_id, b.name, b.iban, d.weight, d.amount
FROM distribution_details d JOIN beneficiaries b ON b.id = d.beneficiary_id
WHERE d.distribution_id=$1 ORDER BY d.id`, id)
	if err != nil {
		return Distribution{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var d Detail
		if err := rows.Scan(&d.ID, &d.DistributionID, &d.BeneficiaryID, &d.Name, &d.IBAN, &d.Weight, &d.Amount); err != nil {
			return Distribution{}, err
		}
		dist.Details = append(dist.Details, d)
	}
	return dist, rows.Err()
}

func (r *txRepository) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE distributions SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) SetJournalEntry(ctx context.Context, id uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE distributions SET journal_entry_id=$1, updated_at=NOW() WHERE id=$2`, entryID, id)
	return err
}

func scanDistribution(row pgx.Row) (Distribution, error) {
	var d Distribution
	if err := row.Scan(&d.ID, &d.PeriodStart, &d.PeriodEnd, &d.TotalRevenue, &d.NazerPct, &d.CharityPct,
		&d.NazerShare, &d.CharityShare, &d.Distributable, &d.HeldAmount, &d.Status, &d.JournalEntryID,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return Distribution{}, err
	}
	return d, nil
}
