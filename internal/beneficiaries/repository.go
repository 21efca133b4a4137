package beneficiaries

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the PostgreSQL-backed registry repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const columns = `id, name, category, iban, weight, active, created_at, updated_at`

func (r *repository) List(ctx context.Context, activeOnly bool) ([]Beneficiary, error) {
	query := `SELECT ` + columns + ` FROM beneficiaries ORDER BY id`
	if activeOnly {
		query = `SELECT ` + columns + ` FROM beneficiaries WHERE active=TRUE ORDER BY id`
	}
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Beneficiary
	for rows.Next() {
		b, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Beneficiary, error) {
	row := r.db.QueryRow(ctx, `SELECT `+columns+` FROM beneficiaries WHERE id=$1`, id)
	return scan(row)
}

func (r *repository) Insert(ctx context.Context, in UpsertInput) (Beneficiary, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO beneficiaries (name, category, iban, weight, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,TRUE,NOW(),NOW()) RETURNING `+columns, in.Name, in.Category, in.IBAN, in.Weight)
	return scan(row)
}

func (r *repository) Update(ctx context.Context, id int64, in UpsertInput) (Beneficiary, error) {
	row := r.db.QueryRow(ctx, `UPDATE beneficiaries SET name=$1, category=$2, iban=$3, weight=$4, updated_at=NOW()
WHERE id=$5 RETURNING `+columns, in.Name, in.Category, in.IBAN, in.Weight, id)
	return scan(row)
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE beneficiaries SET active=$1, updated_at=NOW() WHERE id=$2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scan(row pgx.Row) (Beneficiary, error) {
	var b Beneficiary
	if err := row.Scan(&b.ID, &b.Name, &b.Category, &b.IBAN, &b.Weight, &b.Active, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Beneficiary{}, ErrNotFound
		}
		return Beneficiary{}, err
	}
	return b, nil
}
