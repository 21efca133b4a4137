package aging

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the PostgreSQL-backed dues repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) ListOutstandingDues(ctx context.Context, asOf time.Time) ([]Due, error) {
	rows, err := r.db.Query(ctx, `SELECT d.id, d.debtor_id, b.name, d.amount, d.paid, d.due_date
FROM dues d
JOIN debtors b ON b.id = d.debtor_id
WHERE d.amount > d.paid AND d.created_at <= $1
ORDER BY d.debtor_id, d.due_date`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var dues []Due
	for rows.Next() {
		var d Due
		if err := rows.Scan(&d.ID, &d.DebtorID, &d.DebtorName, &d.Amount, &d.Paid, &d.DueDate); err != nil {
			return nil, err
		}
		dues = append(dues, d)
	}
	return dues, rows.Err()
}
