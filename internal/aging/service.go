package aging

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Repository supplies outstanding dues.
type Repository interface {
	ListOutstandingDues(ctx context.Context, asOf time.Time) ([]Due, error)
}

// Service computes aging reports.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs an aging Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ComputeAging partitions every debtor's outstanding balance into the five
// overdue buckets as of the given date. Bucket sums equal each debtor's
// outstanding exactly; a violation means the partition itself is broken
// and aborts the report.
func (s *Service) ComputeAging(ctx context.Context, asOf time.Time) (Report, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	dues, err := s.repo.ListOutstandingDues(ctx, asOf)
	if err != nil {
		return Report{}, err
	}

	rows := make(map[int64]*DebtorAging)
	order := make([]int64, 0)
	for _, due := range dues {
		outstanding := due.Outstanding()
		if !outstanding.IsPositive() {
			continue
		}
		row, ok := rows[due.DebtorID]
		if !ok {
			row = &DebtorAging{DebtorID: due.DebtorID, DebtorName: due.DebtorName, Buckets: zeroBuckets()}
			rows[due.DebtorID] = row
			order = append(order, due.DebtorID)
		}
		row.Buckets.add(daysOverdue(asOf, due.DueDate), outstanding)
		row.Outstanding = row.Outstanding.Add(outstanding)
	}

	report := Report{AsOf: asOf, Total: zeroBuckets()}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	for _, id := range order {
		row := rows[id]
		if !row.Buckets.Sum().Equal(row.Outstanding) {
			return Report{}, fmt.Errorf("aging: bucket drift for debtor %d", id)
		}
		report.Rows = append(report.Rows, *row)
		report.Total.Current = report.Total.Current.Add(row.Buckets.Current)
		report.Total.Days31to60 = report.Total.Days31to60.Add(row.Buckets.Days31to60)
		report.Total.Days61to90 = report.Total.Days61to90.Add(row.Buckets.Days61to90)
		report.Total.Days91to120 = report.Total.Days91to120.Add(row.Buckets.Days91to120)
		report.Total.Over120 = report.Total.Over120.Add(row.Buckets.Over120)
	}
	return report, nil
}

// daysOverdue counts whole days past the due date; not-yet-due amounts
// report zero and land in the current bucket.
func daysOverdue(asOf, dueDate time.Time) int {
	if !asOf.After(dueDate) {
		return 0
	}
	return int(asOf.Sub(dueDate) / (24 * time.Hour))
}
