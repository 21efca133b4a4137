package distribution

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/amanah-erp/amanah-erp/internal/ledger"
	"github.com/amanah-erp/amanah-erp/internal/payout"
	"github.com/amanah-erp/amanah-erp/internal/shared"
)

func mustDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

type memoryDistRepo struct {
	distributions map[uuid.UUID]*Distribution
	failSetStatus Status
}

func newMemoryDistRepo() *memoryDistRepo {
	return &memoryDistRepo{distributions: make(map[uuid.UUID]*Distribution)}
}

func (r *memoryDistRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[uuid.UUID]Distribution, len(r.distributions))
	for id, d := range r.distributions {
		copied := *d
		copied.Details = append([]Detail(nil), d.Details...)
		snapshot[id] = copied
	}
	if err := fn(ctx, r); err != nil {
		r.distributions = make(map[uuid.UUID]*Distribution, len(snapshot))
		for id := range snapshot {
			d := snapshot[id]
			r.distributions[id] = &d
		}
		return err
	}
	return nil
}

func (r *memoryDistRepo) Get(ctx context.Context, id uuid.UUID) (Distribution, error) {
	return r.GetForUpdate(ctx, id)
}

func (r *memoryDistRepo) CountPendingInRange(ctx context.Context, from, to time.Time) (int, error) {
	count := 0
	for _, d := range r.distributions {
		if d.Status == StatusPendingApproval && !d.PeriodStart.Before(from) && !d.PeriodEnd.After(to) {
			count++
		}
	}
	return count, nil
}

func (r *memoryDistRepo) Insert(ctx context.Context, d Distribution) error {
	stored := d
	r.distributions[d.ID] = &stored
	return nil
}

func (r *memoryDistRepo) InsertDetails(ctx context.Context, id uuid.UUID, details []Detail) error {
	r.distributions[id].Details = append([]Detail(nil), details...)
	return nil
}

func (r *memoryDistRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (Distribution, error) {
	d, ok := r.distributions[id]
	if !ok {
		return Distribution{}, ErrNotFound
	}
	copied := *d
	copied.Details = append([]Detail(nil), d.Details...)
	return copied, nil
}

func (r *memoryDistRepo) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if r.failSetStatus != "" && status == r.failSetStatus {
		return errors.New("storage failure")
	}
	d, ok := r.distributions[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = status
	return nil
}

func (r *memoryDistRepo) SetJournalEntry(ctx context.Context, id uuid.UUID, entryID int64) error {
	d, ok := r.distributions[id]
	if !ok {
		return ErrNotFound
	}
	d.JournalEntryID = &entryID
	return nil
}

type staticBeneficiaries []Beneficiary

func (s staticBeneficiaries) ListActive(ctx context.Context) ([]Beneficiary, error) {
	return s, nil
}

type fakeLedger struct {
	nextID    int64
	postings  []ledger.PostingInput
	reversals []ledger.ReverseInput
	postErr   error
}

func (f *fakeLedger) PostEntry(ctx context.Context, in ledger.PostingInput) (ledger.JournalEntry, error) {
	if f.postErr != nil {
		return ledger.JournalEntry{}, f.postErr
	}
	if err := in.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	f.nextID++
	f.postings = append(f.postings, in)
	return ledger.JournalEntry{ID: f.nextID, Status: ledger.EntryStatusPosted}, nil
}

func (f *fakeLedger) ReverseEntry(ctx context.Context, in ledger.ReverseInput) (ledger.JournalEntry, error) {
	f.reversals = append(f.reversals, in)
	f.nextID++
	return ledger.JournalEntry{ID: f.nextID, Status: ledger.EntryStatusPosted}, nil
}

type captureExporter struct {
	batches [][]payout.Record
}

func (c *captureExporter) Export(ctx context.Context, records []payout.Record) error {
	c.batches = append(c.batches, records)
	return nil
}

func testService(repo *memoryDistRepo, led *fakeLedger, exporter payout.Exporter, beneficiaries []Beneficiary) *Service {
	return NewService(repo, staticBeneficiaries(beneficiaries), led, exporter, nil, Accounts{
		RevenueAllocationID:  10,
		NazerPayableID:       20,
		CharityPayableID:     21,
		BeneficiaryPayableID: 22,
	}, slog.Default())
}

func nazerCtx() context.Context {
	return shared.ContextWithPrincipal(context.Background(), shared.Principal{UserID: 5, Name: "Hasan", Role: shared.RoleNazer})
}

func calculateFixture(t *testing.T, svc *Service) Distribution {
	t.Helper()
	dist, err := svc.Calculate(context.Background(), CalculateInput{
		PeriodStart:  mustDate("2025-01-01"),
		PeriodEnd:    mustDate("2025-03-31"),
		TotalRevenue: dec("1000000"),
		NazerPct:     dec("10"),
		CharityPct:   dec("5"),
		ActorID:      5,
	})
	require.NoError(t, err)
	return dist
}

func TestCalculatePersistsDraftWithInvariant(t *testing.T) {
	repo := newMemoryDistRepo()
	svc := testService(repo, &fakeLedger{}, nil, equalWeightBeneficiaries(7))

	dist := calculateFixture(t, svc)
	require.Equal(t, StatusDraft, dist.Status)
	require.Len(t, dist.Details, 7)
	require.NoError(t, CheckInvariant(dist))

	stored, err := repo.Get(context.Background(), dist.ID)
	require.NoError(t, err)
	require.Len(t, stored.Details, 7)
}

func TestApproveExecutesAndPosts(t *testing.T) {
	repo := newMemoryDistRepo()
	led := &fakeLedger{}
	exporter := &captureExporter{}
	svc := testService(repo, led, exporter, equalWeightBeneficiaries(3))

	dist := calculateFixture(t, svc)
	_, err := svc.Submit(context.Background(), dist.ID, 5)
	require.NoError(t, err)

	executed, err := svc.Approve(nazerCtx(), dist.ID, 5)
	require.NoError(t, err)
	require.Equal(t, StatusExecuted, executed.Status)
	require.NotNil(t, executed.JournalEntryID)

	require.Len(t, led.postings, 1)
	posting := led.postings[0]
	require.NoError(t, posting.Validate())
	// aggregated entry: 1 debit + nazer + charity + 3 beneficiaries
	require.Len(t, posting.Lines, 6)

	require.Len(t, exporter.batches, 1)
	require.Len(t, exporter.batches[0], 3)
	total := decimal.Zero
	for _, rec := range exporter.batches[0] {
		total = total.Add(rec.Amount)
	}
	require.True(t, total.Equal(dec("850000")), "payout total: %s", total)
}

func TestApproveRequiresNazerRole(t *testing.T) {
	repo := newMemoryDistRepo()
	svc := testService(repo, &fakeLedger{}, nil, equalWeightBeneficiaries(3))

	dist := calculateFixture(t, svc)
	_, err := svc.Submit(context.Background(), dist.ID, 5)
	require.NoError(t, err)

	viewer := shared.ContextWithPrincipal(context.Background(), shared.Principal{UserID: 9, Role: shared.RoleViewer})
	_, err = svc.Approve(viewer, dist.ID, 9)
	require.ErrorIs(t, err, shared.ErrForbidden)
	stored, err := repo.Get(context.Background(), dist.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, stored.Status)
}

func TestApprovePostingFailureRollsBack(t *testing.T) {
	repo := newMemoryDistRepo()
	led := &fakeLedger{postErr: ledger.ErrPeriodClosed}
	svc := testService(repo, led, nil, equalWeightBeneficiaries(3))

	dist := calculateFixture(t, svc)
	_, err := svc.Submit(context.Background(), dist.ID, 5)
	require.NoError(t, err)

	_, err = svc.Approve(nazerCtx(), dist.ID, 5)
	require.ErrorIs(t, err, ledger.ErrPeriodClosed)

	stored, err := repo.Get(context.Background(), dist.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, stored.Status)
	require.Nil(t, stored.JournalEntryID)
}

func TestApproveCompensatesWhenCommitFails(t *testing.T) {
	repo := newMemoryDistRepo()
	repo.failSetStatus = StatusExecuted
	led := &fakeLedger{}
	svc := testService(repo, led, nil, equalWeightBeneficiaries(3))

	dist := calculateFixture(t, svc)
	_, err := svc.Submit(context.Background(), dist.ID, 5)
	require.NoError(t, err)

	_, err = svc.Approve(nazerCtx(), dist.ID, 5)
	require.Error(t, err)
	require.Len(t, led.postings, 1)
	require.Len(t, led.reversals, 1, "posted entry must be compensated")

	stored, err := repo.Get(context.Background(), dist.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, stored.Status)
}

func TestRejectLeavesLedgerUntouched(t *testing.T) {
	repo := newMemoryDistRepo()
	led := &fakeLedger{}
	svc := testService(repo, led, nil, equalWeightBeneficiaries(3))

	dist := calculateFixture(t, svc)
	_, err := svc.Submit(context.Background(), dist.ID, 5)
	require.NoError(t, err)

	rejected, err := svc.Reject(nazerCtx(), dist.ID, 5, "numbers off")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Empty(t, led.postings)
}

func TestCancelExecutedIssuesReversal(t *testing.T) {
	repo := newMemoryDistRepo()
	led := &fakeLedger{}
	svc := testService(repo, led, nil, equalWeightBeneficiaries(3))

	dist := calculateFixture(t, svc)
	_, err := svc.Submit(context.Background(), dist.ID, 5)
	require.NoError(t, err)
	_, err = svc.Approve(nazerCtx(), dist.ID, 5)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(nazerCtx(), dist.ID, 5, "clawback")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Len(t, led.reversals, 1)
	require.Equal(t, *dist.JournalEntryID, led.reversals[0].EntryID)
}

func TestCancelRejectedFails(t *testing.T) {
	repo := newMemoryDistRepo()
	svc := testService(repo, &fakeLedger{}, nil, equalWeightBeneficiaries(3))

	dist := calculateFixture(t, svc)
	_, err := svc.Submit(context.Background(), dist.ID, 5)
	require.NoError(t, err)
	_, err = svc.Reject(nazerCtx(), dist.ID, 5, "")
	require.NoError(t, err)

	_, err = svc.Cancel(nazerCtx(), dist.ID, 5, "")
	require.ErrorIs(t, err, ErrInvalidStatus)
}
