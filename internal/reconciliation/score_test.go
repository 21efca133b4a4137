package reconciliation

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func mustDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func bankTx(amount, date, ref string) BankTransaction {
	return BankTransaction{ID: 1, Amount: dec(amount), Date: mustDate(date), Reference: ref}
}

func candidate(id int64, amount, date, memo string) CandidateEntry {
	return CandidateEntry{ID: id, Amount: dec(amount), Date: mustDate(date), Memo: memo}
}

func TestScorePerfectMatch(t *testing.T) {
	tx := bankTx("1500.00", "2025-03-10", "INV-2025-0042 rent march")
	entry := candidate(7, "1500.00", "2025-03-10", "rent march inv-2025-0042")
	require.InDelta(t, 1.0, Score(tx, entry, 5), 1e-9)
}

func TestScoreAmountOnly(t *testing.T) {
	tx := bankTx("1500.00", "2025-03-10", "TRF 99812")
	entry := candidate(7, "1500.00", "2025-03-30", "quarterly maintenance")
	require.InDelta(t, 0.40, Score(tx, entry, 5), 1e-9)
}

func TestScoreDateDecay(t *testing.T) {
	tx := bankTx("100.00", "2025-03-10", "x")
	for days, want := range map[string]float64{
		"2025-03-10": 0.30,
		"2025-03-12": 0.30 * (1 - 2.0/5.0),
		"2025-03-15": 0,
	} {
		entry := candidate(1, "999.00", days, "y")
		require.InDelta(t, 0.40*0+want, Score(tx, entry, 5), 1e-9, "entry date %s", days)
	}
}

func TestDaysBetweenUsesCalendarDates(t *testing.T) {
	// Adjacent calendar days two clock-hours apart: a 24h-span count
	// would report zero days.
	late := time.Date(2025, 3, 10, 23, 0, 0, 0, time.FixedZone("CET", 3600))
	early := time.Date(2025, 3, 11, 1, 0, 0, 0, time.FixedZone("CET", 3600))
	require.Equal(t, 1, daysBetween(early, late))
	require.Equal(t, 1, daysBetween(late, early))

	// A 23-hour day around a DST spring-forward still counts as one day.
	before := time.Date(2025, 3, 29, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	after := time.Date(2025, 3, 30, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	require.Equal(t, 1, daysBetween(after, before))

	require.Equal(t, 0, daysBetween(late, late))
}

func TestScoreTokenTypoTolerance(t *testing.T) {
	tx := bankTx("50.00", "2025-03-10", "WAQF RENTAL")
	exact := candidate(1, "10.00", "2025-04-20", "waqf rental")
	typo := candidate(2, "10.00", "2025-04-20", "waqf rentl")
	unrelated := candidate(3, "10.00", "2025-04-20", "zakat payout")

	require.InDelta(t, 0.30, Score(tx, exact, 5), 1e-9)
	require.InDelta(t, 0.30, Score(tx, typo, 5), 1e-9, "single-character edits must still match")
	require.InDelta(t, 0, Score(tx, unrelated, 5), 1e-9)
}

func TestScorePartialOverlap(t *testing.T) {
	tx := bankTx("50.00", "2025-03-10", "rent shop12")
	entry := candidate(1, "10.00", "2025-04-20", "rent utilities deposit")
	// intersection {rent} over union {rent, shop12, utilities, deposit}
	require.InDelta(t, 0.30*0.25, Score(tx, entry, 5), 1e-9)
}

func TestScoreStaysInUnitInterval(t *testing.T) {
	dates := []string{"2025-01-01", "2025-03-10", "2025-12-31"}
	refs := []string{"", "a", "INV-1 INV-2 INV-3", "completely unrelated text"}
	tx := bankTx("123.45", "2025-03-10", "INV-1 settlement")
	id := int64(0)
	for _, d := range dates {
		for _, ref := range refs {
			id++
			entry := candidate(id, fmt.Sprint(id), d, ref)
			score := Score(tx, entry, 5)
			require.GreaterOrEqual(t, score, 0.0)
			require.LessOrEqual(t, score, 1.0)
		}
	}
}
