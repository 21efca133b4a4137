package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/amanah-erp/amanah-erp/internal/platform/cache"
	"github.com/amanah-erp/amanah-erp/internal/shared"
)

// Repository is the persistence port for reconciliation.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	ListUnmatchedTransactions(ctx context.Context, statementID int64) ([]BankTransaction, error)
	CandidateEntries(ctx context.Context, from, to time.Time) ([]CandidateEntry, error)
	GetTransaction(ctx context.Context, id int64) (BankTransaction, error)
	ListMatches(ctx context.Context, statementID int64) ([]Match, error)
	OpenStatements(ctx context.Context) ([]int64, error)
}

// TxRepository exposes mutations available inside a transaction.
type TxRepository interface {
	GetTransactionForUpdate(ctx context.Context, id int64) (BankTransaction, error)
	EntryMatched(ctx context.Context, entryID int64) (bool, error)
	InsertMatch(ctx context.Context, m Match) (Match, error)
	MarkTransactionMatched(ctx context.Context, txID int64) error
}

// AuditPort records audit trail entries after commits.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

const scoreConcurrency = 8

// Service runs the matcher.
type Service struct {
	repo    Repository
	lock    *cache.Lock
	breaker *gobreaker.CircuitBreaker
	audit   AuditPort
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs a reconciliation Service. lock and breaker may be
// nil; manual matching then relies on the uniqueness constraint alone.
func NewService(repo Repository, lock *cache.Lock, breaker *gobreaker.CircuitBreaker, audit AuditPort, cfg Config, logger *slog.Logger) *Service {
	if cfg.WindowDays <= 0 {
		cfg = DefaultConfig()
	}
	return &Service{
		repo:    repo,
		lock:    lock,
		breaker: breaker,
		audit:   audit,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Config returns the active matcher configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// OpenStatements lists statements that still carry unmatched transactions.
func (s *Service) OpenStatements(ctx context.Context) ([]int64, error) {
	return s.repo.OpenStatements(ctx)
}

// ListMatches returns the confirmed matches of a statement.
func (s *Service) ListMatches(ctx context.Context, statementID int64) ([]Match, error) {
	return s.repo.ListMatches(ctx, statementID)
}

// AutoMatch scores every unmatched transaction of the statement against
// posted entries inside the date window and returns ranked suggestions at
// or above the floor. It is read-only: rerunning it without confirming
// anything yields identical output. Scoring fans out per transaction;
// results land in indexed slots so the ordering stays deterministic.
func (s *Service) AutoMatch(ctx context.Context, statementID int64) ([]Suggestion, error) {
	txs, err := s.repo.ListUnmatchedTransactions(ctx, statementID)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}

	results := make([][]Suggestion, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scoreConcurrency)
	for i, tx := range txs {
		g.Go(func() error {
			window := time.Duration(s.cfg.WindowDays) * 24 * time.Hour
			candidates, err := s.repo.CandidateEntries(gctx, tx.Date.Add(-window), tx.Date.Add(window))
			if err != nil {
				return err
			}
			var ranked []Suggestion
			for _, entry := range candidates {
				score := Score(tx, entry, s.cfg.WindowDays)
				if score >= s.cfg.Floor {
					ranked = append(ranked, Suggestion{
						BankTransactionID: tx.ID,
						JournalEntryID:    entry.ID,
						EntryDate:         entry.Date,
						Score:             score,
					})
				}
			}
			sortSuggestions(ranked)
			results[i] = ranked
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Suggestion
	for _, ranked := range results {
		out = append(out, ranked...)
	}
	return out, nil
}

// ManualMatch confirms one pair. The redis lock narrows the race window
// between concurrent callers; the repository's uniqueness constraint stays
// authoritative, so losing the race still fails with ErrDuplicateMatch and
// leaves the existing match untouched.
func (s *Service) ManualMatch(ctx context.Context, in ManualMatchInput) (Match, error) {
	if err := in.Validate(); err != nil {
		return Match{}, err
	}

	key := fmt.Sprintf("recon:match:%d:%d", in.BankTransactionID, in.JournalEntryID)
	if acquired, err := s.acquireLock(ctx, key); err == nil {
		if !acquired {
			return Match{}, ErrPairLocked
		}
		defer func() {
			if err := s.lock.Release(ctx, key); err != nil && s.logger != nil {
				s.logger.Warn("release match lock", slog.Any("error", err))
			}
		}()
	} else if s.logger != nil {
		// Redis being down must not block reconciliation.
		s.logger.Warn("match lock unavailable", slog.Any("error", err))
	}

	var match Match
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bankTx, err := tx.GetTransactionForUpdate(ctx, in.BankTransactionID)
		if err != nil {
			return err
		}
		if bankTx.Matched {
			return ErrDuplicateMatch
		}
		entryTaken, err := tx.EntryMatched(ctx, in.JournalEntryID)
		if err != nil {
			return err
		}
		if entryTaken {
			return ErrDuplicateMatch
		}
		match, err = tx.InsertMatch(ctx, Match{
			BankTransactionID: in.BankTransactionID,
			JournalEntryID:    in.JournalEntryID,
			Type:              MatchTypeManual,
			Notes:             in.Notes,
			MatchedBy:         in.ActorID,
			MatchedAt:         s.now(),
		})
		if err != nil {
			return err
		}
		return tx.MarkTransactionMatched(ctx, in.BankTransactionID)
	})
	if err != nil {
		return Match{}, err
	}

	s.recordAudit(ctx, match)
	return match, nil
}

// AutoAccept runs the matcher and confirms suggestions scoring at or
// above the configured auto-accept threshold. Everything below stays
// advisory. The background scan is the only caller; losing a race to a
// manual confirmation is not an error.
func (s *Service) AutoAccept(ctx context.Context, statementID int64) (int, error) {
	suggestions, err := s.AutoMatch(ctx, statementID)
	if err != nil {
		return 0, err
	}
	accepted := 0
	taken := make(map[int64]bool)
	for _, suggestion := range suggestions {
		if suggestion.Score < s.cfg.AutoAcceptThreshold {
			continue
		}
		if taken[suggestion.BankTransactionID] || taken[-suggestion.JournalEntryID] {
			continue
		}
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			bankTx, err := tx.GetTransactionForUpdate(ctx, suggestion.BankTransactionID)
			if err != nil {
				return err
			}
			if bankTx.Matched {
				return ErrDuplicateMatch
			}
			entryTaken, err := tx.EntryMatched(ctx, suggestion.JournalEntryID)
			if err != nil {
				return err
			}
			if entryTaken {
				return ErrDuplicateMatch
			}
			if _, err := tx.InsertMatch(ctx, Match{
				BankTransactionID: suggestion.BankTransactionID,
				JournalEntryID:    suggestion.JournalEntryID,
				Type:              MatchTypeAuto,
				Confidence:        suggestion.Score,
				MatchedAt:         s.now(),
			}); err != nil {
				return err
			}
			return tx.MarkTransactionMatched(ctx, suggestion.BankTransactionID)
		})
		switch {
		case err == nil:
			taken[suggestion.BankTransactionID] = true
			taken[-suggestion.JournalEntryID] = true
			accepted++
		case errors.Is(err, ErrDuplicateMatch):
			continue
		default:
			return accepted, err
		}
	}
	return accepted, nil
}

// acquireLock takes the advisory lock through the circuit breaker so a
// flapping redis does not slow every confirmation down.
func (s *Service) acquireLock(ctx context.Context, key string) (bool, error) {
	if s.lock == nil {
		return true, nil
	}
	if s.breaker == nil {
		return s.lock.Acquire(ctx, key)
	}
	res, err := s.breaker.Execute(func() (any, error) {
		ok, err := s.lock.Acquire(ctx, key)
		return ok, err
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (s *Service) recordAudit(ctx context.Context, match Match) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  match.MatchedBy,
		Action:   "reconciliation.match",
		Entity:   "reconciliation_matches",
		EntityID: fmt.Sprint(match.ID),
		At:       s.now(),
		Meta: map[string]any{
			"bank_transaction_id": match.BankTransactionID,
			"journal_entry_id":    match.JournalEntryID,
			"type":                string(match.Type),
		},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.Any("error", err))
	}
}

func sortSuggestions(ranked []Suggestion) {
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].EntryDate.Equal(ranked[j].EntryDate) {
			return ranked[i].EntryDate.Before(ranked[j].EntryDate)
		}
		return ranked[i].JournalEntryID < ranked[j].JournalEntryID
	})
}
