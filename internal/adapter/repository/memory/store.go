// Package memory provides a transactional in-memory implementation of the
// repositories, used for development and tests.
//
// A single writer transaction is allowed at a time. Begin snapshots the state and
// Rollback restores it, so a failed operation leaves no partial writes. Reads
// outside a transaction see uncommitted writes of the open transaction.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

var errNoTx = errors.New("memory: write requires an open transaction")

type state struct {
	accounts     map[string]domain.Account
	transactions map[string]domain.Transaction
	entries      map[string]domain.JournalEntry
	periods      map[string]domain.FiscalPeriod
	auditLogs    map[string][]domain.AuditLog
	heads        map[string]domain.ChainHead
	checkpoints  map[string][]domain.AuditCheckpoint
	anomalies    map[string]domain.AnomalyDetection
	runs         map[string]domain.BooksCloseRun
	rules        map[string]domain.AnomalyRule
	outbox       map[string]domain.OutboxEvent
	entrySeq     map[string]int64
}

func newState() state {
	return state{
		accounts:     make(map[string]domain.Account),
		transactions: make(map[string]domain.Transaction),
		entries:      make(map[string]domain.JournalEntry),
		periods:      make(map[string]domain.FiscalPeriod),
		auditLogs:    make(map[string][]domain.AuditLog),
		heads:        make(map[string]domain.ChainHead),
		checkpoints:  make(map[string][]domain.AuditCheckpoint),
		anomalies:    make(map[string]domain.AnomalyDetection),
		runs:         make(map[string]domain.BooksCloseRun),
		rules:        make(map[string]domain.AnomalyRule),
		outbox:       make(map[string]domain.OutboxEvent),
		entrySeq:     make(map[string]int64),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies every map. Values are replaced on write, never mutated in place,
// and appended slices are restored by their saved length.
func (s state) clone() state {
	return state{
		accounts:     copyMap(s.accounts),
		transactions: copyMap(s.transactions),
		entries:      copyMap(s.entries),
		periods:      copyMap(s.periods),
		auditLogs:    copyMap(s.auditLogs),
		heads:        copyMap(s.heads),
		checkpoints:  copyMap(s.checkpoints),
		anomalies:    copyMap(s.anomalies),
		runs:         copyMap(s.runs),
		rules:        copyMap(s.rules),
		outbox:       copyMap(s.outbox),
		entrySeq:     copyMap(s.entrySeq),
	}
}

// Store holds all ledger state in memory.
type Store struct {
	sem chan struct{}
	mu  sync.RWMutex
	st  state
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		sem: make(chan struct{}, 1),
		st:  newState(),
	}
}

// Tx is an in-memory writer transaction.
type Tx struct {
	store    *Store
	snapshot state
	done     bool
}

// Begin waits for the writer slot and snapshots the current state.
func (s *Store) Begin(ctx context.Context) (usecase.Transaction, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	snap := s.st.clone()
	s.mu.RUnlock()

	return &Tx{store: s, snapshot: snap}, nil
}

// Commit keeps the writes and releases the writer slot.
func (t *Tx) Commit(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	<-t.store.sem
	return nil
}

// Rollback restores the snapshot taken at Begin. It is a no-op after Commit.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.store.mu.Lock()
	t.store.st = t.snapshot
	t.store.mu.Unlock()
	t.done = true
	<-t.store.sem
	return nil
}

func (s *Store) checkTx(tx usecase.Transaction) error {
	t, ok := tx.(*Tx)
	if !ok || t == nil || t.done || t.store != s {
		return errNoTx
	}
	return nil
}

// write runs fn with the state locked for writing inside an open transaction.
func (s *Store) write(tx usecase.Transaction, fn func(st *state) error) error {
	if err := s.checkTx(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.st)
}

func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.st)
}

// Accounts returns the account repository.
func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s: s} }

// Transactions returns the transaction repository.
func (s *Store) Transactions() *TransactionRepo { return &TransactionRepo{s: s} }

// Journal returns the journal entry repository.
func (s *Store) Journal() *JournalRepo { return &JournalRepo{s: s} }

// Periods returns the fiscal period repository.
func (s *Store) Periods() *PeriodRepo { return &PeriodRepo{s: s} }

// Audit returns the audit chain repository.
func (s *Store) Audit() *AuditRepo { return &AuditRepo{s: s} }

// Anomalies returns the anomaly repository.
func (s *Store) Anomalies() *AnomalyRepo { return &AnomalyRepo{s: s} }

// Runs returns the books close run repository.
func (s *Store) Runs() *RunRepo { return &RunRepo{s: s} }

// Rules returns the anomaly rule repository.
func (s *Store) Rules() *RuleRepo { return &RuleRepo{s: s} }

// Outbox returns the outbox repository.
func (s *Store) Outbox() *OutboxRepo { return &OutboxRepo{s: s} }

// TamperAuditLog modifies a stored audit record in place, bypassing the
// append-only repository. It simulates out-of-band edits in tests.
func (s *Store) TamperAuditLog(companyID string, sequence int64, fn func(*domain.AuditLog)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.st.auditLogs[companyID]
	if sequence < 1 || int(sequence) > len(logs) {
		return false
	}
	rec := logs[sequence-1]
	if rec.NewValues != nil {
		rec.NewValues = copyMap(rec.NewValues)
	}
	if rec.OldValues != nil {
		rec.OldValues = copyMap(rec.OldValues)
	}
	fn(&rec)
	logs[sequence-1] = rec
	return true
}
