// Package memory provides an in-memory store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/accounts-ledger/internal/errs"
	"github.com/tinoosan/accounts-ledger/internal/ledger"
)

// txKey orders transactions per account: asc by Timestamp, then write order.
type txKey struct {
	Timestamp time.Time
	ID        uuid.UUID
}

// Store is an in-memory implementation of the account and journal repositories.
// It is guarded by an RWMutex; every write applies fully or not at all.
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]ledger.Account
	byNumber map[string]uuid.UUID
	txs      map[uuid.UUID]ledger.Transaction
	// per-account sorted index of transactions
	txKeysByAccount map[uuid.UUID][]txKey
}

// New constructs an empty in-memory store.
func New() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset drops all data.
func (s *Store) Reset() {
	s.mu.Lock()
	s.accounts = map[uuid.UUID]ledger.Account{}
	s.byNumber = map[string]uuid.UUID{}
	s.txs = map[uuid.UUID]ledger.Transaction{}
	s.txKeysByAccount = map[uuid.UUID][]txKey{}
	s.mu.Unlock()
}

// Ready always succeeds.
func (s *Store) Ready(context.Context) error { return nil }

// GetAccount returns an account by ID.
func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

// GetAccountByNumber returns an account by its unique number.
func (s *Store) GetAccountByNumber(_ context.Context, number string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNumber[number]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return s.accounts[id], nil
}

// ListAccounts returns all accounts ordered by (CreatedAt, ID).
func (s *Store) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CreateAccount inserts a together with its optional opening deposit.
func (s *Store) CreateAccount(_ context.Context, a ledger.Account, opening *ledger.Transaction) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byNumber[a.AccountNumber]; taken {
		return ledger.Account{}, errs.ErrConflict
	}
	if _, taken := s.accounts[a.ID]; taken {
		return ledger.Account{}, errs.ErrConflict
	}
	if _, err := ledger.StoredUnits(a.Balance); err != nil {
		return ledger.Account{}, fmt.Errorf("account %s balance: %w", a.ID, err)
	}
	if opening != nil {
		if _, err := ledger.StoredUnits(opening.Amount); err != nil {
			return ledger.Account{}, err
		}
	}
	a.Version = 1
	s.accounts[a.ID] = a
	s.byNumber[a.AccountNumber] = a.ID
	if opening != nil {
		s.insertTxLocked(*opening)
	}
	return a, nil
}

// ApplyMutation writes the given account balances and records tx. The stored
// Version of every account must equal the supplied one.
func (s *Store) ApplyMutation(_ context.Context, accounts []ledger.Account, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.txs[tx.ID]; dup {
		return errs.ErrConflict
	}
	if _, err := ledger.StoredUnits(tx.Amount); err != nil {
		return err
	}
	for _, a := range accounts {
		cur, ok := s.accounts[a.ID]
		if !ok {
			return errs.ErrNotFound
		}
		if cur.Version != a.Version {
			return errs.ErrStale
		}
		if _, err := ledger.StoredUnits(a.Balance); err != nil {
			return fmt.Errorf("account %s balance: %w", a.ID, err)
		}
	}
	for _, a := range accounts {
		a.Version++
		s.accounts[a.ID] = a
	}
	s.insertTxLocked(tx)
	return nil
}

// ListTransactions returns the transactions involving accountID, oldest first.
func (s *Store) ListTransactions(_ context.Context, accountID uuid.UUID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.txKeysByAccount[accountID]
	out := make([]ledger.Transaction, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.txs[k.ID])
	}
	return out, nil
}

// GetTransaction returns a transaction by ID.
func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txs[id]
	if !ok {
		return ledger.Transaction{}, errs.ErrNotFound
	}
	return t, nil
}

// CountTransactions returns the size of the journal.
func (s *Store) CountTransactions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}

// insertTxLocked records t and indexes it under every account it touches.
// Caller must hold s.mu (write lock).
func (s *Store) insertTxLocked(t ledger.Transaction) {
	t.Metadata = t.Metadata.Clone()
	s.txs[t.ID] = t
	k := txKey{Timestamp: t.Timestamp, ID: t.ID}
	for _, id := range t.AccountIDs() {
		keys := s.txKeysByAccount[id]
		// insert after equal timestamps so ties keep write order
		i := sort.Search(len(keys), func(i int) bool { return keys[i].Timestamp.After(k.Timestamp) })
		keys = append(keys, txKey{})
		copy(keys[i+1:], keys[i:])
		keys[i] = k
		s.txKeysByAccount[id] = keys
	}
}
