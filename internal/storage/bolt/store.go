// Package bolt provides an embedded, single-file store on bbolt. Every write
// runs in one bbolt update transaction, so it applies fully or not at all.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	bolt "go.etcd.io/bbolt"

	"github.com/tinoosan/accounts-ledger/internal/errs"
	"github.com/tinoosan/accounts-ledger/internal/ledger"
	"github.com/tinoosan/accounts-ledger/internal/meta"
)

var (
	accountsBucketName   = []byte("accounts")
	numbersBucketName    = []byte("account_numbers")
	txBucketName         = []byte("transactions")
	txIDsBucketName      = []byte("transaction_ids")
	accountTxsBucketName = []byte("account_transactions")
)

type accountRecord struct {
	ID            uuid.UUID `json:"id"`
	AccountNumber string    `json:"account_number"`
	Currency      string    `json:"currency"`
	BalanceMinor  int64     `json:"balance_minor"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type txRecord struct {
	ID            uuid.UUID     `json:"id"`
	Type          string        `json:"type"`
	AmountMinor   int64         `json:"amount_minor"`
	Currency      string        `json:"currency"`
	Timestamp     time.Time     `json:"ts"`
	AccountID     *uuid.UUID    `json:"account_id,omitempty"`
	FromAccountID *uuid.UUID    `json:"from_account_id,omitempty"`
	ToAccountID   *uuid.UUID    `json:"to_account_id,omitempty"`
	Metadata      meta.Metadata `json:"metadata,omitempty"`
}

// Store implements the account and journal repositories on a bbolt file.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file at path and ensures the buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{accountsBucketName, numbersBucketName, txBucketName, txIDsBucketName, accountTxsBucketName} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database file.
func (s *Store) Close() error { return s.db.Close() }

// Ready verifies the file is still readable.
func (s *Store) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(accountsBucketName) == nil {
			return errors.New("accounts bucket missing")
		}
		return nil
	})
}

// GetAccount fetches a single account by id.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	var rec accountRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return getAccount(tx, id, &rec)
	})
	if err != nil {
		return ledger.Account{}, err
	}
	return rec.toAccount()
}

// GetAccountByNumber fetches a single account by its unique number.
func (s *Store) GetAccountByNumber(ctx context.Context, number string) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	var rec accountRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(numbersBucketName).Get([]byte(number))
		if raw == nil {
			return errs.ErrNotFound
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return err
		}
		return getAccount(tx, id, &rec)
	})
	if err != nil {
		return ledger.Account{}, err
	}
	return rec.toAccount()
}

// ListAccounts returns all accounts ordered by creation time.
func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var recs []accountRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(accountsBucketName).ForEach(func(_, v []byte) error {
			var rec accountRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID.String() < recs[j].ID.String()
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	out := make([]ledger.Account, 0, len(recs))
	for _, rec := range recs {
		a, err := rec.toAccount()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// CreateAccount inserts the account and its optional opening deposit.
func (s *Store) CreateAccount(ctx context.Context, a ledger.Account, opening *ledger.Transaction) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	a.Version = 1
	err := s.db.Update(func(tx *bolt.Tx) error {
		numbers := tx.Bucket(numbersBucketName)
		if numbers.Get([]byte(a.AccountNumber)) != nil {
			return errs.ErrConflict
		}
		if tx.Bucket(accountsBucketName).Get(a.ID[:]) != nil {
			return errs.ErrConflict
		}
		rec, err := fromAccount(a)
		if err != nil {
			return err
		}
		if err := putAccount(tx, rec); err != nil {
			return err
		}
		if err := numbers.Put([]byte(a.AccountNumber), a.ID[:]); err != nil {
			return err
		}
		if opening == nil {
			return nil
		}
		return putTx(tx, *opening)
	})
	if err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

// ApplyMutation writes the new balances guarded by each account's version and records t.
func (s *Store) ApplyMutation(ctx context.Context, accounts []ledger.Account, t ledger.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, a := range accounts {
			var cur accountRecord
			if err := getAccount(tx, a.ID, &cur); err != nil {
				return err
			}
			if cur.Version != a.Version {
				return errs.ErrStale
			}
			next, err := fromAccount(a)
			if err != nil {
				return err
			}
			next.Version = cur.Version + 1
			if err := putAccount(tx, next); err != nil {
				return err
			}
		}
		return putTx(tx, t)
	})
}

// ListTransactions returns every transaction touching accountID, oldest first.
func (s *Store) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []ledger.Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket(accountTxsBucketName).Bucket(accountID[:])
		if idx == nil {
			return nil
		}
		txs := tx.Bucket(txBucketName)
		return idx.ForEach(func(seq, _ []byte) error {
			t, err := decodeTx(txs.Get(seq))
			if err != nil {
				return err
			}
			out = append(out, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return []ledger.Transaction{}, nil
	}
	// index keys are sequence numbers, so the stable sort keeps write order for equal timestamps
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// GetTransaction fetches a single transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Transaction{}, err
	}
	var t ledger.Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		seq := tx.Bucket(txIDsBucketName).Get(id[:])
		if seq == nil {
			return errs.ErrNotFound
		}
		var err error
		t, err = decodeTx(tx.Bucket(txBucketName).Get(seq))
		return err
	})
	return t, err
}

func getAccount(tx *bolt.Tx, id uuid.UUID, rec *accountRecord) error {
	raw := tx.Bucket(accountsBucketName).Get(id[:])
	if raw == nil {
		return errs.ErrNotFound
	}
	return json.Unmarshal(raw, rec)
}

func putAccount(tx *bolt.Tx, rec accountRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(accountsBucketName).Put(rec.ID[:], raw)
}

// putTx appends t under the next sequence number and indexes it per account.
func putTx(tx *bolt.Tx, t ledger.Transaction) error {
	ids := tx.Bucket(txIDsBucketName)
	if ids.Get(t.ID[:]) != nil {
		return errs.ErrConflict
	}
	txs := tx.Bucket(txBucketName)
	n, err := txs.NextSequence()
	if err != nil {
		return err
	}
	units, err := ledger.StoredUnits(t.Amount)
	if err != nil {
		return err
	}
	seq := itob(n)
	raw, err := json.Marshal(txRecord{
		ID:            t.ID,
		Type:          string(t.Type),
		AmountMinor:   units,
		Currency:      t.Amount.Curr().Code(),
		Timestamp:     t.Timestamp,
		AccountID:     t.AccountID,
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Metadata:      t.Metadata,
	})
	if err != nil {
		return err
	}
	if err := txs.Put(seq, raw); err != nil {
		return err
	}
	if err := ids.Put(t.ID[:], seq); err != nil {
		return err
	}
	for _, id := range t.AccountIDs() {
		idx, err := tx.Bucket(accountTxsBucketName).CreateBucketIfNotExists(id[:])
		if err != nil {
			return err
		}
		if err := idx.Put(seq, t.ID[:]); err != nil {
			return err
		}
	}
	return nil
}

func decodeTx(raw []byte) (ledger.Transaction, error) {
	if raw == nil {
		return ledger.Transaction{}, errs.ErrNotFound
	}
	var rec txRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ledger.Transaction{}, err
	}
	amt, err := money.NewAmountFromMinorUnits(rec.Currency, rec.AmountMinor)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("transaction %s amount: %w", rec.ID, err)
	}
	return ledger.Transaction{
		ID:            rec.ID,
		Type:          ledger.TransactionType(rec.Type),
		Amount:        amt,
		Timestamp:     rec.Timestamp.UTC(),
		AccountID:     rec.AccountID,
		FromAccountID: rec.FromAccountID,
		ToAccountID:   rec.ToAccountID,
		Metadata:      rec.Metadata,
	}, nil
}

func fromAccount(a ledger.Account) (accountRecord, error) {
	units, err := ledger.StoredUnits(a.Balance)
	if err != nil {
		return accountRecord{}, fmt.Errorf("account %s balance: %w", a.ID, err)
	}
	return accountRecord{
		ID:            a.ID,
		AccountNumber: a.AccountNumber,
		Currency:      a.Balance.Curr().Code(),
		BalanceMinor:  units,
		Version:       a.Version,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}, nil
}

func (r accountRecord) toAccount() (ledger.Account, error) {
	bal, err := money.NewAmountFromMinorUnits(r.Currency, r.BalanceMinor)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("account %s balance: %w", r.ID, err)
	}
	return ledger.Account{
		ID:            r.ID,
		AccountNumber: r.AccountNumber,
		Balance:       bal,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
		Version:       r.Version,
	}, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
