// Package postgres provides a pgx-backed store for accounts and their
// transaction journal. The schema lives in migrations/ and is applied by Migrate.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinoosan/accounts-ledger/internal/errs"
	"github.com/tinoosan/accounts-ledger/internal/ledger"
	"github.com/tinoosan/accounts-ledger/internal/meta"
)

const uniqueViolation = "23505"

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

const accountCols = `id, account_number, currency, balance_minor, version, created_at, updated_at`

const txCols = `id, type, amount_minor, currency, ts, account_id, from_account_id, to_account_id, metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

// --- Account reads ---

// GetAccount fetches a single account by id.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	row := s.pool.QueryRow(ctx, `select `+accountCols+` from accounts where id = $1`, id)
	return scanAccount(row)
}

// GetAccountByNumber fetches a single account by its unique number.
func (s *Store) GetAccountByNumber(ctx context.Context, number string) (ledger.Account, error) {
	row := s.pool.QueryRow(ctx, `select `+accountCols+` from accounts where account_number = $1`, number)
	return scanAccount(row)
}

// ListAccounts returns all accounts ordered by creation time.
func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.pool.Query(ctx, `select `+accountCols+` from accounts order by created_at asc, id asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Account writes ---

// CreateAccount inserts the account row and its optional opening deposit in one transaction.
func (s *Store) CreateAccount(ctx context.Context, a ledger.Account, opening *ledger.Transaction) (ledger.Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.Account{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	units, err := ledger.StoredUnits(a.Balance)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("account %s balance: %w", a.ID, err)
	}
	a.Version = 1
	_, err = tx.Exec(ctx, `
		insert into accounts (`+accountCols+`)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.AccountNumber, a.Balance.Curr().Code(), units, a.Version, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return ledger.Account{}, translate(err)
	}
	if opening != nil {
		if err := insertTx(ctx, tx, *opening); err != nil {
			return ledger.Account{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

// ApplyMutation updates balances guarded by each account's version and
// records t, all in one transaction.
func (s *Store) ApplyMutation(ctx context.Context, accounts []ledger.Account, t ledger.Transaction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, a := range accounts {
		units, err := ledger.StoredUnits(a.Balance)
		if err != nil {
			return fmt.Errorf("account %s balance: %w", a.ID, err)
		}
		ct, err := tx.Exec(ctx, `
			update accounts
			set balance_minor = $1, updated_at = $2, version = version + 1
			where id = $3 and version = $4
		`, units, a.UpdatedAt, a.ID, a.Version)
		if err != nil {
			return translate(err)
		}
		if ct.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `select exists(select 1 from accounts where id = $1)`, a.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return errs.ErrNotFound
			}
			return errs.ErrStale
		}
	}
	if err := insertTx(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- Transaction reads ---

// ListTransactions returns every transaction touching accountID, oldest first.
func (s *Store) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		select `+txCols+`
		from transactions
		where account_id = $1 or from_account_id = $1 or to_account_id = $1
		order by ts asc, seq asc
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Transaction, 0)
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTransaction fetches a single transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, error) {
	return scanTx(s.pool.QueryRow(ctx, `select `+txCols+` from transactions where id = $1`, id))
}

func insertTx(ctx context.Context, tx pgx.Tx, t ledger.Transaction) error {
	units, err := ledger.StoredUnits(t.Amount)
	if err != nil {
		return err
	}
	md, err := t.Metadata.MarshalStableJSON()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		insert into transactions (`+txCols+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, string(t.Type), units, t.Amount.Curr().Code(), t.Timestamp,
		t.AccountID, t.FromAccountID, t.ToAccountID, md)
	return translate(err)
}

func scanAccount(r rowScanner) (ledger.Account, error) {
	var a ledger.Account
	var curr string
	var units int64
	err := r.Scan(&a.ID, &a.AccountNumber, &curr, &units, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.Account{}, err
	}
	if a.Balance, err = money.NewAmountFromMinorUnits(curr, units); err != nil {
		return ledger.Account{}, fmt.Errorf("account %s balance: %w", a.ID, err)
	}
	a.CreatedAt, a.UpdatedAt = a.CreatedAt.UTC(), a.UpdatedAt.UTC()
	return a, nil
}

func scanTx(r rowScanner) (ledger.Transaction, error) {
	var t ledger.Transaction
	var typ, curr string
	var units int64
	var mdBytes []byte
	err := r.Scan(&t.ID, &typ, &units, &curr, &t.Timestamp, &t.AccountID, &t.FromAccountID, &t.ToAccountID, &mdBytes)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Transaction{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.Transaction{}, err
	}
	t.Type = ledger.TransactionType(typ)
	t.Timestamp = t.Timestamp.UTC()
	if t.Amount, err = money.NewAmountFromMinorUnits(curr, units); err != nil {
		return ledger.Transaction{}, fmt.Errorf("transaction %s amount: %w", t.ID, err)
	}
	if len(mdBytes) > 0 {
		var m meta.Metadata
		if err := m.UnmarshalJSON(mdBytes); err == nil {
			t.Metadata = m
		}
	}
	return t, nil
}

// translate maps unique-constraint violations to errs.ErrConflict.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errs.ErrConflict
	}
	return err
}
