// Package journal exposes read access to the transaction history and
// reconciles stored balances against it.
package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/accounts-ledger/internal/errs"
	"github.com/tinoosan/accounts-ledger/internal/ledger"
)

// Repo defines read operations needed by the service.
type Repo interface {
	// ListTransactions returns every transaction touching accountID, oldest first.
	ListTransactions(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, error)
}

// AccountReader resolves accounts so history requests for unknown IDs fail as not found.
type AccountReader interface {
	GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error)
}

// Reconciliation compares an account's stored balance with the one replayed from its history.
type Reconciliation struct {
	Account        ledger.Account
	JournalBalance money.Amount
}

// Consistent reports whether both balances agree.
func (r Reconciliation) Consistent() bool {
	c, err := r.Account.Balance.Cmp(r.JournalBalance)
	return err == nil && c == 0
}

type Service struct {
	repo     Repo
	accounts AccountReader
}

func New(repo Repo, accounts AccountReader) *Service {
	return &Service{repo: repo, accounts: accounts}
}

// ListByAccount returns the history of one account.
func (s *Service) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error) {
	if _, err := s.account(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, accountID)
}

// Get returns a single transaction.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (ledger.Transaction, error) {
	t, err := s.repo.GetTransaction(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return ledger.Transaction{}, errs.Wrap(errs.ErrNotFound, "transaction not found")
	}
	return t, err
}

// Reconcile replays the account's history: deposits and incoming transfers
// add, withdrawals and outgoing transfers subtract.
func (s *Service) Reconcile(ctx context.Context, accountID uuid.UUID) (Reconciliation, error) {
	acc, err := s.account(ctx, accountID)
	if err != nil {
		return Reconciliation{}, err
	}
	txs, err := s.repo.ListTransactions(ctx, accountID)
	if err != nil {
		return Reconciliation{}, err
	}
	var net int64
	for _, t := range txs {
		if !ledger.InRange(t.Amount) {
			return Reconciliation{}, fmt.Errorf("transaction %s: %w", t.ID, ledger.ErrAmountRange)
		}
		net += Effect(t, accountID)
	}
	bal, err := money.NewAmountFromMinorUnits(acc.Balance.Curr().Code(), net)
	if err != nil {
		return Reconciliation{}, err
	}
	return Reconciliation{Account: acc, JournalBalance: bal}, nil
}

// Effect returns the signed change, in minor units, that t applied to accountID.
func Effect(t ledger.Transaction, accountID uuid.UUID) int64 {
	units := ledger.MinorUnits(t.Amount)
	switch t.Type {
	case ledger.TransactionDeposit:
		if t.AccountID != nil && *t.AccountID == accountID {
			return units
		}
	case ledger.TransactionWithdrawal:
		if t.AccountID != nil && *t.AccountID == accountID {
			return -units
		}
	case ledger.TransactionTransfer:
		var d int64
		if t.FromAccountID != nil && *t.FromAccountID == accountID {
			d -= units
		}
		if t.ToAccountID != nil && *t.ToAccountID == accountID {
			d += units
		}
		return d
	}
	return 0
}

func (s *Service) account(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	acc, err := s.accounts.GetAccount(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return ledger.Account{}, errs.Wrap(errs.ErrNotFound, "account not found")
	}
	return acc, err
}
