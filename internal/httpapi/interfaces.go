package httpapi

import (
	"context"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/accounts-ledger/internal/ledger"
	"github.com/tinoosan/accounts-ledger/internal/meta"
	"github.com/tinoosan/accounts-ledger/internal/service/account"
	"github.com/tinoosan/accounts-ledger/internal/service/journal"
)

// AccountService is the engine surface the handlers call into.
type AccountService interface {
	// Currency is the ledger denomination request amounts are parsed in.
	Currency() string
	CreateAccount(ctx context.Context, number string, initial money.Amount) (ledger.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	GetAccountByNumber(ctx context.Context, number string) (ledger.Account, error)
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	Deposit(ctx context.Context, accountID uuid.UUID, amount money.Amount, md meta.Metadata) (money.Amount, error)
	Withdraw(ctx context.Context, accountID uuid.UUID, amount money.Amount, md meta.Metadata) (money.Amount, error)
	Transfer(ctx context.Context, fromID, toID uuid.UUID, amount money.Amount, md meta.Metadata) (account.TransferResult, error)
}

// JournalService exposes the transaction history.
type JournalService interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.Transaction, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (journal.Reconciliation, error)
}

// Readier reports whether the backing store can serve requests.
type Readier interface {
	Ready(ctx context.Context) error
}
