package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/tinoosan/accounts-ledger/internal/meta"
)

// MaxAccountNumberLen bounds the length of an account number in characters.
const MaxAccountNumberLen = 32

// TransactionType enumerates the kinds of balance mutation recorded in the journal.
type TransactionType string

const (
	// TransactionDeposit credits a single account.
	TransactionDeposit TransactionType = "deposit"
	// TransactionWithdrawal debits a single account.
	TransactionWithdrawal TransactionType = "withdrawal"
	// TransactionTransfer moves funds between two accounts; both legs live in one record.
	TransactionTransfer TransactionType = "transfer"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionDeposit, TransactionWithdrawal, TransactionTransfer:
		return true
	}
	return false
}

// Account is a balance holder identified by an opaque ID and a unique account number.
type Account struct {
	ID            uuid.UUID
	AccountNumber string
	// Balance is never negative.
	Balance   money.Amount
	CreatedAt time.Time
	UpdatedAt time.Time
	// Version is the optimistic concurrency token; stores bump it on every write.
	Version int64
}

// Transaction is an immutable audit record of one balance mutation.
type Transaction struct {
	ID        uuid.UUID
	Type      TransactionType
	Amount    money.Amount
	Timestamp time.Time
	// AccountID is set for deposits and withdrawals.
	AccountID *uuid.UUID
	// FromAccountID and ToAccountID are set for transfers.
	FromAccountID *uuid.UUID
	ToAccountID   *uuid.UUID
	Metadata      meta.Metadata
}

// Involves reports whether the transaction touched the given account.
func (t Transaction) Involves(accountID uuid.UUID) bool {
	for _, p := range []*uuid.UUID{t.AccountID, t.FromAccountID, t.ToAccountID} {
		if p != nil && *p == accountID {
			return true
		}
	}
	return false
}

// AccountIDs returns the accounts referenced by the transaction.
func (t Transaction) AccountIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, 2)
	for _, p := range []*uuid.UUID{t.AccountID, t.FromAccountID, t.ToAccountID} {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// IDPtr returns a pointer to a copy of id.
func IDPtr(id uuid.UUID) *uuid.UUID { return &id }
