package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/accounts-ledger/internal/errs"
	"github.com/tinoosan/accounts-ledger/internal/ledger"
	"github.com/tinoosan/accounts-ledger/internal/meta"
	"github.com/tinoosan/accounts-ledger/internal/service/journal"
)

// amountInput keeps a request amount as written. Both JSON numbers and
// numeric strings are accepted; parsing into the ledger currency happens later.
type amountInput struct {
	raw string
	set bool
}

func (a *amountInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = amountInput{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amountInput{raw: s, set: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("amount must be a number or a numeric string")
	}
	*a = amountInput{raw: n.String(), set: true}
	return nil
}

// parse converts the input into curr. Missing input is an error unless a
// default is supplied.
func (a amountInput) parse(curr, field string, def *money.Amount) (money.Amount, error) {
	if !a.set {
		if def != nil {
			return *def, nil
		}
		return money.Amount{}, errs.Wrap(errs.ErrInvalid, field+" is required")
	}
	amt, err := ledger.ParseAmount(curr, a.raw)
	if err != nil {
		return money.Amount{}, errs.Wrap(errs.ErrInvalid, field+": "+err.Error())
	}
	return amt, nil
}

// jsonAmount renders as a JSON number with two fractional digits.
type jsonAmount money.Amount

func (a jsonAmount) MarshalJSON() ([]byte, error) {
	return []byte(ledger.FormatAmount(money.Amount(a))), nil
}

// Requests

type createAccountRequest struct {
	AccountNumber  string      `json:"accountNumber"`
	InitialBalance amountInput `json:"initialBalance"`
}

type movementRequest struct {
	Amount   amountInput       `json:"amount"`
	Metadata map[string]string `json:"metadata"`
}

type transferRequest struct {
	FromAccountID uuid.UUID         `json:"fromAccountId"`
	ToAccountID   uuid.UUID         `json:"toAccountId"`
	Amount        amountInput       `json:"amount"`
	Metadata      map[string]string `json:"metadata"`
}

// Responses

type accountResponse struct {
	ID            uuid.UUID  `json:"id"`
	AccountNumber string     `json:"accountNumber"`
	Balance       jsonAmount `json:"balance"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		ID:            a.ID,
		AccountNumber: a.AccountNumber,
		Balance:       jsonAmount(a.Balance),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

type balanceResponse struct {
	AccountID uuid.UUID  `json:"accountId"`
	Balance   jsonAmount `json:"balance"`
}

type transferResponse struct {
	FromAccountID uuid.UUID  `json:"fromAccountId"`
	ToAccountID   uuid.UUID  `json:"toAccountId"`
	FromBalance   jsonAmount `json:"fromBalance"`
	ToBalance     jsonAmount `json:"toBalance"`
}

type transactionResponse struct {
	ID            uuid.UUID              `json:"id"`
	Type          ledger.TransactionType `json:"type"`
	Amount        jsonAmount             `json:"amount"`
	Timestamp     time.Time              `json:"timestamp"`
	AccountID     *uuid.UUID             `json:"accountId,omitempty"`
	FromAccountID *uuid.UUID             `json:"fromAccountId,omitempty"`
	ToAccountID   *uuid.UUID             `json:"toAccountId,omitempty"`
	Metadata      meta.Metadata          `json:"metadata,omitempty"`
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		Type:          t.Type,
		Amount:        jsonAmount(t.Amount),
		Timestamp:     t.Timestamp,
		AccountID:     t.AccountID,
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Metadata:      t.Metadata,
	}
}

type reconciliationResponse struct {
	AccountID      uuid.UUID  `json:"accountId"`
	Balance        jsonAmount `json:"balance"`
	JournalBalance jsonAmount `json:"journalBalance"`
	Consistent     bool       `json:"consistent"`
}

func toReconciliationResponse(r journal.Reconciliation) reconciliationResponse {
	return reconciliationResponse{
		AccountID:      r.Account.ID,
		Balance:        jsonAmount(r.Account.Balance),
		JournalBalance: jsonAmount(r.JournalBalance),
		Consistent:     r.Consistent(),
	}
}
