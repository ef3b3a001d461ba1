// Package storetest holds the behaviour every store implementation must show.
// Store packages call Run from their own tests with a factory that returns an
// empty store.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/accounts-ledger/internal/errs"
	"github.com/tinoosan/accounts-ledger/internal/ledger"
	"github.com/tinoosan/accounts-ledger/internal/meta"
	"github.com/tinoosan/accounts-ledger/internal/service/account"
	"github.com/tinoosan/accounts-ledger/internal/service/journal"
)

// Store is the full surface a backing store provides.
type Store interface {
	account.Repo
	account.Writer
	journal.Repo
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newAccount(number string, units int64, at time.Time) ledger.Account {
	return ledger.Account{
		ID:            uuid.New(),
		AccountNumber: number,
		Balance:       ledger.MustAmount("USD", units),
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

func deposit(acc ledger.Account, units int64, at time.Time) ledger.Transaction {
	return ledger.Transaction{
		ID:        uuid.New(),
		Type:      ledger.TransactionDeposit,
		Amount:    ledger.MustAmount("USD", units),
		Timestamp: at,
		AccountID: ledger.IDPtr(acc.ID),
	}
}

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndRead", func(t *testing.T) { testCreateAndRead(t, newStore(t)) })
	t.Run("DuplicateNumber", func(t *testing.T) { testDuplicateNumber(t, newStore(t)) })
	t.Run("OpeningDeposit", func(t *testing.T) { testOpeningDeposit(t, newStore(t)) })
	t.Run("VersionedMutation", func(t *testing.T) { testVersionedMutation(t, newStore(t)) })
	t.Run("TransferAtomicity", func(t *testing.T) { testTransferAtomicity(t, newStore(t)) })
	t.Run("AmountRange", func(t *testing.T) { testAmountRange(t, newStore(t)) })
	t.Run("Engine", func(t *testing.T) { testEngine(t, newStore(t)) })
}

func testCreateAndRead(t *testing.T, s Store) {
	ctx := context.Background()
	second := newAccount("ACC-2", 0, base.Add(time.Second))
	first := newAccount("ACC-1", 1250, base)
	for _, a := range []ledger.Account{second, first} {
		if _, err := s.CreateAccount(ctx, a, nil); err != nil {
			t.Fatalf("create %s: %v", a.AccountNumber, err)
		}
	}

	got, err := s.GetAccount(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccountNumber != "ACC-1" || ledger.MinorUnits(got.Balance) != 1250 || !got.CreatedAt.Equal(base) {
		t.Fatalf("unexpected account: %+v", got)
	}
	if got.Version == 0 {
		t.Fatalf("version not initialised")
	}
	byNum, err := s.GetAccountByNumber(ctx, "ACC-2")
	if err != nil || byNum.ID != second.ID {
		t.Fatalf("get by number: %+v %v", byNum, err)
	}
	list, err := s.ListAccounts(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %d %v", len(list), err)
	}
	if list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("list not ordered by creation time")
	}
	if _, err := s.GetAccount(ctx, uuid.New()); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.GetAccountByNumber(ctx, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.GetTransaction(ctx, uuid.New()); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testDuplicateNumber(t *testing.T, s Store) {
	ctx := context.Background()
	if _, err := s.CreateAccount(ctx, newAccount("DUP", 100, base), nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := newAccount("DUP", 500, base)
	open := deposit(dup, 500, base)
	if _, err := s.CreateAccount(ctx, dup, &open); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := s.GetTransaction(ctx, open.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("opening deposit of rejected account was stored: %v", err)
	}
}

func testOpeningDeposit(t *testing.T, s Store) {
	ctx := context.Background()
	a := newAccount("OPEN", 900, base)
	open := deposit(a, 900, base)
	open.Metadata = meta.New(map[string]string{"source": "opening"})
	if _, err := s.CreateAccount(ctx, a, &open); err != nil {
		t.Fatalf("create: %v", err)
	}
	txs, err := s.ListTransactions(ctx, a.ID)
	if err != nil || len(txs) != 1 {
		t.Fatalf("transactions: %d %v", len(txs), err)
	}
	got := txs[0]
	if got.ID != open.ID || got.Type != ledger.TransactionDeposit || ledger.MinorUnits(got.Amount) != 900 {
		t.Fatalf("unexpected opening deposit: %+v", got)
	}
	if got.AccountID == nil || *got.AccountID != a.ID || got.FromAccountID != nil || got.ToAccountID != nil {
		t.Fatalf("unexpected attribution: %+v", got)
	}
	if got.Metadata["source"] != "opening" {
		t.Fatalf("metadata lost: %+v", got.Metadata)
	}
}

func testVersionedMutation(t *testing.T, s Store) {
	ctx := context.Background()
	a := newAccount("VER", 1000, base)
	if _, err := s.CreateAccount(ctx, a, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	loaded, _ := s.GetAccount(ctx, a.ID)

	next := loaded
	next.Balance = ledger.MustAmount("USD", 1500)
	next.UpdatedAt = base.Add(time.Minute)
	if err := s.ApplyMutation(ctx, []ledger.Account{next}, deposit(a, 500, next.UpdatedAt)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// same token again must be rejected without writing
	stale := loaded
	stale.Balance = ledger.MustAmount("USD", 1)
	staleTx := deposit(a, 1, base.Add(2*time.Minute))
	if err := s.ApplyMutation(ctx, []ledger.Account{stale}, staleTx); !errors.Is(err, errs.ErrStale) {
		t.Fatalf("expected stale, got %v", err)
	}
	got, _ := s.GetAccount(ctx, a.ID)
	if ledger.MinorUnits(got.Balance) != 1500 || got.Version != loaded.Version+1 {
		t.Fatalf("unexpected state after stale write: %+v", got)
	}
	if !got.UpdatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("updatedAt = %v", got.UpdatedAt)
	}
	if _, err := s.GetTransaction(ctx, staleTx.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("stale transaction was recorded")
	}
}

func testAmountRange(t *testing.T, s Store) {
	ctx := context.Background()
	top := newAccount("TOP", ledger.MaxMinorUnits, base)
	open := deposit(top, ledger.MaxMinorUnits, base)
	if _, err := s.CreateAccount(ctx, top, &open); err != nil {
		t.Fatalf("create at maximum: %v", err)
	}
	got, err := s.GetAccount(ctx, top.ID)
	if err != nil || ledger.MinorUnits(got.Balance) != ledger.MaxMinorUnits {
		t.Fatalf("maximum balance did not round-trip: %+v %v", got, err)
	}
	if tx, err := s.GetTransaction(ctx, open.ID); err != nil || ledger.MinorUnits(tx.Amount) != ledger.MaxMinorUnits {
		t.Fatalf("maximum amount did not round-trip: %+v %v", tx, err)
	}

	tooBig := money.MustParseAmount("USD", "10000000000000000.00")
	over := newAccount("OVER", 0, base)
	over.Balance = tooBig
	if _, err := s.CreateAccount(ctx, over, nil); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("create beyond maximum: expected invalid, got %v", err)
	}
	if _, err := s.GetAccountByNumber(ctx, "OVER"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("account beyond maximum was stored: %v", err)
	}

	next := got
	next.Balance = tooBig
	credit := deposit(top, 1, base.Add(time.Minute))
	if err := s.ApplyMutation(ctx, []ledger.Account{next}, credit); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("mutation beyond maximum: expected invalid, got %v", err)
	}
	after, _ := s.GetAccount(ctx, top.ID)
	if ledger.MinorUnits(after.Balance) != ledger.MaxMinorUnits || after.Version != got.Version {
		t.Fatalf("rejected mutation changed the account: %+v", after)
	}
	if _, err := s.GetTransaction(ctx, credit.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("rejected mutation recorded its transaction")
	}
}

func testTransferAtomicity(t *testing.T, s Store) {
	ctx := context.Background()
	from := newAccount("FROM", 1000, base)
	to := newAccount("TO", 0, base.Add(time.Second))
	for _, a := range []ledger.Account{from, to} {
		if _, err := s.CreateAccount(ctx, a, nil); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	f, _ := s.GetAccount(ctx, from.ID)
	tt, _ := s.GetAccount(ctx, to.ID)
	f.Balance = ledger.MustAmount("USD", 600)
	tt.Balance = ledger.MustAmount("USD", 400)
	tt.Version += 7 // wrong token on the second leg

	tr := ledger.Transaction{
		ID:            uuid.New(),
		Type:          ledger.TransactionTransfer,
		Amount:        ledger.MustAmount("USD", 400),
		Timestamp:     base.Add(time.Minute),
		FromAccountID: ledger.IDPtr(from.ID),
		ToAccountID:   ledger.IDPtr(to.ID),
	}
	if err := s.ApplyMutation(ctx, []ledger.Account{f, tt}, tr); !errors.Is(err, errs.ErrStale) {
		t.Fatalf("expected stale, got %v", err)
	}
	if got, _ := s.GetAccount(ctx, from.ID); ledger.MinorUnits(got.Balance) != 1000 {
		t.Fatalf("first leg applied without the second: %s", ledger.FormatAmount(got.Balance))
	}

	tt.Version -= 7
	if err := s.ApplyMutation(ctx, []ledger.Account{f, tt}, tr); err != nil {
		t.Fatalf("apply transfer: %v", err)
	}
	for id, want := range map[uuid.UUID]int64{from.ID: 600, to.ID: 400} {
		got, _ := s.GetAccount(ctx, id)
		if ledger.MinorUnits(got.Balance) != want {
			t.Fatalf("balance of %s = %s", id, ledger.FormatAmount(got.Balance))
		}
		txs, _ := s.ListTransactions(ctx, id)
		if len(txs) != 1 || txs[0].ID != tr.ID {
			t.Fatalf("transfer not visible from %s: %+v", id, txs)
		}
	}
}

func testEngine(t *testing.T, s Store) {
	ctx := context.Background()
	eng := account.New(s, s)
	a, err := eng.CreateAccount(ctx, "ENG-A", ledger.MustAmount("USD", 10000))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := eng.CreateAccount(ctx, "ENG-B", ledger.MustAmount("USD", 0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := eng.Transfer(ctx, a.ID, b.ID, ledger.MustAmount("USD", 300), nil); err != nil {
				t.Errorf("transfer a->b: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := eng.Deposit(ctx, b.ID, ledger.MustAmount("USD", 50), nil); err != nil {
				t.Errorf("deposit b: %v", err)
			}
		}()
	}
	wg.Wait()

	j := journal.New(s, s)
	for id, want := range map[uuid.UUID]int64{a.ID: 4000, b.ID: 7000} {
		rec, err := j.Reconcile(ctx, id)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if ledger.MinorUnits(rec.Account.Balance) != want || !rec.Consistent() {
			t.Fatalf("account %s: stored %s journal %s want %d", id,
				ledger.FormatAmount(rec.Account.Balance), ledger.FormatAmount(rec.JournalBalance), want)
		}
	}
}
