package account_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/accounts-ledger/internal/errs"
	"github.com/tinoosan/accounts-ledger/internal/ledger"
	"github.com/tinoosan/accounts-ledger/internal/meta"
	"github.com/tinoosan/accounts-ledger/internal/service/account"
	"github.com/tinoosan/accounts-ledger/internal/service/journal"
	"github.com/tinoosan/accounts-ledger/internal/storage/memory"
)

func usd(units int64) money.Amount { return ledger.MustAmount("USD", units) }

func setup(t *testing.T) (*account.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return account.New(store, store), store
}

func mustCreate(t *testing.T, svc *account.Service, number string, units int64) ledger.Account {
	t.Helper()
	acc, err := svc.CreateAccount(context.Background(), number, usd(units))
	if err != nil {
		t.Fatalf("create %s: %v", number, err)
	}
	return acc
}

func balanceOf(t *testing.T, svc *account.Service, id uuid.UUID) int64 {
	t.Helper()
	acc, err := svc.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return ledger.MinorUnits(acc.Balance)
}

func TestDepositThenWithdraw(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	acc := mustCreate(t, svc, "ACC-001", 10000)

	bal, err := svc.Deposit(ctx, acc.ID, usd(5000), nil)
	if err != nil || ledger.MinorUnits(bal) != 15000 {
		t.Fatalf("deposit: bal=%v err=%v", bal, err)
	}
	bal, err = svc.Withdraw(ctx, acc.ID, usd(2500), nil)
	if err != nil || ledger.MinorUnits(bal) != 12500 {
		t.Fatalf("withdraw: bal=%v err=%v", bal, err)
	}
	if got := balanceOf(t, svc, acc.ID); got != 12500 {
		t.Fatalf("stored balance = %d, want 12500", got)
	}
}

func TestTransferReturnsBothBalances(t *testing.T) {
	svc, store := setup(t)
	a := mustCreate(t, svc, "A", 10000)
	b := mustCreate(t, svc, "B", 0)

	res, err := svc.Transfer(context.Background(), a.ID, b.ID, usd(6000), meta.New(map[string]string{"ref": "rent"}))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if ledger.MinorUnits(res.FromBalance) != 4000 || ledger.MinorUnits(res.ToBalance) != 6000 {
		t.Fatalf("unexpected balances: %s / %s", ledger.FormatAmount(res.FromBalance), ledger.FormatAmount(res.ToBalance))
	}
	// opening deposit of A plus the single transfer record
	if n := store.CountTransactions(); n != 2 {
		t.Fatalf("expected 2 transactions, got %d", n)
	}
	txs, _ := store.ListTransactions(context.Background(), b.ID)
	if len(txs) != 1 {
		t.Fatalf("expected one transaction for B, got %d", len(txs))
	}
	tx := txs[0]
	if tx.Type != ledger.TransactionTransfer || *tx.FromAccountID != a.ID || *tx.ToAccountID != b.ID || ledger.MinorUnits(tx.Amount) != 6000 {
		t.Fatalf("unexpected transfer record: %+v", tx)
	}
	if tx.Metadata["ref"] != "rent" {
		t.Fatalf("metadata not recorded: %+v", tx.Metadata)
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	svc, store := setup(t)
	acc := mustCreate(t, svc, "ACC-001", 1000)
	before := store.CountTransactions()

	_, err := svc.Withdraw(context.Background(), acc.ID, usd(2000), nil)
	if !errors.Is(err, errs.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if got := balanceOf(t, svc, acc.ID); got != 1000 {
		t.Fatalf("balance changed to %d", got)
	}
	if store.CountTransactions() != before {
		t.Fatalf("failed withdrawal recorded a transaction")
	}
}

func TestTransferInsufficientFundsLeavesBothUnchanged(t *testing.T) {
	svc, _ := setup(t)
	a := mustCreate(t, svc, "A", 500)
	b := mustCreate(t, svc, "B", 700)
	if _, err := svc.Transfer(context.Background(), a.ID, b.ID, usd(501), nil); !errors.Is(err, errs.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if balanceOf(t, svc, a.ID) != 500 || balanceOf(t, svc, b.ID) != 700 {
		t.Fatalf("balances changed after failed transfer")
	}
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	a := mustCreate(t, svc, "A", 1000)
	b := mustCreate(t, svc, "B", 1000)
	before := store.CountTransactions()

	for _, amt := range []money.Amount{usd(0), usd(-100)} {
		if _, err := svc.Deposit(ctx, a.ID, amt, nil); !errors.Is(err, errs.ErrInvalid) {
			t.Fatalf("deposit %s: expected invalid, got %v", ledger.FormatAmount(amt), err)
		}
		if _, err := svc.Withdraw(ctx, a.ID, amt, nil); !errors.Is(err, errs.ErrInvalid) {
			t.Fatalf("withdraw %s: expected invalid, got %v", ledger.FormatAmount(amt), err)
		}
		if _, err := svc.Transfer(ctx, a.ID, b.ID, amt, nil); !errors.Is(err, errs.ErrInvalid) {
			t.Fatalf("transfer %s: expected invalid, got %v", ledger.FormatAmount(amt), err)
		}
	}
	if balanceOf(t, svc, a.ID) != 1000 || balanceOf(t, svc, b.ID) != 1000 || store.CountTransactions() != before {
		t.Fatalf("rejected operations mutated state")
	}
}

func TestRejectsForeignCurrencyAndExtraPrecision(t *testing.T) {
	svc, _ := setup(t)
	acc := mustCreate(t, svc, "A", 1000)
	eur := ledger.MustAmount("EUR", 100)
	if _, err := svc.Deposit(context.Background(), acc.ID, eur, nil); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected invalid for EUR amount, got %v", err)
	}
	fine := money.MustNewAmount("USD", 1005, 3)
	if _, err := svc.Deposit(context.Background(), acc.ID, fine, nil); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected invalid for 1.005, got %v", err)
	}
}

func TestAmountsBeyondMaximumAreInvalid(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	big := money.MustParseAmount("USD", "94000000000000000.00")

	if _, err := svc.CreateAccount(ctx, "BIG", big); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("create with %s: expected invalid, got %v", big, err)
	}
	if _, err := svc.GetAccountByNumber(ctx, "BIG"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("rejected account was stored: %v", err)
	}

	top := mustCreate(t, svc, "TOP", ledger.MaxMinorUnits)
	low := mustCreate(t, svc, "LOW", 500)
	before := store.CountTransactions()

	if _, err := svc.Deposit(ctx, top.ID, big, nil); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("deposit %s: expected invalid, got %v", big, err)
	}
	if _, err := svc.Deposit(ctx, top.ID, usd(1), nil); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("deposit past maximum: expected invalid, got %v", err)
	}
	if _, err := svc.Transfer(ctx, low.ID, top.ID, usd(100), nil); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("transfer past maximum: expected invalid, got %v", err)
	}
	if balanceOf(t, svc, top.ID) != ledger.MaxMinorUnits || balanceOf(t, svc, low.ID) != 500 {
		t.Fatalf("rejected credits changed balances")
	}
	if store.CountTransactions() != before {
		t.Fatalf("rejected credits recorded transactions")
	}

	bal, err := svc.Withdraw(ctx, top.ID, usd(100), nil)
	if err != nil || ledger.MinorUnits(bal) != ledger.MaxMinorUnits-100 {
		t.Fatalf("withdraw near maximum: bal=%v err=%v", bal, err)
	}
	txs, _ := store.ListTransactions(ctx, top.ID)
	if len(txs) != 2 || txs[0].Type != ledger.TransactionDeposit || ledger.MinorUnits(txs[0].Amount) != ledger.MaxMinorUnits {
		t.Fatalf("unexpected history: %+v", txs)
	}
}

func TestTransferSameAccount(t *testing.T) {
	svc, store := setup(t)
	a := mustCreate(t, svc, "A", 1000)
	before := store.CountTransactions()
	_, err := svc.Transfer(context.Background(), a.ID, a.ID, usd(100), nil)
	if !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if balanceOf(t, svc, a.ID) != 1000 || store.CountTransactions() != before {
		t.Fatalf("self transfer mutated state")
	}
}

func TestTransferMissingAccounts(t *testing.T) {
	svc, _ := setup(t)
	a := mustCreate(t, svc, "A", 1000)
	ghost := uuid.New()

	_, err := svc.Transfer(context.Background(), ghost, a.ID, usd(100), nil)
	if !errors.Is(err, errs.ErrNotFound) || !strings.Contains(err.Error(), "from account") {
		t.Fatalf("expected from-account not found, got %v", err)
	}
	_, err = svc.Transfer(context.Background(), a.ID, ghost, usd(100), nil)
	if !errors.Is(err, errs.ErrNotFound) || !strings.Contains(err.Error(), "to account") {
		t.Fatalf("expected to-account not found, got %v", err)
	}
	// both missing: the source is reported first
	_, err = svc.Transfer(context.Background(), uuid.New(), ghost, usd(100), nil)
	if !strings.Contains(err.Error(), "from account") {
		t.Fatalf("expected from-account to be checked first, got %v", err)
	}
	if balanceOf(t, svc, a.ID) != 1000 {
		t.Fatalf("balance changed")
	}
}

func TestDepositUnknownAccount(t *testing.T) {
	svc, _ := setup(t)
	if _, err := svc.Deposit(context.Background(), uuid.New(), usd(100), nil); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Withdraw(context.Background(), uuid.New(), usd(100), nil); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateDuplicateNumber(t *testing.T) {
	svc, _ := setup(t)
	first := mustCreate(t, svc, "ACC-001", 2500)
	_, err := svc.CreateAccount(context.Background(), " ACC-001 ", usd(9900))
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, err := svc.GetAccountByNumber(context.Background(), "ACC-001")
	if err != nil || got.ID != first.ID || ledger.MinorUnits(got.Balance) != 2500 {
		t.Fatalf("first account affected: %+v err=%v", got, err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	cases := []struct {
		number string
		amount money.Amount
	}{
		{"", usd(0)},
		{"   ", usd(100)},
		{strings.Repeat("9", ledger.MaxAccountNumberLen+1), usd(100)},
		{"ACC-NEG", usd(-1)},
	}
	for _, c := range cases {
		if _, err := svc.CreateAccount(ctx, c.number, c.amount); !errors.Is(err, errs.ErrInvalid) {
			t.Fatalf("create(%q, %s): expected invalid, got %v", c.number, ledger.FormatAmount(c.amount), err)
		}
	}
	if accs, _ := store.ListAccounts(ctx); len(accs) != 0 {
		t.Fatalf("invalid creates persisted %d accounts", len(accs))
	}
	if _, err := svc.CreateAccount(ctx, strings.Repeat("9", ledger.MaxAccountNumberLen), usd(0)); err != nil {
		t.Fatalf("max length number rejected: %v", err)
	}
}

func TestOpeningDeposit(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	zero := mustCreate(t, svc, "ZERO", 0)
	if txs, _ := store.ListTransactions(ctx, zero.ID); len(txs) != 0 {
		t.Fatalf("zero opening balance recorded %d transactions", len(txs))
	}
	funded := mustCreate(t, svc, "FUNDED", 12345)
	txs, _ := store.ListTransactions(ctx, funded.ID)
	if len(txs) != 1 || txs[0].Type != ledger.TransactionDeposit || ledger.MinorUnits(txs[0].Amount) != 12345 {
		t.Fatalf("unexpected opening transactions: %+v", txs)
	}
	if *txs[0].AccountID != funded.ID {
		t.Fatalf("opening deposit attributed to %s", txs[0].AccountID)
	}
}

func TestEveryMutationRecordsOneTransaction(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	a := mustCreate(t, svc, "A", 1000)
	b := mustCreate(t, svc, "B", 1000)

	steps := []struct {
		typ  ledger.TransactionType
		amt  int64
		call func() error
	}{
		{ledger.TransactionDeposit, 300, func() error { _, err := svc.Deposit(ctx, a.ID, usd(300), nil); return err }},
		{ledger.TransactionWithdrawal, 200, func() error { _, err := svc.Withdraw(ctx, a.ID, usd(200), nil); return err }},
		{ledger.TransactionTransfer, 700, func() error { _, err := svc.Transfer(ctx, a.ID, b.ID, usd(700), nil); return err }},
	}
	for _, st := range steps {
		before, _ := store.ListTransactions(ctx, a.ID)
		if err := st.call(); err != nil {
			t.Fatalf("%s: %v", st.typ, err)
		}
		after, _ := store.ListTransactions(ctx, a.ID)
		if len(after) != len(before)+1 {
			t.Fatalf("%s: expected exactly one new record, got %d", st.typ, len(after)-len(before))
		}
		last := after[len(after)-1]
		if last.Type != st.typ || ledger.MinorUnits(last.Amount) != st.amt {
			t.Fatalf("%s: unexpected record %+v", st.typ, last)
		}
	}
}

func TestGetAccountByNumber(t *testing.T) {
	svc, _ := setup(t)
	acc := mustCreate(t, svc, "ACC-7", 0)
	got, err := svc.GetAccountByNumber(context.Background(), "ACC-7")
	if err != nil || got.ID != acc.ID {
		t.Fatalf("lookup: %+v %v", got, err)
	}
	if _, err := svc.GetAccountByNumber(context.Background(), "NOPE"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetAccountByNumber(context.Background(), "  "); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected invalid for blank number, got %v", err)
	}
	if _, err := svc.GetAccount(context.Background(), uuid.New()); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListAccountsOrderedByCreation(t *testing.T) {
	store := memory.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick int64
	clock := func() time.Time { return base.Add(time.Duration(atomic.AddInt64(&tick, 1)) * time.Second) }
	svc := account.New(store, store, account.WithClock(clock))
	for _, n := range []string{"C", "A", "B"} {
		mustCreate(t, svc, n, 0)
	}
	accs, err := svc.ListAccounts(context.Background())
	if err != nil || len(accs) != 3 {
		t.Fatalf("list: %d %v", len(accs), err)
	}
	for i, want := range []string{"C", "A", "B"} {
		if accs[i].AccountNumber != want {
			t.Fatalf("position %d: got %s want %s", i, accs[i].AccountNumber, want)
		}
	}
}

func TestCanceledContextLeavesStoreUnchanged(t *testing.T) {
	svc, store := setup(t)
	acc := mustCreate(t, svc, "A", 1000)
	before := store.CountTransactions()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Deposit(ctx, acc.ID, usd(100), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if _, err := svc.CreateAccount(ctx, "B", usd(100)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if balanceOf(t, svc, acc.ID) != 1000 || store.CountTransactions() != before {
		t.Fatalf("canceled operations mutated state")
	}
}

// failingWriter rejects every write after the reads succeed.
type failingWriter struct{ err error }

func (f failingWriter) CreateAccount(context.Context, ledger.Account, *ledger.Transaction) (ledger.Account, error) {
	return ledger.Account{}, f.err
}

func (f failingWriter) ApplyMutation(context.Context, []ledger.Account, ledger.Transaction) error {
	return f.err
}

func TestStoreFailuresPropagate(t *testing.T) {
	store := memory.New()
	seed := account.New(store, store)
	acc := mustCreate(t, seed, "A", 1000)

	broken := account.New(store, failingWriter{err: errors.New("disk on fire")})
	_, err := broken.Deposit(context.Background(), acc.ID, usd(100), nil)
	if err == nil || errs.KindOf(err) != "internal" {
		t.Fatalf("expected opaque internal error, got %v", err)
	}
	stale := account.New(store, failingWriter{err: errs.ErrStale})
	if _, err := stale.Withdraw(context.Background(), acc.ID, usd(100), nil); !errors.Is(err, errs.ErrStale) {
		t.Fatalf("expected stale error, got %v", err)
	}
	if balanceOf(t, seed, acc.ID) != 1000 {
		t.Fatalf("failed writes changed the balance")
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	svc, store := setup(t)
	acc := mustCreate(t, svc, "A", 10000)

	var ok, short int64
	var wg sync.WaitGroup
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Withdraw(context.Background(), acc.ID, usd(100), nil)
			switch {
			case err == nil:
				atomic.AddInt64(&ok, 1)
			case errors.Is(err, errs.ErrInsufficientFunds):
				atomic.AddInt64(&short, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 100 || short != 50 {
		t.Fatalf("ok=%d short=%d, want 100/50", ok, short)
	}
	if got := balanceOf(t, svc, acc.ID); got != 0 {
		t.Fatalf("final balance %d, want 0", got)
	}
	if n := store.CountTransactions(); n != 101 {
		t.Fatalf("expected 101 transactions, got %d", n)
	}
}

func TestConcurrentOpposingTransfersConserveTotal(t *testing.T) {
	svc, store := setup(t)
	a := mustCreate(t, svc, "A", 5000)
	b := mustCreate(t, svc, "B", 5000)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.Transfer(context.Background(), a.ID, b.ID, usd(70), nil)
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.Transfer(context.Background(), b.ID, a.ID, usd(30), nil)
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("opposing transfers deadlocked")
	}

	ba, bb := balanceOf(t, svc, a.ID), balanceOf(t, svc, b.ID)
	if ba < 0 || bb < 0 || ba+bb != 10000 {
		t.Fatalf("balances %d + %d do not conserve 10000", ba, bb)
	}
	j := journal.New(store, store)
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		rec, err := j.Reconcile(context.Background(), id)
		if err != nil || !rec.Consistent() {
			t.Fatalf("journal disagrees with balance for %s: %+v %v", id, rec, err)
		}
	}
}

func TestConcurrentCreateSameNumber(t *testing.T) {
	svc, store := setup(t)
	var ok, conflict int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateAccount(context.Background(), "RACE", usd(100))
			switch {
			case err == nil:
				atomic.AddInt64(&ok, 1)
			case errors.Is(err, errs.ErrConflict):
				atomic.AddInt64(&conflict, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || conflict != 19 {
		t.Fatalf("ok=%d conflict=%d", ok, conflict)
	}
	if n := store.CountTransactions(); n != 1 {
		t.Fatalf("expected a single opening deposit, got %d", n)
	}
}
