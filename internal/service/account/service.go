// Package account implements the ledger engine: account creation and lookup,
// deposits, withdrawals and transfers. Every balance change is persisted
// together with exactly one transaction record.
package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/accounts-ledger/internal/accountno"
	"github.com/tinoosan/accounts-ledger/internal/errs"
	"github.com/tinoosan/accounts-ledger/internal/ledger"
	"github.com/tinoosan/accounts-ledger/internal/lock"
	"github.com/tinoosan/accounts-ledger/internal/meta"
)

// Repo defines the read operations the engine needs from a store.
type Repo interface {
	GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	GetAccountByNumber(ctx context.Context, number string) (ledger.Account, error)
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
}

// Writer defines the atomic write operations the engine needs from a store.
type Writer interface {
	// CreateAccount inserts a and, if opening is non-nil, its opening deposit in
	// one atomic write. It returns errs.ErrConflict for a taken account number.
	CreateAccount(ctx context.Context, a ledger.Account, opening *ledger.Transaction) (ledger.Account, error)
	// ApplyMutation writes the new balances of accounts together with tx. Each
	// account's Version must match the stored one, otherwise nothing is written
	// and errs.ErrStale is returned.
	ApplyMutation(ctx context.Context, accounts []ledger.Account, tx ledger.Transaction) error
}

// TransferResult carries both post-transfer balances.
type TransferResult struct {
	FromBalance money.Amount
	ToBalance   money.Amount
}

// Service is the ledger engine. It is safe for concurrent use; mutations on
// the same account are serialized through a keyed lock table.
type Service struct {
	repo           Repo
	writer         Writer
	locks          *lock.Keyed
	currency       string
	now            func() time.Time
	persistTimeout time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithCurrency sets the ledger denomination (default USD). The code must have
// been validated with ledger.ParseCurrency.
func WithCurrency(code string) Option { return func(s *Service) { s.currency = code } }

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithPersistTimeout bounds the final atomic write, which ignores caller cancellation.
func WithPersistTimeout(d time.Duration) Option { return func(s *Service) { s.persistTimeout = d } }

// New constructs the engine on top of a store.
func New(repo Repo, writer Writer, opts ...Option) *Service {
	s := &Service{
		repo:           repo,
		writer:         writer,
		locks:          lock.New(),
		currency:       ledger.DefaultCurrency,
		now:            func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		persistTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Currency returns the ledger denomination.
func (s *Service) Currency() string { return s.currency }

// CreateAccount registers a new account number with an opening balance.
// A positive opening balance is recorded as a deposit in the same write.
func (s *Service) CreateAccount(ctx context.Context, number string, initial money.Amount) (acc ledger.Account, err error) {
	defer observe(opCreateAccount, time.Now(), &err)
	number = accountno.Normalize(number)
	if err := accountno.Validate(number); err != nil {
		return ledger.Account{}, err
	}
	if err := s.checkCurrency(initial); err != nil {
		return ledger.Account{}, err
	}
	if initial.IsNeg() {
		return ledger.Account{}, errs.Wrap(errs.ErrInvalid, "initial balance must be >= 0")
	}

	unlock, err := s.locks.Lock(ctx, numberKey(number))
	if err != nil {
		return ledger.Account{}, err
	}
	defer unlock()

	if _, err := s.repo.GetAccountByNumber(ctx, number); err == nil {
		return ledger.Account{}, duplicateNumber(number)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return ledger.Account{}, err
	}

	now := s.now()
	acc = ledger.Account{
		ID:            uuid.New(),
		AccountNumber: number,
		Balance:       initial,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	var opening *ledger.Transaction
	if initial.IsPos() {
		opening = &ledger.Transaction{
			ID:        uuid.New(),
			Type:      ledger.TransactionDeposit,
			Amount:    initial,
			Timestamp: now,
			AccountID: ledger.IDPtr(acc.ID),
		}
	}
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	pctx, cancel := s.persistContext(ctx)
	defer cancel()
	created, err := s.writer.CreateAccount(pctx, acc, opening)
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return ledger.Account{}, duplicateNumber(number)
		}
		return ledger.Account{}, err
	}
	return created, nil
}

// GetAccount returns the current snapshot of an account.
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return s.load(ctx, id, "account not found")
}

// ListAccounts returns every account ordered by creation time.
func (s *Service) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	accs, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(accs, func(i, j int) bool {
		if accs[i].CreatedAt.Equal(accs[j].CreatedAt) {
			return accs[i].ID.String() < accs[j].ID.String()
		}
		return accs[i].CreatedAt.Before(accs[j].CreatedAt)
	})
	return accs, nil
}

// GetAccountByNumber looks an account up by its unique number.
func (s *Service) GetAccountByNumber(ctx context.Context, number string) (ledger.Account, error) {
	number = accountno.Normalize(number)
	if number == "" {
		return ledger.Account{}, errs.Wrap(errs.ErrInvalid, "account number is required")
	}
	acc, err := s.repo.GetAccountByNumber(ctx, number)
	if errors.Is(err, errs.ErrNotFound) {
		return ledger.Account{}, errs.Wrap(errs.ErrNotFound, "account not found")
	}
	return acc, err
}

// Deposit credits amount to the account and returns the new balance.
func (s *Service) Deposit(ctx context.Context, accountID uuid.UUID, amount money.Amount, md meta.Metadata) (bal money.Amount, err error) {
	defer observe(opDeposit, time.Now(), &err)
	if err := s.validateMovement(amount, md); err != nil {
		return money.Amount{}, err
	}
	unlock, err := s.locks.Lock(ctx, accountKey(accountID))
	if err != nil {
		return money.Amount{}, err
	}
	defer unlock()

	acc, err := s.load(ctx, accountID, "account not found")
	if err != nil {
		return money.Amount{}, err
	}
	if acc.Balance, err = credit(acc.Balance, amount); err != nil {
		return money.Amount{}, err
	}
	now := s.now()
	acc.UpdatedAt = now
	tx := ledger.Transaction{
		ID:        uuid.New(),
		Type:      ledger.TransactionDeposit,
		Amount:    amount,
		Timestamp: now,
		AccountID: ledger.IDPtr(acc.ID),
		Metadata:  md.Clone(),
	}
	if err := s.persist(ctx, tx, acc); err != nil {
		return money.Amount{}, err
	}
	return acc.Balance, nil
}

// Withdraw debits amount from the account and returns the new balance.
func (s *Service) Withdraw(ctx context.Context, accountID uuid.UUID, amount money.Amount, md meta.Metadata) (bal money.Amount, err error) {
	defer observe(opWithdraw, time.Now(), &err)
	if err := s.validateMovement(amount, md); err != nil {
		return money.Amount{}, err
	}
	unlock, err := s.locks.Lock(ctx, accountKey(accountID))
	if err != nil {
		return money.Amount{}, err
	}
	defer unlock()

	acc, err := s.load(ctx, accountID, "account not found")
	if err != nil {
		return money.Amount{}, err
	}
	if acc.Balance, err = debit(acc.Balance, amount); err != nil {
		return money.Amount{}, err
	}
	now := s.now()
	acc.UpdatedAt = now
	tx := ledger.Transaction{
		ID:        uuid.New(),
		Type:      ledger.TransactionWithdrawal,
		Amount:    amount,
		Timestamp: now,
		AccountID: ledger.IDPtr(acc.ID),
		Metadata:  md.Clone(),
	}
	if err := s.persist(ctx, tx, acc); err != nil {
		return money.Amount{}, err
	}
	return acc.Balance, nil
}

// Transfer moves amount from one account to another. Both balances and the
// single transfer record are written atomically.
func (s *Service) Transfer(ctx context.Context, fromID, toID uuid.UUID, amount money.Amount, md meta.Metadata) (res TransferResult, err error) {
	defer observe(opTransfer, time.Now(), &err)
	if err := s.validateMovement(amount, md); err != nil {
		return TransferResult{}, err
	}
	if fromID == toID {
		return TransferResult{}, errs.Wrap(errs.ErrInvalid, "cannot transfer to the same account")
	}
	unlock, err := s.locks.Lock(ctx, accountKey(fromID), accountKey(toID))
	if err != nil {
		return TransferResult{}, err
	}
	defer unlock()

	from, err := s.load(ctx, fromID, "from account not found")
	if err != nil {
		return TransferResult{}, err
	}
	to, err := s.load(ctx, toID, "to account not found")
	if err != nil {
		return TransferResult{}, err
	}
	if from.Balance, err = debit(from.Balance, amount); err != nil {
		return TransferResult{}, err
	}
	if to.Balance, err = credit(to.Balance, amount); err != nil {
		return TransferResult{}, err
	}
	now := s.now()
	from.UpdatedAt = now
	to.UpdatedAt = now
	tx := ledger.Transaction{
		ID:            uuid.New(),
		Type:          ledger.TransactionTransfer,
		Amount:        amount,
		Timestamp:     now,
		FromAccountID: ledger.IDPtr(from.ID),
		ToAccountID:   ledger.IDPtr(to.ID),
		Metadata:      md.Clone(),
	}
	if err := s.persist(ctx, tx, from, to); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{FromBalance: from.Balance, ToBalance: to.Balance}, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID, missing string) (ledger.Account, error) {
	acc, err := s.repo.GetAccount(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return ledger.Account{}, errs.Wrap(errs.ErrNotFound, missing)
	}
	return acc, err
}

// persist runs the final write detached from caller cancellation: once it
// starts it either fully applies or fails as a unit.
func (s *Service) persist(ctx context.Context, tx ledger.Transaction, accounts ...ledger.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pctx, cancel := s.persistContext(ctx)
	defer cancel()
	if err := s.writer.ApplyMutation(pctx, accounts, tx); err != nil {
		if errors.Is(err, errs.ErrStale) {
			return errs.Wrap(errs.ErrStale, "account was modified concurrently")
		}
		return fmt.Errorf("persist %s: %w", tx.Type, err)
	}
	return nil
}

func (s *Service) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
}

func (s *Service) validateMovement(amount money.Amount, md meta.Metadata) error {
	if err := s.checkCurrency(amount); err != nil {
		return err
	}
	if !amount.IsPos() {
		return errs.Wrap(errs.ErrInvalid, "amount must be > 0")
	}
	return md.Validate()
}

func (s *Service) checkCurrency(a money.Amount) error {
	if a.Curr().Code() != s.currency {
		return errs.Wrap(errs.ErrInvalid, "amount currency must be "+s.currency)
	}
	if !ledger.HasLedgerScale(a) {
		return errs.Wrap(errs.ErrInvalid, "amount has more than 2 fractional digits")
	}
	if !ledger.InRange(a) {
		return errs.Wrap(errs.ErrInvalid, ledger.ErrAmountRange.Error())
	}
	return nil
}

// credit adds amount to balance, refusing results beyond ledger.MaxAmount.
func credit(balance, amount money.Amount) (money.Amount, error) {
	sum, err := balance.Add(amount)
	if err != nil || !ledger.InRange(sum) {
		return money.Amount{}, errs.Wrap(errs.ErrInvalid, "balance would exceed the maximum amount of "+ledger.MaxAmount)
	}
	return sum, nil
}

// debit subtracts amount from balance, refusing to go below zero.
func debit(balance, amount money.Amount) (money.Amount, error) {
	short, err := balance.Less(amount)
	if err != nil {
		return money.Amount{}, errs.Wrap(errs.ErrInvalid, "amount currency must match the balance")
	}
	if short {
		return money.Amount{}, errs.Wrap(errs.ErrInsufficientFunds, "insufficient funds")
	}
	return balance.Sub(amount)
}

func duplicateNumber(number string) error {
	return errs.Wrap(errs.ErrConflict, fmt.Sprintf("account number %q already exists", number))
}

func accountKey(id uuid.UUID) string { return "account:" + id.String() }
func numberKey(n string) string      { return "number:" + n }
