// Package mysql provides a gorm-backed store. Balances and amounts are kept
// in DECIMAL(18,2) columns, which hold exactly the ledger.MaxAmount range.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tinoosan/accounts-ledger/internal/errs"
	"github.com/tinoosan/accounts-ledger/internal/ledger"
	"github.com/tinoosan/accounts-ledger/internal/meta"
)

const errDupEntry = 1062

// accountRow maps to the accounts table.
type accountRow struct {
	ID            string          `gorm:"primaryKey;type:char(36)"`
	AccountNumber string          `gorm:"type:varchar(32);not null;uniqueIndex:accounts_account_number_key"`
	Currency      string          `gorm:"type:char(3);not null"`
	Balance       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Version       int64           `gorm:"not null"`
	CreatedAt     time.Time       `gorm:"type:datetime(6);not null;index:accounts_created_at_idx;autoCreateTime:false"`
	UpdatedAt     time.Time       `gorm:"type:datetime(6);not null;autoUpdateTime:false"`
}

func (*accountRow) TableName() string { return "accounts" }

// transactionRow maps to the transactions table; Seq keeps write order.
type transactionRow struct {
	Seq           uint64          `gorm:"primaryKey;autoIncrement"`
	ID            string          `gorm:"type:char(36);not null;uniqueIndex"`
	Type          string          `gorm:"type:varchar(16);not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Currency      string          `gorm:"type:char(3);not null"`
	Timestamp     time.Time       `gorm:"column:ts;type:datetime(6);not null"`
	AccountID     *string         `gorm:"type:char(36);index"`
	FromAccountID *string         `gorm:"type:char(36);index"`
	ToAccountID   *string         `gorm:"type:char(36);index"`
	Metadata      string          `gorm:"type:text"`
}

func (*transactionRow) TableName() string { return "transactions" }

// Store implements the account and journal repositories on MySQL.
type Store struct {
	db *gorm.DB
}

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ready pings the database.
func (s *Store) Ready(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// GetAccount fetches a single account by id.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	var row accountRow
	if err := s.db.WithContext(ctx).Where("id = ?", id.String()).First(&row).Error; err != nil {
		return ledger.Account{}, translate(err)
	}
	return row.toAccount()
}

// GetAccountByNumber fetches a single account by its unique number.
func (s *Store) GetAccountByNumber(ctx context.Context, number string) (ledger.Account, error) {
	var row accountRow
	if err := s.db.WithContext(ctx).Where("account_number = ?", number).First(&row).Error; err != nil {
		return ledger.Account{}, translate(err)
	}
	return row.toAccount()
}

// ListAccounts returns all accounts ordered by creation time.
func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	var rows []accountRow
	if err := s.db.WithContext(ctx).Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.Account, 0, len(rows))
	for _, r := range rows {
		a, err := r.toAccount()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// CreateAccount inserts the account and its optional opening deposit in one transaction.
func (s *Store) CreateAccount(ctx context.Context, a ledger.Account, opening *ledger.Transaction) (ledger.Account, error) {
	a.Version = 1
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := fromAccount(a)
		if err != nil {
			return err
		}
		if err := tx.Create(&row).Error; err != nil {
			return translate(err)
		}
		if opening == nil {
			return nil
		}
		return insertTx(tx, *opening)
	})
	if err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

// ApplyMutation updates balances guarded by each account's version and
// records t, all in one transaction.
func (s *Store) ApplyMutation(ctx context.Context, accounts []ledger.Account, t ledger.Transaction) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range accounts {
			bal, err := toDecimal(a.Balance)
			if err != nil {
				return fmt.Errorf("account %s balance: %w", a.ID, err)
			}
			res := tx.Model(&accountRow{}).
				Where("id = ? AND version = ?", a.ID.String(), a.Version).
				Updates(map[string]any{
					"balance":    bal,
					"updated_at": a.UpdatedAt,
					"version":    gorm.Expr("version + 1"),
				})
			if res.Error != nil {
				return translate(res.Error)
			}
			if res.RowsAffected == 0 {
				var n int64
				if err := tx.Model(&accountRow{}).Where("id = ?", a.ID.String()).Count(&n).Error; err != nil {
					return err
				}
				if n == 0 {
					return errs.ErrNotFound
				}
				return errs.ErrStale
			}
		}
		return insertTx(tx, t)
	})
}

// ListTransactions returns every transaction touching accountID, oldest first.
func (s *Store) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error) {
	id := accountID.String()
	var rows []transactionRow
	err := s.db.WithContext(ctx).
		Where("account_id = ? OR from_account_id = ? OR to_account_id = ?", id, id, id).
		Order("ts asc, seq asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Transaction, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTransaction()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// GetTransaction fetches a single transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (ledger.Transaction, error) {
	var row transactionRow
	if err := s.db.WithContext(ctx).Where("id = ?", id.String()).First(&row).Error; err != nil {
		return ledger.Transaction{}, translate(err)
	}
	return row.toTransaction()
}

func insertTx(tx *gorm.DB, t ledger.Transaction) error {
	amt, err := toDecimal(t.Amount)
	if err != nil {
		return err
	}
	md, err := t.Metadata.MarshalStableJSON()
	if err != nil {
		return err
	}
	row := transactionRow{
		ID:            t.ID.String(),
		Type:          string(t.Type),
		Amount:        amt,
		Currency:      t.Amount.Curr().Code(),
		Timestamp:     t.Timestamp,
		AccountID:     idString(t.AccountID),
		FromAccountID: idString(t.FromAccountID),
		ToAccountID:   idString(t.ToAccountID),
		Metadata:      string(md),
	}
	return translate(tx.Create(&row).Error)
}

func fromAccount(a ledger.Account) (accountRow, error) {
	bal, err := toDecimal(a.Balance)
	if err != nil {
		return accountRow{}, fmt.Errorf("account %s balance: %w", a.ID, err)
	}
	return accountRow{
		ID:            a.ID.String(),
		AccountNumber: a.AccountNumber,
		Currency:      a.Balance.Curr().Code(),
		Balance:       bal,
		Version:       a.Version,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}, nil
}

func (r accountRow) toAccount() (ledger.Account, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("account id %q: %w", r.ID, err)
	}
	bal, err := fromDecimal(r.Currency, r.Balance)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("account %s balance: %w", r.ID, err)
	}
	return ledger.Account{
		ID:            id,
		AccountNumber: r.AccountNumber,
		Balance:       bal,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
		Version:       r.Version,
	}, nil
}

func (r transactionRow) toTransaction() (ledger.Transaction, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("transaction id %q: %w", r.ID, err)
	}
	amt, err := fromDecimal(r.Currency, r.Amount)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("transaction %s amount: %w", r.ID, err)
	}
	t := ledger.Transaction{
		ID:        id,
		Type:      ledger.TransactionType(r.Type),
		Amount:    amt,
		Timestamp: r.Timestamp.UTC(),
	}
	if t.AccountID, err = parseID(r.AccountID); err != nil {
		return ledger.Transaction{}, err
	}
	if t.FromAccountID, err = parseID(r.FromAccountID); err != nil {
		return ledger.Transaction{}, err
	}
	if t.ToAccountID, err = parseID(r.ToAccountID); err != nil {
		return ledger.Transaction{}, err
	}
	if r.Metadata != "" {
		var m meta.Metadata
		if err := m.UnmarshalJSON([]byte(r.Metadata)); err == nil {
			t.Metadata = m
		}
	}
	return t, nil
}

// toDecimal converts via minor units so the column value is exact.
func toDecimal(a money.Amount) (decimal.Decimal, error) {
	units, err := ledger.StoredUnits(a)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.New(units, -ledger.AmountScale), nil
}

func fromDecimal(curr string, d decimal.Decimal) (money.Amount, error) {
	return money.NewAmountFromMinorUnits(curr, d.Shift(ledger.AmountScale).IntPart())
}

func idString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseID(s *string) (*uuid.UUID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, fmt.Errorf("account reference %q: %w", *s, err)
	}
	return &id, nil
}

// translate maps gorm and driver errors onto the errs sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errs.ErrConflict
	}
	var myErr *mysqldrv.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errDupEntry {
		return errs.ErrConflict
	}
	return err
}
