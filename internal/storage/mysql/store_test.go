package mysql

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tinoosan/accounts-ledger/internal/ledger"
	"github.com/tinoosan/accounts-ledger/internal/storage/storetest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreContract(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set; skipping MySQL store tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s, err := openDSN(ctx, dsn, Config{LogLevel: "silent"}, testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if err := s.Ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
	storetest.Run(t, func(t *testing.T) storetest.Store {
		for _, table := range []string{"transactions", "accounts"} {
			if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
				t.Fatalf("clear %s: %v", table, err)
			}
		}
		return s
	})
}

func TestDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 3306, User: "ledger", Password: "secret", DBName: "accounts"}
	dsn := cfg.DSN()
	for _, want := range []string{"ledger:secret@tcp(db:3306)/accounts", "parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %q missing %q", dsn, want)
		}
	}
}

func TestDecimalConversion(t *testing.T) {
	for _, units := range []int64{0, 1, 99, 12345, 999999999} {
		d := toDecimal(ledger.MustAmount("USD", units))
		back, err := fromDecimal("USD", d)
		if err != nil {
			t.Fatalf("fromDecimal(%s): %v", d, err)
		}
		if ledger.MinorUnits(back) != units {
			t.Fatalf("%d -> %s -> %d", units, d, ledger.MinorUnits(back))
		}
	}
	if got := toDecimal(ledger.MustAmount("USD", 12345)).StringFixed(2); got != "123.45" {
		t.Fatalf("decimal column value = %s", got)
	}
}
