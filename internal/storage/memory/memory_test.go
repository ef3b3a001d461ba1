package memory

import (
	"context"
	"testing"

	"github.com/tinoosan/accounts-ledger/internal/storage/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return New() })
}

func TestResetClearsEverything(t *testing.T) {
	s := New()
	storetest.Run(t, func(t *testing.T) storetest.Store {
		s.Reset()
		return s
	})
	s.Reset()
	if accs, _ := s.ListAccounts(context.Background()); len(accs) != 0 || s.CountTransactions() != 0 {
		t.Fatalf("reset left %d accounts and %d transactions", len(accs), s.CountTransactions())
	}
	if err := s.Ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
}
