package httpapi

import (
	"github.com/tinoosan/accounts-ledger/internal/service/account"
	"github.com/tinoosan/accounts-ledger/internal/service/journal"
)

var (
	_ AccountService = (*account.Service)(nil)
	_ JournalService = (*journal.Service)(nil)
)
