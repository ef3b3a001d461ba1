package mysql

import (
	"github.com/tinoosan/accounts-ledger/internal/service/account"
	"github.com/tinoosan/accounts-ledger/internal/service/journal"
)

var (
	_ account.Repo   = (*Store)(nil)
	_ account.Writer = (*Store)(nil)
	_ journal.Repo   = (*Store)(nil)
)
