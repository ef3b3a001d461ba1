// Account handlers: create, lookup, list and single-account balance movements.
package httpapi

import (
	"context"
	"net/http"
	"net/url"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/accounts-ledger/internal/ledger"
	"github.com/tinoosan/accounts-ledger/internal/meta"
)

func (s *Server) postAccount(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var req createAccountRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	zero := ledger.ZeroAmount(s.accounts.Currency())
	initial, err := req.InitialBalance.parse(s.accounts.Currency(), "initialBalance", &zero)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	acc, err := s.accounts.CreateAccount(r.Context(), req.AccountNumber, initial)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/accounts/"+acc.ID.String())
	toJSON(w, http.StatusCreated, toAccountResponse(acc))
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accs, err := s.accounts.ListAccounts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accs))
	for _, a := range accs {
		out = append(out, toAccountResponse(a))
	}
	toJSON(w, http.StatusOK, out)
}

// getAccount handles GET /api/accounts/{id}
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invalid account id")
	if !ok {
		return
	}
	acc, err := s.accounts.GetAccount(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(acc))
}

func (s *Server) getAccountByNumber(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	// chi matches against RawPath when the request path carries escapes
	if r.URL.RawPath != "" {
		var err error
		if number, err = url.PathUnescape(number); err != nil {
			badRequest(w, "invalid account number")
			return
		}
	}
	acc, err := s.accounts.GetAccountByNumber(r.Context(), number)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(acc))
}

func (s *Server) postDeposit(w http.ResponseWriter, r *http.Request) {
	s.movement(w, r, s.accounts.Deposit)
}

func (s *Server) postWithdraw(w http.ResponseWriter, r *http.Request) {
	s.movement(w, r, s.accounts.Withdraw)
}

type movementFunc func(ctx context.Context, accountID uuid.UUID, amount money.Amount, md meta.Metadata) (money.Amount, error)

// movement runs a single-account deposit or withdrawal.
func (s *Server) movement(w http.ResponseWriter, r *http.Request, apply movementFunc) {
	id, ok := pathID(w, r, "id", "invalid account id")
	if !ok {
		return
	}
	if !requireJSON(w, r) {
		return
	}
	var req movementRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := req.Amount.parse(s.accounts.Currency(), "amount", nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	bal, err := apply(r.Context(), id, amount, meta.New(req.Metadata))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, balanceResponse{AccountID: id, Balance: jsonAmount(bal)})
}

// pathID parses a uuid URL parameter, writing 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, param, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		badRequest(w, msg)
		return uuid.Nil, false
	}
	return id, true
}
