package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tinoosan/accounts-ledger/internal/meta"
)

func (s *Server) postTransfer(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var req transferRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.FromAccountID == uuid.Nil {
		badRequest(w, "fromAccountId is required")
		return
	}
	if req.ToAccountID == uuid.Nil {
		badRequest(w, "toAccountId is required")
		return
	}
	amount, err := req.Amount.parse(s.accounts.Currency(), "amount", nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.accounts.Transfer(r.Context(), req.FromAccountID, req.ToAccountID, amount, meta.New(req.Metadata))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, transferResponse{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		FromBalance:   jsonAmount(res.FromBalance),
		ToBalance:     jsonAmount(res.ToBalance),
	})
}
