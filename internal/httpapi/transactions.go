package httpapi

import "net/http"

// listAccountTransactions handles GET /api/accounts/{id}/transactions, oldest first.
func (s *Server) listAccountTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invalid account id")
	if !ok {
		return
	}
	txs, err := s.journal.ListByAccount(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invalid transaction id")
	if !ok {
		return
	}
	t, err := s.journal.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (s *Server) getReconciliation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "invalid account id")
	if !ok {
		return
	}
	rec, err := s.journal.Reconcile(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toReconciliationResponse(rec))
}
