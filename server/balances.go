package server

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/RaghavSood/crosswap/balances"
	"github.com/RaghavSood/crosswap/swaps"
)

// handleBalances returns every known balance. With ?refresh=1 the tokens of the
// current request and their chains' native coins are re-read first.
func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if s.book == nil {
		writeJSON(w, http.StatusOK, []balances.Balance{})
		return
	}

	if r.URL.Query().Get("refresh") != "" {
		req := s.mgr.Store().Request()
		var tokens []swaps.Token
		for _, tok := range []swaps.Token{req.InputToken, req.OutputToken} {
			if tok.IsZero() {
				continue
			}
			tokens = append(tokens, tok, swaps.NativeToken(tok.ChainID, ""))
		}
		if err := s.book.Refresh(r.Context(), s.mgr.Sender(), tokens...); err != nil {
			log.Printf("server: refreshing balances: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, s.book.All())
}
