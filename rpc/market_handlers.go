package rpc

import (
	"net/http"
)

type marketBalanceParams struct {
	Address string `json:"address"`
}

type marketBalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (s *Server) handleMarketGetBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params marketBalanceParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, marketBalanceResult{Address: params.Address, Balance: balance.String()})
}

type marketFundParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

func (s *Server) handleMarketFund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params marketFundParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.Fund(addr, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"funded": true})
}

type marketListEventsParams struct {
	Limit int `json:"limit,omitempty"`
}

type marketEventJSON struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) handleMarketListEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params marketListEventsParams
	if len(req.Params) > 0 {
		if err := singleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
			return
		}
	}
	events := s.node.RecentEvents(params.Limit)
	out := make([]marketEventJSON, 0, len(events))
	for _, evt := range events {
		out = append(out, marketEventJSON{Type: evt.Type, Attributes: evt.Attributes})
	}
	writeResult(w, req.ID, out)
}
