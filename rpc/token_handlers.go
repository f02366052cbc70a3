package rpc

import (
	"encoding/hex"
	"net/http"
	"strings"

	"planchain/native/token"
)

type tokenQueryParams struct {
	Plan    string `json:"plan"`
	TokenID uint64 `json:"tokenId"`
}

func (s *Server) handleTokenOwnerOf(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params tokenQueryParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid plan address", err.Error())
		return
	}
	owner, err := s.node.TokenOwner(addr, params.TokenID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"owner": formatAddress(owner)})
}

type tokenHolderParams struct {
	Plan   string `json:"plan"`
	Holder string `json:"holder"`
	Index  uint64 `json:"index,omitempty"`
}

func (s *Server) handleTokenBalanceOf(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params tokenHolderParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid plan address", err.Error())
		return
	}
	holder, err := parseAddress(params.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid holder address", err.Error())
		return
	}
	balance, err := s.node.TokenBalance(addr, holder)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"balance": balance})
}

func (s *Server) handleTokenOfOwnerByIndex(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params tokenHolderParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid plan address", err.Error())
		return
	}
	holder, err := parseAddress(params.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid holder address", err.Error())
		return
	}
	tokenID, err := s.node.TokenByIndex(addr, holder, params.Index)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"tokenId": tokenID})
}

func (s *Server) handleTokenURI(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params tokenQueryParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid plan address", err.Error())
		return
	}
	uri, err := s.node.TokenURI(addr, params.TokenID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"uri": uri})
}

func (s *Server) handleTokenTotalSupply(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params planAddressParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid plan address", err.Error())
		return
	}
	supply, err := s.node.TokenSupply(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"totalSupply": supply})
}

type tokenInterfaceParams struct {
	InterfaceID string `json:"interfaceId"`
}

func (s *Server) handleTokenSupportsInterface(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params tokenInterfaceParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	raw := strings.TrimPrefix(strings.TrimSpace(params.InterfaceID), "0x")
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != 4 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "interfaceId must be 4 hex bytes", params.InterfaceID)
		return
	}
	var id [4]byte
	copy(id[:], decoded)
	writeResult(w, req.ID, map[string]bool{"supported": token.SupportsInterface(id)})
}
