package rpc

import (
	"net/http"
)

type registryCreatePlanParams struct {
	Caller       string `json:"caller"`
	Retailer     string `json:"retailer"`
	Price        string `json:"price"`
	DurationDays uint64 `json:"durationDays"`
	Capacity     uint64 `json:"capacity"`
	Description  string `json:"description"`
	MetadataURI  string `json:"metadataURI"`
}

type registryPlanResult struct {
	ID      uint64 `json:"id"`
	Address string `json:"address"`
}

func (s *Server) handleRegistryCreatePlan(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params registryCreatePlanParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid price", err.Error())
		return
	}
	ref, err := s.node.CreatePlan(caller, params.Retailer, price, params.DurationDays, params.Capacity, params.Description, params.MetadataURI)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, registryPlanResult{ID: ref.ID, Address: formatAddress(ref.Address)})
}

type registryGetPlanParams struct {
	ID uint64 `json:"id"`
}

func (s *Server) handleRegistryGetPlan(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params registryGetPlanParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := s.node.PlanAddress(params.ID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if addr == ([20]byte{}) {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "not_found", nil)
		return
	}
	writeResult(w, req.ID, registryPlanResult{ID: params.ID, Address: formatAddress(addr)})
}

func (s *Server) handleRegistryListPlans(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	refs, err := s.node.ListPlans()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	out := make([]registryPlanResult, 0, len(refs))
	for _, ref := range refs {
		out = append(out, registryPlanResult{ID: ref.ID, Address: formatAddress(ref.Address)})
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleRegistryOwner(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	owner, err := s.node.RegistryOwner()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"owner": formatAddress(owner)})
}
