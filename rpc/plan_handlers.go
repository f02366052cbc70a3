package rpc

import (
	"net/http"

	"planchain/native/plan"
)

type planJSON struct {
	Address           string `json:"address"`
	Retailer          string `json:"retailer"`
	Price             string `json:"price"`
	DurationDays      uint64 `json:"durationDays"`
	CapacityTotal     uint64 `json:"capacityTotal"`
	CapacityAvailable uint64 `json:"capacityAvailable"`
	Sold              uint64 `json:"sold"`
	Description       string `json:"description"`
	MetadataURI       string `json:"metadataURI"`
	Cancelled         bool   `json:"cancelled"`
	Owner             string `json:"owner"`
	CreatedAt         int64  `json:"createdAt"`
}

func planToJSON(p *plan.Plan) planJSON {
	return planJSON{
		Address:           formatAddress(p.Address),
		Retailer:          p.Retailer,
		Price:             p.Price.String(),
		DurationDays:      p.DurationDays,
		CapacityTotal:     p.CapacityTotal,
		CapacityAvailable: p.CapacityAvailable,
		Sold:              p.Sold(),
		Description:       p.Description,
		MetadataURI:       p.MetadataURI,
		Cancelled:         p.Cancelled,
		Owner:             formatAddress(p.Owner),
		CreatedAt:         p.CreatedAt,
	}
}

type planAddressParams struct {
	Plan string `json:"plan"`
}

func (s *Server) handlePlanGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
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
	p, err := s.node.GetPlan(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, planToJSON(p))
}

type planPurchaseParams struct {
	Plan      string `json:"plan"`
	Buyer     string `json:"buyer"`
	Recipient string `json:"recipient,omitempty"`
	Value     string `json:"value"`
}

type planPurchaseResult struct {
	TokenID uint64 `json:"tokenId"`
}

func (s *Server) handlePlanPurchase(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params planPurchaseParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid plan address", err.Error())
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer address", err.Error())
		return
	}
	var recipient [20]byte
	if params.Recipient != "" {
		recipient, err = parseAddress(params.Recipient)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid recipient address", err.Error())
			return
		}
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid value", err.Error())
		return
	}
	tokenID, err := s.node.Purchase(addr, buyer, recipient, value)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, planPurchaseResult{TokenID: tokenID})
}

type planCallerParams struct {
	Plan   string `json:"plan"`
	Caller string `json:"caller"`
}

func (s *Server) handlePlanCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params planCallerParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid plan address", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	if err := s.node.CancelPlan(addr, caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"cancelled": true})
}

type planRefundParams struct {
	Plan    string `json:"plan"`
	Caller  string `json:"caller"`
	TokenID uint64 `json:"tokenId"`
}

func (s *Server) handlePlanRequestRefund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params planRefundParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid plan address", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	if err := s.node.RequestRefund(addr, caller, params.TokenID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"refundRequested": true})
}

type planWithdrawResult struct {
	Amount string `json:"amount"`
}

func (s *Server) handlePlanWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params planCallerParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid plan address", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	amount, err := s.node.Withdraw(addr, caller)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, planWithdrawResult{Amount: amount.String()})
}

type planForceReclaimParams struct {
	Plan    string `json:"plan"`
	Caller  string `json:"caller"`
	From    string `json:"from"`
	To      string `json:"to"`
	TokenID uint64 `json:"tokenId"`
}

func (s *Server) handlePlanForceReclaim(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params planForceReclaimParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid plan address", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid from address", err.Error())
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to address", err.Error())
		return
	}
	if err := s.node.ForceReclaim(addr, caller, from, to, params.TokenID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"reclaimed": true})
}

type planEscrowParams struct {
	Plan string `json:"plan"`
	Who  string `json:"who"`
}

func (s *Server) handlePlanEscrowOf(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params planEscrowParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid plan address", err.Error())
		return
	}
	who, err := parseAddress(params.Who)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	amount, err := s.node.EscrowOf(addr, who)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, planWithdrawResult{Amount: amount.String()})
}

type planDiscountParams struct {
	Amount   string `json:"amount"`
	Quantity uint64 `json:"quantity"`
}

type planDiscountResult struct {
	Total string `json:"total"`
}

func (s *Server) handlePlanPreviewDiscount(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params planDiscountParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	total, err := plan.CalculateDiscount(amount, params.Quantity)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, planDiscountResult{Total: total.String()})
}
