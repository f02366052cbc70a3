package rpc

import (
	"net/http"

	"planchain/native/ticket"
)

type ticketEventJSON struct {
	Address           string `json:"address"`
	Name              string `json:"name"`
	Price             string `json:"price"`
	CapacityTotal     uint64 `json:"capacityTotal"`
	CapacityAvailable uint64 `json:"capacityAvailable"`
	Sold              uint64 `json:"sold"`
	Description       string `json:"description"`
	ImageURI          string `json:"imageURI"`
	Cancelled         bool   `json:"cancelled"`
	Owner             string `json:"owner"`
	CreatedAt         int64  `json:"createdAt"`
}

func ticketEventToJSON(evt *ticket.Event) ticketEventJSON {
	return ticketEventJSON{
		Address:           formatAddress(evt.Address),
		Name:              evt.Name,
		Price:             evt.Price.String(),
		CapacityTotal:     evt.CapacityTotal,
		CapacityAvailable: evt.CapacityAvailable(),
		Sold:              evt.Sold,
		Description:       evt.Description,
		ImageURI:          evt.ImageURI,
		Cancelled:         evt.Cancelled,
		Owner:             formatAddress(evt.Owner),
		CreatedAt:         evt.CreatedAt,
	}
}

type ticketCreateEventParams struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Capacity    uint64 `json:"capacity"`
	Description string `json:"description"`
	ImageURI    string `json:"imageURI"`
}

func (s *Server) handleTicketCreateEvent(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ticketCreateEventParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid price", err.Error())
		return
	}
	evt, err := s.node.CreateEvent(owner, params.Name, price, params.Capacity, params.Description, params.ImageURI)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ticketEventToJSON(evt))
}

type ticketEventParams struct {
	Event string `json:"event"`
}

func (s *Server) handleTicketGetEvent(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ticketEventParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Event)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid event address", err.Error())
		return
	}
	evt, err := s.node.GetEvent(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ticketEventToJSON(evt))
}

func (s *Server) handleTicketListEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	events, err := s.node.ListEvents()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	out := make([]ticketEventJSON, 0, len(events))
	for _, evt := range events {
		out = append(out, ticketEventToJSON(evt))
	}
	writeResult(w, req.ID, out)
}

type ticketPurchaseParams struct {
	Event string `json:"event"`
	Buyer string `json:"buyer"`
	Value string `json:"value"`
}

func (s *Server) handleTicketPurchase(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ticketPurchaseParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Event)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid event address", err.Error())
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid buyer address", err.Error())
		return
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid value", err.Error())
		return
	}
	ticketID, err := s.node.PurchaseTicket(addr, buyer, value)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"ticketId": ticketID})
}

type ticketCallerParams struct {
	Event  string `json:"event"`
	Caller string `json:"caller"`
}

func (s *Server) handleTicketCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ticketCallerParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Event)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid event address", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	if err := s.node.CancelEvent(addr, caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"cancelled": true})
}

type ticketRefundParams struct {
	Event    string `json:"event"`
	Caller   string `json:"caller"`
	TicketID uint64 `json:"ticketId"`
}

func (s *Server) handleTicketRefund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ticketRefundParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Event)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid event address", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	if err := s.node.RefundTicket(addr, caller, params.TicketID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"refundRequested": true})
}

func (s *Server) handleTicketWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ticketCallerParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Event)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid event address", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	amount, err := s.node.WithdrawTicket(addr, caller)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"amount": amount.String()})
}
