package rpc

import (
	"errors"
	"net/http"

	"planchain/native/common"
	"planchain/native/plan"
	"planchain/native/registry"
	"planchain/native/ticket"
	"planchain/native/token"
)

// mapEngineError translates engine sentinels into an HTTP status and RPC code.
func mapEngineError(err error) (int, int, string) {
	switch {
	case errors.Is(err, registry.ErrUnauthorized),
		errors.Is(err, plan.ErrUnauthorized),
		errors.Is(err, ticket.ErrUnauthorized),
		errors.Is(err, token.ErrUnauthorized):
		return http.StatusForbidden, codeForbidden, "forbidden"
	case errors.Is(err, plan.ErrPlanNotFound),
		errors.Is(err, ticket.ErrEventNotFound),
		errors.Is(err, ticket.ErrTicketNotFound),
		errors.Is(err, token.ErrCollectionNotFound),
		errors.Is(err, token.ErrTokenNotFound):
		return http.StatusNotFound, codeNotFound, "not_found"
	case errors.Is(err, plan.ErrInvalidInput),
		errors.Is(err, plan.ErrIncorrectPayment),
		errors.Is(err, plan.ErrInvalidDiscountInput),
		errors.Is(err, ticket.ErrInvalidInput),
		errors.Is(err, ticket.ErrIncorrectPayment),
		errors.Is(err, token.ErrIndexOutOfBounds):
		return http.StatusBadRequest, codeInvalidParams, "invalid_params"
	case errors.Is(err, plan.ErrPlanCancelled),
		errors.Is(err, plan.ErrSoldOut),
		errors.Is(err, plan.ErrNotCancelled),
		errors.Is(err, plan.ErrNotTokenOwner),
		errors.Is(err, plan.ErrNothingToWithdraw),
		errors.Is(err, plan.ErrInsufficientFunds),
		errors.Is(err, ticket.ErrEventCancelled),
		errors.Is(err, ticket.ErrSoldOut),
		errors.Is(err, ticket.ErrNotCancelled),
		errors.Is(err, ticket.ErrNotTicketBuyer),
		errors.Is(err, ticket.ErrTicketRefunded),
		errors.Is(err, ticket.ErrNothingToWithdraw),
		errors.Is(err, ticket.ErrInsufficientFunds),
		errors.Is(err, token.ErrNotOwner),
		errors.Is(err, registry.ErrNotInitialised),
		errors.Is(err, common.ErrModulePaused):
		return http.StatusConflict, codeConflict, "conflict"
	default:
		return http.StatusInternalServerError, codeServerError, "internal_error"
	}
}

func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	status, code, message := mapEngineError(err)
	writeError(w, status, id, code, message, err.Error())
}
