package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"planchain/core"
	"planchain/crypto"
	"planchain/storage"
)

const testToken = "test-secret"

var (
	rpcOwner = [20]byte{0x01}
	rpcBuyer = [20]byte{0x02}
)

func newTestServer(t *testing.T) (*Server, *core.Node) {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), core.Config{
		RegistryOwner: rpcOwner,
		DevFaucet:     true,
	})
	require.NoError(t, err)
	return NewServer(node, Options{AuthToken: testToken}), node
}

func bech(addr [20]byte) string {
	return crypto.NewAddress(crypto.PlanPrefix, addr[:]).String()
}

func call(t *testing.T, s *Server, token, method string, params interface{}) (*RPCResponse, int) {
	t.Helper()
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		body["params"] = []interface{}{params}
	}
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	resp := &RPCResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), resp))
	return resp, rec.Code
}

func decodeResult(t *testing.T, resp *RPCResponse, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func createPlanViaRPC(t *testing.T, s *Server, price string, capacity uint64) registryPlanResult {
	t.Helper()
	resp, code := call(t, s, testToken, "registry_createPlan", map[string]interface{}{
		"caller":       bech(rpcOwner),
		"retailer":     "acme",
		"price":        price,
		"durationDays": 30,
		"capacity":     capacity,
		"description":  "gym pass",
		"metadataURI":  "ipfs://plan",
	})
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)
	var result registryPlanResult
	decodeResult(t, resp, &result)
	return result
}

func TestRPCRequiresAuthForMutations(t *testing.T) {
	s, _ := newTestServer(t)

	resp, code := call(t, s, "", "registry_createPlan", map[string]interface{}{})
	require.Equal(t, http.StatusUnauthorized, code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	resp, code = call(t, s, "wrong-token", "market_fund", map[string]interface{}{})
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestRPCReadsNeedNoAuth(t *testing.T) {
	s, _ := newTestServer(t)
	resp, code := call(t, s, "", "registry_listPlans", nil)
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)
}

func TestRPCMethodNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	resp, code := call(t, s, "", "registry_unknown", nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestRPCRejectsMalformedPayload(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(nil))
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRPCPlanLifecycle(t *testing.T) {
	s, _ := newTestServer(t)
	ref := createPlanViaRPC(t, s, "1000", 3)
	require.Equal(t, uint64(1), ref.ID)

	resp, code := call(t, s, testToken, "market_fund", map[string]interface{}{
		"address": bech(rpcBuyer),
		"amount":  "5000",
	})
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)

	resp, code = call(t, s, testToken, "plan_purchase", map[string]interface{}{
		"plan":  ref.Address,
		"buyer": bech(rpcBuyer),
		"value": "1000",
	})
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)
	var purchase planPurchaseResult
	decodeResult(t, resp, &purchase)
	require.Equal(t, uint64(1), purchase.TokenID)

	resp, _ = call(t, s, "", "token_ownerOf", map[string]interface{}{
		"plan":    ref.Address,
		"tokenId": purchase.TokenID,
	})
	require.Nil(t, resp.Error)
	var ownerResult map[string]string
	decodeResult(t, resp, &ownerResult)
	require.Equal(t, bech(rpcBuyer), ownerResult["owner"])

	resp, code = call(t, s, testToken, "plan_cancel", map[string]interface{}{
		"plan":   ref.Address,
		"caller": bech(rpcOwner),
	})
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)

	resp, code = call(t, s, testToken, "plan_requestRefund", map[string]interface{}{
		"plan":    ref.Address,
		"caller":  bech(rpcBuyer),
		"tokenId": purchase.TokenID,
	})
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)

	resp, code = call(t, s, testToken, "plan_withdraw", map[string]interface{}{
		"plan":   ref.Address,
		"caller": bech(rpcBuyer),
	})
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)
	var withdrawal planWithdrawResult
	decodeResult(t, resp, &withdrawal)
	require.Equal(t, "1000", withdrawal.Amount)

	resp, _ = call(t, s, "", "market_getBalance", map[string]interface{}{
		"address": bech(rpcBuyer),
	})
	require.Nil(t, resp.Error)
	var balance marketBalanceResult
	decodeResult(t, resp, &balance)
	require.Equal(t, "5000", balance.Balance)
}

func TestRPCWrongPaymentSurfacesInvalidParams(t *testing.T) {
	s, _ := newTestServer(t)
	ref := createPlanViaRPC(t, s, "500", 1)

	resp, code := call(t, s, testToken, "market_fund", map[string]interface{}{
		"address": bech(rpcBuyer),
		"amount":  "500",
	})
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)

	resp, code = call(t, s, testToken, "plan_purchase", map[string]interface{}{
		"plan":  ref.Address,
		"buyer": bech(rpcBuyer),
		"value": "499",
	})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestRPCUnauthorizedEngineCallIsForbidden(t *testing.T) {
	s, _ := newTestServer(t)
	ref := createPlanViaRPC(t, s, "500", 1)

	resp, code := call(t, s, testToken, "plan_cancel", map[string]interface{}{
		"plan":   ref.Address,
		"caller": bech(rpcBuyer),
	})
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, codeForbidden, resp.Error.Code)
}

func TestRPCDiscountPreview(t *testing.T) {
	s, _ := newTestServer(t)
	cases := []struct {
		amount   string
		quantity uint64
		total    string
	}{
		{"2000000000000000000", 5, "9500000000000000000"},
		{"2000000000000000000", 20, "36000000000000000000"},
		{"500000000000000000", 100, "42500000000000000000"},
	}
	for _, tc := range cases {
		resp, code := call(t, s, "", "plan_previewDiscount", map[string]interface{}{
			"amount":   tc.amount,
			"quantity": tc.quantity,
		})
		require.Equal(t, http.StatusOK, code, tc)
		require.Nil(t, resp.Error)
		var result planDiscountResult
		decodeResult(t, resp, &result)
		require.Equal(t, tc.total, result.Total, fmt.Sprintf("%s x %d", tc.amount, tc.quantity))
	}
}

func TestRPCTicketLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	resp, code := call(t, s, testToken, "ticket_createEvent", map[string]interface{}{
		"owner":       bech(rpcOwner),
		"name":        "launch party",
		"price":       "75",
		"capacity":    2,
		"description": "doors at 8",
		"imageURI":    "ipfs://img",
	})
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)
	var evt ticketEventJSON
	decodeResult(t, resp, &evt)

	resp, code = call(t, s, testToken, "market_fund", map[string]interface{}{
		"address": bech(rpcBuyer),
		"amount":  "100",
	})
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)

	resp, code = call(t, s, testToken, "ticket_purchase", map[string]interface{}{
		"event": evt.Address,
		"buyer": bech(rpcBuyer),
		"value": "75",
	})
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)

	resp, _ = call(t, s, "", "ticket_listEvents", nil)
	require.Nil(t, resp.Error)
	var listed []ticketEventJSON
	decodeResult(t, resp, &listed)
	require.Len(t, listed, 1)
	require.Equal(t, uint64(1), listed[0].Sold)
}

func TestRPCListsRecordedEvents(t *testing.T) {
	s, _ := newTestServer(t)
	createPlanViaRPC(t, s, "10", 1)

	resp, code := call(t, s, "", "market_listEvents", map[string]interface{}{"limit": 10})
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, resp.Error)
	var events []marketEventJSON
	decodeResult(t, resp, &events)
	require.NotEmpty(t, events)
	require.Equal(t, "registry.plan_created", events[len(events)-1].Type)
}

func TestRPCHealthAndMetricsEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRPCSupportsInterface(t *testing.T) {
	s, _ := newTestServer(t)
	for raw, want := range map[string]bool{
		"0x80ac58cd": true,
		"0x5b5e139f": true,
		"0x780e9d63": true,
		"0xffffffff": false,
	} {
		resp, code := call(t, s, "", "token_supportsInterface", map[string]interface{}{
			"interfaceId": raw,
		})
		require.Equal(t, http.StatusOK, code)
		require.Nil(t, resp.Error)
		var result map[string]bool
		decodeResult(t, resp, &result)
		require.Equal(t, want, result["supported"], raw)
	}
}
