package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func evmServer(t *testing.T, blockNumber, chainID string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		var result string
		switch req.Method {
		case "eth_blockNumber":
			result = blockNumber
		case "eth_chainId":
			result = chainID
		}
		json.NewEncoder(w).Encode(jsonRPCResponse{Result: result})
	}))
}

func TestValidateEVMSuccess(t *testing.T) {
	srv := evmServer(t, "0x64", "0x1")
	defer srv.Close()

	chainID := int64(1)
	n := Network{
		NetworkType: TypeEVM,
		ChainID:     &chainID,
		RPCURLs:     []RPCURL{{URL: srv.URL, Type: RolePrimary}},
	}

	v := NewValidator(srv.Client())
	result := v.Validate(context.Background(), n)

	if !result.IsValid {
		t.Fatalf("expected valid result, got errors=%v endpoints=%+v", result.Errors, result.Endpoints)
	}
	if result.CurrentBlockHeight == nil || *result.CurrentBlockHeight != 100 {
		t.Errorf("CurrentBlockHeight = %v, want 100", result.CurrentBlockHeight)
	}
}

func TestValidateEVMChainIDMismatch(t *testing.T) {
	srv := evmServer(t, "0x64", "0x2")
	defer srv.Close()

	chainID := int64(1)
	n := Network{
		NetworkType: TypeEVM,
		ChainID:     &chainID,
		RPCURLs:     []RPCURL{{URL: srv.URL, Type: RolePrimary}},
	}

	v := NewValidator(srv.Client())
	result := v.Validate(context.Background(), n)

	if result.IsValid {
		t.Fatal("expected invalid result on chain ID mismatch")
	}
	if len(result.Endpoints) != 1 || result.Endpoints[0].Online {
		t.Errorf("endpoint should be offline: %+v", result.Endpoints)
	}
}

func TestValidateMissingStructuralFields(t *testing.T) {
	v := NewValidator(nil)
	result := v.Validate(context.Background(), Network{NetworkType: TypeEVM})

	if result.IsValid {
		t.Fatal("expected invalid result for missing rpc_urls and chain_id")
	}
	if _, ok := result.Errors["rpc_urls"]; !ok {
		t.Error("expected rpc_urls structural error")
	}
	if _, ok := result.Errors["chain_id"]; !ok {
		t.Error("expected chain_id structural error")
	}
}

func TestValidateStellarSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := stellarLedgersResponse{}
		resp.Embedded.Records = []struct {
			Sequence int64 `json:"sequence"`
		}{{Sequence: 42}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	passphrase := "Test SDF Network ; September 2015"
	n := Network{
		NetworkType:       TypeStellar,
		NetworkPassphrase: &passphrase,
		RPCURLs:           []RPCURL{{URL: srv.URL, Type: RolePrimary}},
	}

	v := NewValidator(srv.Client())
	result := v.Validate(context.Background(), n)

	if !result.IsValid {
		t.Fatalf("expected valid result, got errors=%v endpoints=%+v", result.Errors, result.Endpoints)
	}
	if result.CurrentBlockHeight == nil || *result.CurrentBlockHeight != 42 {
		t.Errorf("CurrentBlockHeight = %v, want 42", result.CurrentBlockHeight)
	}
}

func TestValidateAggregatesMultipleEndpointsMaxHeight(t *testing.T) {
	low := evmServer(t, "0x1", "0x1")
	defer low.Close()
	high := evmServer(t, "0x64", "0x1")
	defer high.Close()

	chainID := int64(1)
	n := Network{
		NetworkType: TypeEVM,
		ChainID:     &chainID,
		RPCURLs: []RPCURL{
			{URL: low.URL, Type: RolePrimary},
			{URL: high.URL, Type: RoleBackup},
		},
	}

	v := NewValidator(low.Client())
	result := v.Validate(context.Background(), n)

	if !result.IsValid {
		t.Fatalf("expected valid result, got %+v", result)
	}
	if result.CurrentBlockHeight == nil || *result.CurrentBlockHeight != 100 {
		t.Errorf("CurrentBlockHeight = %v, want 100 (max of endpoints)", result.CurrentBlockHeight)
	}
}

func TestValidateOfflineEndpointDoesNotFailWholeCheck(t *testing.T) {
	up := evmServer(t, "0x64", "0x1")
	defer up.Close()

	chainID := int64(1)
	n := Network{
		NetworkType: TypeEVM,
		ChainID:     &chainID,
		RPCURLs: []RPCURL{
			{URL: "http://127.0.0.1:1", Type: RolePrimary}, // unreachable
			{URL: up.URL, Type: RoleBackup},
		},
	}

	v := NewValidator(up.Client())
	result := v.Validate(context.Background(), n)

	if !result.IsValid {
		t.Fatal("expected valid overall result when at least one endpoint is online")
	}

	var sawOffline bool
	for _, e := range result.Endpoints {
		if !e.Online {
			sawOffline = true
			if e.Error == "" {
				t.Error("offline endpoint should carry an error string")
			}
		}
	}
	if !sawOffline {
		t.Error("expected one endpoint to be reported offline")
	}
}
