package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
)

// probeTimeout is the per-endpoint deadline every RPC liveness probe
// observes (§4.3, §5).
const probeTimeout = 5 * time.Second

// EndpointResult is the per-endpoint outcome of a liveness probe (§4.3).
type EndpointResult struct {
	URL       string `json:"url"`
	Online    bool   `json:"online"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ValidationResult is the outcome of validating a network (§4.3).
type ValidationResult struct {
	IsValid            bool              `json:"is_valid"`
	Errors             map[string]string `json:"errors"`
	CurrentBlockHeight *int64            `json:"current_block_height,omitempty"`
	Endpoints          []EndpointResult  `json:"endpoints"`
}

// Validator probes a network's RPC endpoints in parallel and aggregates
// their liveness into a ValidationResult (C3).
type Validator struct {
	httpClient *http.Client
	breakers   map[string]*gobreaker.CircuitBreaker
}

// NewValidator creates a Validator using httpClient for probes (pass nil for
// http.DefaultClient).
func NewValidator(httpClient *http.Client) *Validator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Validator{httpClient: httpClient, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (v *Validator) breakerFor(url string) *gobreaker.CircuitBreaker {
	if cb, ok := v.breakers[url]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        url,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	v.breakers[url] = cb
	return cb
}

// Validate runs the full structural + liveness check described in §4.3.
func (v *Validator) Validate(ctx context.Context, n Network) ValidationResult {
	result := ValidationResult{Errors: make(map[string]string)}

	if len(n.RPCURLs) == 0 {
		result.Errors["rpc_urls"] = "at least one RPC URL is required"
	}
	if n.NetworkType == TypeEVM && n.ChainID == nil {
		result.Errors["chain_id"] = "chain_id is required for EVM networks"
	}
	if n.NetworkType == TypeStellar && n.NetworkPassphrase == nil {
		result.Errors["network_passphrase"] = "network_passphrase is required for Stellar networks"
	}
	if len(result.Errors) > 0 {
		result.IsValid = false
		return result
	}

	endpoints := make([]EndpointResult, len(n.RPCURLs))
	heights := make([]*int64, len(n.RPCURLs))

	g, gctx := errgroup.WithContext(ctx)
	for i, rpc := range n.RPCURLs {
		i, rpc := i, rpc
		g.Go(func() error {
			start := time.Now()
			height, err := v.probeOne(gctx, n, rpc.URL)
			if err != nil {
				endpoints[i] = EndpointResult{URL: rpc.URL, Online: false, Error: classifyError(err)}
				return nil
			}
			endpoints[i] = EndpointResult{URL: rpc.URL, Online: true, LatencyMs: time.Since(start).Milliseconds()}
			heights[i] = &height
			return nil
		})
	}
	// Errors from probeOne are captured per-endpoint, never propagated —
	// the validator never raises; unreachable endpoints are reported as data.
	_ = g.Wait()

	result.Endpoints = endpoints

	var maxHeight *int64
	anyOnline := false
	for i, e := range endpoints {
		if e.Online {
			anyOnline = true
			if heights[i] != nil && (maxHeight == nil || *heights[i] > *maxHeight) {
				maxHeight = heights[i]
			}
		}
	}

	result.CurrentBlockHeight = maxHeight
	result.IsValid = anyOnline
	return result
}

func (v *Validator) probeOne(ctx context.Context, n Network, url string) (height int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cb := v.breakerFor(url)

	res, err := cb.Execute(func() (any, error) {
		switch n.NetworkType {
		case TypeEVM:
			return v.probeEVM(ctx, n, url)
		case TypeStellar:
			return v.probeStellar(ctx, url)
		default:
			return nil, fmt.Errorf("unsupported network type %q", n.NetworkType)
		}
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonRPCResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (v *Validator) probeEVM(ctx context.Context, n Network, url string) (int64, error) {
	height, err := v.evmCall(ctx, url, "eth_blockNumber")
	if err != nil {
		return 0, err
	}

	if n.ChainID != nil {
		chainID, err := v.evmCall(ctx, url, "eth_chainId")
		if err != nil {
			return 0, err
		}
		if chainID != *n.ChainID {
			return 0, fmt.Errorf("Chain ID mismatch: expected %d, got %d", *n.ChainID, chainID)
		}
	}

	return height, nil
}

func (v *Validator) evmCall(ctx context.Context, url, method string) (int64, error) {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("HTTP error: unexpected status %d", resp.StatusCode)
	}

	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return 0, fmt.Errorf("HTTP error: decoding response: %w", err)
	}
	if rpcResp.Error != nil {
		return 0, fmt.Errorf("HTTP error: %s", rpcResp.Error.Message)
	}

	return parseHexUint(rpcResp.Result)
}

func parseHexUint(hex string) (int64, error) {
	hex = strings.TrimPrefix(hex, "0x")
	n, err := strconv.ParseInt(hex, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing hex result %q: %w", hex, err)
	}
	return n, nil
}

type stellarLedgersResponse struct {
	Embedded struct {
		Records []struct {
			Sequence int64 `json:"sequence"`
		} `json:"records"`
	} `json:"_embedded"`
}

func (v *Validator) probeStellar(ctx context.Context, baseURL string) (int64, error) {
	url := strings.TrimSuffix(baseURL, "/") + "/ledgers?limit=1&order=desc"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("HTTP error: unexpected status %d", resp.StatusCode)
	}

	var ledgers stellarLedgersResponse
	if err := json.NewDecoder(resp.Body).Decode(&ledgers); err != nil {
		return 0, fmt.Errorf("HTTP error: decoding response: %w", err)
	}
	if len(ledgers.Embedded.Records) == 0 {
		return 0, fmt.Errorf("HTTP error: no ledger records returned")
	}

	return ledgers.Embedded.Records[0].Sequence, nil
}

// classifyError maps a probe failure to the three error classes of §4.3.
func classifyError(err error) string {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Connection timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Connection timeout"
	}
	if strings.HasPrefix(err.Error(), "HTTP error:") || strings.HasPrefix(err.Error(), "Chain ID mismatch") {
		return err.Error()
	}
	return "Test failed: " + err.Error()
}
