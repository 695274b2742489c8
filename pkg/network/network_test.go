package network

import (
	"testing"

	"github.com/google/uuid"
)

func TestIsRunnable(t *testing.T) {
	cases := []struct {
		name      string
		active    bool
		validated bool
		want      bool
	}{
		{"active and validated", true, true, true},
		{"active but not validated", true, false, false},
		{"validated but not active", false, true, false},
		{"neither", false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := Network{Active: tc.active, Validated: tc.validated}
			if got := n.IsRunnable(); got != tc.want {
				t.Errorf("IsRunnable() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSlugKeyAndIDKeyNamespacing(t *testing.T) {
	id := uuid.New()
	if got := idKey(id); got != "platform:network:id:"+id.String() {
		t.Errorf("idKey() = %q", got)
	}
	if got := slugKey("ethereum-mainnet"); got != "platform:networks:ethereum-mainnet" {
		t.Errorf("slugKey() = %q", got)
	}
}

func TestCreateNetworkRequestToNetwork(t *testing.T) {
	req := createNetworkRequest{
		Name:        "Ethereum Mainnet",
		Slug:        "ethereum-mainnet",
		NetworkType: TypeEVM,
		RPCURLs: []rpcURLRequest{
			{URL: "https://rpc.example.com", Type: RolePrimary, Weight: 1},
		},
		StoreBlocks: true,
	}

	n := req.toNetwork()

	if n.Slug != req.Slug || n.NetworkType != TypeEVM {
		t.Fatalf("toNetwork() mismatched base fields: %+v", n)
	}
	if len(n.RPCURLs) != 1 || n.RPCURLs[0].URL != "https://rpc.example.com" {
		t.Errorf("RPCURLs not carried through: %+v", n.RPCURLs)
	}
	if !n.Active {
		t.Error("new networks should default to Active=true")
	}
}
