// Package network implements the Network entity, its platform-managed
// repository/cache layer (C4.4.3), and the liveness validator (C3).
package network

import (
	"time"

	"github.com/google/uuid"
)

// Type is the blockchain family a Network configures.
type Type string

const (
	TypeEVM     Type = "EVM"
	TypeStellar Type = "Stellar"
)

// RPCEndpointRole classifies an RPC URL's role in the failover order.
type RPCEndpointRole string

const (
	RolePrimary  RPCEndpointRole = "primary"
	RoleBackup   RPCEndpointRole = "backup"
	RoleFallback RPCEndpointRole = "fallback"
)

// RPCURL is one ordered endpoint in a network's rpc_urls list (§3).
type RPCURL struct {
	URL    string          `json:"url"`
	Type   RPCEndpointRole `json:"type"`
	Weight int             `json:"weight"`
}

// Network is a blockchain configuration: endpoints, chain/passphrase, and
// polling cadence (§3). A nil TenantID (or the platform tenant id) marks a
// platform-managed network visible to every tenant's workers.
type Network struct {
	ID                 uuid.UUID
	TenantID           *uuid.UUID
	Name               string
	Slug               string
	NetworkType        Type
	ChainID            *int64
	NetworkPassphrase  *string
	BlockTimeMs        int
	RPCURLs            []RPCURL
	ConfirmationBlocks int
	CronSchedule       string
	MaxPastBlocks      int
	StoreBlocks        bool
	Active             bool
	Validated          bool
	ValidationErrors   map[string]string
	LastValidatedAt    *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsRunnable mirrors the monitor package's runnability notion for symmetry
// in worker-facing code: a network is usable once active and validated.
func (n Network) IsRunnable() bool {
	return n.Active && n.Validated
}
