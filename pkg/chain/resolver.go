package chain

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/watchy-xyz/watchy/pkg/chains"
	"github.com/watchy-xyz/watchy/pkg/failover"
)

// Facts is everything the ledger says about one agent registration.
// Immutable once returned; a single resolve never blends data from two
// RPC endpoints.
type Facts struct {
	Exists          bool
	Owner           string
	MetadataPointer string
	Wallet          string // empty when not set
	BlockNumber     uint64
}

// Resolver resolves on-chain facts with RPC failover.
type Resolver struct {
	table chains.Table
	http  *http.Client
}

// NewResolver builds a resolver over an injected chain table. The table is
// a value, so tests can hand in synthetic chains without touching globals.
func NewResolver(table chains.Table, httpClient *http.Client) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: rpcTimeout}
	}
	return &Resolver{table: table, http: httpClient}
}

// Resolve fetches the registration facts for one agent. Each RPC endpoint
// is tried in configured order; the four reads (block height, owner,
// metadata pointer, wallet) all run against the same endpoint or not at
// all. A nonexistent token is a successful resolution with Exists=false,
// not a failover trigger — every endpoint would answer the same.
func (r *Resolver) Resolve(ctx context.Context, chainID, recordID uint64, registryAddress string) (Facts, error) {
	rpcs := r.table.AllRPCs(chainID)

	facts, err := failover.Sequential(ctx, "chain facts", rpcs,
		func(ctx context.Context, rpcURL string) (Facts, error) {
			return r.fetchFrom(ctx, rpcURL, registryAddress, recordID)
		},
		nil)
	if err != nil {
		return Facts{}, err
	}
	if !facts.Exists {
		slog.Info("agent not registered", "chain_id", chainID, "record_id", recordID)
	}
	return facts, nil
}

// fetchFrom runs the whole read batch against a single endpoint.
func (r *Resolver) fetchFrom(ctx context.Context, rpcURL, registryAddress string, recordID uint64) (Facts, error) {
	client := newRegistryClient(rpcURL, registryAddress, r.http)

	block, err := client.BlockNumber(ctx)
	if err != nil {
		return Facts{}, err
	}

	owner, err := client.OwnerOf(ctx, recordID)
	if errors.Is(err, ErrAgentNotFound) {
		return Facts{Exists: false, BlockNumber: block}, nil
	}
	if err != nil {
		return Facts{}, err
	}

	uri, err := client.TokenURI(ctx, recordID)
	if err != nil && !errors.Is(err, ErrAgentNotFound) {
		return Facts{}, err
	}

	wallet, err := client.AgentWallet(ctx, recordID)
	if err != nil {
		// Not every registry deployment exposes getAgentWallet; a revert
		// here means "not set", a transport error means try the next RPC.
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			return Facts{}, err
		}
		wallet = ""
	}

	return Facts{
		Exists:          true,
		Owner:           owner,
		MetadataPointer: uri,
		Wallet:          wallet,
		BlockNumber:     block,
	}, nil
}
