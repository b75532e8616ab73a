// Package chain reads agent registration facts from an EIP-8004 identity
// registry over plain JSON-RPC, failing over across the chain's configured
// RPC endpoints. Only the four read calls an audit needs are implemented;
// the write path (feedback submission) belongs to the wallet subsystem.
package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrAgentNotFound means the registry answered and the token does not
	// exist. It is distinguishable from a transport failure: another RPC
	// endpoint would give the same answer.
	ErrAgentNotFound = errors.New("agent not registered")
)

// registryClient issues the identity-registry read calls against one RPC
// endpoint.
type registryClient struct {
	rpc      *rpcClient
	registry string
}

func newRegistryClient(rpcURL, registryAddress string, httpClient *http.Client) *registryClient {
	return &registryClient{
		rpc:      newRPCClient(rpcURL, httpClient),
		registry: registryAddress,
	}
}

func (c *registryClient) ethCall(ctx context.Context, data string) (string, error) {
	return c.rpc.call(ctx, "eth_call", map[string]string{
		"to":   c.registry,
		"data": data,
	}, "latest")
}

// isNonexistentToken classifies an eth_call failure as "token does not
// exist". OpenZeppelin v5 reverts with ERC721NonexistentToken; older
// registries revert with a message mentioning the nonexistent token.
func isNonexistentToken(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	if strings.HasPrefix(rpcErr.Data, selNonexistentToken) {
		return true
	}
	msg := strings.ToLower(rpcErr.Message + " " + rpcErr.Data)
	return strings.Contains(msg, "nonexistent")
}

// OwnerOf returns the owner address of an agent token, or ErrAgentNotFound.
func (c *registryClient) OwnerOf(ctx context.Context, recordID uint64) (string, error) {
	result, err := c.ethCall(ctx, encodeUint256Call(selOwnerOf, recordID))
	if err != nil {
		if isNonexistentToken(err) {
			return "", ErrAgentNotFound
		}
		return "", err
	}
	if result == "0x" || result == "" {
		// Some nodes report reverts as empty return data.
		return "", ErrAgentNotFound
	}
	owner, err := decodeAddress(result)
	if err != nil {
		return "", err
	}
	if owner == zeroAddress {
		return "", ErrAgentNotFound
	}
	return owner, nil
}

// TokenURI returns the metadata pointer recorded on-chain for an agent.
func (c *registryClient) TokenURI(ctx context.Context, recordID uint64) (string, error) {
	result, err := c.ethCall(ctx, encodeUint256Call(selTokenURI, recordID))
	if err != nil {
		if isNonexistentToken(err) {
			return "", ErrAgentNotFound
		}
		return "", err
	}
	return decodeString(result)
}

// AgentWallet returns the agent's payment wallet, or "" when unset.
func (c *registryClient) AgentWallet(ctx context.Context, recordID uint64) (string, error) {
	result, err := c.ethCall(ctx, encodeUint256Call(selGetAgentWallet, recordID))
	if err != nil {
		return "", fmt.Errorf("getAgentWallet: %w", err)
	}
	wallet, err := decodeAddress(result)
	if err != nil {
		return "", err
	}
	if wallet == zeroAddress {
		return "", nil
	}
	return wallet, nil
}

// BlockNumber returns the node's current block height.
func (c *registryClient) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.rpc.call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	return decodeQuantity(result)
}
