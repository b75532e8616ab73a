// Package chains holds the per-chain configuration table: RPC endpoints,
// identity/reputation registry addresses, and explorers for every ledger the
// auditor can read. The table is built once at startup and passed by value
// into the resolvers; there is no package-level mutable state.
package chains

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind distinguishes ledger ecosystems. Only EVM chains carry an
// EIP-8004 identity registry today.
type Kind string

const (
	KindEVM    Kind = "evm"
	KindSolana Kind = "solana"
)

// Chain is the immutable configuration for one ledger.
type Chain struct {
	ID                uint64   `yaml:"id"`
	Name              string   `yaml:"name"`
	Kind              Kind     `yaml:"kind"`
	RegistryAddress   string   `yaml:"registryAddress,omitempty"`
	ReputationAddress string   `yaml:"reputationAddress,omitempty"`
	RPCs              []string `yaml:"rpcs"`
	BlockExplorer     string   `yaml:"blockExplorer,omitempty"`
}

// HasRegistry reports whether an identity registry is deployed on the chain.
func (c Chain) HasRegistry() bool { return c.RegistryAddress != "" }

// Table maps chain ids to chain configurations.
type Table struct {
	byID map[uint64]Chain
	// lookupEnv is swappable for tests; defaults to os.LookupEnv.
	lookupEnv func(string) (string, bool)
}

// Defaults returns the built-in chain table: Base and Ethereum mainnets,
// their Sepolia testnets, and the Solana clusters (registry pending).
// Registry/reputation addresses follow the ERC-8004 reference deployment.
func Defaults() Table {
	chains := []Chain{
		{
			ID:                8453,
			Name:              "base",
			Kind:              KindEVM,
			RegistryAddress:   "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432",
			ReputationAddress: "0x8004BAa17C55a88189AE136b182e5fdA19dE9b63",
			RPCs: []string{
				"https://mainnet.base.org",
				"https://base.llamarpc.com",
				"https://base.drpc.org",
				"https://base-mainnet.public.blastapi.io",
			},
			BlockExplorer: "https://basescan.org",
		},
		{
			ID:                1,
			Name:              "ethereum",
			Kind:              KindEVM,
			RegistryAddress:   "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432",
			ReputationAddress: "0x8004BAa17C55a88189AE136b182e5fdA19dE9b63",
			RPCs: []string{
				"https://eth.llamarpc.com",
				"https://ethereum.publicnode.com",
				"https://rpc.ankr.com/eth",
				"https://eth.drpc.org",
			},
			BlockExplorer: "https://etherscan.io",
		},
		{
			ID:                84532,
			Name:              "base-sepolia",
			Kind:              KindEVM,
			RegistryAddress:   "0x8004A818BFB912233c491871b3d84c89A494BD9e",
			ReputationAddress: "0x8004B663056A597Dffe9eCcC1965A193B7388713",
			RPCs: []string{
				"https://sepolia.base.org",
				"https://base-sepolia.drpc.org",
				"https://base-sepolia.publicnode.com",
			},
			BlockExplorer: "https://sepolia.basescan.org",
		},
		{
			ID:                11155111,
			Name:              "sepolia",
			Kind:              KindEVM,
			RegistryAddress:   "0x8004A818BFB912233c491871b3d84c89A494BD9e",
			ReputationAddress: "0x8004B663056A597Dffe9eCcC1965A193B7388713",
			RPCs: []string{
				"https://sepolia.drpc.org",
				"https://ethereum-sepolia.publicnode.com",
				"https://rpc.ankr.com/eth_sepolia",
			},
			BlockExplorer: "https://sepolia.etherscan.io",
		},
		{
			ID:   101,
			Name: "solana",
			Kind: KindSolana,
			RPCs: []string{
				"https://api.mainnet-beta.solana.com",
				"https://solana-api.projectserum.com",
			},
			BlockExplorer: "https://solscan.io",
		},
		{
			ID:   103,
			Name: "solana-devnet",
			Kind: KindSolana,
			RPCs: []string{
				"https://api.devnet.solana.com",
			},
			BlockExplorer: "https://solscan.io/?cluster=devnet",
		},
	}

	return FromChains(chains)
}

// FromChains builds a table from an explicit chain list. Used by tests to
// inject synthetic chains.
func FromChains(chains []Chain) Table {
	byID := make(map[uint64]Chain, len(chains))
	for _, c := range chains {
		byID[c.ID] = c
	}
	return Table{byID: byID, lookupEnv: os.LookupEnv}
}

// LoadFile reads a YAML chain list and overlays it onto the defaults.
// Entries with an id already present replace the default entry wholesale.
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("chains: read %s: %w", path, err)
	}
	var overlay struct {
		Chains []Chain `yaml:"chains"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Table{}, fmt.Errorf("chains: parse %s: %w", path, err)
	}

	t := Defaults()
	for _, c := range overlay.Chains {
		if c.ID == 0 {
			return Table{}, fmt.Errorf("chains: entry %q has no id", c.Name)
		}
		t.byID[c.ID] = c
	}
	return t, nil
}

// Get returns the chain config for an id.
func (t Table) Get(chainID uint64) (Chain, bool) {
	c, ok := t.byID[chainID]
	return c, ok
}

// IDs returns all configured chain ids, sorted.
func (t Table) IDs() []uint64 {
	ids := make([]uint64, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// WithRegistry returns the chains that have an identity registry deployed.
func (t Table) WithRegistry() []Chain {
	var out []Chain
	for _, id := range t.IDs() {
		if c := t.byID[id]; c.HasRegistry() {
			out = append(out, c)
		}
	}
	return out
}

// RPCEnvKey is the environment variable consulted for an RPC override,
// e.g. RPC_URL_BASE_SEPOLIA for the base-sepolia chain.
func RPCEnvKey(name string) string {
	return "RPC_URL_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// AllRPCs returns the ordered RPC candidate list for a chain: the
// environment override first when set, then the configured endpoints.
// Ordering encodes preference; callers must try candidates sequentially.
func (t Table) AllRPCs(chainID uint64) []string {
	c, ok := t.byID[chainID]
	if !ok {
		return nil
	}
	var rpcs []string
	if url, ok := t.lookupEnv(RPCEnvKey(c.Name)); ok && url != "" {
		rpcs = append(rpcs, url)
	}
	rpcs = append(rpcs, c.RPCs...)
	return rpcs
}
