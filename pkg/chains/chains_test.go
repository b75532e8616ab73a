package chains

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	tbl := Defaults()

	t.Run("base mainnet", func(t *testing.T) {
		c, ok := tbl.Get(8453)
		require.True(t, ok)
		assert.Equal(t, "base", c.Name)
		assert.True(t, c.HasRegistry())
		assert.Equal(t, "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432", c.RegistryAddress)
	})

	t.Run("unknown chain", func(t *testing.T) {
		_, ok := tbl.Get(424242)
		assert.False(t, ok)
	})

	t.Run("registry chains exclude solana", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range tbl.WithRegistry() {
			names[c.Name] = true
		}
		assert.True(t, names["base"])
		assert.True(t, names["ethereum"])
		assert.True(t, names["sepolia"])
		assert.False(t, names["solana"])
	})
}

func TestAllRPCs(t *testing.T) {
	tbl := Defaults()

	t.Run("defaults only", func(t *testing.T) {
		tbl.lookupEnv = func(string) (string, bool) { return "", false }
		rpcs := tbl.AllRPCs(8453)
		require.Len(t, rpcs, 4)
		assert.Equal(t, "https://mainnet.base.org", rpcs[0])
	})

	t.Run("env override comes first", func(t *testing.T) {
		tbl.lookupEnv = func(key string) (string, bool) {
			if key == "RPC_URL_BASE" {
				return "https://rpc.internal.example", true
			}
			return "", false
		}
		rpcs := tbl.AllRPCs(8453)
		require.Len(t, rpcs, 5)
		assert.Equal(t, "https://rpc.internal.example", rpcs[0])
	})

	t.Run("hyphenated chain name", func(t *testing.T) {
		assert.Equal(t, "RPC_URL_BASE_SEPOLIA", RPCEnvKey("base-sepolia"))
	})

	t.Run("unknown chain yields nothing", func(t *testing.T) {
		assert.Empty(t, tbl.AllRPCs(9))
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	overlay := `
chains:
  - id: 31337
    name: anvil
    kind: evm
    registryAddress: "0x00000000000000000000000000000000000080A4"
    rpcs:
      - "http://127.0.0.1:8545"
  - id: 8453
    name: base
    kind: evm
    rpcs:
      - "https://base.override.example"
`
	require.NoError(t, os.WriteFile(path, []byte(overlay), 0o600))

	tbl, err := LoadFile(path)
	require.NoError(t, err)

	local, ok := tbl.Get(31337)
	require.True(t, ok)
	assert.Equal(t, "anvil", local.Name)
	assert.True(t, local.HasRegistry())

	// Overlay replaces the default entry wholesale.
	base, ok := tbl.Get(8453)
	require.True(t, ok)
	assert.Equal(t, []string{"https://base.override.example"}, base.RPCs)
	assert.False(t, base.HasRegistry())

	// Untouched defaults survive.
	_, ok = tbl.Get(1)
	assert.True(t, ok)
}
