package metadata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchy-xyz/watchy/pkg/failover"
	"github.com/watchy-xyz/watchy/pkg/protocol"
)

const sampleDocument = `{
	"type": "https://eips.ethereum.org/EIPS/eip-8004#registration-v1",
	"name": "Forecast Agent",
	"description": "Long-range weather forecasting with verifiable data sources and hourly refresh.",
	"image": "https://cdn.example/agent.png",
	"services": [
		{"name": "A2A", "endpoint": "https://agent.example/.well-known/agent.json", "version": "1.0", "a2aSkills": ["analysis/forecasting"]},
		{"name": "MCP", "endpoint": "https://agent.example/mcp", "mcpTools": ["forecast"]},
		{"name": "custom-bus", "endpoint": "tcp://agent.example:9000"}
	],
	"registrations": [{"agentId": 7, "agentRegistry": "eip155:8453:0x8004A169FB4a3325136EB29fA0ceB6D2e539a432"}],
	"supportedTrust": ["reputation"],
	"x402Support": true,
	"active": true
}`

func TestCandidates(t *testing.T) {
	r := NewResolver(nil)

	t.Run("ipfs pointer fans out to every gateway", func(t *testing.T) {
		urls := r.Candidates("ipfs://bafkreitest123")
		require.Len(t, urls, 5)
		assert.Equal(t, "https://dweb.link/ipfs/bafkreitest123", urls[0])
		assert.Contains(t, urls[1], "cloudflare-ipfs.com")
	})

	t.Run("arweave pointer", func(t *testing.T) {
		urls := r.Candidates("ar://abc123xyz")
		require.Len(t, urls, 3)
		assert.Equal(t, "https://arweave.net/abc123xyz", urls[0])
	})

	t.Run("direct url has no fallbacks", func(t *testing.T) {
		urls := r.Candidates("https://example.com/metadata.json")
		assert.Equal(t, []string{"https://example.com/metadata.json"}, urls)
	})
}

func TestResolveInline(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(nil)

	t.Run("base64 inline document", func(t *testing.T) {
		pointer := "data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte(sampleDocument))
		agent, err := r.Resolve(ctx, pointer)
		require.NoError(t, err)
		assert.Equal(t, "Forecast Agent", agent.Name)
		assert.True(t, agent.PaysPerCall())
	})

	t.Run("url-encoded inline document", func(t *testing.T) {
		pointer := "data:application/json," + "%7B%22name%22%3A%22Tiny%22%7D"
		agent, err := r.Resolve(ctx, pointer)
		require.NoError(t, err)
		assert.Equal(t, "Tiny", agent.Name)
	})

	t.Run("unsupported data pointer", func(t *testing.T) {
		_, err := r.Resolve(ctx, "data:text/plain,hello")
		assert.ErrorContains(t, err, "unsupported data: pointer")
	})

	t.Run("broken base64", func(t *testing.T) {
		_, err := r.Resolve(ctx, "data:application/json;base64,!!!")
		assert.ErrorContains(t, err, "base64 decode")
	})
}

func TestResolveHTTP(t *testing.T) {
	ctx := context.Background()

	t.Run("direct url", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(sampleDocument))
		}))
		defer srv.Close()

		r := NewResolver(srv.Client())
		agent, err := r.Resolve(ctx, srv.URL+"/meta.json")
		require.NoError(t, err)
		assert.Equal(t, "Forecast Agent", agent.Name)
	})

	t.Run("gateway failover on error status", func(t *testing.T) {
		hits := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			if strings.HasPrefix(r.URL.Path, "/bad/") {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(sampleDocument))
		}))
		defer srv.Close()

		r := NewResolver(srv.Client())
		r.ipfsGateways = []string{srv.URL + "/bad/", srv.URL + "/good/"}
		agent, err := r.Resolve(ctx, "ipfs://bafytest")
		require.NoError(t, err)
		assert.Equal(t, "Forecast Agent", agent.Name)
		assert.Equal(t, 2, hits)
	})

	t.Run("all gateways failing carries the last error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		r := NewResolver(srv.Client())
		r.ipfsGateways = []string{srv.URL + "/a/", srv.URL + "/b/"}
		_, err := r.Resolve(ctx, "ipfs://bafymissing")
		var ex *failover.ExhaustedError
		require.ErrorAs(t, err, &ex)
		assert.Equal(t, 2, ex.Tried)
		assert.Contains(t, err.Error(), "HTTP 404")
	})

	t.Run("declared content length over the cap", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Length", "2097152")
			_, _ = w.Write(make([]byte, 2<<20))
		}))
		defer srv.Close()

		r := NewResolver(srv.Client())
		_, err := r.Resolve(ctx, srv.URL)
		var ex *failover.ExhaustedError
		require.ErrorAs(t, err, &ex)
		assert.Contains(t, err.Error(), "too large")
	})

	t.Run("invalid JSON body fails the candidate", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>not json</html>"))
		}))
		defer srv.Close()

		r := NewResolver(srv.Client())
		_, err := r.Resolve(ctx, srv.URL)
		assert.Error(t, err)
	})
}

func TestParse(t *testing.T) {
	t.Run("families decided at parse time", func(t *testing.T) {
		agent, err := Parse([]byte(sampleDocument))
		require.NoError(t, err)
		require.Len(t, agent.Services, 3)
		assert.Equal(t, protocol.FamilyA2A, agent.Services[0].Family)
		assert.Equal(t, protocol.FamilyMCP, agent.Services[1].Family)
		assert.Equal(t, protocol.FamilyUnknown, agent.Services[2].Family)
		assert.True(t, agent.Services[0].HTTPEndpoint())
		assert.False(t, agent.Services[2].HTTPEndpoint())
	})

	t.Run("structural validation rejects wrong shapes", func(t *testing.T) {
		_, err := Parse([]byte(`{"name": 12, "services": "nope"}`))
		assert.ErrorContains(t, err, "structural validation")
	})

	t.Run("never partially succeeds", func(t *testing.T) {
		_, err := Parse([]byte(`{"name": "ok", "registrations": [{"agentId": "seven"}]}`))
		assert.Error(t, err)
	})
}

func TestFindRegistration(t *testing.T) {
	agent := &Agent{Registrations: []Registration{
		{RecordID: 7, Registry: "eip155:8453:0xABCdef0000000000000000000000000000008004"},
	}}

	t.Run("case-insensitive segment match", func(t *testing.T) {
		_, ok := agent.FindRegistration(7, "EIP155:8453:0xabcDEF0000000000000000000000000000008004")
		assert.True(t, ok)
	})

	t.Run("record id must match", func(t *testing.T) {
		_, ok := agent.FindRegistration(8, "eip155:8453:0xABCdef0000000000000000000000000000008004")
		assert.False(t, ok)
	})

	t.Run("substring of a segment is not a match", func(t *testing.T) {
		_, ok := agent.FindRegistration(7, "eip155:845:0xABCdef0000000000000000000000000000008004")
		assert.False(t, ok)
	})

	t.Run("malformed pointer never matches", func(t *testing.T) {
		_, ok := agent.FindRegistration(7, "eip155:8453")
		assert.False(t, ok)
	})
}

func TestWireRoundTrip(t *testing.T) {
	agent, err := Parse([]byte(sampleDocument))
	require.NoError(t, err)

	out, err := json.Marshal(agent)
	require.NoError(t, err)
	back, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, agent, back)
}
