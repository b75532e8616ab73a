package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func sampleReport() *Report {
	r := New(7, 8453, "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432",
		"ipfs://bafytest", "0x1111111111111111111111111111111111111111",
		time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC))
	r.BlockNumber = 12345
	r.Agent.Owner = "0x2222222222222222222222222222222222222222"
	r.Scores = Scores{
		Metadata:             80,
		Onchain:              100,
		EndpointAvailability: 100,
		EndpointPerformance:  80,
		Security:             90,
		Consistency:          85,
		Content:              75,
	}
	r.Checks.Endpoints = []EndpointCheck{{
		Service:     "a2a",
		Endpoint:    "https://agent.example/.well-known/agent.json",
		Reachable:   true,
		ValidSchema: boolPtr(true),
		Latency:     &LatencyMetrics{P50: 40, P95: 90, P99: 90},
		Issues: []Issue{
			{Severity: SeverityWarning, Code: "HIGH_LATENCY", Message: "p95 over budget"},
		},
	}}
	r.Checks.Metadata.Issues = []Issue{
		{Severity: SeverityCritical, Code: "MISSING_REQUIRED_FIELDS", Message: "image missing"},
	}
	r.Checks.Content.Issues = []Issue{
		{Severity: SeverityInfo, Code: "NO_CONTACT_INFO", Message: "no contact info"},
	}
	r.FinalizeScores()
	return r
}

func TestWeightedOverall(t *testing.T) {
	t.Run("known combination", func(t *testing.T) {
		s := Scores{
			EndpointAvailability: 100,
			EndpointPerformance:  80,
			Security:             90,
			Metadata:             80,
			Onchain:              100,
			Consistency:          85,
			Content:              75,
		}
		// 35 + 16 + 9 + 12 + 10 + 4.25 + 3.75 = 90, truncated
		assert.Equal(t, 90, WeightedOverall(s))
	})

	t.Run("bounds", func(t *testing.T) {
		assert.Equal(t, 0, WeightedOverall(Scores{}))
		full := Scores{
			EndpointAvailability: 100, EndpointPerformance: 100,
			Security: 100, Metadata: 100, Onchain: 100,
			Consistency: 100, Content: 100,
		}
		assert.Equal(t, 100, WeightedOverall(full))
	})

	t.Run("deterministic", func(t *testing.T) {
		s := Scores{EndpointAvailability: 33, EndpointPerformance: 67, Security: 12,
			Metadata: 55, Onchain: 99, Consistency: 1, Content: 100}
		assert.Equal(t, WeightedOverall(s), WeightedOverall(s))
	})
}

func TestFinalizeScores(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, 90, r.Scores.Overall)
	assert.Equal(t, int64(90), r.Value)
}

func TestCountIssues(t *testing.T) {
	r := sampleReport()
	count := r.CountIssues()
	assert.Equal(t, IssueCount{Critical: 1, Warning: 1, Info: 1}, count)
}

func TestWireRoundTrip(t *testing.T) {
	r := sampleReport()
	r.SetPrimaryEndpoint("https://agent.example/.well-known/agent.json")
	r.SetPublishedURLs("https://arweave.net/md123", "https://arweave.net/json123")
	r.SetSignature("0xsig")
	r.SetFeedbackTx(8453, "0xtx")

	wire, err := json.Marshal(r)
	require.NoError(t, err)

	var back Report
	require.NoError(t, json.Unmarshal(wire, &back))
	assert.Equal(t, *r, back)

	// Spot-check the camelCase contract.
	var generic map[string]any
	require.NoError(t, json.Unmarshal(wire, &generic))
	assert.Contains(t, generic, "agentRegistry")
	assert.Contains(t, generic, "reportMarkdownUrl")
	assert.Contains(t, generic, "feedbackTxHash")
	checks := generic["checks"].(map[string]any)
	assert.Contains(t, checks, "endpoints")
	assert.Contains(t, checks, "consistency")
}

func TestCanonical(t *testing.T) {
	t.Run("signature and annotations excluded", func(t *testing.T) {
		r := sampleReport()
		before, err := r.Canonical()
		require.NoError(t, err)

		r.SetSignature("0xdeadbeef")
		r.SetPublishedURLs("https://arweave.net/a", "https://arweave.net/b")
		r.SetFeedbackTx(8453, "0xtx")
		after, err := r.Canonical()
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("hash is stable", func(t *testing.T) {
		r := sampleReport()
		h1, err := r.CanonicalHash()
		require.NoError(t, err)
		h2, err := r.CanonicalHash()
		require.NoError(t, err)
		assert.Equal(t, h1, h2)
		assert.Len(t, h1, 64)
	})
}
