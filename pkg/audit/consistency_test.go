package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchy-xyz/watchy/pkg/metadata"
	"github.com/watchy-xyz/watchy/pkg/probe"
	"github.com/watchy-xyz/watchy/pkg/protocol"
	"github.com/watchy-xyz/watchy/pkg/report"
)

func TestVersionsMatch(t *testing.T) {
	cases := []struct {
		declared, actual string
		want             bool
	}{
		{"1.0", "1.0", true},
		{"v1.0", "1.0", true},
		{"1.0", "1.0.0", true},
		{"1.0.1", "1.0.2", true}, // patch never has to agree
		{"1", "1.9.3", true},     // major-only declaration
		{"1.2", "1", true},       // minor only binds when both sides carry one
		{"1.2", "2", false},
		{"1.0", "1.1.0", false},
		{"1.0", "2.0", false},
		{"2024-11-05", "2024-11-05", true},
		{"2024-11-05", "2025-03-26", false},
		{"", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.declared+"_vs_"+tc.actual, func(t *testing.T) {
			assert.Equal(t, tc.want, versionsMatch(tc.declared, tc.actual))
		})
	}

	t.Run("self-match always holds", func(t *testing.T) {
		for _, v := range []string{"1.0", "v3", "weird-tag", "2024-11-05"} {
			assert.True(t, versionsMatch(v, v), v)
		}
	})
}

func TestSkillsMatch(t *testing.T) {
	cases := []struct {
		declared, actual string
		want             bool
	}{
		{"forecasting", "forecasting", true},
		{"Forecasting", "forecasting", true},
		{"analysis/forecasting", "forecasting", true},        // last segments
		{"forecasting", "analysis/forecasting", true},        // last segments
		{"a/b/c", "x/b/c", true},  // shared last segment
		{"a/b/c", "x/y/z", false}, // nothing in common
		{"analysis/forecasting", "analysis/forecasting", true},
		{"data/processing", "analysis/forecasting", false},
		{"trading", "forecasting", false},
	}
	for _, tc := range cases {
		t.Run(tc.declared+"_vs_"+tc.actual, func(t *testing.T) {
			assert.Equal(t, tc.want, skillsMatch(tc.declared, tc.actual))
		})
	}
}

func TestCheckConsistency(t *testing.T) {
	ctx := context.Background()

	imageServer := func(ok bool, contentType string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if contentType != "" {
				w.Header().Set("Content-Type", contentType)
			}
			if !ok {
				w.WriteHeader(http.StatusNotFound)
			}
		}))
	}

	t.Run("everything lines up", func(t *testing.T) {
		srv := imageServer(true, "image/png")
		defer srv.Close()

		agent := &metadata.Agent{
			Name:  "Forecast Agent",
			Image: srv.URL + "/agent.png",
			Services: []metadata.Service{{
				Family:    protocol.FamilyA2A,
				Version:   "1.0",
				A2ASkills: []string{"analysis/forecasting"},
			}},
		}
		obs := Observations{A2A: &protocol.Observed{
			Name:    "forecast agent",
			Version: "1.0.3",
			Skills:  []string{"analysis/forecasting"},
		}}

		checks := checkConsistency(ctx, probe.NewClient(0).WithHTTPClient(srv.Client()), agent, obs)
		assert.True(t, checks.Passed)
		assert.True(t, checks.NameConsistent)
		assert.True(t, checks.SkillsConsistent)
		assert.True(t, checks.VersionConsistent)
		assert.True(t, checks.ImageAccessible)
		assert.Empty(t, checks.Issues)
		assert.Equal(t, 100, consistencyScore(checks))
	})

	t.Run("name and skill drift", func(t *testing.T) {
		srv := imageServer(true, "image/png")
		defer srv.Close()

		agent := &metadata.Agent{
			Name:  "Forecast Agent",
			Image: srv.URL + "/agent.png",
			Services: []metadata.Service{{
				Family:    protocol.FamilyA2A,
				A2ASkills: []string{"analysis/trading"},
			}},
		}
		obs := Observations{A2A: &protocol.Observed{
			Name:   "Completely Different",
			Skills: []string{"analysis/forecasting"},
		}}

		checks := checkConsistency(ctx, probe.NewClient(0).WithHTTPClient(srv.Client()), agent, obs)
		assert.False(t, checks.Passed)
		assert.False(t, checks.NameConsistent)
		assert.False(t, checks.SkillsConsistent)

		codes := make([]string, 0, len(checks.Issues))
		for _, is := range checks.Issues {
			codes = append(codes, is.Code)
		}
		assert.Contains(t, codes, "NAME_MISMATCH_A2A")
		assert.Contains(t, codes, "A2A_SKILL_NOT_FOUND")
		assert.Equal(t, 50, consistencyScore(checks))
	})

	t.Run("version mismatch is informational", func(t *testing.T) {
		srv := imageServer(true, "")
		defer srv.Close()

		agent := &metadata.Agent{
			Name:  "Forecast Agent",
			Image: srv.URL,
			Services: []metadata.Service{{
				Family:  protocol.FamilyMCP,
				Version: "1.0",
			}},
		}
		obs := Observations{MCP: &protocol.Observed{Version: "2.0"}}

		checks := checkConsistency(ctx, probe.NewClient(0).WithHTTPClient(srv.Client()), agent, obs)
		assert.False(t, checks.VersionConsistent)
		require.Len(t, checks.Issues, 1)
		assert.Equal(t, "MCP_VERSION_MISMATCH", checks.Issues[0].Code)
		assert.Equal(t, report.SeverityInfo, checks.Issues[0].Severity)
		// Version drift alone does not fail the phase.
		assert.True(t, checks.Passed)
		assert.Equal(t, 90, consistencyScore(checks))
	})

	t.Run("inaccessible image", func(t *testing.T) {
		srv := imageServer(false, "")
		defer srv.Close()

		agent := &metadata.Agent{Name: "A", Image: srv.URL}
		checks := checkConsistency(ctx, probe.NewClient(0).WithHTTPClient(srv.Client()), agent, Observations{})
		assert.False(t, checks.ImageAccessible)
		assert.False(t, checks.Passed)
		require.Len(t, checks.Issues, 1)
		assert.Equal(t, "IMAGE_INACCESSIBLE", checks.Issues[0].Code)
		assert.Equal(t, 85, consistencyScore(checks))
	})

	t.Run("non-image content type", func(t *testing.T) {
		srv := imageServer(true, "text/html")
		defer srv.Close()

		agent := &metadata.Agent{Name: "A", Image: srv.URL}
		checks := checkConsistency(ctx, probe.NewClient(0).WithHTTPClient(srv.Client()), agent, Observations{})
		assert.False(t, checks.ImageAccessible)
	})

	t.Run("no observations means nothing to contradict", func(t *testing.T) {
		agent := &metadata.Agent{
			Name: "A",
			Services: []metadata.Service{{
				Family:    protocol.FamilyA2A,
				Version:   "1.0",
				A2ASkills: []string{"analysis/forecasting"},
			}},
		}
		checks := checkConsistency(ctx, probe.NewClient(0), agent, Observations{})
		assert.True(t, checks.NameConsistent)
		assert.True(t, checks.SkillsConsistent)
		assert.True(t, checks.VersionConsistent)
		// No image declared, so accessibility stays false and the phase
		// cannot pass.
		assert.False(t, checks.ImageAccessible)
		assert.False(t, checks.Passed)
	})
}
