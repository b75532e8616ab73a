package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/watchy-xyz/watchy/pkg/metadata"
	"github.com/watchy-xyz/watchy/pkg/probe"
	"github.com/watchy-xyz/watchy/pkg/protocol"
	"github.com/watchy-xyz/watchy/pkg/report"
)

// Observations are the protocol responses captured during the endpoint
// phase, keyed by family. A nil entry means that family's endpoint was
// absent, unreachable, or not JSON.
type Observations struct {
	A2A  *protocol.Observed
	MCP  *protocol.Observed
	OASF *protocol.Observed
}

// checkConsistency cross-validates the metadata document against what the
// endpoints actually serve: names, skill/tool lists, versions, and the
// image URL.
func checkConsistency(ctx context.Context, client *probe.Client, agent *metadata.Agent, obs Observations) report.ConsistencyChecks {
	checks := report.ConsistencyChecks{
		Passed:            true,
		NameConsistent:    true,
		SkillsConsistent:  true,
		VersionConsistent: true,
		Issues:            []report.Issue{},
	}

	if obs.A2A != nil && obs.A2A.Name != "" && !namesMatch(agent.Name, obs.A2A.Name) {
		checks.NameConsistent = false
		checks.Issues = append(checks.Issues, report.Issue{
			Severity: report.SeverityWarning,
			Code:     "NAME_MISMATCH_A2A",
			Message: fmt.Sprintf("Metadata name '%s' doesn't match A2A agent card name '%s'",
				agent.Name, obs.A2A.Name),
		})
	}
	if obs.MCP != nil && obs.MCP.Name != "" && !namesMatch(agent.Name, obs.MCP.Name) {
		checks.NameConsistent = false
		checks.Issues = append(checks.Issues, report.Issue{
			Severity: report.SeverityWarning,
			Code:     "NAME_MISMATCH_MCP",
			Message: fmt.Sprintf("Metadata name '%s' doesn't match MCP manifest name '%s'",
				agent.Name, obs.MCP.Name),
		})
	}

	checks.SkillsConsistent = checkSkillsConsistency(agent, obs, &checks.Issues)
	checks.VersionConsistent = checkVersionConsistency(agent, obs, &checks.Issues)

	if agent.Image != "" {
		checks.ImageAccessible = imageAccessible(ctx, client, agent.Image)
		if !checks.ImageAccessible {
			checks.Issues = append(checks.Issues, report.Issue{
				Severity: report.SeverityWarning,
				Code:     "IMAGE_INACCESSIBLE",
				Message:  "Agent image URL is not accessible: " + agent.Image,
			})
		}
	}

	checks.Passed = checks.NameConsistent && checks.SkillsConsistent && checks.ImageAccessible
	return checks
}

func checkSkillsConsistency(agent *metadata.Agent, obs Observations, issues *[]report.Issue) bool {
	consistent := true

	for _, svc := range agent.Services {
		switch svc.Family {
		case protocol.FamilyA2A:
			if len(svc.A2ASkills) == 0 || obs.A2A == nil || len(obs.A2A.Skills) == 0 {
				continue
			}
			for _, declared := range svc.A2ASkills {
				if !anySkillMatches(obs.A2A.Skills, declared) {
					consistent = false
					*issues = append(*issues, report.Issue{
						Severity: report.SeverityWarning,
						Code:     "A2A_SKILL_NOT_FOUND",
						Message:  fmt.Sprintf("Declared A2A skill '%s' not found in agent card", declared),
					})
				}
			}
		case protocol.FamilyMCP:
			if len(svc.MCPTools) == 0 || obs.MCP == nil || len(obs.MCP.Tools) == 0 {
				continue
			}
			for _, declared := range svc.MCPTools {
				if !exactContains(obs.MCP.Tools, declared) {
					consistent = false
					*issues = append(*issues, report.Issue{
						Severity: report.SeverityWarning,
						Code:     "MCP_TOOL_NOT_FOUND",
						Message:  fmt.Sprintf("Declared MCP tool '%s' not found in manifest", declared),
					})
				}
			}
		}
	}
	return consistent
}

func checkVersionConsistency(agent *metadata.Agent, obs Observations, issues *[]report.Issue) bool {
	consistent := true

	observed := func(svc metadata.Service) (string, string) {
		switch svc.Family {
		case protocol.FamilyA2A:
			if obs.A2A != nil {
				return obs.A2A.Version, "A2A"
			}
		case protocol.FamilyMCP:
			if obs.MCP != nil {
				return obs.MCP.Version, "MCP"
			}
		}
		return "", ""
	}

	for _, svc := range agent.Services {
		actual, label := observed(svc)
		if svc.Version == "" || actual == "" {
			continue
		}
		if !versionsMatch(svc.Version, actual) {
			consistent = false
			*issues = append(*issues, report.Issue{
				Severity: report.SeverityInfo,
				Code:     label + "_VERSION_MISMATCH",
				Message: fmt.Sprintf("Declared %s version '%s' doesn't match actual '%s'",
					label, svc.Version, actual),
			})
		}
	}
	return consistent
}

func namesMatch(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func anySkillMatches(actual []string, declared string) bool {
	for _, a := range actual {
		if skillsMatch(declared, a) {
			return true
		}
	}
	return false
}

// skillsMatch is the strict matcher used for consistency (the prober uses a
// looser substring match). Identifiers match on case-insensitive equality,
// equal last taxonomy-path segments, or an equal-length path suffix.
func skillsMatch(declared, actual string) bool {
	d := strings.ToLower(declared)
	a := strings.ToLower(actual)
	if d == a {
		return true
	}

	dSeg := strings.Split(d, "/")
	aSeg := strings.Split(a, "/")
	if dSeg[len(dSeg)-1] == aSeg[len(aSeg)-1] {
		return true
	}

	if len(dSeg) > 1 && len(aSeg) > 1 {
		n := len(dSeg)
		if len(aSeg) < n {
			n = len(aSeg)
		}
		for i := 1; i <= n; i++ {
			if dSeg[len(dSeg)-i] != aSeg[len(aSeg)-i] {
				return false
			}
		}
		return true
	}
	return false
}

// versionsMatch compares a declared version against an observed one.
// Matching is deliberately loose: a major-only version on either side
// matches any minor of that major, and patch levels never have to agree.
func versionsMatch(declared, actual string) bool {
	d := normalizeVersion(declared)
	a := normalizeVersion(actual)
	if d == a {
		return true
	}

	dv, errD := semver.NewVersion(d)
	av, errA := semver.NewVersion(a)
	if errD != nil || errA != nil {
		return false
	}

	if dv.Major() != av.Major() {
		return false
	}
	// Minors only have to agree when both sides spell one out; a
	// major-only version ("2") accepts any minor of that major.
	if !strings.Contains(d, ".") || !strings.Contains(a, ".") {
		return true
	}
	return dv.Minor() == av.Minor()
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v)), "v")
}

// imageAccessible HEADs the image URL; a success with an image/* (or
// absent) content type counts.
func imageAccessible(ctx context.Context, client *probe.Client, imageURL string) bool {
	resp, err := client.Head(ctx, imageURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		return strings.HasPrefix(ct, "image/")
	}
	return true
}

func exactContains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func consistencyScore(checks report.ConsistencyChecks) int {
	score := 100
	if !checks.NameConsistent {
		score = sub(score, 20)
	}
	if !checks.SkillsConsistent {
		score = sub(score, 30)
	}
	if !checks.VersionConsistent {
		score = sub(score, 10)
	}
	if !checks.ImageAccessible {
		score = sub(score, 15)
	}
	return score
}
