package probe

import (
	"context"
	"errors"
	"strings"

	"github.com/watchy-xyz/watchy/pkg/metadata"
	"github.com/watchy-xyz/watchy/pkg/protocol"
	"github.com/watchy-xyz/watchy/pkg/report"
)

// Prober runs the endpoint phase for one declared service at a time.
type Prober struct {
	client *Client
}

// NewProber wraps the shared outbound client.
func NewProber(client *Client) *Prober {
	return &Prober{client: client}
}

// Client exposes the underlying outbound client so later phases reuse the
// same rate limiter.
func (p *Prober) Client() *Client { return p.client }

// Probe measures one declared service: reachability via repeated HEAD
// probes, latency percentiles, and protocol-specific response validation
// via a single GET. The raw decoded response body is returned alongside
// the check so the consistency phase can reuse it without refetching.
//
// Probe never returns an error: every failure mode is folded into the
// check as issues, and an unreachable endpoint is a valid result.
func (p *Prober) Probe(ctx context.Context, svc metadata.Service) (report.EndpointCheck, map[string]any) {
	name := svc.Name
	if name == "" {
		name = svc.Family.String()
	}
	check := report.EndpointCheck{
		Service:  name,
		Endpoint: svc.Endpoint,
		Issues:   []report.Issue{},
	}

	samples := p.measureLatency(ctx, svc.Endpoint)
	if len(samples) == 0 {
		check.Error = "Connection failed"
		check.Issues = append(check.Issues, report.Issue{
			Severity: report.SeverityCritical,
			Code:     "ENDPOINT_UNREACHABLE",
			Message:  "endpoint did not answer any probe: " + svc.Endpoint,
		})
		return check, nil
	}
	check.Reachable = true
	check.Latency = percentiles(samples)

	if check.Latency.P95 > highLatencyMs {
		check.Issues = append(check.Issues, report.Issue{
			Severity: report.SeverityWarning,
			Code:     "HIGH_LATENCY",
			Message:  "p95 latency exceeds 2000ms",
		})
	}

	raw := p.validate(ctx, svc, &check)
	return check, raw
}

// validate runs the per-family schema check, setting ValidSchema and
// SkillsMatch on the check. Families without a defined response shape are
// left unvalidated (nil ValidSchema).
func (p *Prober) validate(ctx context.Context, svc metadata.Service, check *report.EndpointCheck) map[string]any {
	switch svc.Family {
	case protocol.FamilyA2A, protocol.FamilyMCP, protocol.FamilyOASF:
	case protocol.FamilyWeb:
		// A plain web presence has no machine schema; reachability is
		// the whole check.
		check.ValidSchema = boolPtr(true)
		return nil
	default:
		return nil
	}

	raw, err := p.client.GetJSON(ctx, svc.Endpoint)
	if err != nil {
		check.ValidSchema = boolPtr(false)
		check.Issues = append(check.Issues, fetchIssue(svc.Family, err))
		return nil
	}

	switch svc.Family {
	case protocol.FamilyA2A:
		p.validateA2A(svc, raw, check)
	case protocol.FamilyMCP:
		p.validateMCP(svc, raw, check)
	case protocol.FamilyOASF:
		valid := protocol.HasField(raw, "skills") || protocol.HasField(raw, "domains")
		check.ValidSchema = &valid
	}
	return raw
}

// validateA2A checks the agent card shape (name plus skills or
// capabilities) and fuzzy-matches each declared skill against the observed
// skill identifiers.
func (p *Prober) validateA2A(svc metadata.Service, raw map[string]any, check *report.EndpointCheck) {
	obs := protocol.Extract(protocol.FamilyA2A, raw)

	hasName := obs.Name != ""
	hasSkills := protocol.HasField(raw, "skills") || protocol.HasField(raw, "capabilities")
	valid := hasName && hasSkills
	check.ValidSchema = &valid

	if !hasName {
		check.Issues = append(check.Issues, report.Issue{
			Severity: report.SeverityError,
			Code:     "A2A_MISSING_NAME",
			Message:  "agent card has no name",
		})
	}

	if len(svc.A2ASkills) == 0 {
		return
	}
	match := true
	for _, declared := range svc.A2ASkills {
		if !fuzzyContains(obs.Skills, declared) {
			match = false
			break
		}
	}
	check.SkillsMatch = &match
	if !match {
		check.Issues = append(check.Issues, report.Issue{
			Severity: report.SeverityWarning,
			Code:     "A2A_SKILLS_MISMATCH",
			Message:  "declared a2aSkills not found in agent card",
		})
	}
}

// validateMCP checks for a tools list and exact membership of every
// declared tool name.
func (p *Prober) validateMCP(svc metadata.Service, raw map[string]any, check *report.EndpointCheck) {
	obs := protocol.Extract(protocol.FamilyMCP, raw)

	valid := protocol.HasField(raw, "tools")
	check.ValidSchema = &valid

	if len(svc.MCPTools) == 0 {
		return
	}
	match := true
	for _, declared := range svc.MCPTools {
		if !exactContains(obs.Tools, declared) {
			match = false
			break
		}
	}
	check.SkillsMatch = &match
	if !match {
		check.Issues = append(check.Issues, report.Issue{
			Severity: report.SeverityWarning,
			Code:     "MCP_TOOLS_MISMATCH",
			Message:  "declared mcpTools not found in tool manifest",
		})
	}
}

func fetchIssue(family protocol.Family, err error) report.Issue {
	var jsonErr *JSONError
	if errors.As(err, &jsonErr) {
		return report.Issue{
			Severity: report.SeverityError,
			Code:     "INVALID_JSON",
			Message:  "endpoint returned a non-JSON response",
		}
	}
	code := strings.ToUpper(family.String()) + "_FETCH_FAILED"
	return report.Issue{
		Severity: report.SeverityError,
		Code:     code,
		Message:  "could not fetch protocol response: " + err.Error(),
	}
}

// fuzzyContains reports whether any actual identifier matches the declared
// one as a case-insensitive substring in either direction.
func fuzzyContains(actual []string, declared string) bool {
	d := strings.ToLower(declared)
	for _, a := range actual {
		al := strings.ToLower(a)
		if strings.Contains(al, d) || strings.Contains(d, al) {
			return true
		}
	}
	return false
}

func exactContains(actual []string, declared string) bool {
	for _, a := range actual {
		if a == declared {
			return true
		}
	}
	return false
}

func boolPtr(b bool) *bool { return &b }
