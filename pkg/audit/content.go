package audit

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/watchy-xyz/watchy/pkg/metadata"
	"github.com/watchy-xyz/watchy/pkg/probe"
	"github.com/watchy-xyz/watchy/pkg/protocol"
	"github.com/watchy-xyz/watchy/pkg/report"
)

// ContentConfig tunes the content-quality phase. The defaults mirror what
// the registry ecosystem actually publishes; deployments can extend the
// lists without recompiling the scoring rules.
type ContentConfig struct {
	MinDescriptionLength int
	PlaceholderTexts     []string
	KnownSkillDomains    []string
}

// DefaultContentConfig returns the built-in placeholder and OASF
// top-level-domain lists.
func DefaultContentConfig() ContentConfig {
	return ContentConfig{
		MinDescriptionLength: 50,
		PlaceholderTexts: []string{
			"todo", "tbd", "placeholder", "description here", "lorem ipsum",
			"test agent", "example agent", "insert description",
			"under construction", "wip", "work in progress", "coming soon",
			"not yet available", "sample description", "default description",
			"add description", "enter description", "your description",
			"description goes here", "[description]", "<description>",
			"n/a", "none", "empty", "blank",
		},
		KnownSkillDomains: []string{
			"agent_orchestration", "tool_interaction",
			"natural_language_processing", "data_processing",
			"web_interaction", "file_management", "communication",
			"development", "security", "blockchain", "creative", "analysis",
		},
	}
}

// checkContent analyzes the human-facing quality of the metadata:
// description text, skill taxonomy, contact info, and the pay-per-call
// claim when one is made.
func checkContent(ctx context.Context, client *probe.Client, agent *metadata.Agent, cfg ContentConfig) report.ContentChecks {
	checks := report.ContentChecks{
		Passed:             true,
		ValidSkillTaxonomy: true,
		Issues:             []report.Issue{},
	}

	checks.DescriptionQuality = checkDescriptionQuality(agent.Description, cfg, &checks.Issues)
	checks.ValidSkillTaxonomy = checkSkillTaxonomy(agent, cfg, &checks.Issues)

	checks.HasContactInfo = hasContactInfo(agent)
	if !checks.HasContactInfo {
		checks.Issues = append(checks.Issues, report.Issue{
			Severity: report.SeverityInfo,
			Code:     "NO_CONTACT_INFO",
			Message:  "No contact or support information provided",
		})
	}

	if agent.PaysPerCall() {
		x402 := checkX402Support(ctx, client, agent)
		checks.X402Valid = &x402
		if !x402.Valid {
			msg := x402.Error
			if msg == "" {
				msg = "x402 check failed"
			}
			checks.Issues = append(checks.Issues, report.Issue{
				Severity: report.SeverityWarning,
				Code:     "X402_INVALID",
				Message:  msg,
			})
		}
	}

	checks.Passed = checks.DescriptionQuality.Score >= 60 &&
		checks.ValidSkillTaxonomy &&
		(checks.X402Valid == nil || checks.X402Valid.Valid)
	return checks
}

func checkDescriptionQuality(description string, cfg ContentConfig, issues *[]report.Issue) report.DescriptionQuality {
	length := len(description)
	lower := strings.ToLower(description)

	hasPlaceholder := false
	for _, p := range cfg.PlaceholderTexts {
		if strings.Contains(lower, p) {
			hasPlaceholder = true
			break
		}
	}

	words := strings.Fields(description)
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	variety := 0.0
	if len(words) > 0 {
		variety = float64(len(unique)) / float64(len(words))
	}

	meaningful := !hasPlaceholder &&
		length >= cfg.MinDescriptionLength &&
		variety > 0.4 &&
		len(words) >= 8

	score := 100
	if length < cfg.MinDescriptionLength {
		score = sub(score, 40)
		*issues = append(*issues, report.Issue{
			Severity: report.SeverityWarning,
			Code:     "DESCRIPTION_TOO_SHORT",
			Message: fmt.Sprintf("Description is %d characters (minimum %d recommended)",
				length, cfg.MinDescriptionLength),
		})
	}
	if hasPlaceholder {
		score = sub(score, 30)
		*issues = append(*issues, report.Issue{
			Severity: report.SeverityWarning,
			Code:     "DESCRIPTION_PLACEHOLDER",
			Message:  "Description appears to contain placeholder text",
		})
	}
	if !meaningful && !hasPlaceholder && length >= cfg.MinDescriptionLength {
		score = sub(score, 20)
		*issues = append(*issues, report.Issue{
			Severity: report.SeverityInfo,
			Code:     "DESCRIPTION_LOW_QUALITY",
			Message:  "Description has low word variety or appears auto-generated",
		})
	}

	return report.DescriptionQuality{
		Score:          score,
		Length:         length,
		HasPlaceholder: hasPlaceholder,
		IsMeaningful:   meaningful,
	}
}

// checkSkillTaxonomy flags declared A2A skill paths whose top-level domain
// is outside the known OASF taxonomy. Unknown domains are informational
// only; the check itself never fails.
func checkSkillTaxonomy(agent *metadata.Agent, cfg ContentConfig, issues *[]report.Issue) bool {
	for _, svc := range agent.Services {
		if svc.Family != protocol.FamilyA2A {
			continue
		}
		for _, skill := range svc.A2ASkills {
			if !strings.Contains(skill, "/") {
				continue
			}
			domain := strings.SplitN(skill, "/", 2)[0]
			if !exactContains(cfg.KnownSkillDomains, domain) {
				*issues = append(*issues, report.Issue{
					Severity: report.SeverityInfo,
					Code:     "UNKNOWN_SKILL_DOMAIN",
					Message: fmt.Sprintf("Skill '%s' uses unknown domain '%s' (not in OASF taxonomy)",
						skill, domain),
				})
			}
		}
	}
	return true
}

func hasContactInfo(agent *metadata.Agent) bool {
	if hasEmail(agent.Description) {
		return true
	}

	lower := strings.ToLower(agent.Description)
	keywords := []string{
		"support", "contact", "help", "discord", "telegram",
		"twitter", "github", "email", "mailto:", "x.com",
		"@twitter", "@discord", "t.me/", "discord.gg/",
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	if agent.Author != nil && (agent.Author.URL != "" || agent.Author.Twitter != "") {
		return true
	}

	for _, svc := range agent.Services {
		if svc.Family == protocol.FamilyWeb {
			return true
		}
	}
	return false
}

// hasEmail scans for a plausible address: non-empty local part up to 64
// chars, a dotted domain, and a 2-10 letter alphabetic TLD.
func hasEmail(text string) bool {
	for _, word := range strings.Fields(text) {
		cleaned := strings.TrimFunc(word, func(r rune) bool {
			if r == '@' || r == '.' || r == '-' || r == '_' {
				return false
			}
			return strings.ContainsRune("!\"#$%&'()*+,/:;<=>?[\\]^`{|}~", r)
		})

		at := strings.Index(cleaned, "@")
		if at <= 0 || at > 64 {
			continue
		}
		domain := cleaned[at+1:]
		dot := strings.LastIndex(domain, ".")
		if dot <= 0 {
			continue
		}
		tld := domain[dot+1:]
		if len(tld) < 2 || len(tld) > 10 {
			continue
		}
		alphabetic := true
		for _, r := range tld {
			if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
				alphabetic = false
				break
			}
		}
		if alphabetic {
			return true
		}
	}
	return false
}

// checkX402Support hits every declared A2A/MCP HTTP endpoint without
// payment credentials. The claim holds if at least one endpoint answers
// 402 with a payment-address header.
func checkX402Support(ctx context.Context, client *probe.Client, agent *metadata.Agent) report.X402Check {
	var check report.X402Check

	var endpoints []string
	for _, svc := range agent.Services {
		if (svc.Family == protocol.FamilyA2A || svc.Family == protocol.FamilyMCP) && svc.HTTPEndpoint() {
			endpoints = append(endpoints, svc.Endpoint)
		}
	}
	if len(endpoints) == 0 {
		check.Error = "No testable endpoint found for x402 verification"
		return check
	}

	validCount := 0
	var errs []string

	for _, endpoint := range endpoints {
		resp, err := client.Do(ctx, http.MethodGet, endpoint, true)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", endpoint, err))
			continue
		}
		status := resp.StatusCode
		header := resp.Header
		resp.Body.Close()

		switch {
		case status == http.StatusPaymentRequired:
			check.Returns402 = true

			address := firstHeader(header, "X-Payment-Address", "X-402-Address")
			amount := firstHeader(header, "X-Payment-Amount", "X-402-Amount")
			network := firstHeader(header, "X-Payment-Network", "X-402-Network", "X-Chain-Id")

			if address != "" && check.PaymentAddress == "" {
				check.HasPaymentAddress = true
				check.HasPaymentAmount = amount != ""
				check.HasPaymentNetwork = network != ""
				check.PaymentAddress = address
				check.PaymentAmount = amount
				check.PaymentNetwork = network
				validCount++
			} else if address == "" {
				errs = append(errs, fmt.Sprintf("%s: 402 response missing payment headers", endpoint))
			} else {
				validCount++
			}
		case status >= 200 && status <= 299:
			errs = append(errs, fmt.Sprintf("%s: returned %d but claims x402Support=true", endpoint, status))
		case status == http.StatusUnauthorized:
			errs = append(errs, fmt.Sprintf("%s: requires auth (401) not payment (402)", endpoint))
		default:
			errs = append(errs, fmt.Sprintf("%s: unexpected status %d", endpoint, status))
		}
	}

	check.Valid = validCount > 0
	if !check.Valid && len(errs) > 0 {
		check.Error = strings.Join(errs, "; ")
	}
	return check
}

func firstHeader(h http.Header, keys ...string) string {
	for _, key := range keys {
		if v := h.Get(key); v != "" {
			return v
		}
	}
	return ""
}

// contentScore builds up from zero: description carries 40 points, taxonomy
// 20, contact info 15, and the pay-per-call check 25 (granted outright when
// the claim was never made).
func contentScore(checks report.ContentChecks) int {
	score := int(float64(checks.DescriptionQuality.Score) * 0.4)
	if checks.ValidSkillTaxonomy {
		score += 20
	}
	if checks.HasContactInfo {
		score += 15
	}
	if checks.X402Valid == nil || checks.X402Valid.Valid {
		score += 25
	}
	return score
}
