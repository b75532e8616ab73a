package audit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/watchy-xyz/watchy/pkg/metadata"
	"github.com/watchy-xyz/watchy/pkg/report"
)

// validateMetadata scores the off-chain document against the registration-v1
// contract: required fields, exact type string, a registration entry binding
// the document back to this record, and the recommended field set.
func validateMetadata(agent *metadata.Agent, recordID uint64, registry string) (report.MetadataChecks, int) {
	score := 100
	checks := report.MetadataChecks{Issues: []report.Issue{}}

	checks.RequiredFields = report.CheckResult{
		Passed: agent.HasRequiredFields(),
		Details: mustJSON(map[string]bool{
			"type":          agent.Type != "",
			"name":          agent.Name != "",
			"description":   agent.Description != "",
			"image":         agent.Image != "",
			"registrations": len(agent.Registrations) > 0,
		}),
	}
	if !checks.RequiredFields.Passed {
		score = sub(score, 40)
		checks.Issues = append(checks.Issues, report.Issue{
			Severity: report.SeverityCritical,
			Code:     "MISSING_REQUIRED_FIELDS",
			Message:  "One or more required fields are missing",
		})
	}

	checks.TypeField = report.CheckResult{
		Passed: agent.HasValidType(),
		Details: mustJSON(map[string]string{
			"expected": metadata.EIP8004Type,
			"actual":   agent.Type,
		}),
	}
	if !checks.TypeField.Passed {
		score = sub(score, 20)
		checks.Issues = append(checks.Issues, report.Issue{
			Severity: report.SeverityCritical,
			Code:     "INVALID_TYPE",
			Message:  "Type field doesn't match EIP-8004 specification",
		})
	}

	_, found := agent.FindRegistration(recordID, registry)
	checks.RegistrationMatch = report.CheckResult{
		Passed: found,
		Details: mustJSON(map[string]any{
			"agentId":  recordID,
			"registry": registry,
		}),
	}
	if !found {
		score = sub(score, 20)
		checks.Issues = append(checks.Issues, report.Issue{
			Severity: report.SeverityCritical,
			Code:     "REGISTRATION_MISMATCH",
			Message:  fmt.Sprintf("No registration found for agent %d in %s", recordID, registry),
		})
	}

	var missing []string
	if agent.Active == nil {
		missing = append(missing, "active")
	}
	if len(agent.Services) == 0 {
		missing = append(missing, "services")
	}
	if len(agent.SupportedTrust) == 0 {
		missing = append(missing, "supportedTrust")
	}
	if agent.UpdatedAt == 0 {
		missing = append(missing, "updatedAt")
	}
	checks.RecommendedFields = report.RecommendedFieldsCheck{
		Passed:  len(missing) == 0,
		Missing: missing,
	}
	if len(missing) > 0 {
		score = sub(score, 10)
		for _, field := range missing {
			checks.Issues = append(checks.Issues, report.Issue{
				Severity: report.SeverityWarning,
				Code:     "MISSING_" + strings.ToUpper(field),
				Message:  fmt.Sprintf("Recommended field '%s' is missing", field),
			})
		}
	}

	checks.Passed = score >= 60
	return checks, score
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// sub subtracts without going below zero.
func sub(score, n int) int {
	if score < n {
		return 0
	}
	return score - n
}
