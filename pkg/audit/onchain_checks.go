package audit

import (
	"github.com/watchy-xyz/watchy/pkg/chain"
	"github.com/watchy-xyz/watchy/pkg/report"
)

// verifyOnchain scores the ledger facts. A nonexistent record zeroes the
// score outright; a missing agent wallet is only a deduction. URIMatches is
// true by construction: the document is always fetched from the on-chain
// pointer, never from a caller-supplied URI.
func verifyOnchain(facts chain.Facts) (report.OnchainChecks, int) {
	score := 100
	checks := report.OnchainChecks{Issues: []report.Issue{}}

	checks.AgentExists = facts.Exists
	if !checks.AgentExists {
		score = 0
		checks.Issues = append(checks.Issues, report.Issue{
			Severity: report.SeverityCritical,
			Code:     "AGENT_NOT_FOUND",
			Message:  "Agent does not exist on-chain",
		})
	}

	checks.URIMatches = true
	checks.WalletSet = facts.Wallet != ""
	if !checks.WalletSet {
		score = sub(score, 20)
		checks.Issues = append(checks.Issues, report.Issue{
			Severity: report.SeverityWarning,
			Code:     "NO_WALLET",
			Message:  "Agent wallet is not set",
		})
	}

	checks.Passed = score >= 60
	return checks, score
}
