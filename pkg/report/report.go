// Package report defines the audit report aggregate: per-phase check
// records, issues, scores, and the camelCase wire form that doubles as the
// EIP-8004 reputation feedback file. Check structures are created by their
// producing phase and never mutated afterward; the report itself is only
// touched post-creation by the external publish/sign/submit steps, which
// attach their annotations through the setters at the bottom of this file.
package report

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Issue is one finding attached to a check. Append-only.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// Scores holds the component scores and their weighted combination, all in
// [0,100].
type Scores struct {
	Overall              int `json:"overall"`
	Metadata             int `json:"metadata"`
	Onchain              int `json:"onchain"`
	EndpointAvailability int `json:"endpointAvailability"`
	EndpointPerformance  int `json:"endpointPerformance"`
	Security             int `json:"security"`
	Consistency          int `json:"consistency"`
	Content              int `json:"content"`
}

// Overall score weights. Availability dominates: an agent nobody can reach
// is broken no matter how pretty its metadata is.
const (
	weightAvailability = 0.35
	weightPerformance  = 0.20
	weightSecurity     = 0.10
	weightMetadata     = 0.15
	weightOnchain      = 0.10
	weightConsistency  = 0.05
	weightContent      = 0.05
)

// WeightedOverall combines the component scores, truncating to an integer.
// Deterministic: same components, same overall.
func WeightedOverall(s Scores) int {
	return int(float64(s.EndpointAvailability)*weightAvailability +
		float64(s.EndpointPerformance)*weightPerformance +
		float64(s.Security)*weightSecurity +
		float64(s.Metadata)*weightMetadata +
		float64(s.Onchain)*weightOnchain +
		float64(s.Consistency)*weightConsistency +
		float64(s.Content)*weightContent)
}

// CheckResult is a generic pass/fail with free-form details.
type CheckResult struct {
	Passed  bool            `json:"passed"`
	Details json.RawMessage `json:"details,omitempty"`
}

// RecommendedFieldsCheck lists recommended metadata fields that are absent.
type RecommendedFieldsCheck struct {
	Passed  bool     `json:"passed"`
	Missing []string `json:"missing,omitempty"`
}

// MetadataChecks records metadata-document validation.
type MetadataChecks struct {
	Passed            bool                   `json:"passed"`
	RequiredFields    CheckResult            `json:"requiredFields"`
	TypeField         CheckResult            `json:"typeField"`
	RegistrationMatch CheckResult            `json:"registrationMatch"`
	RecommendedFields RecommendedFieldsCheck `json:"recommendedFields"`
	Issues            []Issue                `json:"issues"`
}

// OnchainChecks records ledger-fact validation.
type OnchainChecks struct {
	Passed      bool    `json:"passed"`
	AgentExists bool    `json:"agentExists"`
	URIMatches  bool    `json:"uriMatches"`
	WalletSet   bool    `json:"walletSet"`
	Issues      []Issue `json:"issues"`
}

// LatencyMetrics carries nearest-rank percentiles in milliseconds.
type LatencyMetrics struct {
	P50 int64 `json:"p50"`
	P95 int64 `json:"p95"`
	P99 int64 `json:"p99"`
}

// EndpointCheck is the probe result for one declared service endpoint.
type EndpointCheck struct {
	Service     string          `json:"service"`
	Endpoint    string          `json:"endpoint"`
	Reachable   bool            `json:"reachable"`
	ValidSchema *bool           `json:"validSchema,omitempty"`
	SkillsMatch *bool           `json:"skillsMatch,omitempty"`
	Latency     *LatencyMetrics `json:"latency,omitempty"`
	Error       string          `json:"error,omitempty"`
	Issues      []Issue         `json:"issues"`
}

// SecurityHeadersCheck records presence of defensive response headers.
type SecurityHeadersCheck struct {
	XContentTypeOptions     bool `json:"xContentTypeOptions"`
	XFrameOptions           bool `json:"xFrameOptions"`
	StrictTransportSecurity bool `json:"strictTransportSecurity"`
	ContentSecurityPolicy   bool `json:"contentSecurityPolicy"`
	XXSSProtection          bool `json:"xXssProtection"`
}

// SecurityChecks records the transport-security audit of one endpoint.
type SecurityChecks struct {
	Passed                   bool                 `json:"passed"`
	TLSValid                 bool                 `json:"tlsValid"`
	TLSVersion               string               `json:"tlsVersion,omitempty"`
	CertificateValid         bool                 `json:"certificateValid"`
	CertificateDaysRemaining *int64               `json:"certificateDaysRemaining,omitempty"`
	SecurityHeaders          SecurityHeadersCheck `json:"securityHeaders"`
	HTTPSEnforced            bool                 `json:"httpsEnforced"`
	Issues                   []Issue              `json:"issues"`
}

// ConsistencyChecks records declared-vs-observed cross-validation.
type ConsistencyChecks struct {
	Passed            bool    `json:"passed"`
	NameConsistent    bool    `json:"nameConsistent"`
	SkillsConsistent  bool    `json:"skillsConsistent"`
	VersionConsistent bool    `json:"versionConsistent"`
	ImageAccessible   bool    `json:"imageAccessible"`
	Issues            []Issue `json:"issues"`
}

// DescriptionQuality scores the metadata description text.
type DescriptionQuality struct {
	Score          int  `json:"score"`
	Length         int  `json:"length"`
	HasPlaceholder bool `json:"hasPlaceholder"`
	IsMeaningful   bool `json:"isMeaningful"`
}

// X402Check records pay-per-call claim verification.
type X402Check struct {
	Valid             bool   `json:"valid"`
	Returns402        bool   `json:"returns402"`
	HasPaymentAddress bool   `json:"hasPaymentAddress"`
	HasPaymentAmount  bool   `json:"hasPaymentAmount"`
	HasPaymentNetwork bool   `json:"hasPaymentNetwork"`
	PaymentAddress    string `json:"paymentAddress,omitempty"`
	PaymentAmount     string `json:"paymentAmount,omitempty"`
	PaymentNetwork    string `json:"paymentNetwork,omitempty"`
	Error             string `json:"error,omitempty"`
}

// ContentChecks records content-quality analysis.
type ContentChecks struct {
	Passed             bool               `json:"passed"`
	DescriptionQuality DescriptionQuality `json:"descriptionQuality"`
	ValidSkillTaxonomy bool               `json:"validSkillTaxonomy"`
	HasContactInfo     bool               `json:"hasContactInfo"`
	X402Valid          *X402Check         `json:"x402Valid,omitempty"`
	Issues             []Issue            `json:"issues"`
}

// Checks groups every phase's check record.
type Checks struct {
	Metadata    MetadataChecks    `json:"metadata"`
	Onchain     OnchainChecks     `json:"onchain"`
	Endpoints   []EndpointCheck   `json:"endpoints"`
	Security    SecurityChecks    `json:"security"`
	Consistency ConsistencyChecks `json:"consistency"`
	Content     ContentChecks     `json:"content"`
}

// AuditorInfo identifies the auditor that produced a report.
type AuditorInfo struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Version string `json:"version"`
}

// AgentInfo identifies the audited agent.
type AgentInfo struct {
	RecordID    uint64 `json:"agentId"`
	Registry    string `json:"registry"`
	MetadataURI string `json:"metadataUri"`
	Owner       string `json:"owner,omitempty"`
}

// Report is the aggregate audit result. Its JSON form is the published
// artifact and follows the EIP-8004 reputation feedback file layout:
// required feedback fields first, then the audit detail.
type Report struct {
	AgentRegistry string `json:"agentRegistry"`
	AgentID       uint64 `json:"agentId"`
	ClientAddress string `json:"clientAddress"`
	CreatedAt     string `json:"createdAt"`
	Value         int64  `json:"value"`
	ValueDecimals uint8  `json:"valueDecimals"`

	Tag1     string `json:"tag1,omitempty"`
	Tag2     string `json:"tag2,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`

	Version     string      `json:"version"`
	Auditor     AuditorInfo `json:"auditor"`
	Timestamp   int64       `json:"timestamp"`
	BlockNumber uint64      `json:"blockNumber"`
	Agent       AgentInfo   `json:"agent"`
	Scores      Scores      `json:"scores"`
	Checks      Checks      `json:"checks"`

	ReportMarkdownURL string `json:"reportMarkdownUrl,omitempty"`
	ReportJSONURL     string `json:"reportJsonUrl,omitempty"`
	Signature         string `json:"signature,omitempty"`

	FeedbackChainID uint64 `json:"feedbackChainId,omitempty"`
	FeedbackTxHash  string `json:"feedbackTxHash,omitempty"`
}

// Version of the report format.
const FormatVersion = "1.0.0"

// AuditorName is the tag this service writes into every report.
const AuditorName = "watchy"

// AuditorVersion is stamped from the build; overridden at link time.
var AuditorVersion = "dev"

// New builds an empty report skeleton for an agent at a point in time.
// clientAddress may be empty when no signer is configured.
func New(recordID, chainID uint64, registryAddress, metadataURI, clientAddress string, now time.Time) *Report {
	registryFull := fmt.Sprintf("eip155:%d:%s", chainID, registryAddress)
	clientFull := ""
	if clientAddress != "" {
		clientFull = fmt.Sprintf("eip155:%d:%s", chainID, clientAddress)
	}

	return &Report{
		AgentRegistry: registryFull,
		AgentID:       recordID,
		ClientAddress: clientFull,
		CreatedAt:     now.UTC().Format("2006-01-02T15:04:05Z"),
		Tag1:          "auditScore",
		Tag2:          "infrastructure",
		Version:       FormatVersion,
		Auditor: AuditorInfo{
			Name:    AuditorName,
			Address: clientAddress,
			Version: AuditorVersion,
		},
		Timestamp: now.UTC().Unix(),
		Agent: AgentInfo{
			RecordID:    recordID,
			Registry:    registryFull,
			MetadataURI: metadataURI,
		},
	}
}

// FinalizeScores computes the weighted overall score and mirrors it into
// the feedback value.
func (r *Report) FinalizeScores() {
	r.Scores.Overall = WeightedOverall(r.Scores)
	r.Value = int64(r.Scores.Overall)
}

// IssueCount tallies issues by severity.
type IssueCount struct {
	Critical int `json:"critical"`
	Error    int `json:"error"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
}

// CountIssues walks every check's issue list.
func (r *Report) CountIssues() IssueCount {
	var count IssueCount
	tally := func(issues []Issue) {
		for _, issue := range issues {
			switch issue.Severity {
			case SeverityCritical:
				count.Critical++
			case SeverityError:
				count.Error++
			case SeverityWarning:
				count.Warning++
			case SeverityInfo:
				count.Info++
			}
		}
	}
	tally(r.Checks.Metadata.Issues)
	tally(r.Checks.Onchain.Issues)
	for _, e := range r.Checks.Endpoints {
		tally(e.Issues)
	}
	tally(r.Checks.Security.Issues)
	tally(r.Checks.Consistency.Issues)
	tally(r.Checks.Content.Issues)
	return count
}

// SetPrimaryEndpoint records the representative endpoint for feedback.
func (r *Report) SetPrimaryEndpoint(endpoint string) { r.Endpoint = endpoint }

// SetPublishedURLs is called by the upload subsystem after publication.
func (r *Report) SetPublishedURLs(markdownURL, jsonURL string) {
	r.ReportMarkdownURL = markdownURL
	r.ReportJSONURL = jsonURL
}

// SetSignature is called by the signing subsystem.
func (r *Report) SetSignature(sig string) { r.Signature = sig }

// SetFeedbackTx is called by the ledger write path after feedback
// submission.
func (r *Report) SetFeedbackTx(chainID uint64, txHash string) {
	r.FeedbackChainID = chainID
	r.FeedbackTxHash = txHash
}
