// Package metadata fetches and models the off-chain EIP-8004 registration
// document an agent's on-chain pointer resolves to. Documents are fetched
// once per audit and read-only afterward; they are never persisted outside
// the audit report.
package metadata

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/watchy-xyz/watchy/pkg/protocol"
)

// EIP8004Type is the exact type string a registration-v1 document must
// carry.
const EIP8004Type = "https://eips.ethereum.org/EIPS/eip-8004#registration-v1"

// Agent is the parsed off-chain metadata document.
type Agent struct {
	Type        string `json:"type,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`

	Services       []Service      `json:"services,omitempty"`
	Registrations  []Registration `json:"registrations,omitempty"`
	SupportedTrust []string       `json:"supportedTrust,omitempty"`

	X402Support *bool  `json:"x402Support,omitempty"`
	Active      *bool  `json:"active,omitempty"`
	UpdatedAt   uint64 `json:"updatedAt,omitempty"`

	Version       string   `json:"version,omitempty"`
	AgentType     string   `json:"agentType,omitempty"`
	SourceCode    string   `json:"sourceCode,omitempty"`
	Documentation string   `json:"documentation,omitempty"`
	Author        *Author  `json:"author,omitempty"`
	License       string   `json:"license,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// Service is one declared capability endpoint. Family is derived from Name
// once at parse time.
type Service struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint,omitempty"`
	Version  string `json:"version,omitempty"`

	// Protocol-specific declared capability lists.
	A2ASkills  []string          `json:"a2aSkills,omitempty"`
	MCPTools   []string          `json:"mcpTools,omitempty"`
	MCPPrompts []string          `json:"mcpPrompts,omitempty"`
	Skills     []json.RawMessage `json:"skills,omitempty"`  // OASF: string or object entries
	Domains    []json.RawMessage `json:"domains,omitempty"` // OASF

	Family protocol.Family `json:"-"`
}

// HTTPEndpoint reports whether the service declares a probeable HTTP(S)
// endpoint.
func (s Service) HTTPEndpoint() bool {
	return strings.HasPrefix(s.Endpoint, "http://") || strings.HasPrefix(s.Endpoint, "https://")
}

// Registration binds the document back to an on-chain record.
type Registration struct {
	RecordID uint64 `json:"agentId"`
	Registry string `json:"agentRegistry"` // CAIP-10: <namespace>:<chainId>:<address>
}

// Author is the optional maintainer record.
type Author struct {
	Name    string `json:"name,omitempty"`
	URL     string `json:"url,omitempty"`
	Twitter string `json:"twitter,omitempty"`
}

// Parse decodes and structurally validates a metadata document. A document
// either parses fully or fails; there is no partial result.
func Parse(data []byte) (*Agent, error) {
	if err := validateDocument(data); err != nil {
		return nil, err
	}
	var agent Agent
	if err := json.Unmarshal(data, &agent); err != nil {
		return nil, fmt.Errorf("metadata: decode document: %w", err)
	}
	for i := range agent.Services {
		agent.Services[i].Family = protocol.ParseFamily(agent.Services[i].Name)
	}
	return &agent, nil
}

// HasRequiredFields checks the registration-v1 required field set.
func (a *Agent) HasRequiredFields() bool {
	return a.Type != "" && a.Name != "" && a.Description != "" && a.Image != "" && len(a.Registrations) > 0
}

// HasValidType checks the exact EIP-8004 type string.
func (a *Agent) HasValidType() bool {
	return a.Type == EIP8004Type
}

// PaysPerCall reports whether the document claims x402 support.
func (a *Agent) PaysPerCall() bool {
	return a.X402Support != nil && *a.X402Support
}

// FindRegistration returns the registration matching the given record id
// and CAIP-10 registry pointer, comparing all three colon-delimited
// segments case-insensitively. Malformed pointers never match.
func (a *Agent) FindRegistration(recordID uint64, registry string) (Registration, bool) {
	for _, r := range a.Registrations {
		if r.RecordID == recordID && registryPointersEqual(r.Registry, registry) {
			return r, true
		}
	}
	return Registration{}, false
}

func registryPointersEqual(a, b string) bool {
	as := strings.Split(a, ":")
	bs := strings.Split(b, ":")
	if len(as) != 3 || len(bs) != 3 {
		return false
	}
	for i := range as {
		if !strings.EqualFold(strings.TrimSpace(as[i]), strings.TrimSpace(bs[i])) {
			return false
		}
	}
	return true
}

// CAIP10 formats a registry pointer for a chain id and address.
func CAIP10(chainID uint64, address string) string {
	return fmt.Sprintf("eip155:%d:%s", chainID, address)
}
