// Package audit runs the full infrastructure audit pipeline for one
// registered agent: ledger facts, off-chain metadata, endpoint probing,
// transport security, declared-vs-observed consistency, and content
// quality, folded into a weighted report. Phases always run in the same
// order and, apart from a metadata fetch failure, never abort the audit:
// a failing phase scores zero and the report explains why.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/watchy-xyz/watchy/pkg/chain"
	"github.com/watchy-xyz/watchy/pkg/chains"
	"github.com/watchy-xyz/watchy/pkg/metadata"
	"github.com/watchy-xyz/watchy/pkg/probe"
	"github.com/watchy-xyz/watchy/pkg/protocol"
	"github.com/watchy-xyz/watchy/pkg/report"
)

var (
	ErrUnsupportedChain = errors.New("audit: unsupported chain id")
	ErrNotEVMChain      = errors.New("audit: chain is not an EVM chain")
	ErrNoRegistry       = errors.New("audit: no registry deployed on chain")
)

// FactsResolver is the ledger read port.
type FactsResolver interface {
	Resolve(ctx context.Context, chainID, recordID uint64, registryAddress string) (chain.Facts, error)
}

// MetadataResolver is the document fetch port.
type MetadataResolver interface {
	Resolve(ctx context.Context, pointer string) (*metadata.Agent, error)
}

// Engine wires the audit phases together. Build one per process and share
// it; Run is safe for concurrent use.
type Engine struct {
	table    chains.Table
	facts    FactsResolver
	meta     MetadataResolver
	client   *probe.Client
	prober   *probe.Prober
	security *securityAuditor
	content  ContentConfig

	// clientAddress is the configured signer address, stamped into the
	// feedback fields; empty when no signer is configured.
	clientAddress string

	now func() time.Time
	log *slog.Logger
}

// Option adjusts an Engine at construction time.
type Option func(*Engine)

// WithClientAddress sets the signer address written into reports.
func WithClientAddress(addr string) Option {
	return func(e *Engine) { e.clientAddress = addr }
}

// WithContentConfig overrides the content-phase tuning.
func WithContentConfig(cfg ContentConfig) Option {
	return func(e *Engine) { e.content = cfg }
}

// WithClock overrides the time source; tests pin it for certificate-expiry
// and timestamp assertions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
		e.security.now = now
	}
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine builds an engine over the given ports. All outbound HTTP in the
// probing, security, consistency, and content phases goes through client.
func NewEngine(table chains.Table, facts FactsResolver, meta MetadataResolver, client *probe.Client, opts ...Option) *Engine {
	e := &Engine{
		table:    table,
		facts:    facts,
		meta:     meta,
		client:   client,
		prober:   probe.NewProber(client),
		security: newSecurityAuditor(client, time.Now),
		content:  DefaultContentConfig(),
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes a full audit of one record and returns the report. Only a
// bad chain id or a ledger transport failure is an error; everything an
// agent can get wrong is expressed inside the report instead.
func (e *Engine) Run(ctx context.Context, recordID, chainID uint64) (*report.Report, error) {
	c, ok := e.table.Get(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}
	if c.Kind != chains.KindEVM {
		return nil, fmt.Errorf("%w: %s", ErrNotEVMChain, c.Name)
	}
	if !c.HasRegistry() {
		return nil, fmt.Errorf("%w: %s (chain_id: %d)", ErrNoRegistry, c.Name, chainID)
	}
	registryFull := metadata.CAIP10(chainID, c.RegistryAddress)

	e.log.Info("starting audit",
		"record_id", recordID, "chain", c.Name, "registry", registryFull)

	facts, err := e.facts.Resolve(ctx, chainID, recordID, c.RegistryAddress)
	if err != nil {
		return nil, fmt.Errorf("audit: resolve chain facts: %w", err)
	}

	rep := report.New(recordID, chainID, c.RegistryAddress, facts.MetadataPointer, e.clientAddress, e.now())
	rep.BlockNumber = facts.BlockNumber
	rep.Agent.Owner = facts.Owner

	rep.Checks.Onchain, rep.Scores.Onchain = verifyOnchain(facts)

	agent, err := e.meta.Resolve(ctx, facts.MetadataPointer)
	if err != nil {
		e.log.Warn("metadata fetch failed", "record_id", recordID, "error", err)
		rep.Checks.Metadata.Issues = append(rep.Checks.Metadata.Issues, report.Issue{
			Severity: report.SeverityCritical,
			Code:     "METADATA_FETCH_FAILED",
			Message:  "Failed to fetch metadata: " + err.Error(),
		})
		rep.Scores.Metadata = 0
		rep.FinalizeScores()
		return rep, nil
	}

	rep.Checks.Metadata, rep.Scores.Metadata = validateMetadata(agent, recordID, registryFull)

	obs := e.probeEndpoints(ctx, rep, agent)
	e.runSecurity(ctx, rep, agent)

	rep.Checks.Consistency = checkConsistency(ctx, e.client, agent, obs)
	rep.Scores.Consistency = consistencyScore(rep.Checks.Consistency)

	rep.Checks.Content = checkContent(ctx, e.client, agent, e.content)
	rep.Scores.Content = contentScore(rep.Checks.Content)

	rep.FinalizeScores()

	e.log.Info("audit completed",
		"record_id", recordID, "overall", rep.Scores.Overall)
	return rep, nil
}

// probeEndpoints runs the endpoint phase over every declared HTTP(S)
// service and aggregates availability and performance. With zero testable
// endpoints both default to 100; absence is not penalized.
func (e *Engine) probeEndpoints(ctx context.Context, rep *report.Report, agent *metadata.Agent) Observations {
	var obs Observations
	total, reachable := 0, 0
	var latencyScoreSum int64

	for _, svc := range agent.Services {
		if !svc.HTTPEndpoint() {
			continue
		}
		total++

		check, raw := e.prober.Probe(ctx, svc)
		if check.Reachable {
			reachable++
		}
		if check.Latency != nil {
			latencyScoreSum += latencyToScore(check.Latency.P95)
		}

		if raw != nil {
			observed := protocol.Extract(svc.Family, raw)
			switch svc.Family {
			case protocol.FamilyA2A:
				obs.A2A = &observed
			case protocol.FamilyMCP:
				obs.MCP = &observed
			case protocol.FamilyOASF:
				obs.OASF = &observed
			}
		}

		if rep.Endpoint == "" {
			rep.SetPrimaryEndpoint(svc.Endpoint)
		}
		rep.Checks.Endpoints = append(rep.Checks.Endpoints, check)
	}

	if total == 0 {
		rep.Scores.EndpointAvailability = 100
		rep.Scores.EndpointPerformance = 100
		return obs
	}

	rep.Scores.EndpointAvailability = int(float64(reachable) / float64(total) * 100)
	if reachable > 0 {
		rep.Scores.EndpointPerformance = int(latencyScoreSum / int64(reachable))
	}
	return obs
}

// runSecurity audits the first HTTPS endpoint; an agent with none at all
// scores zero on transport security.
func (e *Engine) runSecurity(ctx context.Context, rep *report.Report, agent *metadata.Agent) {
	for _, svc := range agent.Services {
		if strings.HasPrefix(svc.Endpoint, "https://") {
			rep.Checks.Security = e.security.Check(ctx, svc.Endpoint)
			rep.Scores.Security = securityScore(rep.Checks.Security)
			return
		}
	}

	rep.Scores.Security = 0
	rep.Checks.Security.Issues = append(rep.Checks.Security.Issues, report.Issue{
		Severity: report.SeverityCritical,
		Code:     "NO_HTTPS_ENDPOINTS",
		Message:  "No HTTPS endpoints found",
	})
}

// latencyToScore maps a p95 latency in milliseconds onto the performance
// tier scale.
func latencyToScore(p95 int64) int64 {
	switch {
	case p95 <= 200:
		return 100
	case p95 <= 500:
		return 80
	case p95 <= 1000:
		return 60
	case p95 <= 2000:
		return 40
	case p95 <= 5000:
		return 20
	default:
		return 0
	}
}
