package metadata

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/watchy-xyz/watchy/pkg/failover"
)

const (
	// fetchTimeout bounds one gateway attempt.
	fetchTimeout = 15 * time.Second
	// maxDocumentSize caps a metadata document at 1 MiB, enforced against
	// the declared Content-Length and again after reading the body.
	maxDocumentSize = 1 << 20
)

// Gateway mirror lists, in order of preference. Candidates are tried
// sequentially; racing them would multiply load on public gateways for no
// latency budget we care about here.
var (
	defaultIPFSGateways = []string{
		"https://dweb.link/ipfs/",
		"https://cloudflare-ipfs.com/ipfs/",
		"https://ipfs.io/ipfs/",
		"https://w3s.link/ipfs/",
		"https://gateway.pinata.cloud/ipfs/",
	}
	defaultArweaveGateways = []string{
		"https://arweave.net/",
		"https://ar-io.net/",
		"https://arweave.dev/",
	}
)

// Resolver fetches metadata documents from their on-chain pointers.
type Resolver struct {
	http            *http.Client
	ipfsGateways    []string
	arweaveGateways []string
}

// NewResolver builds a resolver. A nil client gets a default with the
// fetch timeout applied.
func NewResolver(httpClient *http.Client) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: fetchTimeout}
	}
	return &Resolver{
		http:            httpClient,
		ipfsGateways:    defaultIPFSGateways,
		arweaveGateways: defaultArweaveGateways,
	}
}

// Candidates expands a pointer into the ordered fetch candidate list: one
// URL per gateway for content-addressed schemes, exactly one for direct
// URLs.
func (r *Resolver) Candidates(pointer string) []string {
	if cid, ok := strings.CutPrefix(pointer, "ipfs://"); ok {
		urls := make([]string, 0, len(r.ipfsGateways))
		for _, gw := range r.ipfsGateways {
			urls = append(urls, gw+cid)
		}
		return urls
	}
	if txID, ok := strings.CutPrefix(pointer, "ar://"); ok {
		urls := make([]string, 0, len(r.arweaveGateways))
		for _, gw := range r.arweaveGateways {
			urls = append(urls, gw+txID)
		}
		return urls
	}
	return []string{pointer}
}

// Resolve retrieves and parses the document a pointer refers to. Inline
// data: pointers parse without touching the network; everything else goes
// through sequential gateway failover.
func (r *Resolver) Resolve(ctx context.Context, pointer string) (*Agent, error) {
	if pointer == "" {
		return nil, fmt.Errorf("metadata: empty pointer")
	}
	if rest, ok := strings.CutPrefix(pointer, "data:"); ok {
		return parseDataPointer(rest)
	}

	return failover.Sequential(ctx, "metadata fetch", r.Candidates(pointer),
		func(ctx context.Context, candidate string) (*Agent, error) {
			return r.fetchOne(ctx, candidate)
		},
		nil)
}

func (r *Resolver) fetchOne(ctx context.Context, candidate string) (*Agent, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
	if err != nil {
		return nil, fmt.Errorf("metadata: build request for %s: %w", candidate, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata: fetch %s: %w", candidate, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("metadata: fetch %s: HTTP %d", candidate, resp.StatusCode)
	}
	if resp.ContentLength > maxDocumentSize {
		return nil, fmt.Errorf("metadata: document too large: %d bytes (max %d)", resp.ContentLength, maxDocumentSize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("metadata: read body from %s: %w", candidate, err)
	}
	if len(body) > maxDocumentSize {
		return nil, fmt.Errorf("metadata: document too large: over %d bytes", maxDocumentSize)
	}

	return Parse(body)
}

// parseDataPointer handles inline documents:
//
//	data:application/json;base64,<payload>
//	data:application/json,<url-encoded payload>
func parseDataPointer(rest string) (*Agent, error) {
	if payload, ok := cutAnyPrefix(rest,
		"application/json;base64,",
		"application/json;charset=utf-8;base64,"); ok {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("metadata: base64 decode inline document: %w", err)
		}
		return Parse(decoded)
	}

	if payload, ok := strings.CutPrefix(rest, "application/json,"); ok {
		decoded, err := url.QueryUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("metadata: url-decode inline document: %w", err)
		}
		return Parse([]byte(decoded))
	}

	return nil, fmt.Errorf("metadata: unsupported data: pointer, expected application/json")
}

func cutAnyPrefix(s string, prefixes ...string) (string, bool) {
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(s, p); ok {
			return rest, true
		}
	}
	return "", false
}
