package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonical returns the RFC 8785 canonical JSON of the report. This is the
// byte string the external signing subsystem signs: canonicalization makes
// the signature independent of map ordering and whitespace, so a verifier
// can re-derive it from any faithful JSON copy.
//
// The signature and post-publication annotation fields are zeroed first;
// they cannot be part of the signed payload they are attached to.
func (r *Report) Canonical() ([]byte, error) {
	body := *r
	body.Signature = ""
	body.ReportMarkdownURL = ""
	body.ReportJSONURL = ""
	body.FeedbackChainID = 0
	body.FeedbackTxHash = ""

	raw, err := json.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("report: marshal for canonicalization: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("report: canonicalize: %w", err)
	}
	return canonical, nil
}

// CanonicalHash returns the SHA-256 hex digest of the canonical report.
func (r *Report) CanonicalHash() (string, error) {
	canonical, err := r.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
