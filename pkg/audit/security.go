package audit

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/watchy-xyz/watchy/pkg/probe"
	"github.com/watchy-xyz/watchy/pkg/report"
)

const tlsDialTimeout = 5 * time.Second

// securityAuditor inspects one HTTPS endpoint: TLS handshake, certificate
// validity and remaining lifetime, defensive response headers, and whether
// plain HTTP is redirected to HTTPS.
type securityAuditor struct {
	client *probe.Client
	now    func() time.Time
	// tlsConfig is cloned for the strict handshake; tests inject RootCAs
	// for their self-signed server certificates.
	tlsConfig *tls.Config
}

func newSecurityAuditor(client *probe.Client, now func() time.Time) *securityAuditor {
	return &securityAuditor{client: client, now: now, tlsConfig: &tls.Config{}}
}

// Check runs the full security phase against an endpoint.
func (s *securityAuditor) Check(ctx context.Context, endpoint string) report.SecurityChecks {
	checks := report.SecurityChecks{Passed: true, Issues: []report.Issue{}}

	if !strings.HasPrefix(endpoint, "https://") {
		checks.Passed = false
		checks.Issues = append(checks.Issues, report.Issue{
			Severity: report.SeverityCritical,
			Code:     "NO_HTTPS",
			Message:  "Endpoint does not use HTTPS",
		})
		return checks
	}

	s.checkTLS(ctx, endpoint, &checks)

	checks.SecurityHeaders = s.checkHeaders(ctx, endpoint)
	if !checks.SecurityHeaders.XContentTypeOptions && !checks.SecurityHeaders.StrictTransportSecurity {
		checks.Issues = append(checks.Issues, report.Issue{
			Severity: report.SeverityWarning,
			Code:     "MISSING_SECURITY_HEADERS",
			Message:  "Missing recommended security headers",
		})
	}

	checks.HTTPSEnforced = s.checkHTTPSEnforcement(ctx, endpoint)
	if !checks.HTTPSEnforced {
		checks.Issues = append(checks.Issues, report.Issue{
			Severity: report.SeverityInfo,
			Code:     "HTTP_NOT_REDIRECTED",
			Message:  "HTTP requests are not redirected to HTTPS",
		})
	}

	return checks
}

// checkTLS handshakes directly with the host so the certificate chain is
// inspectable. A strict handshake failing on certificate verification is
// retried insecurely to still recover the TLS version and expiry; any other
// failure is a transport problem and fails the whole check.
func (s *securityAuditor) checkTLS(ctx context.Context, endpoint string, checks *report.SecurityChecks) {
	host, port, err := hostPort(endpoint)
	if err != nil {
		checks.Passed = false
		checks.Issues = append(checks.Issues, report.Issue{
			Severity: report.SeverityCritical,
			Code:     "TLS_CHECK_FAILED",
			Message:  "Failed to check TLS: " + err.Error(),
		})
		return
	}
	addr := net.JoinHostPort(host, port)

	state, err := s.handshake(ctx, addr, host, false)
	if err == nil {
		checks.TLSValid = true
		checks.CertificateValid = true
	} else if isCertError(err) {
		// Cert rejected; recover what the server presents anyway.
		state, err = s.handshake(ctx, addr, host, true)
		if err != nil {
			checks.Passed = false
			checks.Issues = append(checks.Issues, report.Issue{
				Severity: report.SeverityCritical,
				Code:     "TLS_CHECK_FAILED",
				Message:  "Failed to check TLS: " + err.Error(),
			})
			return
		}
		checks.TLSValid = true
		checks.CertificateValid = false
	} else {
		checks.Passed = false
		checks.Issues = append(checks.Issues, report.Issue{
			Severity: report.SeverityCritical,
			Code:     "TLS_INVALID",
			Message:  "TLS connection failed or invalid",
		})
		return
	}

	checks.TLSVersion = tls.VersionName(state.Version)

	if len(state.PeerCertificates) > 0 {
		leaf := state.PeerCertificates[0]
		days := int64(leaf.NotAfter.Sub(s.now()).Hours() / 24)
		checks.CertificateDaysRemaining = &days

		if days <= 0 {
			checks.Passed = false
			checks.Issues = append(checks.Issues, report.Issue{
				Severity: report.SeverityCritical,
				Code:     "CERT_EXPIRED",
				Message:  "TLS certificate has expired",
			})
		} else if days <= 14 {
			checks.Issues = append(checks.Issues, report.Issue{
				Severity: report.SeverityWarning,
				Code:     "CERT_EXPIRING_SOON",
				Message:  fmt.Sprintf("TLS certificate expires in %d days", days),
			})
		}
	}
}

func (s *securityAuditor) handshake(ctx context.Context, addr, serverName string, insecure bool) (tls.ConnectionState, error) {
	cfg := s.tlsConfig.Clone()
	cfg.ServerName = serverName
	cfg.InsecureSkipVerify = insecure

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: tlsDialTimeout},
		Config:    cfg,
	}
	dialCtx, cancel := context.WithTimeout(ctx, tlsDialTimeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return tls.ConnectionState{}, err
	}
	defer conn.Close()
	return conn.(*tls.Conn).ConnectionState(), nil
}

func isCertError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuth x509.UnknownAuthorityError
	var invalidCert x509.CertificateInvalidError
	var hostErr x509.HostnameError
	return errors.As(err, &unknownAuth) || errors.As(err, &invalidCert) || errors.As(err, &hostErr)
}

func (s *securityAuditor) checkHeaders(ctx context.Context, endpoint string) report.SecurityHeadersCheck {
	var headers report.SecurityHeadersCheck

	resp, err := s.client.Head(ctx, endpoint)
	if err != nil {
		return headers
	}
	defer resp.Body.Close()

	h := resp.Header
	headers.XContentTypeOptions = strings.Contains(strings.ToLower(h.Get("X-Content-Type-Options")), "nosniff")
	headers.XFrameOptions = h.Get("X-Frame-Options") != ""
	headers.StrictTransportSecurity = h.Get("Strict-Transport-Security") != ""
	headers.ContentSecurityPolicy = h.Get("Content-Security-Policy") != ""
	headers.XXSSProtection = h.Get("X-Xss-Protection") != ""
	return headers
}

// checkHTTPSEnforcement probes the plain-HTTP twin of the endpoint without
// following redirects. A redirect to https:// or a refused connection both
// count as enforced; a served plain response does not.
func (s *securityAuditor) checkHTTPSEnforcement(ctx context.Context, endpoint string) bool {
	httpEndpoint := strings.Replace(endpoint, "https://", "http://", 1)

	resp, err := s.client.Do(ctx, http.MethodHead, httpEndpoint, false)
	if err != nil {
		return true
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return strings.HasPrefix(resp.Header.Get("Location"), "https://")
	}
	return false
}

// securityScore folds the checks into [0,100]. A failed TLS handshake zeroes
// everything; the header penalty maxes out at 30 points.
func securityScore(checks report.SecurityChecks) int {
	if !checks.TLSValid {
		return 0
	}
	score := 100

	if !checks.CertificateValid {
		score = sub(score, 50)
	}
	if days := checks.CertificateDaysRemaining; days != nil {
		switch {
		case *days <= 0:
			score = sub(score, 50)
		case *days <= 7:
			score = sub(score, 20)
		case *days <= 14:
			score = sub(score, 10)
		}
	}

	score = sub(score, int(float64(100-headersScore(checks.SecurityHeaders))*0.3))

	if !checks.HTTPSEnforced {
		score = sub(score, 10)
	}
	return score
}

func headersScore(h report.SecurityHeadersCheck) int {
	score := 0
	if h.XContentTypeOptions {
		score += 20
	}
	if h.XFrameOptions {
		score += 20
	}
	if h.StrictTransportSecurity {
		score += 30
	}
	if h.ContentSecurityPolicy {
		score += 20
	}
	if h.XXSSProtection {
		score += 10
	}
	return score
}

func hostPort(endpoint string) (host, port string, err error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Hostname() == "" {
		return "", "", errors.New("no host in URL")
	}
	port = u.Port()
	if port == "" {
		port = "443"
	}
	return u.Hostname(), port, nil
}
