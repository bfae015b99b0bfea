package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/boxoffice-backend/pkg/config"
)

const (
	nonceBytes       = 16
	defaultReportURI = "/report-csp-violation"

	// angular runtime inline event handler hash
	inlineHandlerHash = "'sha256-MhtPZXr7+LpJUY5qtMutB+qWfQtMaPccfe7QXtCcEYc='"

	HeaderCSP          = "Content-Security-Policy"
	HeaderFrameOptions = "X-Frame-Options"
)

// Policy holds the inputs of the strict content security policy sent with HTML pages.
type Policy struct {
	ReportEnabled bool
	ReportURI     string
	EmbedOrigins  []string
}

// PolicyFromConfig builds a Policy from configuration. Embed origins only apply
// when embedding is allowed.
func PolicyFromConfig(cfg config.SecurityConfig) Policy {
	p := Policy{
		ReportEnabled: cfg.CSPReportEnabled,
		ReportURI:     cfg.CSPReportURI,
	}
	if cfg.EmbedAllowed {
		p.EmbedOrigins = splitOrigins(cfg.EmbedOrigins)
	}
	return p
}

// NewNonce returns 128 random bits, hex encoded.
func NewNonce() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating csp nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ContentSecurityPolicy renders the policy for the given nonce.
func (p Policy) ContentSecurityPolicy(nonce string, embeddingSupported bool) string {
	frameAncestors := "'none'"
	if embeddingSupported && len(p.EmbedOrigins) > 0 {
		frameAncestors = strings.Join(p.EmbedOrigins, " ")
	}
	var b strings.Builder
	b.WriteString("object-src 'none'; ")
	b.WriteString("script-src 'strict-dynamic' 'nonce-" + nonce + "' 'unsafe-inline' http: https: 'unsafe-hashes' " + inlineHandlerHash + "; ")
	b.WriteString("base-uri 'self'; ")
	b.WriteString("frame-ancestors " + frameAncestors + "; ")
	if p.ReportEnabled {
		uri := strings.TrimSpace(p.ReportURI)
		if uri == "" {
			uri = defaultReportURI
		}
		b.WriteString(" report-uri " + uri)
	}
	return b.String()
}

// FrameOptions renders the legacy X-Frame-Options value.
func (p Policy) FrameOptions(embeddingSupported bool) string {
	if embeddingSupported && len(p.EmbedOrigins) > 0 {
		return "ALLOW-FROM " + p.EmbedOrigins[0]
	}
	return "DENY"
}

// Apply generates a fresh nonce, writes both headers and returns the nonce.
func (p Policy) Apply(h http.Header, embeddingSupported bool) (string, error) {
	nonce, err := NewNonce()
	if err != nil {
		return "", err
	}
	h.Set(HeaderFrameOptions, p.FrameOptions(embeddingSupported))
	h.Set(HeaderCSP, p.ContentSecurityPolicy(nonce, embeddingSupported))
	return nonce, nil
}

func splitOrigins(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == '\n' || r == ',' }) {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
