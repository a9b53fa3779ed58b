// Package security sets response hardening headers and flags probing requests.
package security

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// HeadersConfig holds security headers configuration
type HeadersConfig struct {
	CSP string

	HSTSMaxAge            int
	HSTSIncludeSubdomains bool

	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	PermissionsPolicy   string
	CrossOriginOpener   string
	CrossOriginResource string
}

// DefaultHeadersConfig returns defaults for a JSON and file-download API.
// Cross-Origin-Resource-Policy stays "cross-origin" so the separately hosted
// frontend can embed downloaded bill PDFs.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP:                   "default-src 'none'; frame-ancestors 'none'; base-uri 'none'",
		HSTSMaxAge:            31536000, // 1 year
		HSTSIncludeSubdomains: true,
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "geolocation=(), microphone=(), camera=(), payment=()",
		CrossOriginOpener:     "same-origin",
		CrossOriginResource:   "cross-origin",
	}
}

// Headers returns middleware applying config to every response.
func Headers(config HeadersConfig) gin.HandlerFunc {
	hsts := ""
	if config.HSTSMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d", config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", config.XContentTypeOptions)
		h.Set("X-Frame-Options", config.XFrameOptions)
		if config.CSP != "" {
			h.Set("Content-Security-Policy", config.CSP)
		}
		h.Set("Referrer-Policy", config.ReferrerPolicy)
		h.Set("Permissions-Policy", config.PermissionsPolicy)
		h.Set("Cross-Origin-Opener-Policy", config.CrossOriginOpener)
		h.Set("Cross-Origin-Resource-Policy", config.CrossOriginResource)

		// HSTS only means something over TLS.
		if c.Request.TLS != nil && hsts != "" {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}
