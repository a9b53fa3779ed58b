package security

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	applog "deptfunds/internal/log"
)

const maxURLLength = 2048

var (
	suspiciousPatterns = []string{
		"../", "..\\", ".env", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", ".git", ".ssh",
		"eval(", "javascript:", "<script", "union select",
		"etc/passwd", "cmd.exe",
	}
	suspiciousAgents = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan",
	}
	unusualMethods = map[string]bool{
		"TRACE": true, "TRACK": true, "DEBUG": true, "CONNECT": true,
	}
)

// Detector counts and logs requests that look like probing. It never blocks:
// authentication and role checks stay the only gate.
type Detector struct {
	suspicious int64
}

// NewDetector creates a new security detector
func NewDetector() *Detector {
	return &Detector{}
}

// DetectSuspiciousRequest analyzes request patterns for potential threats
func (d *Detector) DetectSuspiciousRequest(r *http.Request) (bool, string) {
	path := strings.ToLower(r.URL.Path)
	query := strings.ToLower(unescapedQuery(r.URL.RawQuery))
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(path, pattern) || strings.Contains(query, pattern) {
			return true, "pattern " + pattern
		}
	}

	userAgent := strings.ToLower(r.UserAgent())
	for _, agent := range suspiciousAgents {
		if strings.Contains(userAgent, agent) {
			return true, "user agent " + agent
		}
	}

	if unusualMethods[r.Method] {
		return true, "method " + r.Method
	}
	if len(r.URL.String()) > maxURLLength {
		return true, "url length"
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5 {
		return true, "forwarding chain"
	}
	return false, ""
}

// unescapedQuery decodes the query so encoded payloads match the patterns.
// A malformed escape leaves the raw query.
func unescapedQuery(raw string) string {
	if q, err := url.QueryUnescape(raw); err == nil {
		return q
	}
	return raw
}

// Middleware logs suspicious requests at warn level and lets them through.
func (d *Detector) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ok, reason := d.DetectSuspiciousRequest(c.Request); ok {
			atomic.AddInt64(&d.suspicious, 1)
			slog.WarnContext(c.Request.Context(), "Suspicious request",
				applog.FieldComponent, applog.ComponentSecurity,
				applog.FieldClientIP, c.ClientIP(),
				applog.FieldMethod, c.Request.Method,
				applog.FieldPath, c.Request.URL.Path,
				"reason", reason)
		}
		c.Next()
	}
}

// SuspiciousRequests returns how many requests were flagged so far.
func (d *Detector) SuspiciousRequests() int64 {
	return atomic.LoadInt64(&d.suspicious)
}
