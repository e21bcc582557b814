package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type SecurityConfig struct {
	// HSTSMaxAge in seconds; zero leaves Strict-Transport-Security unset
	HSTSMaxAge     int
	FrameOptions   string
	ReferrerPolicy string
	CSPDirectives  []string
	// NoStore keeps patient data out of shared caches
	NoStore bool
}

func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		HSTSMaxAge:     31536000,
		FrameOptions:   "DENY",
		ReferrerPolicy: "no-referrer",
		CSPDirectives: []string{
			"default-src 'none'",
			"frame-ancestors 'none'",
		},
		NoStore: true,
	}
}

// SecurityHeaders sets a fixed header block on every JSON response
func SecurityHeaders(config SecurityConfig) gin.HandlerFunc {
	headers := [][2]string{{"X-Content-Type-Options", "nosniff"}}
	if config.HSTSMaxAge > 0 {
		headers = append(headers, [2]string{"Strict-Transport-Security",
			"max-age=" + strconv.Itoa(config.HSTSMaxAge) + "; includeSubDomains"})
	}
	if config.FrameOptions != "" {
		headers = append(headers, [2]string{"X-Frame-Options", config.FrameOptions})
	}
	if config.ReferrerPolicy != "" {
		headers = append(headers, [2]string{"Referrer-Policy", config.ReferrerPolicy})
	}
	if len(config.CSPDirectives) > 0 {
		headers = append(headers, [2]string{"Content-Security-Policy", strings.Join(config.CSPDirectives, "; ")})
	}
	if config.NoStore {
		headers = append(headers, [2]string{"Cache-Control", "no-store"})
	}

	return func(c *gin.Context) {
		for _, h := range headers {
			c.Header(h[0], h[1])
		}
		c.Next()
	}
}
