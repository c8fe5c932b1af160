package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/lingoreel/lingoreel/internal/httputil"
)

// streamSources are the Cloudflare Stream hosts the player loads manifests,
// segments, thumbnails and the iframe player from.
const streamSources = "https://videodelivery.net https://*.videodelivery.net https://*.cloudflarestream.com"

type SecurityConfig struct {
	BaseURL               string
	StorageEndpoint       string
	AllowedFrameAncestors string
}

func securityHeaders(cfg SecurityConfig) func(http.Handler) http.Handler {
	strictTransport := cfg.BaseURL != "" && hasHTTPS(cfg.BaseURL)

	storageSuffix := ""
	if cfg.StorageEndpoint != "" {
		storageSuffix = " " + cfg.StorageEndpoint
	}
	frameAncestors := "'self'"
	if fa := strings.TrimSpace(cfg.AllowedFrameAncestors); fa != "" {
		frameAncestors += " " + fa
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nonce := httputil.GenerateNonce()
			ctx := httputil.ContextWithNonce(r.Context(), nonce)

			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "SAMEORIGIN")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), autoplay=(self), fullscreen=(self)")

			csp := fmt.Sprintf(
				"default-src 'self'; img-src 'self' data: %[1]s%[2]s; media-src 'self' data: blob: %[1]s%[2]s; "+
					"script-src 'self' 'nonce-%[3]s'; style-src 'self' 'nonce-%[3]s'; "+
					"connect-src 'self' %[1]s%[2]s; frame-src %[1]s; worker-src 'self' blob:; frame-ancestors %[4]s;",
				streamSources, storageSuffix, nonce, frameAncestors,
			)
			w.Header().Set("Content-Security-Policy", csp)

			if strictTransport {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hasHTTPS(baseURL string) bool {
	return strings.HasPrefix(baseURL, "https://")
}
