// Package docs serves the OpenAPI description of the HTTP API and a
// browsable reference page rendered by Scalar.
package docs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/lingoreel/lingoreel/internal/httputil"
)

//go:embed openapi.yaml
var specYAML []byte

var specETag = func() string {
	sum := sha256.Sum256(specYAML)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}()

func HandleSpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("ETag", specETag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == specETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(specYAML)
}

// HandleDocs renders the reference page. The loader script carries the
// request's CSP nonce so no inline script is allowed wholesale.
func HandleDocs(w http.ResponseWriter, r *http.Request) {
	nonce := httputil.NonceFromContext(r.Context())
	if nonce == "" {
		nonce = httputil.GenerateNonce()
	}
	w.Header().Set("Content-Security-Policy", fmt.Sprintf(
		"default-src 'self'; "+
			"script-src 'self' https://cdn.jsdelivr.net 'nonce-%[1]s'; "+
			"style-src 'self' https://cdn.jsdelivr.net 'unsafe-inline'; "+
			"font-src 'self' https://cdn.jsdelivr.net https://fonts.scalar.com data:; "+
			"img-src 'self' data:; connect-src 'self'; frame-ancestors 'none';", nonce))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, docsHTML, nonce)
}

const docsHTML = `<!DOCTYPE html>
<html lang="en"><head>
  <title>LingoReel API Reference</title>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
</head><body>
  <script id="api-reference" data-url="/api/docs/openapi.yaml"></script>
  <script nonce="%[1]s" src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
</body></html>`
