package api

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	"analytics/internal/models"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

//go:embed openapi/openapi.yaml
var openAPIYAML []byte

// openAPIDocument holds both renderings of the embedded document. The JSON
// form is derived once on first request.
type openAPIDocument struct {
	once    sync.Once
	json    []byte
	jsonErr error
	etag    string
}

var apiDoc = &openAPIDocument{etag: contentETag(openAPIYAML)}

func contentETag(b []byte) string {
	sum := sha256.Sum256(b)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}

func (d *openAPIDocument) asJSON() ([]byte, error) {
	d.once.Do(func() {
		var doc any
		if err := yaml.Unmarshal(openAPIYAML, &doc); err != nil {
			d.jsonErr = fmt.Errorf("parse openapi document: %w", err)
			return
		}
		d.json, d.jsonErr = json.Marshal(stringKeys(doc))
	})
	return d.json, d.jsonErr
}

// stringKeys rewrites YAML mappings with non-string keys (status codes) so
// the document can be encoded as JSON.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = stringKeys(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = stringKeys(val)
		}
		return t
	default:
		return v
	}
}

// serveDocument writes body with caching headers, answering conditional
// requests with 304.
func serveDocument(w http.ResponseWriter, r *http.Request, contentType, etag string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// ServeOpenAPISpec serves the OpenAPI 3.0.3 document as YAML.
// GET /api/openapi.yaml
func (h *Handlers) ServeOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	serveDocument(w, r, "application/yaml", apiDoc.etag, openAPIYAML)
}

// ServeOpenAPIJSON serves the same document converted to JSON.
// GET /api/openapi.json
func (h *Handlers) ServeOpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	body, err := apiDoc.asJSON()
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "OpenAPI document unavailable")
		return
	}
	serveDocument(w, r, "application/json", apiDoc.etag, body)
}

const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Analytics Ingestion API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({ url: '/api/openapi.yaml', dom_id: '#swagger-ui', deepLinking: true });
  </script>
</body>
</html>`

// ServeSwaggerUI serves an interactive viewer for the OpenAPI document.
func (h *Handlers) ServeSwaggerUI(w http.ResponseWriter, r *http.Request) {
	serveDocument(w, r, "text/html; charset=utf-8", contentETag([]byte(swaggerUIPage)), []byte(swaggerUIPage))
}
