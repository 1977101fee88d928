package handlers

import (
	_ "embed"
	"fmt"
	"net/http"
	"os"
)

//go:embed openapi.yaml
var embeddedSpec []byte

const scalarPage = `<!DOCTYPE html>
<html>
<head>
  <title>admitd API Documentation</title>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
</head>
<body>
  <script id="api-reference" data-url="%s"></script>
  <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
</body>
</html>
`

// DocsHandler handles API documentation endpoints.
type DocsHandler struct {
	specPath    string
	specContent []byte
}

// NewDocsHandler creates a DocsHandler that serves the embedded OpenAPI
// document, or the file at specPath when one is given.
func NewDocsHandler(specPath string) *DocsHandler {
	return &DocsHandler{
		specPath:    specPath,
		specContent: embeddedSpec,
	}
}

// ScalarUI serves the Scalar API documentation UI.
func (h *DocsHandler) ScalarUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, scalarPage, "/docs/openapi.yaml")
}

// OpenAPISpec serves the OpenAPI specification YAML file.
func (h *DocsHandler) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	content := h.specContent
	if h.specPath != "" {
		var err error
		content, err = os.ReadFile(h.specPath)
		if err != nil {
			writeJSON(w, http.StatusNotFound, ErrorResponse{
				Error: "OpenAPI specification not found",
				Code:  "NOT_FOUND",
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}
