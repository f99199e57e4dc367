package swagger

import (
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/atrium/pkg/httputil"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Handlers serves the OpenAPI document and a Swagger UI page. These
// routes are public; the document describes the API, it does not expose
// workspace data.
type Handlers struct {
	jsonOnce sync.Once
	jsonSpec []byte
	jsonErr  error
}

// NewHandlers creates the documentation handlers
func NewHandlers() *Handlers {
	return &Handlers{}
}

// RegisterRoutes registers the documentation routes with the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/openapi.yaml", h.serveYAML).Methods("GET")
	router.HandleFunc("/openapi.json", h.serveJSON).Methods("GET")
	router.HandleFunc("/api-docs", h.serveUI).Methods("GET")
}

func (h *Handlers) serveYAML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(openapiSpec)
}

// serveJSON converts the embedded YAML document once and caches the result
func (h *Handlers) serveJSON(w http.ResponseWriter, r *http.Request) {
	h.jsonOnce.Do(func() {
		var doc map[string]interface{}
		if err := yaml.Unmarshal(openapiSpec, &doc); err != nil {
			h.jsonErr = err
			return
		}
		h.jsonSpec, h.jsonErr = json.Marshal(doc)
	})
	if h.jsonErr != nil {
		httputil.WriteInternalError(w, h.jsonErr)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(h.jsonSpec)
}

func (h *Handlers) serveUI(w http.ResponseWriter, r *http.Request) {
	tmpl := template.Must(template.New("swagger").Parse(swaggerUITemplate))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, nil); err != nil {
		httputil.WriteInternalError(w, err)
	}
}

const swaggerUITemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Atrium API</title>
  <link rel="stylesheet" type="text/css" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5.10.5/swagger-ui.css" />
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; padding: 0; }
  </style>
</head>
<body>
<div id="swagger-ui"></div>

<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5.10.5/swagger-ui-bundle.js" charset="UTF-8"></script>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5.10.5/swagger-ui-standalone-preset.js" charset="UTF-8"></script>
<script>
window.onload = function() {
  window.ui = SwaggerUIBundle({
    url: "/openapi.yaml",
    dom_id: '#swagger-ui',
    deepLinking: true,
    presets: [
      SwaggerUIBundle.presets.apis,
      SwaggerUIStandalonePreset
    ],
    layout: "StandaloneLayout",
    requestInterceptor: function(request) {
      const token = localStorage.getItem('atrium_api_token');
      if (token) {
        request.headers['Authorization'] = 'Bearer ' + token;
      }
      return request;
    }
  });
};
</script>
</body>
</html>`
