//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// docTemplate is kept in sync with the handler annotations in server.go.
const docTemplate = `{
  "swagger": "2.0",
  "info": {"title": "{{.Title}}", "description": "{{escape .Description}}", "version": "{{.Version}}"},
  "basePath": "{{.BasePath}}",
  "schemes": {{ marshal .Schemes }},
  "paths": {
    "/networks": {"get": {"summary": "List registered networks", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
    "/networks/{name}": {"delete": {"summary": "Drain and unload a network",
      "parameters": [{"name": "name", "in": "path", "required": true, "type": "string"}],
      "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found"}, "429": {"description": "Too Many Requests"}}}},
    "/status": {"get": {"summary": "Loaded networks, queues and counters", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
    "/infer": {"post": {"summary": "Run one synchronous inference", "consumes": ["application/json"], "produces": ["application/json"],
      "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}],
      "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "429": {"description": "Too Many Requests"}}}},
    "/infer/async": {"post": {"summary": "Start a background inference", "consumes": ["application/json"], "produces": ["application/json"],
      "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}],
      "responses": {"202": {"description": "Accepted"}, "404": {"description": "Not Found"}}}},
    "/ops/{id}": {"get": {"summary": "Report an async operation", "produces": ["application/json"],
      "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}, {"name": "wait_ms", "in": "query", "type": "integer"}],
      "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
    "/ops/{id}/cancel": {"post": {"summary": "Cancel an async operation",
      "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
      "responses": {"202": {"description": "Accepted"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}}}}
  }
}`

var swaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "inferd API",
	Description:      "HTTP API for loading compiled networks and running inference requests.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(swaggerInfo.InstanceName(), swaggerInfo)
}

// MountSwagger serves the Swagger UI at /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
