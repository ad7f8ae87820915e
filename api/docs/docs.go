// Package docs holds the OpenAPI description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/health": {"get": {"tags": ["Health"], "summary": "Health check", "responses": {"200": {"description": "healthy"}, "503": {"description": "unhealthy"}}}},
        "/health/live": {"get": {"tags": ["Health"], "summary": "Liveness", "responses": {"200": {"description": "alive"}}}},
        "/health/ready": {"get": {"tags": ["Health"], "summary": "Readiness", "responses": {"200": {"description": "ready"}, "503": {"description": "not ready"}}}},
        "/auth/login": {"post": {"tags": ["Auth"], "summary": "Operator login",
            "parameters": [{"in": "body", "name": "credentials", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}],
            "responses": {"200": {"description": "token issued"}, "401": {"description": "invalid credentials"}, "429": {"description": "too many attempts"}}}},
        "/ws": {"get": {"tags": ["Events"], "summary": "Event stream",
            "parameters": [{"in": "query", "name": "type", "type": "string", "description": "comma separated event types"}],
            "responses": {"101": {"description": "switching protocols"}}}},
        "/api/v1/status": {"get": {"tags": ["Scaling"], "summary": "Autoscaler status", "responses": {"200": {"description": "status"}}}},
        "/api/v1/decisions": {"get": {"tags": ["Scaling"], "summary": "Recent scaling decisions",
            "parameters": [{"in": "query", "name": "limit", "type": "integer"}, {"in": "query", "name": "source", "type": "string", "enum": ["memory", "archive"]}],
            "responses": {"200": {"description": "decisions"}}}},
        "/api/v1/decisions/{id}": {"get": {"tags": ["Scaling"], "summary": "Archived decision by id",
            "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
            "responses": {"200": {"description": "decision"}, "400": {"description": "malformed id"}, "404": {"description": "not found"}}}},
        "/api/v1/scale": {"post": {"tags": ["Scaling"], "summary": "Manual scale", "security": [{"BearerAuth": []}],
            "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/ScaleRequest"}}],
            "responses": {"200": {"description": "decision"}, "400": {"description": "out of range"}, "409": {"description": "cooldown active"}, "502": {"description": "executor failed"}}}},
        "/api/v1/circuits": {"get": {"tags": ["Circuits"], "summary": "List circuits", "responses": {"200": {"description": "circuits"}}}},
        "/api/v1/circuits/{name}": {"get": {"tags": ["Circuits"], "summary": "Get circuit",
            "parameters": [{"in": "path", "name": "name", "required": true, "type": "string"}],
            "responses": {"200": {"description": "circuit"}, "404": {"description": "unknown circuit"}}}},
        "/api/v1/circuits/{name}/reset": {"post": {"tags": ["Circuits"], "summary": "Half-open a circuit so the next call probes it", "security": [{"BearerAuth": []}],
            "parameters": [{"in": "path", "name": "name", "required": true, "type": "string"}],
            "responses": {"200": {"description": "circuit"}, "404": {"description": "unknown circuit"}}}},
        "/api/v1/cache/stats": {"get": {"tags": ["Cache"], "summary": "Cache statistics", "responses": {"200": {"description": "stats"}}}},
        "/api/v1/cache/keys/{key}": {"delete": {"tags": ["Cache"], "summary": "Invalidate one key", "security": [{"BearerAuth": []}],
            "parameters": [{"in": "path", "name": "key", "required": true, "type": "string"}],
            "responses": {"200": {"description": "deleted"}, "404": {"description": "not cached"}}}},
        "/api/v1/cache": {"delete": {"tags": ["Cache"], "summary": "Invalidate keys by prefix", "security": [{"BearerAuth": []}],
            "parameters": [{"in": "query", "name": "prefix", "required": true, "type": "string"}],
            "responses": {"200": {"description": "deleted"}, "400": {"description": "missing prefix"}}}},
        "/api/v1/cache/clear": {"post": {"tags": ["Cache"], "summary": "Drop every cache entry", "security": [{"BearerAuth": []}], "responses": {"204": {"description": "cleared"}}}},
        "/api/v1/throttle": {"get": {"tags": ["Throttle"], "summary": "Throttle limits",
            "parameters": [{"in": "query", "name": "key", "type": "string"}, {"in": "query", "name": "rule", "type": "string"}],
            "responses": {"200": {"description": "status"}}}},
        "/api/v1/samples": {"get": {"tags": ["Samples"], "summary": "Recent metric samples",
            "parameters": [{"in": "query", "name": "limit", "type": "integer"}, {"in": "query", "name": "from", "type": "string"}, {"in": "query", "name": "to", "type": "string"}],
            "responses": {"200": {"description": "samples"}}}},
        "/api/v1/events": {"get": {"tags": ["Samples"], "summary": "Persisted control-plane events",
            "parameters": [{"in": "query", "name": "limit", "type": "integer"}],
            "responses": {"200": {"description": "events"}, "404": {"description": "no archive"}}}}
    },
    "definitions": {
        "LoginRequest": {"type": "object", "required": ["username", "password"],
            "properties": {"username": {"type": "string"}, "password": {"type": "string"}}},
        "ScaleRequest": {"type": "object", "required": ["replicas"],
            "properties": {"replicas": {"type": "integer", "example": 4}}}
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Resilience Plane Admin API",
	Description:      "Inspect and steer circuits, throttling, cache and autoscaling.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
