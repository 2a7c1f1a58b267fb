// Package api holds the OpenAPI description served at /api/docs.
package api

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Server health status",
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Service Unavailable"}
                }
            }
        },
        "/api/v1/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Authenticate a tenant user and issue a tenant-scoped token",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/api/v1/sync/snapshot": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Pull the tenant's full snapshot",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/api/v1/sync/mutations": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Push an ordered batch of mutations",
                "responses": {
                    "200": {"description": "OK"},
                    "402": {"description": "Payment Required"},
                    "409": {"description": "Conflict"}
                }
            }
        },
        "/api/v1/tenants/{id}/transactional-data": {
            "delete": {
                "produces": ["application/json"],
                "tags": ["purge"],
                "summary": "Atomically delete all transactional records and reset account balances",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/api/v1/operator/tenants": {
            "get": {
                "produces": ["application/json"],
                "tags": ["operator"],
                "summary": "List tenants",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["operator"],
                "summary": "Create a tenant with a fresh trial window",
                "responses": {"201": {"description": "Created"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Quillbooks API",
	Description:      "Multi-tenant business records synchronization service.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
