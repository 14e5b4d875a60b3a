// Package docs registers the OpenAPI description of the status API with
// swag so that http-swagger can serve it at /docs/doc.json.
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
    "paths": {
        "/health": {
            "get": {"tags": ["health"], "summary": "Health check", "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}}}
        },
        "/health/db": {
            "get": {"tags": ["health"], "summary": "Store health check", "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}, "503": {"description": "Store unreachable"}}}
        },
        "/api/v1/matches": {
            "get": {"tags": ["matches"], "summary": "List registered matches", "produces": ["application/json"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["T20I", "ODI", "Test", "Unknown"]},
                    {"name": "limit", "in": "query", "type": "integer", "default": 50, "maximum": 500},
                    {"name": "offset", "in": "query", "type": "integer", "default": 0}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid parameter"}}}
        },
        "/api/v1/matches/{matchID}": {
            "get": {"tags": ["matches"], "summary": "Match with its stage runs", "produces": ["application/json"],
                "parameters": [{"name": "matchID", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Unknown match"}}}
        },
        "/api/v1/matches/{matchID}/scorecard": {
            "get": {"tags": ["matches"], "summary": "Batting and bowling lines", "produces": ["application/json"],
                "parameters": [{"name": "matchID", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Unknown match"}}}
        },
        "/api/v1/matches/{matchID}/awards": {
            "get": {"tags": ["matches"], "summary": "Match awards", "produces": ["application/json"],
                "parameters": [{"name": "matchID", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Unknown match"}}}
        },
        "/api/v1/matches/{matchID}/squad": {
            "get": {"tags": ["matches"], "summary": "Match squads", "produces": ["application/json"],
                "parameters": [{"name": "matchID", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Unknown match"}}}
        },
        "/api/v1/stages": {
            "get": {"tags": ["stages"], "summary": "Completion counts per stage", "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/stages/{stage}/pending": {
            "get": {"tags": ["stages"], "summary": "Match ids a stage still has to process", "produces": ["application/json"],
                "parameters": [{"name": "stage", "in": "path", "required": true, "type": "string", "enum": ["scorecard", "awards", "squad"]}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Unknown stage"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8000",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Cricket Data API",
	Description:      "Read-only view of ingested international cricket matches, scorecards, awards, squads and stage progress.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
