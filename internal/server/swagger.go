package server

import "github.com/swaggo/swag"

// @title glimpse API
// @version 0.1
// @description Audit jobs, recording sessions and stored records.
// @BasePath /

// swaggerTemplate is served at /swagger/doc.json.
const swaggerTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "{{.Title}}",
    "description": "{{escape .Description}}",
    "version": "{{.Version}}"
  },
  "basePath": "{{.BasePath}}",
  "paths": {
    "/audits": {
      "get": {
        "summary": "List retained audit jobs, newest first",
        "produces": ["application/json"],
        "responses": {"200": {"description": "jobs", "schema": {"type": "array", "items": {"$ref": "#/definitions/Job"}}}}
      },
      "post": {
        "summary": "Start an audit job",
        "consumes": ["application/json"],
        "produces": ["application/json"],
        "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/AuditRequest"}}],
        "responses": {
          "202": {"description": "job accepted", "schema": {"$ref": "#/definitions/Job"}},
          "400": {"description": "invalid request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
          "404": {"description": "unknown session", "schema": {"$ref": "#/definitions/ErrorResponse"}}
        }
      }
    },
    "/audits/{jobID}": {
      "parameters": [{"in": "path", "name": "jobID", "required": true, "type": "string"}],
      "get": {
        "summary": "Get a job snapshot",
        "responses": {"200": {"description": "job", "schema": {"$ref": "#/definitions/Job"}}, "404": {"description": "not found"}}
      },
      "delete": {
        "summary": "Cancel a job",
        "responses": {"204": {"description": "canceled"}, "404": {"description": "not found"}}
      }
    },
    "/audits/{baseID}/diff/{headID}": {
      "get": {
        "summary": "Compare two finished audit jobs",
        "produces": ["application/json"],
        "parameters": [
          {"in": "path", "name": "baseID", "required": true, "type": "string"},
          {"in": "path", "name": "headID", "required": true, "type": "string"}
        ],
        "responses": {
          "200": {"description": "score changes, largest first", "schema": {"$ref": "#/definitions/Delta"}},
          "404": {"description": "unknown job", "schema": {"$ref": "#/definitions/ErrorResponse"}},
          "409": {"description": "job not finished", "schema": {"$ref": "#/definitions/ErrorResponse"}}
        }
      }
    },
    "/ws/audits/{jobID}": {
      "get": {
        "summary": "Stream job events over a websocket",
        "parameters": [{"in": "path", "name": "jobID", "required": true, "type": "string"}],
        "responses": {"101": {"description": "switching protocols"}, "404": {"description": "not found"}}
      }
    },
    "/sessions": {
      "get": {
        "summary": "List open sessions",
        "responses": {"200": {"description": "sessions"}}
      },
      "post": {
        "summary": "Open a recording session",
        "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/CreateSessionRequest"}}],
        "responses": {"201": {"description": "session"}, "400": {"description": "invalid design system"}}
      }
    },
    "/sessions/{id}": {
      "delete": {
        "summary": "Close a session",
        "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
        "responses": {"204": {"description": "closed"}, "404": {"description": "not found"}}
      }
    },
    "/sessions/{id}/journeys": {
      "post": {
        "summary": "Record a journey in a session",
        "parameters": [
          {"in": "path", "name": "id", "required": true, "type": "string"},
          {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/RecordJourneyRequest"}}
        ],
        "responses": {"200": {"description": "already stored or duplicate"}, "201": {"description": "stored"}, "400": {"description": "invalid steps"}, "404": {"description": "unknown session"}}
      }
    },
    "/records/{key}": {
      "get": {
        "summary": "Fetch a stored record by fingerprint key",
        "parameters": [
          {"in": "path", "name": "key", "required": true, "type": "string"},
          {"in": "query", "name": "rel", "required": false, "type": "string", "description": "include children linked by this relationship"}
        ],
        "responses": {"200": {"description": "record"}, "404": {"description": "not found"}}
      }
    }
  },
  "definitions": {
    "AuditRequest": {
      "type": "object",
      "properties": {
        "urls": {"type": "array", "items": {"type": "string"}},
        "pages": {"type": "array", "items": {"type": "object"}},
        "session_id": {"type": "string"},
        "design_system": {"type": "object"},
        "rules": {"type": "array", "items": {"type": "string"}}
      }
    },
    "Job": {
      "type": "object",
      "properties": {
        "id": {"type": "string"},
        "status": {"type": "string", "enum": ["pending", "running", "done", "failed", "canceled"]},
        "urls": {"type": "array", "items": {"type": "string"}},
        "progress": {"type": "object"},
        "summary": {"type": "object"},
        "error": {"type": "string"}
      }
    },
    "Delta": {
      "type": "object",
      "properties": {
        "base_overall": {"type": "number"},
        "head_overall": {"type": "number"},
        "delta": {"type": "number"},
        "changes": {"type": "array", "items": {"type": "object"}}
      }
    },
    "CreateSessionRequest": {
      "type": "object",
      "properties": {"name": {"type": "string"}, "design_system": {"type": "object"}}
    },
    "RecordJourneyRequest": {
      "type": "object",
      "properties": {"steps": {"type": "array", "items": {"type": "object"}}}
    },
    "ErrorResponse": {
      "type": "object",
      "properties": {"error": {"type": "string"}}
    }
  }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1",
	BasePath:         "/",
	Title:            "glimpse API",
	Description:      "Audit jobs, recording sessions and stored records.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  swaggerTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
