package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Roster Import API",
        "description": "Bulk student and faculty roster ingestion from uploaded documents",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Rosters", "description": "Roster document import and preview"}
    ],
    "paths": {
        "/rosters/students/import": {
            "post": {
                "tags": ["Rosters"],
                "summary": "Import a student roster",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "type": "file", "required": true},
                    {"name": "section_id", "in": "formData", "type": "string", "required": true},
                    {"name": "default_password", "in": "formData", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ImportResultEnvelope"}},
                    "400": {"description": "Missing scope or no parseable records", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "File too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Text extraction failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Import rolled back", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rosters/faculty/import": {
            "post": {
                "tags": ["Rosters"],
                "summary": "Import a faculty roster",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "type": "file", "required": true},
                    {"name": "department_id", "in": "formData", "type": "string", "required": true},
                    {"name": "default_password", "in": "formData", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ImportResultEnvelope"}},
                    "400": {"description": "Missing scope or no parseable records", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "File too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Text extraction failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Import rolled back", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rosters/students/preview": {
            "post": {
                "tags": ["Rosters"],
                "summary": "Preview a student roster without writing",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "produces": ["application/json", "text/csv"],
                "parameters": [
                    {"name": "file", "in": "formData", "type": "file", "required": true},
                    {"name": "format", "in": "query", "type": "string", "enum": ["json", "csv"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/PreviewEnvelope"}},
                    "400": {"description": "No parseable records", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rosters/faculty/preview": {
            "post": {
                "tags": ["Rosters"],
                "summary": "Preview a faculty roster without writing",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "produces": ["application/json", "text/csv"],
                "parameters": [
                    {"name": "file", "in": "formData", "type": "file", "required": true},
                    {"name": "format", "in": "query", "type": "string", "enum": ["json", "csv"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/PreviewEnvelope"}},
                    "400": {"description": "No parseable records", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ImportResult": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "imported": {"type": "integer"},
                "skipped": {"type": "integer"},
                "errors": {"type": "array", "items": {"type": "string"}, "maxItems": 10}
            }
        },
        "ParsedRecord": {
            "type": "object",
            "properties": {
                "line": {"type": "integer"},
                "strategy": {"type": "string"},
                "roll_number": {"type": "string"},
                "name": {"type": "string"},
                "first_name": {"type": "string"},
                "last_name": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"}
            }
        },
        "RosterPreview": {
            "type": "object",
            "properties": {
                "profile": {"type": "string", "enum": ["student", "faculty"]},
                "total": {"type": "integer"},
                "records": {"type": "array", "items": {"$ref": "#/definitions/ParsedRecord"}},
                "cached": {"type": "boolean"}
            }
        },
        "ImportResultEnvelope": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/ImportResult"},
                "meta": {"type": "object"}
            }
        },
        "PreviewEnvelope": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/RosterPreview"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
