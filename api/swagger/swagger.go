package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "School Attendance API",
        "description": "Authorized student withdrawal and attendance service",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Students", "description": "Student roster"},
        {"name": "Pickups", "description": "Authorized pickup registry"},
        {"name": "Withdrawals", "description": "Withdrawal lifecycle"},
        {"name": "WithdrawalRequests", "description": "Advance pickup requests"},
        {"name": "Attendance", "description": "Kiosk scans"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and obtain an access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Token issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "courseId", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Students", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Create student",
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/students/{id}/pickups": {
            "get": {
                "tags": ["Students"],
                "summary": "List pickups authorized for a student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Pickups", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/withdrawal-eligibility": {
            "get": {
                "tags": ["Withdrawals"],
                "summary": "Check whether a student can be withdrawn right now",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "tz", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Eligibility verdict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/pickups": {
            "get": {
                "tags": ["Pickups"],
                "summary": "List authorized pickups",
                "responses": {
                    "200": {"description": "Pickups", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Pickups"],
                "summary": "Register an authorized pickup",
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Duplicate QR secret"}
                }
            }
        },
        "/withdrawals": {
            "get": {
                "tags": ["Withdrawals"],
                "summary": "List withdrawals",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Withdrawals", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Withdrawals"],
                "summary": "Initiate withdrawals for one or more students",
                "responses": {
                    "200": {"description": "All initiated"},
                    "207": {"description": "Partial success"},
                    "422": {"description": "No student eligible"}
                }
            }
        },
        "/withdrawals/{id}/verify": {
            "post": {
                "tags": ["Withdrawals"],
                "summary": "Verify the pickup's identity",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Verified"},
                    "409": {"description": "Invalid transition"}
                }
            }
        },
        "/withdrawals/{id}/complete": {
            "post": {
                "tags": ["Withdrawals"],
                "summary": "Complete a verified withdrawal",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Completed"},
                    "409": {"description": "Invalid transition or already completed today"}
                }
            }
        },
        "/withdrawals/{id}/cancel": {
            "post": {
                "tags": ["Withdrawals"],
                "summary": "Cancel a non-terminal withdrawal",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Cancelled"},
                    "409": {"description": "Invalid transition"}
                }
            }
        },
        "/withdrawals/override": {
            "post": {
                "tags": ["Withdrawals"],
                "summary": "Record an administrator-forced withdrawal",
                "responses": {
                    "201": {"description": "Recorded"},
                    "409": {"description": "Already completed today"}
                }
            }
        },
        "/withdrawals/{id}/slip": {
            "get": {
                "tags": ["Withdrawals"],
                "summary": "Download the printable withdrawal slip",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF slip"}
                }
            }
        },
        "/withdrawal-requests": {
            "get": {
                "tags": ["WithdrawalRequests"],
                "summary": "List requests",
                "responses": {
                    "200": {"description": "Requests", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["WithdrawalRequests"],
                "summary": "Create an advance pickup request",
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Active request already exists"}
                }
            }
        },
        "/withdrawal-requests/{id}/review": {
            "post": {
                "tags": ["WithdrawalRequests"],
                "summary": "Approve or reject a pending request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Reviewed"},
                    "409": {"description": "Not pending"}
                }
            }
        },
        "/attendance/scan": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Record a kiosk IN/OUT scan",
                "responses": {
                    "201": {"description": "Recorded"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
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
