package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Course Enrollment API",
        "description": "Course catalogue, enrollment requests and the admin review workflow",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Auth", "description": "Administrator login"},
        {"name": "Courses", "description": "Course catalogue"},
        {"name": "Enrollment", "description": "Public enrollment form"},
        {"name": "Requests", "description": "Enrollment request review"},
        {"name": "Students", "description": "Enrolled students"},
        {"name": "Admin", "description": "Administrator preferences"},
        {"name": "Exports", "description": "Snapshot exports"},
        {"name": "Dashboard", "description": "Admin dashboard"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Admin login",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List courses",
                "parameters": [
                    {"name": "level", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Create course (JSON or multipart with attachments)",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CourseInput"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "Attachment too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "415": {"description": "Attachment type rejected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{id}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Get course",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Courses"],
                "summary": "Update course; the attachment list is replaced",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CourseInput"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "delete": {
                "tags": ["Courses"],
                "summary": "Delete course",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Course still referenced", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/canvas/{sisId}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Look up a Canvas course by SIS id",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "sisId", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Canvas unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enroll": {
            "post": {
                "tags": ["Enrollment"],
                "summary": "Submit an enrollment request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitEnrollmentRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/check-enrollment": {
            "post": {
                "tags": ["Enrollment"],
                "summary": "Check whether an email is enrolled in a course",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CheckEnrollmentRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/requests": {
            "get": {
                "tags": ["Requests"],
                "summary": "List enrollment requests, newest first",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "courseId", "in": "query", "type": "string"},
                    {"name": "email", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/requests/{id}": {
            "get": {
                "tags": ["Requests"],
                "summary": "Get request with its course",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/requests/{id}/approve": {
            "post": {
                "tags": ["Requests"],
                "summary": "Approve a pending request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition or stale version", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}/reject": {
            "post": {
                "tags": ["Requests"],
                "summary": "Reject a pending request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/requests/{id}/status": {
            "put": {
                "tags": ["Requests"],
                "summary": "Flip a decided request between approved and rejected",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ChangeStatusRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/requests/{id}/assign-course": {
            "put": {
                "tags": ["Requests"],
                "summary": "Move a request to another course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AssignCourseRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students with enrolled courses",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "level", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get student",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admin/notifications": {
            "get": {
                "tags": ["Admin"],
                "summary": "Read the notification toggle",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Admin"],
                "summary": "Set the notification toggle",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/NotificationSetting"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/exports/{dataset}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Write a snapshot export",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "dataset", "in": "path", "required": true, "type": "string", "enum": ["students", "courses", "enrollments"]},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/exports/download": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download an export through its signed link",
                "parameters": [{"name": "token", "in": "query", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "File"},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/dashboard": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Admin dashboard summary",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "Attachment": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "url": {"type": "string"}
            },
            "required": ["name", "url"]
        },
        "CourseInput": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "level": {"type": "string", "enum": ["Beginner", "Intermediate", "Advanced"]},
                "duration": {"type": "string"},
                "department": {"type": "string"},
                "status": {"type": "string", "enum": ["open", "closed"]},
                "term": {"type": "string"},
                "year": {"type": "integer"},
                "startDate": {"type": "string"},
                "endDate": {"type": "string"},
                "startTime": {"type": "string"},
                "endTime": {"type": "string"},
                "meetingTime": {"type": "string"},
                "location": {"type": "string"},
                "maxStudents": {"type": "integer"},
                "description": {"type": "string"},
                "instructor": {"type": "string"},
                "attachments": {"type": "array", "items": {"$ref": "#/definitions/Attachment"}}
            },
            "required": ["title", "level"]
        },
        "SubmitEnrollmentRequest": {
            "type": "object",
            "properties": {
                "firstName": {"type": "string"},
                "lastName": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"},
                "age": {"type": "integer"},
                "comment": {"type": "string"},
                "courseId": {"type": "string"},
                "studentLevel": {"type": "string"}
            },
            "required": ["firstName", "lastName", "email", "courseId"]
        },
        "CheckEnrollmentRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "courseId": {"type": "string"}
            },
            "required": ["email", "courseId"]
        },
        "DecisionRequest": {
            "type": "object",
            "properties": {
                "comment": {"type": "string"},
                "version": {"type": "integer"}
            }
        },
        "ChangeStatusRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["approved", "rejected"]},
                "comment": {"type": "string"},
                "version": {"type": "integer"}
            },
            "required": ["status"]
        },
        "AssignCourseRequest": {
            "type": "object",
            "properties": {
                "newCourseId": {"type": "string"},
                "comment": {"type": "string"},
                "version": {"type": "integer"}
            },
            "required": ["newCourseId"]
        },
        "NotificationSetting": {
            "type": "object",
            "properties": {
                "enabled": {"type": "boolean"}
            },
            "required": ["enabled"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "pageSize": {"type": "integer"},
                "totalCount": {"type": "integer"}
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
