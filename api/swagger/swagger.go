package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "OzPath API",
        "description": "Application workflow and commission settlement engine",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Applications", "description": "Application lifecycle and status transitions"},
        {"name": "AuthorizationForms", "description": "Two-party authority-to-represent forms"},
        {"name": "Commissions", "description": "Commission settlement and payout ledger"},
        {"name": "Analytics", "description": "Pipeline reporting read model"}
    ],
    "paths": {
        "/applications": {
            "get": {
                "tags": ["Applications"],
                "summary": "List applications",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Applications"],
                "summary": "Create application",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/applications/{id}": {
            "get": {
                "tags": ["Applications"],
                "summary": "Get application detail",
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/applications/{id}/timeline": {
            "get": {
                "tags": ["Applications"],
                "summary": "Get status history",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/applications/{id}/transition": {
            "post": {
                "tags": ["Applications"],
                "summary": "Request a status transition",
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Invalid transition or concurrent update"},
                    "412": {"description": "Authorization form incomplete"}
                }
            }
        },
        "/applications/{id}/authorization-form": {
            "get": {
                "tags": ["AuthorizationForms"],
                "summary": "Get the authorization form",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["AuthorizationForms"],
                "summary": "Create the authorization form",
                "responses": {"201": {"description": "Created"}, "409": {"description": "Form already exists"}}
            }
        },
        "/applications/{id}/authorization-form/sign": {
            "post": {
                "tags": ["AuthorizationForms"],
                "summary": "Sign one slot of the form",
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Slot already signed"},
                    "412": {"description": "Form expired"}
                }
            }
        },
        "/applications/{id}/authorization-form/pdf": {
            "get": {
                "tags": ["AuthorizationForms"],
                "summary": "Download the completed form as PDF",
                "responses": {"200": {"description": "OK"}, "412": {"description": "Form incomplete"}}
            }
        },
        "/commissions": {
            "get": {
                "tags": ["Commissions"],
                "summary": "List commission records",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/commissions/settle": {
            "post": {
                "tags": ["Commissions"],
                "summary": "Settle a commission",
                "responses": {"201": {"description": "Created"}, "200": {"description": "Already settled"}}
            }
        },
        "/commissions/{id}": {
            "get": {
                "tags": ["Commissions"],
                "summary": "Get a commission record with its ledger",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/commissions/{id}/payouts": {
            "post": {
                "tags": ["Commissions"],
                "summary": "Record a payout attempt outcome",
                "responses": {"200": {"description": "OK"}, "409": {"description": "Share already paid"}}
            }
        },
        "/commissions/export": {
            "get": {
                "tags": ["Commissions"],
                "summary": "Export commission records as CSV",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/analytics/pipeline": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Pipeline summary",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
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
