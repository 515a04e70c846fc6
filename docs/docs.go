// Package docs holds the swagger spec generated by swaggo/swag from the
// handler annotations. Regenerate with `swag init -g cmd/server/main.go`.
package docs

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
        "/api/v1/auth/login": {
            "post": {
                "description": "Authenticate and return a JWT token",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Log in",
                "parameters": [
                    {"description": "Login data", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.AuthResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/v1/auth/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Current account",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Account"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/v1/auth/register": {
            "post": {
                "description": "Create an account and return a JWT token. An account is a stable identity across sessions and is required to host.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Register an account",
                "parameters": [
                    {"description": "Registration data", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.AuthResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/v1/sessions": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Open a lobby with an invite code. Omitted settings take their defaults.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Create a game session",
                "parameters": [
                    {"description": "Session settings", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.Session"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/v1/sessions/code/{code}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Find a session by invite code",
                "parameters": [
                    {"type": "string", "description": "Invite code", "name": "code", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.Snapshot"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/v1/sessions/{id}": {
            "get": {
                "description": "Current settings, roster and open round of a session",
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Get session state",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.Snapshot"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/v1/sessions/{id}/invite.png": {
            "get": {
                "description": "PNG QR code encoding the session's join link",
                "produces": ["image/png"],
                "tags": ["sessions"],
                "summary": "Invite QR code",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/v1/sessions/{id}/leaderboard": {
            "get": {
                "description": "Participants ranked by score, ties in join order",
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Session leaderboard",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/services.LeaderboardEntry"}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Liveness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Engine counters",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.MetricsSnapshot"}}
                }
            }
        },
        "/ws": {
            "get": {
                "description": "Bidirectional game channel. Frames are {\"type\", \"data\"} envelopes; send join_session first. Pass an account token as ?token= to join with a stable identity.",
                "tags": ["websocket"],
                "summary": "Game websocket",
                "parameters": [
                    {"type": "string", "description": "Account JWT", "name": "token", "in": "query"}
                ],
                "responses": {}
            }
        }
    },
    "definitions": {
        "handlers.AuthResponse": {
            "type": "object",
            "properties": {
                "account": {"$ref": "#/definitions/models.Account"},
                "token": {"type": "string", "example": "eyJhbGciOiJIUzI1NiIs..."}
            }
        },
        "handlers.CreateSessionRequest": {
            "type": "object",
            "properties": {
                "between_rounds_timer": {"type": "integer", "maximum": 60, "minimum": 1, "example": 5},
                "hints_enabled": {"type": "boolean", "example": true},
                "max_players": {"type": "integer", "maximum": 50, "minimum": 2, "example": 8},
                "mode": {"type": "string", "enum": ["CLASSIC", "ELIMINATION", "MARATHON"], "example": "CLASSIC"},
                "round_timer": {"type": "integer", "maximum": 300, "minimum": 5, "example": 30},
                "rounds": {"type": "integer", "maximum": 50, "minimum": 1, "example": 5},
                "target_score": {"type": "integer", "minimum": 1, "example": 1000}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "NOT_FOUND"},
                "error": {"type": "string", "example": "something went wrong"}
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "loaded_sessions": {"type": "integer", "example": 3},
                "status": {"type": "string", "example": "ok"},
                "uptime": {"type": "string", "example": "1h2m3s"}
            }
        },
        "handlers.LoginRequest": {
            "type": "object",
            "required": ["password", "username"],
            "properties": {
                "password": {"type": "string", "example": "password123"},
                "username": {"type": "string", "example": "player1"}
            }
        },
        "handlers.RegisterRequest": {
            "type": "object",
            "required": ["password", "username"],
            "properties": {
                "password": {"type": "string", "minLength": 6, "example": "password123"},
                "username": {"type": "string", "maxLength": 100, "minLength": 3, "example": "player1"}
            }
        },
        "models.Account": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "id": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "models.Participant": {
            "type": "object",
            "properties": {
                "account_id": {"type": "string"},
                "avatar": {"type": "string"},
                "display_name": {"type": "string"},
                "id": {"type": "string"},
                "is_eliminated": {"type": "boolean"},
                "is_ready": {"type": "boolean"},
                "joined_at": {"type": "string"},
                "score": {"type": "integer"},
                "session_id": {"type": "string"},
                "streak": {"type": "integer"}
            }
        },
        "models.Session": {
            "type": "object",
            "properties": {
                "between_rounds_timer": {"type": "integer"},
                "created_at": {"type": "string"},
                "created_by": {"type": "string"},
                "current_round": {"type": "integer"},
                "hints_enabled": {"type": "boolean"},
                "host_participant_id": {"type": "string"},
                "id": {"type": "string"},
                "invite_code": {"type": "string"},
                "max_players": {"type": "integer"},
                "mode": {"type": "string"},
                "participants": {"type": "array", "items": {"$ref": "#/definitions/models.Participant"}},
                "round_timer": {"type": "integer"},
                "rounds": {"type": "integer"},
                "status": {"type": "string"},
                "target_score": {"type": "integer"},
                "updated_at": {"type": "string"}
            }
        },
        "services.ItemRef": {
            "type": "object",
            "properties": {
                "description": {"type": "string"},
                "id": {"type": "string"},
                "media_url": {"type": "string"},
                "title": {"type": "string"}
            }
        },
        "services.LeaderboardEntry": {
            "type": "object",
            "properties": {
                "avatar": {"type": "string"},
                "display_name": {"type": "string"},
                "is_eliminated": {"type": "boolean"},
                "participant_id": {"type": "string"},
                "rank": {"type": "integer"},
                "score": {"type": "integer"},
                "streak": {"type": "integer"}
            }
        },
        "services.MetricsSnapshot": {
            "type": "object",
            "additionalProperties": {"type": "integer"}
        },
        "services.RoundView": {
            "type": "object",
            "properties": {
                "answered": {"type": "integer"},
                "ends_at": {"type": "string"},
                "hint": {"type": "string"},
                "item": {"$ref": "#/definitions/services.ItemRef"},
                "round_number": {"type": "integer"}
            }
        },
        "services.Settings": {
            "type": "object",
            "properties": {
                "between_rounds_timer": {"type": "integer"},
                "hints_enabled": {"type": "boolean"},
                "max_players": {"type": "integer"},
                "mode": {"type": "string"},
                "round_timer": {"type": "integer"},
                "rounds": {"type": "integer"},
                "target_score": {"type": "integer"}
            }
        },
        "services.Snapshot": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "current_round": {"type": "integer"},
                "host_participant_id": {"type": "string"},
                "id": {"type": "string"},
                "invite_code": {"type": "string"},
                "participants": {"type": "array", "items": {"$ref": "#/definitions/models.Participant"}},
                "round": {"$ref": "#/definitions/services.RoundView"},
                "settings": {"$ref": "#/definitions/services.Settings"},
                "status": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Enter \"Bearer {token}\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Guess Game API",
	Description:      "Multiplayer timed guessing game: sessions, rounds and a websocket game channel",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
