package api

import "github.com/mattjoyce/linedesk/internal/webhook"

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the operator and
// webhook endpoints.
func buildOpenAPIDoc() map[string]any {
	errorBody := map[string]any{
		"type":       "object",
		"properties": map[string]any{"error": map[string]any{"type": "string"}},
	}
	message := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":        map[string]any{"type": "string"},
			"userId":    map[string]any{"type": "string"},
			"text":      map[string]any{"type": "string"},
			"timestamp": map[string]any{"type": "string", "format": "date-time"},
		},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "LINE Desk",
			"version": "1.0",
		},
		"paths": map[string]any{
			webhook.Path: map[string]any{
				"post": map[string]any{
					"operationId": "receiveWebhook",
					"summary":     "Receive a signed LINE webhook delivery",
					"parameters": []any{map[string]any{
						"name":     "x-line-signature",
						"in":       "header",
						"required": true,
						"schema":   map[string]any{"type": "string"},
					}},
					"responses": map[string]any{
						"200": map[string]any{"description": "Delivery accepted"},
						"401": map[string]any{"description": "Invalid signature", "content": jsonContent(errorBody)},
						"413": map[string]any{"description": "Body too large"},
						"500": map[string]any{"description": "Malformed delivery", "content": jsonContent(errorBody)},
					},
				},
				"get": map[string]any{
					"operationId": "drainMessages",
					"summary":     "Return and clear all buffered messages",
					"responses": map[string]any{
						"200": map[string]any{
							"description": "Buffered messages, oldest first",
							"content": jsonContent(map[string]any{
								"type": "object",
								"properties": map[string]any{
									"messages": map[string]any{"type": "array", "items": message},
								},
							}),
						},
					},
				},
			},
			"/api/line/push": map[string]any{
				"post": map[string]any{
					"operationId": "pushMessage",
					"summary":     "Send a text message to a user",
					"requestBody": map[string]any{
						"required": true,
						"content": jsonContent(map[string]any{
							"type":     "object",
							"required": []string{"to", "message"},
							"properties": map[string]any{
								"to":      map[string]any{"type": "string"},
								"message": map[string]any{"type": "string"},
							},
						}),
					},
					"responses": map[string]any{
						"200": map[string]any{"description": "Platform accepted the push"},
						"400": map[string]any{"description": "Missing fields", "content": jsonContent(errorBody)},
						"500": map[string]any{"description": "Transport failure", "content": jsonContent(errorBody)},
					},
				},
			},
			"/api/line/events": map[string]any{
				"get": map[string]any{
					"operationId": "streamEvents",
					"summary":     "Server-Sent Events stream of notifications",
					"responses": map[string]any{
						"200": map[string]any{"description": "text/event-stream"},
					},
				},
			},
			"/healthz": map[string]any{
				"get": map[string]any{
					"operationId": "healthz",
					"summary":     "Liveness and buffer depth",
					"responses": map[string]any{
						"200": map[string]any{"description": "OK"},
					},
				},
			},
		},
	}
}

func jsonContent(schema map[string]any) map[string]any {
	return map[string]any{
		"application/json": map[string]any{"schema": schema},
	}
}
