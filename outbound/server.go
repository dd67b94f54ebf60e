package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Alfex4936/feishu-outbound/internal/chunk"
	"github.com/Alfex4936/feishu-outbound/internal/util"
)

// DefaultSendTimeout bounds one /v1/send request when the body sets none.
const DefaultSendTimeout = 30 * time.Second

// Server exposes the chunker and, when an Adapter is configured, delivery.
type Server struct {
	adapter *Adapter
	mode    chunk.Mode
	limit   int
}

// NewServer builds a Server. a may be nil, in which case /v1/send answers
// 503 and /v1/split uses mode and limit as defaults.
func NewServer(a *Adapter, mode chunk.Mode, limit int) *Server {
	if a != nil {
		mode, limit = a.Mode(), a.Limit()
	}
	if mode == "" {
		mode = chunk.ModeMarkdown
	}
	return &Server{adapter: a, mode: mode, limit: limit}
}

// Routes returns the HTTP handler for all endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/split", s.SplitHandler)
	r.Post("/v1/send", s.SendHandler)
	r.Get("/health", HealthHandler)
	r.Get("/openapi.json", OpenAPIHandler)
	r.Get("/", DocsHandler)
	return r
}

// SplitRequest is the HTTP request body for /v1/split
type SplitRequest struct {
	Text  string `json:"text"`            // text to split (required)
	Mode  string `json:"mode,omitempty"`  // plain | markdown (default: server mode)
	Limit *int   `json:"limit,omitempty"` // chunk size in characters (default: server limit)
}

// SendRequest is the HTTP request body for /v1/send
type SendRequest struct {
	To       string `json:"to"`                  // receive id, optionally typed: chat_id:oc_xxx
	Text     string `json:"text,omitempty"`      // message body
	MediaURL string `json:"media_url,omitempty"` // asset to upload after the text
	Timeout  int    `json:"timeout,omitempty"`   // seconds, default 30
}

// SplitHandler handles POST /v1/split requests
func (s *Server) SplitHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req SplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	mode := s.mode
	if req.Mode != "" {
		m, err := chunk.ParseMode(req.Mode)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
			return
		}
		mode = m
	}
	limit := s.limit
	if req.Limit != nil {
		limit = *req.Limit
	}

	writeJSON(w, http.StatusOK, Split(req.Text, mode, limit))
}

// SendHandler handles POST /v1/send requests
func (s *Server) SendHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	if s.adapter == nil {
		http.Error(w, "delivery is not configured (missing Feishu credentials)", http.StatusServiceUnavailable)
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	timeout := DefaultSendTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	res, err := s.adapter.SendMedia(ctx, req.To, req.Text, req.MediaURL)
	if errors.Is(err, ErrNoRecipient) {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Send failed: %v", err), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// HealthHandler handles GET /health requests
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "feishu-outbound",
	})
}

// OpenAPIHandler serves the OpenAPI 3.0 spec at GET /openapi.json
func OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, openAPISpec)
}

// DocsHandler serves the Redoc UI at GET /
func DocsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, redocHTML)
}

// writeJSON keeps <, > and & readable; chat text is full of them.
func writeJSON(w http.ResponseWriter, status int, v any) {
	out, err := util.MarshalNoEscape(v, true)
	if err != nil {
		http.Error(w, fmt.Sprintf("encode response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(out)
}

const openAPISpec = `{
  "openapi": "3.0.3",
  "info": {
    "title": "Feishu Outbound API",
    "description": "Splits agent replies into Feishu-sized messages and delivers them in order",
    "version": "1.0.0"
  },
  "paths": {
    "/v1/split": {
      "post": {
        "summary": "Split",
        "description": "Preview how a text would be chunked. Needs no credentials.",
        "requestBody": {
          "required": true,
          "content": {
            "application/json": {
              "schema": { "$ref": "#/components/schemas/SplitRequest" },
              "examples": {
                "markdown": { "value": { "text": "line one\nline two\nline three", "limit": 10 } },
                "plain":    { "value": { "text": "hello world", "mode": "plain", "limit": 5 } }
              }
            }
          }
        },
        "responses": {
          "200": {
            "description": "Chunks in send order",
            "content": {
              "application/json": {
                "schema": { "$ref": "#/components/schemas/SplitResult" },
                "example": {
                  "mode": "plain",
                  "limit": 5,
                  "chunkCount": 2,
                  "chunks": [
                    { "idx": 0, "len": 5, "text": "hello" },
                    { "idx": 1, "len": 5, "text": "world" }
                  ]
                }
              }
            }
          },
          "400": { "description": "Invalid JSON or unknown mode" }
        }
      }
    },
    "/v1/send": {
      "post": {
        "summary": "Send",
        "description": "Send text (split into chunks) and optionally one media asset. Failed media falls back to a link.",
        "requestBody": {
          "required": true,
          "content": {
            "application/json": {
              "schema": { "$ref": "#/components/schemas/SendRequest" },
              "examples": {
                "text":  { "value": { "to": "oc_a0553eda9014c201e6969b478895c230", "text": "hello" } },
                "media": { "value": { "to": "oc_a0553eda9014c201e6969b478895c230", "text": "chart:", "media_url": "https://example.com/chart.png" } }
              }
            }
          }
        },
        "responses": {
          "200": {
            "description": "Delivery report",
            "content": {
              "application/json": { "schema": { "$ref": "#/components/schemas/Delivery" } }
            }
          },
          "400": { "description": "Invalid JSON or missing recipient" },
          "502": { "description": "Feishu rejected or never answered a message" },
          "503": { "description": "Server started without Feishu credentials" }
        }
      }
    },
    "/health": {
      "get": {
        "summary": "Health",
        "responses": {
          "200": {
            "description": "Service is up",
            "content": {
              "application/json": {
                "example": { "status": "ok", "service": "feishu-outbound" }
              }
            }
          }
        }
      }
    }
  },
  "components": {
    "schemas": {
      "SplitRequest": {
        "type": "object",
        "required": ["text"],
        "properties": {
          "text":  { "type": "string" },
          "mode":  { "type": "string", "enum": ["plain", "markdown"] },
          "limit": { "type": "integer", "description": "<= 0 disables splitting" }
        }
      },
      "SplitResult": {
        "type": "object",
        "properties": {
          "mode":       { "type": "string" },
          "limit":      { "type": "integer" },
          "chunkCount": { "type": "integer" },
          "chunks":     { "type": "array", "items": { "$ref": "#/components/schemas/Chunk" } }
        }
      },
      "Chunk": {
        "type": "object",
        "properties": {
          "idx":  { "type": "integer" },
          "len":  { "type": "integer", "description": "length in characters" },
          "text": { "type": "string" }
        }
      },
      "SendRequest": {
        "type": "object",
        "required": ["to"],
        "properties": {
          "to":        { "type": "string", "description": "oc_/ou_/on_ id, email, or type:id" },
          "text":      { "type": "string" },
          "media_url": { "type": "string" },
          "timeout":   { "type": "integer", "description": "seconds, default 30" }
        }
      },
      "Delivery": {
        "type": "object",
        "properties": {
          "channel":    { "type": "string" },
          "to":         { "type": "string" },
          "chunkCount": { "type": "integer" },
          "fallback":   { "type": "boolean" },
          "results": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "channel":   { "type": "string" },
                "messageId": { "type": "string" },
                "chatId":    { "type": "string" }
              }
            }
          }
        }
      }
    }
  }
}`

const redocHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Feishu Outbound API Docs</title>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <style>body { margin: 0; padding: 0; }</style>
</head>
<body>
  <redoc spec-url="/openapi.json" expand-responses="200" hide-download-button></redoc>
  <script src="https://cdn.jsdelivr.net/npm/redoc@latest/bundles/redoc.standalone.js"></script>
</body>
</html>`
