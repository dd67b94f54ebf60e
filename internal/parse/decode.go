package parse

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope is the wrapper every Feishu open-api response uses.
type Envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

// APIError is a non-zero Feishu response code.
type APIError struct {
	Code   int
	Msg    string
	Status int // HTTP status of the response
}

func (e *APIError) Error() string {
	return fmt.Sprintf("feishu: api error %d (http %d): %s", e.Code, e.Status, e.Msg)
}

const (
	codeMissingToken = 99991661
	codeInvalidToken = 99991663
	codeRateLimited  = 99991400
	codeSendTooFast  = 230020
)

// TokenInvalid reports a missing or expired tenant access token.
func (e *APIError) TokenInvalid() bool {
	return e.Code == codeMissingToken || e.Code == codeInvalidToken
}

// Temporary reports whether retrying the same request may succeed:
// rate limits, server errors and stale tokens.
func (e *APIError) Temporary() bool {
	switch {
	case e.Code == codeRateLimited, e.Code == codeSendTooFast, e.TokenInvalid():
		return true
	case e.Status == 429, e.Status >= 500:
		return true
	}
	return false
}

// maxBodySnippet bounds how much of a non-JSON body lands in an error.
const maxBodySnippet = 200

// Decode unmarshals a Feishu response body. A non-zero code becomes an
// *APIError; otherwise data (when non-nil) receives the "data" object.
// Gateways answer 429 and 5xx with HTML or empty bodies; those still
// become an *APIError carrying the status so they classify as temporary.
func Decode(raw []byte, status int, data any) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if status == 429 || status >= 500 {
			return &APIError{Status: status, Msg: bodySnippet(raw)}
		}
		return fmt.Errorf("feishu: decode response (http %d): %w", status, err)
	}
	if env.Code != 0 {
		return &APIError{Code: env.Code, Msg: env.Msg, Status: status}
	}
	if data == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, data); err != nil {
		return fmt.Errorf("feishu: decode data: %w", err)
	}
	return nil
}

// DecodeRaw decodes responses that keep their payload at the top level
// (the auth endpoints) into v after checking the code.
func DecodeRaw(raw []byte, status int, v any) error {
	if err := Decode(raw, status, nil); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("feishu: decode response: %w", err)
	}
	return nil
}

func bodySnippet(raw []byte) string {
	s := strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
	if len(s) > maxBodySnippet {
		s = strings.ToValidUTF8(s[:maxBodySnippet], "") + "..."
	}
	if s == "" {
		return "empty response body"
	}
	return s
}
