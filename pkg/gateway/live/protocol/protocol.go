// Package protocol defines the JSON frames exchanged on /ws/stream. Audio
// travels in binary frames and is not described here.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	TypeEndCall = "end_call"

	TypeConnectionSuccessful = "connection_successful"
	TypeTranscription        = "transcription"
	TypeLLMResponse          = "llm_response"
	TypeTTSStart             = "tts_start"
	TypeTTSEnd               = "tts_end"
	TypeError                = "error"
	TypeWarning              = "warning"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// Handshake is the first frame of a session. An empty UserID selects
// anonymous mode.
type Handshake struct {
	UserID string `json:"user_id,omitempty"`
}

// TurnHeader precedes each binary audio frame.
type TurnHeader struct {
	Lang string `json:"lang"`
}

// EndCall asks the server to end the session.
type EndCall struct {
	Type string `json:"type"`
}

// DecodeClientMessage decodes a text frame into Handshake, TurnHeader or
// EndCall. A frame carrying "lang" but no "user_id" is a TurnHeader; any
// other untyped object is a Handshake.
func DecodeClientMessage(data []byte) (any, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, badRequest("invalid json frame", "")
	}

	if raw, ok := fields["type"]; ok {
		var typ string
		if err := json.Unmarshal(raw, &typ); err != nil {
			return nil, badRequest("type must be a string", "type")
		}
		switch strings.TrimSpace(typ) {
		case TypeEndCall:
			return EndCall{Type: TypeEndCall}, nil
		case "":
		default:
			return nil, unsupported("unsupported message type", "type")
		}
	}

	_, hasUser := fields["user_id"]
	_, hasLang := fields["lang"]
	if hasLang && !hasUser {
		lang, err := optionalString(fields, "lang")
		if err != nil {
			return nil, err
		}
		return TurnHeader{Lang: lang}, nil
	}

	userID, err := optionalString(fields, "user_id")
	if err != nil {
		return nil, err
	}
	return Handshake{UserID: strings.TrimSpace(userID)}, nil
}

// optionalString reads a string field; absent and null both yield "".
func optionalString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", badRequest(key+" must be a string", key)
	}
	return s, nil
}

// NormalizeLang maps a per-turn language hint to a transcription language
// code. "english" and the empty hint both mean "en".
func NormalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" || lang == "english" {
		return "en"
	}
	return lang
}

type ServerConnectionSuccessful struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type ServerTranscription struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerLLMResponse struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerTTSStart struct {
	Type string `json:"type"`
}

type ServerTTSEnd struct {
	Type string `json:"type"`
}

type ServerError struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// ServerWarning is advisory; the session keeps running.
type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ConnectionSuccessful(sessionID string) ServerConnectionSuccessful {
	return ServerConnectionSuccessful{Type: TypeConnectionSuccessful, SessionID: sessionID}
}

func Transcription(text string) ServerTranscription {
	return ServerTranscription{Type: TypeTranscription, Text: text}
}

func LLMResponse(text string) ServerLLMResponse {
	return ServerLLMResponse{Type: TypeLLMResponse, Text: text}
}

func TTSStart() ServerTTSStart { return ServerTTSStart{Type: TypeTTSStart} }

func TTSEnd() ServerTTSEnd { return ServerTTSEnd{Type: TypeTTSEnd} }

func Error(detail string) ServerError {
	return ServerError{Type: TypeError, Detail: detail}
}

func Warning(code, message string) ServerWarning {
	return ServerWarning{Type: TypeWarning, Code: code, Message: message}
}
