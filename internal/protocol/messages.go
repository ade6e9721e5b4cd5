package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/healthsphere/healthsphere/internal/conversation"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeTranscriptUpdate MessageType = "transcript_update"
	TypeCallControl      MessageType = "call_control"
	TypeTurnAppended     MessageType = "turn_appended"
	TypeCallState        MessageType = "call_state"
	TypeErrorEvent       MessageType = "error_event"
)

// Call control actions accepted from the client.
const (
	ActionStart = "start"
	ActionEnd   = "end"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// TranscriptUpdate carries one speech recognizer result for the caller.
type TranscriptUpdate struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	IsFinal   bool        `json:"is_final"`
	TSMs      int64       `json:"ts_ms"`
}

type CallControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

// TurnAppended notifies the client of a turn added to the live transcript.
type TurnAppended struct {
	Type      MessageType       `json:"type"`
	SessionID string            `json:"session_id"`
	Turn      conversation.Turn `json:"turn"`
}

type CallState struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	State     string      `json:"state"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeTranscriptUpdate:
		var msg TranscriptUpdate
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid transcript_update")
		}
		return msg, nil
	case TypeCallControl:
		var msg CallControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid call_control")
		}
		if msg.Action != ActionStart && msg.Action != ActionEnd {
			return nil, fmt.Errorf("invalid call_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
