// Package protocol defines the JSON wire protocol: inbound client
// events, outbound server events, and the envelope bus messages carry
// between instances.
package protocol

import (
	"encoding/json"

	"collabtext/internal/apperr"
	"collabtext/internal/ot"
)

// InboundEvent names the four events clients may send.
type InboundEvent string

const (
	EventJoinDocument  InboundEvent = "join_document"
	EventLeaveDocument InboundEvent = "leave_document"
	EventOperation     InboundEvent = "operation"
	EventCursorMove    InboundEvent = "cursor_move"
)

// Cursor is the lightweight per-user cursor/selection payload carried in
// cursor_move and presence entries.
type Cursor struct {
	Position       int  `json:"position"`
	SelectionStart *int `json:"selectionStart,omitempty"`
	SelectionEnd   *int `json:"selectionEnd,omitempty"`
}

// Inbound is the sum type of decoded client messages: one case per
// event, so the dispatch switch is exhaustive instead of probing
// undefined fields.
type Inbound interface{ inbound() }

type JoinDocument struct{ DocumentID string }

func (JoinDocument) inbound() {}

type LeaveDocument struct{}

func (LeaveDocument) inbound() {}

type SubmitOperation struct{ Op ot.Operation }

func (SubmitOperation) inbound() {}

type MoveCursor struct{ Cursor Cursor }

func (MoveCursor) inbound() {}

// rawEnvelope decodes "{event, ...payload}": the event name plus
// whichever fields that event's payload carries, all at the top level.
// Embedding ot.Operation promotes its type/position/text/length/
// baseVersion fields into the envelope.
type rawEnvelope struct {
	Event      string `json:"event"`
	DocumentID string `json:"documentId"`
	ot.Operation
	Cursor Cursor `json:"cursor"`
}

// DecodeInbound parses a client message and returns its typed Inbound
// case. Unknown events are rejected with apperr.InvalidOperation rather
// than silently ignored.
func DecodeInbound(data []byte) (Inbound, error) {
	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, apperr.Wrap(apperr.InvalidOperation, "malformed message", err)
	}

	switch InboundEvent(env.Event) {
	case EventJoinDocument:
		if env.DocumentID == "" {
			return nil, apperr.New(apperr.InvalidOperation, "join_document requires documentId")
		}
		return JoinDocument{DocumentID: env.DocumentID}, nil
	case EventLeaveDocument:
		return LeaveDocument{}, nil
	case EventOperation:
		if err := env.Operation.Validate(); err != nil {
			return nil, apperr.Wrap(apperr.InvalidOperation, "invalid operation shape", err)
		}
		return SubmitOperation{Op: env.Operation}, nil
	case EventCursorMove:
		return MoveCursor{Cursor: env.Cursor}, nil
	default:
		return nil, apperr.New(apperr.InvalidOperation, "unknown event: "+env.Event)
	}
}
