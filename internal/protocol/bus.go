package protocol

import "encoding/json"

// BusMessage is the envelope published on doc:<id> and presence:<id>.
// serverId lets every instance drop messages that originated from
// itself, preventing echo.
type BusMessage struct {
	ServerID string          `json:"serverId"`
	Event    OutboundEvent   `json:"event"`
	Payload  json.RawMessage `json:"payload"`
}

// EncodeBusMessage wraps an outbound event for bus publication.
func EncodeBusMessage(serverID string, event OutboundEvent, payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	msg := BusMessage{ServerID: serverID, Event: event, Payload: raw}
	out, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DecodeBusMessage unwraps a bus payload back into its envelope.
func DecodeBusMessage(data string) (BusMessage, error) {
	var msg BusMessage
	err := json.Unmarshal([]byte(data), &msg)
	return msg, err
}
