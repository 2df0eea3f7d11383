// Package message implements the JSON codecs for the ETSI ITS message
// set exchanged by the client: Cooperative Awareness (CAM), Decentralized
// Environmental Notification (DENM) and Collective Perception (CPM)
// messages, wrapped in a shared header envelope.
//
// Physical quantities are stored and transmitted as ETSI fixed-point
// integers; accessor methods apply the scaling for consumers. Every
// decode fails closed: malformed input, an unknown type tag or a missing
// mandatory field yields an error and no message.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message type tags carried in the envelope header.
const (
	TypeCAM  = "cam"
	TypeDENM = "denm"
	TypeCPM  = "cpm"
)

// Message origins.
const (
	OriginSelf      = "self"
	OriginGlobalApp = "global_application"
	OriginMECApp    = "mec_application"
)

// FormatVersion is the wire format version stamped on outgoing messages.
const FormatVersion = "1.1.3"

// Body is a typed message body; one of *CAM, *DENM or *CPM.
type Body interface {
	// MessageType returns the envelope type tag of the body.
	MessageType() string
}

// Envelope is the shared message header plus its typed body.
type Envelope struct {
	Type            string `json:"type"`
	Origin          string `json:"origin"`
	Version         string `json:"version"`
	SourceUUID      string `json:"source_uuid"`
	DestinationUUID string `json:"destination_uuid,omitempty"`
	Timestamp       int64  `json:"timestamp"` // Unix epoch ms
	Message         Body   `json:"message"`
}

// NewEnvelope wraps a body in a header originated by this station.
func NewEnvelope(sourceUUID string, timestamp int64, body Body) *Envelope {
	return &Envelope{
		Type:       body.MessageType(),
		Origin:     OriginSelf,
		Version:    FormatVersion,
		SourceUUID: sourceUUID,
		Timestamp:  timestamp,
		Message:    body,
	}
}

// Encode renders the envelope as its JSON wire form. Encode is the exact
// structural inverse of Decode for any successfully decoded envelope.
func (e *Envelope) Encode() ([]byte, error) {
	if e.Message == nil {
		return nil, errors.New("message: envelope has no body")
	}
	return json.Marshal(e)
}

type wireEnvelope struct {
	Type            string          `json:"type"`
	Origin          string          `json:"origin"`
	Version         string          `json:"version"`
	SourceUUID      string          `json:"source_uuid"`
	DestinationUUID string          `json:"destination_uuid,omitempty"`
	Timestamp       *int64          `json:"timestamp"`
	Message         json.RawMessage `json:"message"`
}

// Decode parses a raw payload into a typed envelope. The header type tag
// selects the body codec; an unrecognized tag, malformed JSON or a
// missing mandatory field is an error and the payload is dropped by the
// caller.
func Decode(raw []byte, v Validation) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("message: malformed envelope: %w", err)
	}
	if w.Type == "" {
		return nil, errors.New("message: missing mandatory field type")
	}
	if w.SourceUUID == "" {
		return nil, errors.New("message: missing mandatory field source_uuid")
	}
	if w.Timestamp == nil {
		return nil, errors.New("message: missing mandatory field timestamp")
	}
	if len(w.Message) == 0 {
		return nil, errors.New("message: missing mandatory field message")
	}

	var body Body
	var err error
	switch w.Type {
	case TypeCAM:
		body, err = DecodeCAM(w.Message, v)
	case TypeDENM:
		body, err = DecodeDENM(w.Message, v)
	case TypeCPM:
		body, err = DecodeCPM(w.Message, v)
	default:
		return nil, fmt.Errorf("message: unknown message type %q", w.Type)
	}
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Type:            w.Type,
		Origin:          w.Origin,
		Version:         w.Version,
		SourceUUID:      w.SourceUUID,
		DestinationUUID: w.DestinationUUID,
		Timestamp:       *w.Timestamp,
		Message:         body,
	}, nil
}
