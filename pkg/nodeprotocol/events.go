package nodeprotocol

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/buildforge/manager/pkg/model"
)

// CustomEvent is a logging-event subclass (spec.md §9 "dynamic type
// injection"): a known kind tag plus whatever payload the kind defines.
// The single-node path may keep the concrete Go value around (Native);
// the multi-node path only ever has the serialized form.
type CustomEvent struct {
	Native  interface{}
	Kind    string
	Message string
}

// gob requires concrete types to be registered before they can travel
// inside an interface{} field. Callers that define their own CustomEvent
// kinds should call RegisterEventKind in an init() so Native can be
// gob-encoded into CustomPayload on the multi-node path and decoded again
// by DecodeEvent, without forcing a type switch here.
func RegisterEventKind(kind string, zero interface{}) {
	gob.RegisterName("nodeprotocol."+kind, zero)
}

// EncodeEvent produces the LogMessagePacket for ev. In a single-node
// (in-proc only) session, multiNode is false: the packet carries the
// event's Kind and Message, nothing is serialized, and Native is not
// carried on the packet, so the concrete value does not reach the
// receiver. In a multi-node
// session an attempt is made to gob-encode Native; if that fails the
// event is substituted with a synthesized base-type event carrying the
// same message, and warning is non-empty (ExpectedEventToBeSerializable).
func EncodeEvent(ev CustomEvent, importance model.Importance, multiNode bool) (*LogMessagePacket, string) {
	if !multiNode {
		return &LogMessagePacket{
			Text:            ev.Message,
			Importance:      importance,
			CustomEventType: ev.Kind,
		}, ""
	}

	payload, err := encodeNative(ev.Native)
	if err != nil {
		return &LogMessagePacket{
				Text:        ev.Message,
				Importance:  importance,
				Synthesized: true,
			}, fmt.Sprintf("ExpectedEventToBeSerializable: event kind %q could not be serialized (%v); "+
				"substituting a base event carrying the same message", ev.Kind, err)
	}
	return &LogMessagePacket{
		Text:            ev.Message,
		Importance:      importance,
		CustomEventType: ev.Kind,
		CustomPayload:   payload,
	}, ""
}

func encodeNative(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEvent reverses EncodeEvent on the receiving (scheduler) side.
// Native is only populated when the kind was registered via
// RegisterEventKind; otherwise callers fall back to Text/Kind.
func DecodeEvent(p *LogMessagePacket) (CustomEvent, error) {
	ev := CustomEvent{Message: p.Text, Kind: p.CustomEventType}
	if len(p.CustomPayload) == 0 {
		return ev, nil
	}
	var v interface{}
	if err := gob.NewDecoder(bytes.NewReader(p.CustomPayload)).Decode(&v); err != nil {
		return ev, fmt.Errorf("decoding custom event payload for kind %q: %w", p.CustomEventType, err)
	}
	ev.Native = v
	return ev, nil
}
