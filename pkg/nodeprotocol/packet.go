// Package nodeprotocol defines the typed packets exchanged between the
// scheduler and worker nodes (spec.md §4.4): configuration registration,
// requests, results, blockers/unblockers, log messages, and node-creation
// instructions. Packets are plain data, gob-encodable, so the same types
// serve the in-process channel transport and the out-of-process wire
// transport in pkg/nodeprovider.
package nodeprotocol

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/buildforge/manager/pkg/model"
)

// PacketType enumerates the NodePacketType variants from spec.md §4.4.
type PacketType int

const (
	PacketConfiguration PacketType = iota
	PacketRequest
	PacketResult
	PacketBlocker
	PacketUnblocker
	PacketLogMessage
	PacketNodeCreate
	PacketShutdown
)

func (t PacketType) String() string {
	switch t {
	case PacketConfiguration:
		return "BuildRequestConfiguration"
	case PacketRequest:
		return "BuildRequest"
	case PacketResult:
		return "BuildResult"
	case PacketBlocker:
		return "BuildRequestBlocker"
	case PacketUnblocker:
		return "BuildRequestUnblocker"
	case PacketLogMessage:
		return "LogMessage"
	case PacketNodeCreate:
		return "NodeCreate"
	case PacketShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// ConfigPacket is the scheduler→node BuildRequestConfiguration packet. If
// the originating configuration was initialized from an in-memory
// ProjectInstance with TranslateEntireState set, EvaluatedState carries the
// complete evaluated project state and the node must not re-evaluate from
// disk; otherwise EvaluatedState is nil and the node re-evaluates
// ProjectFullPath itself using GlobalProperties (spec.md §4.4).
type ConfigPacket struct {
	EvaluatedState   map[string]string
	ProjectFullPath  string
	ToolsVersion     string
	GlobalProperties map[string]string
	ConfigID         model.ConfigID
	TranslateEntireState bool
}

// FromConfiguration builds the wire packet for cfg. evaluatedState is
// non-nil only when cfg.TranslateEntireState is true.
func FromConfiguration(cfg *model.Configuration, evaluatedState map[string]string) *ConfigPacket {
	p := &ConfigPacket{
		ConfigID:             cfg.ID,
		ProjectFullPath:      cfg.ProjectFullPath,
		ToolsVersion:         cfg.ToolsVersion,
		GlobalProperties:     cfg.GlobalProperties,
		TranslateEntireState: cfg.TranslateEntireState,
	}
	if cfg.TranslateEntireState {
		p.EvaluatedState = evaluatedState
	}
	return p
}

// NodeCreatePacket mirrors the CreateNode ScheduleResponse variant
// (spec.md §3): the scheduler instructs a node provider to spawn N more
// nodes of the given affinity kind.
type NodeCreatePacket struct {
	Affinity              model.Affinity
	NumberOfNodesToCreate int
}

// LogMessagePacket is a node→scheduler LogMessage packet (spec.md §4.4).
// CustomEventType/CustomPayload carry a "custom-typed" logging event
// variant when the event is a logging-event subclass; Synthesized is set
// when an unserializable subclass was substituted with a generic event
// carrying the same message (spec.md §9 "dynamic type injection").
type LogMessagePacket struct {
	Text            string
	CustomEventType string
	CustomPayload   []byte
	Fields          map[string]string
	Importance      model.Importance
	Synthesized     bool
}

// ProjectStartedEventType is the LogMessagePacket.CustomEventType value
// for a ProjectStarted event — a "custom-typed" logging event per spec.md
// §9's dynamic type injection, not a distinct PacketType, since every
// node→scheduler logging event rides the same LogMessage packet.
const ProjectStartedEventType = "ProjectStarted"

// ProjectStartedEvent is the structured payload carried as
// LogMessagePacket.CustomPayload (gob-encoded) for a ProjectStarted event.
// Which properties it carries depends on node affinity and the
// property-forwarding allowlist (spec.md §4.4): model.FilterForwardedProperties
// restricts Properties for out-of-process nodes; in-process nodes include
// every initial property unfiltered.
type ProjectStartedEvent struct {
	ProjectFullPath string
	TargetNames     []string
	Properties      map[string]string
	ConfigID        model.ConfigID
}

// ProjectStartedPacket builds the LogMessage packet for ev, gob-encoding
// the structured payload the way Encode/Decode do for the envelope itself.
func ProjectStartedPacket(nodeID int32, ev *ProjectStartedEvent) (*Packet, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ev); err != nil {
		return nil, fmt.Errorf("encoding ProjectStarted payload: %w", err)
	}
	return &Packet{
		Type:   PacketLogMessage,
		NodeID: nodeID,
		LogMessage: &LogMessagePacket{
			Text:            fmt.Sprintf("Project %q started", ev.ProjectFullPath),
			CustomEventType: ProjectStartedEventType,
			CustomPayload:   buf.Bytes(),
			Importance:      model.ImportanceNormal,
		},
	}, nil
}

// DecodeProjectStarted reverses ProjectStartedPacket's encoding, for a
// consumer that recognizes LogMessagePacket.CustomEventType ==
// ProjectStartedEventType.
func DecodeProjectStarted(p *LogMessagePacket) (*ProjectStartedEvent, error) {
	var ev ProjectStartedEvent
	if err := gob.NewDecoder(bytes.NewReader(p.CustomPayload)).Decode(&ev); err != nil {
		return nil, fmt.Errorf("decoding ProjectStarted payload: %w", err)
	}
	return &ev, nil
}

// Packet is the envelope carried over the node transport: exactly one of
// the typed fields is populated, selected by Type.
type Packet struct {
	Type       PacketType
	Config     *ConfigPacket
	Request    *model.Request
	Result     *model.Result
	Blocker    *model.Blocker
	Unblocker  *model.Unblocker
	LogMessage *LogMessagePacket
	NodeCreate *NodeCreatePacket
	NodeID     int32
}

const wireFormatVersion byte = 1

// Encode serializes p for the out-of-process transport (or for disk, in
// the task-host parameter-marshaling path). Forward-compatible readers
// reject unknown versions (spec.md §6).
func Encode(p *Packet) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(wireFormatVersion)
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encoding %s packet: %w", p.Type, err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a packet produced by Encode.
func Decode(data []byte) (*Packet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty packet payload")
	}
	if data[0] != wireFormatVersion {
		return nil, fmt.Errorf("packet has unknown wire format version %d", data[0])
	}
	var p Packet
	dec := gob.NewDecoder(bytes.NewReader(data[1:]))
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding packet: %w", err)
	}
	return &p, nil
}

// ConfigurationPacket wraps cfg for transmission to a node.
func ConfigurationPacket(nodeID int32, p *ConfigPacket) *Packet {
	return &Packet{Type: PacketConfiguration, NodeID: nodeID, Config: p}
}

// RequestPacket wraps a request for scheduling onto a node.
func RequestPacket(nodeID int32, r *model.Request) *Packet {
	return &Packet{Type: PacketRequest, NodeID: nodeID, Request: r}
}

// ResultPacket wraps a result returning from a node.
func ResultPacket(nodeID int32, r *model.Result) *Packet {
	return &Packet{Type: PacketResult, NodeID: nodeID, Result: r}
}

// BlockerPacket wraps a blocker coming from a node.
func BlockerPacket(nodeID int32, b *model.Blocker) *Packet {
	return &Packet{Type: PacketBlocker, NodeID: nodeID, Blocker: b}
}

// UnblockerPacket wraps an unblocker going to a node.
func UnblockerPacket(nodeID int32, u *model.Unblocker) *Packet {
	return &Packet{Type: PacketUnblocker, NodeID: nodeID, Unblocker: u}
}

// NodeCreatePacketFor wraps a CreateNode instruction.
func NodeCreatePacketFor(affinity model.Affinity, n int) *Packet {
	return &Packet{Type: PacketNodeCreate, NodeCreate: &NodeCreatePacket{Affinity: affinity, NumberOfNodesToCreate: n}}
}

// ShutdownPacket tells a node to terminate.
func ShutdownPacket(nodeID int32) *Packet {
	return &Packet{Type: PacketShutdown, NodeID: nodeID}
}
