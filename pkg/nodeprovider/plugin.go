// Package nodeprovider spawns and manages worker nodes: the in-process
// node sharing the host's goroutines, out-of-process nodes running as
// separate OS processes, and task-host sub-processes used for individual
// task invocations (spec.md §4.5).
//
// The out-of-process transport is grounded on the teacher's cmd/engine.go
// plugin-client setup (HandshakeConfig, plugin.NewClient, AllowedProtocols
// including NetRPC, rpcClient.Dispense) and protos2/interface.go's
// handshake/plugin-map shape, re-themed around a node-execution RPC
// interface instead of container build-argument retrieval.
package nodeprovider

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"

	"github.com/buildforge/manager/pkg/nodeprotocol"
)

// Handshake is the magic-cookie handshake shared by the host and every
// out-of-process node, the same mechanism as protos2.Handshake.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "BUILDFORGE_NODE",
	MagicCookieValue: "buildforge-node-v1",
}

// PluginMap dispenses the single "node" plugin every out-of-process
// worker serves, mirroring protos2.PluginMap's shape without the
// container-build-specific payload.
var PluginMap = map[string]plugin.Plugin{
	"node": &NodeRPCPlugin{},
}

// NodeRPC is the net/rpc surface an out-of-process node exposes to the
// host: submit a packet, drain the next outbound packet, and shut down.
// go-plugin's NetRPC transport (not GRPC — see DESIGN.md) carries this
// interface across the process boundary.
type NodeRPC interface {
	Deliver(p *nodeprotocol.Packet) error
	Drain() (*nodeprotocol.Packet, error)
	Shutdown() error
}

// NodeRPCPlugin implements plugin.Plugin for the NetRPC protocol,
// analogous to protos2.ContainifyCIv1GRPCPlugin but over net/rpc since
// the node protocol (spec.md §4.4) is host-initiated request/response,
// not a streaming service.
type NodeRPCPlugin struct {
	Impl NodeRPC
}

func (p *NodeRPCPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &nodeRPCServer{impl: p.Impl}, nil
}

func (p *NodeRPCPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &nodeRPCClient{client: c}, nil
}

type nodeRPCServer struct {
	impl NodeRPC
}

func (s *nodeRPCServer) Deliver(p *nodeprotocol.Packet, _ *struct{}) error {
	return s.impl.Deliver(p)
}

func (s *nodeRPCServer) Drain(_ struct{}, resp *nodeprotocol.Packet) error {
	p, err := s.impl.Drain()
	if err != nil {
		return err
	}
	if p != nil {
		*resp = *p
	}
	return nil
}

func (s *nodeRPCServer) Shutdown(struct{}, *struct{}) error {
	return s.impl.Shutdown()
}

// nodeRPCClient is the host-side stub used after Dispense("node").
type nodeRPCClient struct {
	client *rpc.Client
}

func (c *nodeRPCClient) Deliver(p *nodeprotocol.Packet) error {
	return c.client.Call("Plugin.Deliver", p, &struct{}{})
}

func (c *nodeRPCClient) Drain() (*nodeprotocol.Packet, error) {
	var resp nodeprotocol.Packet
	if err := c.client.Call("Plugin.Drain", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *nodeRPCClient) Shutdown() error {
	return c.client.Call("Plugin.Shutdown", struct{}{}, &struct{}{})
}
