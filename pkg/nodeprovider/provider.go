package nodeprovider

import (
	"context"
	"fmt"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/buildforge/manager/pkg/model"
	"github.com/buildforge/manager/pkg/nodeexec"
	"github.com/buildforge/manager/pkg/nodeprotocol"
	"github.com/buildforge/manager/pkg/scheduler"
)

// Node is the provider-agnostic handle the scheduler and BuildManager use
// to talk to a live worker, regardless of whether it runs in-process or
// as a separate OS process.
type Node interface {
	ID() int32
	Affinity() model.Affinity
	Transport() nodeprotocol.Transport
	Shutdown(ctx context.Context) error
}

var nextNodeID int32

func allocateNodeID() int32 {
	return atomic.AddInt32(&nextNodeID, 1)
}

// InProcNode runs a Sequencer directly on the host's goroutines — the
// "at most one InProc node per session" worker (spec.md §4.2/§4.5).
type InProcNode struct {
	id        int32
	transport *nodeprotocol.ChannelTransport
	seq       *nodeexec.Sequencer
	sched     *scheduler.Scheduler
	cancel    context.CancelFunc
}

// InProcProvider creates and runs the single in-process node.
type InProcProvider struct {
	executors []nodeexec.TargetExecutor
	sched     *scheduler.Scheduler
}

// NewInProcProvider builds a provider that runs targets via the given
// executors directly on host goroutines. sched is consulted for
// skip-unsuccessful replay (spec.md §4.2/§8 scenario 4): a target that
// already failed for this configuration is reported as a skipped failure
// instead of being re-executed.
func NewInProcProvider(executors []nodeexec.TargetExecutor, sched *scheduler.Scheduler) *InProcProvider {
	return &InProcProvider{executors: executors, sched: sched}
}

// Spawn starts the in-process node's packet-processing loop and returns
// its handle. coop is the cooperation surface (core-rationing, yield)
// handed to every executed target.
func (p *InProcProvider) Spawn(ctx context.Context, coop nodeexec.Cooperation) *InProcNode {
	nodeCtx, cancel := context.WithCancel(ctx)
	n := &InProcNode{
		id:        allocateNodeID(),
		transport: nodeprotocol.NewChannelTransport(8),
		seq:       nodeexec.NewSequencer(p.executors),
		sched:     p.sched,
		cancel:    cancel,
	}

	go n.run(nodeCtx, coop)
	return n
}

func (n *InProcNode) run(ctx context.Context, coop nodeexec.Cooperation) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-n.transport.Outbound():
			if !ok {
				return
			}
			n.handle(ctx, pkt, coop)
		}
	}
}

func (n *InProcNode) handle(ctx context.Context, pkt *nodeprotocol.Packet, coop nodeexec.Cooperation) {
	switch pkt.Type {
	case nodeprotocol.PacketRequest:
		req := pkt.Request
		cfg := &model.Configuration{ID: req.ConfigID}

		// InProc nodes ignore the property-forwarding allowlist entirely
		// (spec.md §4.4): every initial property is reported unfiltered.
		started, err := nodeprotocol.ProjectStartedPacket(n.id, &nodeprotocol.ProjectStartedEvent{
			ConfigID:    cfg.ID,
			TargetNames: req.Targets,
			Properties:  req.InitialProperties,
		})
		if err == nil {
			_ = n.transport.Emit(started)
		}

		result, err := n.seq.Run(ctx, cfg, req.Targets, coop, n.skipUnsuccessful(cfg.ID))
		var needs *nodeexec.NeedsChildren
		if err != nil && asNeedsChildren(err, &needs) {
			_ = n.transport.Emit(nodeprotocol.BlockerPacket(n.id, &model.Blocker{
				BlockedRequest: req.NodeRequest,
				Children:       needs.Children,
			}))
			return
		}
		if result != nil {
			result.NodeRequest = req.NodeRequest
		}
		_ = n.transport.Emit(nodeprotocol.ResultPacket(n.id, result))
	case nodeprotocol.PacketShutdown:
		n.cancel()
	}
}

// skipUnsuccessful returns the Sequencer.Run "skipped" callback that
// consults the scheduler's results cache for skip-unsuccessful replay
// (spec.md §4.2): a target already recorded as a (non-skipped) failure
// for this configuration is reported as a skipped failure instead of
// re-executing, reproducing §8 scenario 4's TargetAlreadyCompleteFailure.
// n.sched is nil only in tests that exercise the Sequencer directly
// without a scheduler attached.
func (n *InProcNode) skipUnsuccessful(id model.ConfigID) func(string) (bool, bool) {
	return func(target string) (skip bool, wasFailure bool) {
		if n.sched == nil {
			return false, false
		}
		failed := n.sched.HasFailedTarget(id, target)
		return failed, failed
	}
}

func asNeedsChildren(err error, target **nodeexec.NeedsChildren) bool {
	nc, ok := err.(*nodeexec.NeedsChildren)
	if ok {
		*target = nc
	}
	return ok
}

func (n *InProcNode) ID() int32                            { return n.id }
func (n *InProcNode) Affinity() model.Affinity              { return model.AffinityInProc }
func (n *InProcNode) Transport() nodeprotocol.Transport      { return n.transport }
func (n *InProcNode) Shutdown(ctx context.Context) error {
	n.cancel()
	return n.transport.Close()
}

// OutOfProcNode wraps a separately spawned worker process reached over
// go-plugin's NetRPC transport (spec.md §4.5).
type OutOfProcNode struct {
	id        int32
	affinity  model.Affinity
	client    *plugin.Client
	rpc       NodeRPC
	transport *nodeprotocol.ChannelTransport
	cancel    context.CancelFunc
}

// OutOfProcProvider spawns worker processes, one per node, using the
// host command line the embedder supplies (typically the same binary
// re-invoked in "node" mode).
type OutOfProcProvider struct {
	Command func() *exec.Cmd
	Logger  hclog.Logger
}

// NewOutOfProcProvider builds a provider that spawns nodeCmd() as a new
// process per node, grounded on cmd/engine.go's plugin.NewClient setup.
func NewOutOfProcProvider(nodeCmd func() *exec.Cmd, logger hclog.Logger) *OutOfProcProvider {
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{Level: hclog.Error})
	}
	return &OutOfProcProvider{Command: nodeCmd, Logger: logger}
}

// Spawn launches one node process and returns its handle once the
// handshake completes and the "node" plugin has been dispensed. timeout
// bounds the handshake wait per spec.md §6's MSBUILDNODECONNECTIONTIMEOUT
// contract: zero means "no wait" and deterministically fails with an
// InternalError rather than racing a real connection attempt, and the
// session must never hang regardless of what value is configured
// (spec.md §8's boundary-behavior test).
func (p *OutOfProcProvider) Spawn(ctx context.Context, timeout time.Duration) (*OutOfProcNode, error) {
	if timeout == 0 {
		return nil, model.NewInternalError("node connection timeout is 0: refusing to wait for a node process")
	}

	connectCtx := ctx
	var cancelConnect context.CancelFunc
	if timeout > 0 {
		connectCtx, cancelConnect = context.WithTimeout(ctx, timeout)
		defer cancelConnect()
	}

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins:         PluginMap,
		Cmd:             p.Command(),
		AllowedProtocols: []plugin.Protocol{
			plugin.ProtocolNetRPC,
		},
		Logger: p.Logger,
	})

	type connectResult struct {
		rpc plugin.ClientProtocol
		err error
	}
	connected := make(chan connectResult, 1)
	go func() {
		rpcClient, err := client.Client()
		connected <- connectResult{rpc: rpcClient, err: err}
	}()

	var rpcClient plugin.ClientProtocol
	select {
	case res := <-connected:
		if res.err != nil {
			client.Kill()
			return nil, fmt.Errorf("connecting to node process: %w", res.err)
		}
		rpcClient = res.rpc
	case <-connectCtx.Done():
		client.Kill()
		return nil, model.NewInternalError("timed out connecting to node process after %s: %w", timeout, connectCtx.Err())
	}

	raw, err := rpcClient.Dispense("node")
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("dispensing node plugin: %w", err)
	}

	nodeRPC, ok := raw.(NodeRPC)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("node process did not implement NodeRPC")
	}

	nodeCtx, cancel := context.WithCancel(ctx)
	n := &OutOfProcNode{
		id:        allocateNodeID(),
		affinity:  model.AffinityOutOfProc,
		client:    client,
		rpc:       nodeRPC,
		transport: nodeprotocol.NewChannelTransport(8),
		cancel:    cancel,
	}
	go n.pump(nodeCtx)
	return n, nil
}

// pump forwards packets queued on the host-side transport to the node
// process and polls for outbound packets it has produced. Polling (rather
// than a push callback) keeps the NetRPC surface to simple unary calls,
// at the cost of added latency the session's node-count policy already
// tolerates (spec.md §4.2 favors throughput over per-packet latency).
func (n *OutOfProcNode) pump(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-n.transport.Outbound():
			if !ok {
				return
			}
			_ = n.rpc.Deliver(pkt)
		case <-ticker.C:
			pkt, err := n.rpc.Drain()
			if err == nil && pkt != nil {
				_ = n.transport.Emit(pkt)
			}
		}
	}
}

func (n *OutOfProcNode) ID() int32                       { return n.id }
func (n *OutOfProcNode) Affinity() model.Affinity         { return n.affinity }
func (n *OutOfProcNode) Transport() nodeprotocol.Transport { return n.transport }

func (n *OutOfProcNode) Shutdown(ctx context.Context) error {
	n.cancel()
	_ = n.rpc.Shutdown()
	n.client.Kill()
	return n.transport.Close()
}
