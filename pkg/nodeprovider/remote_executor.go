package nodeprovider

import (
	"context"
	"sync"

	"github.com/buildforge/manager/pkg/model"
	"github.com/buildforge/manager/pkg/nodeexec"
	"github.com/buildforge/manager/pkg/nodeprotocol"
)

// RemoteExecutor is the NodeRPC.Impl an out-of-process worker binary
// serves (spec.md §4.5): the reference node-side counterpart to
// InProcNode.handle, run through go-plugin's NetRPC transport instead of
// an in-process channel. A worker's main() constructs one around its
// TargetExecutors and hands it to NodeRPCPlugin as Impl.
//
// Because a RemoteExecutor runs in a separate process, it cannot call
// back into the host's Scheduler for skip-unsuccessful replay the way
// InProcNode does; instead it reads model.Request.AlreadyFailedTargets,
// which the scheduler stamps onto every request before dispatch.
//
// It also cannot consult the session's Parameters for the
// property-forwarding allowlist directly, so a worker process is
// configured with its own copy at construction time — the same
// MSBuildForwardPropertiesFromChild/MsBuildForwardAllPropertiesFromChild
// values a real worker binary's main() would read from its own
// environment (buildmanager.FromEnvironment's style) before serving
// NodeRPC (spec.md §4.4).
type RemoteExecutor struct {
	seq  *nodeexec.Sequencer
	coop nodeexec.Cooperation

	forwardAllowlist []string
	forwardAll       bool

	mu     sync.Mutex
	outbox []*nodeprotocol.Packet
	nodeID int32
	cancel context.CancelFunc
	ctx    context.Context
}

// NewRemoteExecutor builds the node-side RPC implementation for a worker
// process running the given executors under coop's core-rationing rules.
// forwardAllowlist/forwardAll mirror
// Parameters.ForwardPropertiesFromChild/ForwardAllPropertiesFromChild and
// govern which initial properties this node reports on its ProjectStarted
// events (spec.md §4.4).
func NewRemoteExecutor(executors []nodeexec.TargetExecutor, coop nodeexec.Cooperation, forwardAllowlist []string, forwardAll bool) *RemoteExecutor {
	ctx, cancel := context.WithCancel(context.Background())
	return &RemoteExecutor{
		seq:              nodeexec.NewSequencer(executors),
		coop:             coop,
		forwardAllowlist: forwardAllowlist,
		forwardAll:       forwardAll,
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Deliver handles one packet from the host, matching InProcNode.handle's
// PacketRequest/PacketShutdown cases but queuing its reply for Drain
// instead of emitting onto a shared channel transport.
func (r *RemoteExecutor) Deliver(p *nodeprotocol.Packet) error {
	switch p.Type {
	case nodeprotocol.PacketRequest:
		r.nodeID = p.NodeID
		req := p.Request
		cfg := &model.Configuration{ID: req.ConfigID}

		// Out-of-process nodes apply the property-forwarding allowlist
		// (spec.md §4.4), unlike InProcNode.handle which never filters.
		filtered := model.FilterForwardedProperties(req.InitialProperties, r.forwardAllowlist, r.forwardAll)
		if started, err := nodeprotocol.ProjectStartedPacket(r.nodeID, &nodeprotocol.ProjectStartedEvent{
			ConfigID:    cfg.ID,
			TargetNames: req.Targets,
			Properties:  filtered,
		}); err == nil {
			r.enqueue(started)
		}

		result, err := r.seq.Run(r.ctx, cfg, req.Targets, r.coop, skipFromRequest(req))

		var needs *nodeexec.NeedsChildren
		if err != nil && asRemoteNeedsChildren(err, &needs) {
			r.enqueue(nodeprotocol.BlockerPacket(r.nodeID, &model.Blocker{
				BlockedRequest: req.NodeRequest,
				Children:       needs.Children,
			}))
			return nil
		}
		if result != nil {
			result.NodeRequest = req.NodeRequest
		}
		r.enqueue(nodeprotocol.ResultPacket(r.nodeID, result))
		return nil
	case nodeprotocol.PacketShutdown:
		r.cancel()
		return nil
	default:
		return nil
	}
}

// Drain returns the next queued outbound packet, or nil if none is ready
// (polled by OutOfProcNode.pump).
func (r *RemoteExecutor) Drain() (*nodeprotocol.Packet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outbox) == 0 {
		return nil, nil
	}
	p := r.outbox[0]
	r.outbox = r.outbox[1:]
	return p, nil
}

// Shutdown cancels any in-flight target execution.
func (r *RemoteExecutor) Shutdown() error {
	r.cancel()
	return nil
}

func (r *RemoteExecutor) enqueue(p *nodeprotocol.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outbox = append(r.outbox, p)
}

// skipFromRequest builds the Sequencer.Run "skipped" callback from the
// already-failed-target list the scheduler stamped onto req, reproducing
// skip-unsuccessful replay (spec.md §4.2/§8 scenario 4) on the
// out-of-process path, where there is no scheduler to call back into.
func skipFromRequest(req *model.Request) func(string) (bool, bool) {
	failed := make(map[string]bool, len(req.AlreadyFailedTargets))
	for _, t := range req.AlreadyFailedTargets {
		failed[t] = true
	}
	return func(target string) (skip bool, wasFailure bool) {
		if failed[target] {
			return true, true
		}
		return false, false
	}
}

func asRemoteNeedsChildren(err error, target **nodeexec.NeedsChildren) bool {
	nc, ok := err.(*nodeexec.NeedsChildren)
	if ok {
		*target = nc
	}
	return ok
}
