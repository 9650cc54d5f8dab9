// Package scheduler assigns build requests to worker nodes, honoring
// affinity, the maximum node count, the results-cache fast path,
// skip-unsuccessful replay, and co-submission collapse (spec.md §4.2).
//
// Adapted from the teacher's pkg/container/worker_pool.go (Job/JobResult
// dispatch shape, metrics accounting) re-themed around
// BuildRequestBlocker/BuildResult, with node-count policy replacing the
// worker pool's fixed-size model. Co-submission collapse itself is a
// hand-rolled followers list (every request for an identical pending key
// rides the leader's result); golang.org/x/sync/singleflight backs the
// config cache's concurrent-identical-lookup guard instead — see
// pkg/configcache and DESIGN.md.
package scheduler

import (
	"fmt"
	"sync"

	"github.com/buildforge/manager/pkg/model"
	"github.com/buildforge/manager/pkg/resultscache"
)

// NodeInfo is the scheduler's view of a live node, registered via
// ReportNodesCreated.
type NodeInfo struct {
	Affinity model.Affinity
	ID       int32
	Busy     bool
	// StickyConfig is set once a configuration has been scheduled to this
	// node; further requests for the same configuration must serialize on
	// it rather than trigger creation of another node (spec.md §4.2 rule 5).
	StickyConfig model.ConfigID
}

// pendingRequest tracks a request the scheduler has accepted but not yet
// resolved (scheduled to a node, served from cache, or collapsed into a
// follower of another pending request).
type pendingRequest struct {
	request    *model.Request
	followers  []*model.Request
}

// blockEdge records a "blocked on target" edge for cycle detection
// (spec.md §4.2 "Blocked-on-target semantics").
type blockEdge struct {
	from, to model.NodeRequestID
	target   string
}

// Scheduler is the session-global dispatch loop described in spec.md
// §4.2. All mutation is serialized through mu, matching spec.md §5's
// "Config and Results caches are session-global mutable state; all
// mutation is serialized through the scheduler's event loop."
type Scheduler struct {
	mu sync.Mutex

	results    *resultscache.Cache
	maxNodes   int
	nodes      map[int32]*NodeInfo
	pending    map[model.NodeRequestID]*pendingRequest
	byConfig   map[model.ConfigID][]model.NodeRequestID // requests currently sticky to a configuration
	blockEdges []blockEdge

	nextNodeID int32

	metrics Metrics
}

// New creates a scheduler bounded at maxNodeCount concurrently live nodes
// (spec.md §4.2), consulting results for the result-cache fast path.
func New(maxNodeCount int, results *resultscache.Cache) *Scheduler {
	if maxNodeCount <= 0 {
		maxNodeCount = 1
	}
	return &Scheduler{
		maxNodes: maxNodeCount,
		nodes:    make(map[int32]*NodeInfo),
		pending:  make(map[model.NodeRequestID]*pendingRequest),
		byConfig: make(map[model.ConfigID][]model.NodeRequestID),
		results:  results,
		metrics:  Metrics{DispatchedByAffinity: make(map[model.Affinity]int)},
	}
}

// ReportNodesCreated registers nodes a provider has finished spawning, so
// future node-count policy decisions see them as live.
func (s *Scheduler) ReportNodesCreated(ids []int32, affinity model.Affinity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.nodes[id] = &NodeInfo{ID: id, Affinity: affinity}
	}
}

// Submit accepts a new request (or co-submission follower) and returns
// the ScheduleResponses to act on — possibly none, if the request
// collapsed into an existing follower chain awaiting the leader's result.
func (s *Scheduler) Submit(req *model.Request, configAffinity model.Affinity, forceOOP, isTraversal, isProxy bool) ([]model.ScheduleResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Result-cache fast path (spec.md §4.2): a complete cached result
	// short-circuits scheduling entirely.
	if result, ok := s.results.IsComplete(req.ConfigID, req.Targets); ok {
		s.metrics.CacheHits++
		return []model.ScheduleResponse{
			{Kind: model.ReportResults, Result: result, ParentRequest: req.NodeRequest},
			{Kind: model.ResumeExecution, ParentRequest: req.NodeRequest},
		}, nil
	}

	// Co-submission collapse (spec.md §4.2): an identical pending request
	// (same key) becomes the leader; this one becomes a follower.
	key := req.Key()
	for _, pr := range s.pending {
		if pr.request.Key() == key && pr.request.NodeRequest != req.NodeRequest {
			pr.followers = append(pr.followers, req)
			s.metrics.Collapsed++
			return nil, nil
		}
	}

	s.pending[req.NodeRequest] = &pendingRequest{request: req}
	s.byConfig[req.ConfigID] = append(s.byConfig[req.ConfigID], req.NodeRequest)
	s.annotateAlreadyFailed(req)

	effectiveAffinity := model.Resolve(requestAffinity(req), configAffinity, forceOOP)
	if isTraversal || isProxy {
		effectiveAffinity = model.AffinityInProc
	}

	return s.dispatch(req, effectiveAffinity)
}

func requestAffinity(req *model.Request) model.Affinity {
	if req.HostServices != nil {
		return req.HostServices.AffinityHint
	}
	return model.AffinityAny
}

// dispatch applies the node-count policy (spec.md §4.2 rules 1-5) and
// returns the responses the transport should act on.
func (s *Scheduler) dispatch(req *model.Request, affinity model.Affinity) ([]model.ScheduleResponse, error) {
	// Rule 5: requests for a configuration already sticky to a node must
	// serialize on that node rather than trigger node creation.
	for _, n := range s.nodes {
		if n.StickyConfig == req.ConfigID {
			s.metrics.DispatchedByAffinity[n.Affinity]++
			return []model.ScheduleResponse{{Kind: model.ScheduleWithConfiguration, NodeID: n.ID, Request: req}}, nil
		}
	}

	switch affinity {
	case model.AffinityInProc:
		return s.dispatchInProc(req)
	case model.AffinityOutOfProc:
		return s.dispatchOutOfProc(req)
	default: // AffinityAny
		if n := s.idleInProcNode(); n != nil {
			n.StickyConfig = req.ConfigID
			s.metrics.DispatchedByAffinity[model.AffinityInProc]++
			return []model.ScheduleResponse{{Kind: model.ScheduleWithConfiguration, NodeID: n.ID, Request: req}}, nil
		}
		return s.dispatchOutOfProc(req)
	}
}

func (s *Scheduler) dispatchInProc(req *model.Request) ([]model.ScheduleResponse, error) {
	if n := s.idleInProcNode(); n != nil {
		n.StickyConfig = req.ConfigID
		s.metrics.DispatchedByAffinity[model.AffinityInProc]++
		return []model.ScheduleResponse{{Kind: model.ScheduleWithConfiguration, NodeID: n.ID, Request: req}}, nil
	}
	if s.countInProc() > 0 {
		return nil, fmt.Errorf("at most one InProc node may exist per session")
	}
	return []model.ScheduleResponse{{Kind: model.CreateNode, NodesToCreate: 1, NodeAffinity: model.AffinityInProc}}, nil
}

func (s *Scheduler) dispatchOutOfProc(req *model.Request) ([]model.ScheduleResponse, error) {
	for _, n := range s.nodes {
		if n.Affinity == model.AffinityOutOfProc && !n.Busy {
			n.Busy = true
			n.StickyConfig = req.ConfigID
			s.metrics.DispatchedByAffinity[model.AffinityOutOfProc]++
			return []model.ScheduleResponse{{Kind: model.ScheduleWithConfiguration, NodeID: n.ID, Request: req}}, nil
		}
	}

	total := len(s.nodes)
	if total >= s.maxNodes {
		return nil, fmt.Errorf("cannot create OutOfProc node: session is at MaxNodeCount=%d", s.maxNodes)
	}

	pendingOOP := s.countPendingOOPRequests()
	toCreate := min(pendingOOP, s.maxNodes-total)
	if toCreate < 1 {
		toCreate = 1
	}
	return []model.ScheduleResponse{{Kind: model.CreateNode, NodesToCreate: toCreate, NodeAffinity: model.AffinityOutOfProc}}, nil
}

func (s *Scheduler) idleInProcNode() *NodeInfo {
	for _, n := range s.nodes {
		if n.Affinity == model.AffinityInProc && !n.Busy {
			return n
		}
	}
	return nil
}

func (s *Scheduler) countInProc() int {
	c := 0
	for _, n := range s.nodes {
		if n.Affinity == model.AffinityInProc {
			c++
		}
	}
	return c
}

// countPendingOOPRequests estimates demand for rule 4's "min(pending,
// M-current)" sizing; every pending request, including ones already
// sticky to a node, counts once per distinct configuration, since
// same-config requests never trigger additional node creation (rule 5).
func (s *Scheduler) countPendingOOPRequests() int {
	configs := make(map[model.ConfigID]bool)
	for _, pr := range s.pending {
		configs[pr.request.ConfigID] = true
	}
	n := len(configs)
	if n < 1 {
		n = 1
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// annotateAlreadyFailed stamps req.AlreadyFailedTargets with the subset of
// req.Targets the results cache already records as a failure for
// req.ConfigID, so an out-of-process node — which cannot call back into
// this scheduler — can still apply skip-unsuccessful replay (spec.md
// §4.2/§8 scenario 4) from the request it was handed. Must be called with
// mu held, before the request is dispatched to a node.
func (s *Scheduler) annotateAlreadyFailed(req *model.Request) {
	var failed []string
	for _, target := range req.Targets {
		if s.results.HasFailedTarget(req.ConfigID, target) {
			failed = append(failed, target)
		}
	}
	req.AlreadyFailedTargets = failed
}

// HasFailedTarget exposes the results cache's skip-unsuccessful lookup
// (spec.md §4.2) for node providers deciding whether to re-execute a
// target or synthesize a skipped-failure marker.
func (s *Scheduler) HasFailedTarget(id model.ConfigID, target string) bool {
	return s.results.HasFailedTarget(id, target)
}

// ReportResult processes a completed BuildResult from a node: it frees
// the node, records the result in the results cache, completes every
// follower collapsed onto this request (cloning the result, or scheduling
// them separately if the leader's result lacks their targets' coverage —
// spec.md §4.2), and returns the responses to deliver upward.
func (s *Scheduler) ReportResult(nodeID int32, result *model.Result) []model.ScheduleResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.nodes[nodeID]; ok {
		n.Busy = false
	}

	s.results.Add(result)

	pr, ok := s.pending[result.NodeRequest]
	if !ok {
		return []model.ScheduleResponse{{Kind: model.ReportResults, Result: result, ParentRequest: result.NodeRequest}}
	}
	delete(s.pending, result.NodeRequest)

	responses := []model.ScheduleResponse{
		{Kind: model.ReportResults, Result: result, ParentRequest: result.NodeRequest},
		{Kind: model.ResumeExecution, ParentRequest: result.NodeRequest},
	}

	for _, follower := range pr.followers {
		if result.IsComplete(follower.Targets) {
			clone := result.Clone()
			clone.NodeRequest = follower.NodeRequest
			responses = append(responses,
				model.ScheduleResponse{Kind: model.ReportResults, Result: clone, ParentRequest: follower.NodeRequest},
				model.ScheduleResponse{Kind: model.ResumeExecution, ParentRequest: follower.NodeRequest},
			)
			continue
		}
		// The leader's result does not cover every follower target
		// (e.g. it failed before reaching them): schedule the follower
		// normally instead of dropping it (spec.md §4.2).
		s.annotateAlreadyFailed(follower)
		more, err := s.dispatch(follower, requestAffinity(follower))
		if err == nil {
			responses = append(responses, more...)
		}
	}
	return responses
}

// ReportBlocker processes a worker's BuildRequestBlocker (spec.md §4.2):
// child requests get scheduled (recursively through Submit-equivalent
// logic is the caller's job, since children need fresh configuration
// resolution), and "blocked on target" edges are recorded for cycle
// detection.
func (s *Scheduler) ReportBlocker(b *model.Blocker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !b.IsBlockedOnTarget() {
		return nil
	}
	edge := blockEdge{from: b.BlockedRequest, to: b.BlockingRequest, target: b.BlockingTarget}
	s.blockEdges = append(s.blockEdges, edge)
	if s.hasCycleLocked() {
		return fmt.Errorf("CircularDependency: %d waits on %d reaching %q, which cycles back", b.BlockedRequest, b.BlockingRequest, b.BlockingTarget)
	}
	return nil
}

// hasCycleLocked runs a DFS over the blocked-on-target edges looking for a
// cycle; must be called with mu held.
func (s *Scheduler) hasCycleLocked() bool {
	adj := make(map[model.NodeRequestID][]model.NodeRequestID)
	for _, e := range s.blockEdges {
		adj[e.from] = append(adj[e.from], e.to)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[model.NodeRequestID]int)

	var visit func(model.NodeRequestID) bool
	visit = func(n model.NodeRequestID) bool {
		color[n] = gray
		for _, next := range adj[n] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}

	for n := range adj {
		if color[n] == white {
			if visit(n) {
				return true
			}
		}
	}
	return false
}
