// Package buildmanager implements the session-level orchestration
// described in spec.md §4.1: the Idle/Building state machine, submission
// lifecycle, cache reset semantics, and node shutdown — the facade an
// embedder drives instead of talking to the scheduler and caches
// directly.
//
// Adapted from the teacher's cmd/build.go entry point and
// pkg/build/build.go's BuildSteps sequencing loop (state tracked on a
// struct, slog for every lifecycle transition, sync.Mutex-guarded
// mutation) re-themed around submissions/configurations instead of
// container build steps.
package buildmanager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/buildforge/manager/pkg/configcache"
	"github.com/buildforge/manager/pkg/corelease"
	"github.com/buildforge/manager/pkg/model"
	"github.com/buildforge/manager/pkg/nodeprovider"
	"github.com/buildforge/manager/pkg/resultscache"
	"github.com/buildforge/manager/pkg/scheduler"
)

// State is the BuildManager's lifecycle state (spec.md §4.1).
type State int

const (
	StateUninitialized State = iota
	StateIdle
	StateBuilding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateBuilding:
		return "Building"
	default:
		return "Uninitialized"
	}
}

// Submission tracks one externally requested build unit end to end
// (spec.md §4.1): PendBuildRequest returns one immediately, and its
// result arrives on Done once every target completes.
type Submission struct {
	ID   model.SubmissionID
	Done chan *model.Result

	// resolveOnce guards against a submission being resolved twice (e.g.
	// a real result arriving after CancelAllSubmissions already settled
	// it): only the first resolution is delivered and counted against
	// Manager.subWG.
	resolveOnce sync.Once
}

// DeferredSink receives BeginBuild's deferred (text, importance) messages
// for replay once the first project actually starts (spec.md §4.1).
type DeferredSink interface {
	Emit(model.DeferredMessage)
}

// Manager is the session-wide BuildManager (spec.md §4.1/§4.2/§4.3).
type Manager struct {
	mu    sync.Mutex
	state State

	params *model.Parameters
	configs *configcache.Cache
	results *resultscache.Cache
	sched   *scheduler.Scheduler
	cores   *corelease.Ledger

	deferredMessages []model.DeferredMessage

	nextSubmission  int32
	submissions     map[model.SubmissionID]*Submission
	nextNodeRequest int32
	// submissionByRequest routes a node's completed result (identified
	// only by NodeRequestID on the wire) back to the Submission that is
	// awaiting it.
	submissionByRequest map[model.NodeRequestID]*Submission

	// subWG tracks every submission PendBuildRequest has accepted but not
	// yet resolved. EndBuild blocks on it so it only transitions to Idle
	// once every pended submission has completed or been canceled
	// (spec.md §4.1), instead of abandoning still-in-flight Awaiters.
	subWG sync.WaitGroup
	// ending is set under mu for the duration of EndBuild's wait so new
	// submissions are rejected instead of racing subWG.Add against
	// subWG.Wait.
	ending bool
}

// New creates a Manager in the Uninitialized state, ready for BeginBuild.
// disk may be nil when disk caching is disabled; override may be nil when
// no external results cache is configured.
func New(disk *configcache.DiskStore, override resultscache.OverrideCache) *Manager {
	return &Manager{
		state:               StateUninitialized,
		configs:              configcache.New(disk),
		results:              resultscache.New(override),
		submissions:          make(map[model.SubmissionID]*Submission),
		submissionByRequest:  make(map[model.NodeRequestID]*Submission),
	}
}

// BeginBuild transitions Uninitialized/Idle → Building, snapshotting
// params for the duration of the build and optionally resetting caches
// (spec.md §4.1). Calling BeginBuild while already Building is rejected
// with an InvalidOperation error and leaves the running build untouched.
func (m *Manager) BeginBuild(params *model.Parameters, deferred []model.DeferredMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateBuilding {
		return model.NewInvalidOperation("BeginBuild called while a build is already in progress")
	}
	if params == nil {
		params = model.DefaultParameters()
	}
	m.params = params
	m.deferredMessages = append([]model.DeferredMessage(nil), deferred...)

	if params.ResetCaches {
		if err := m.resetCachesLocked(); err != nil {
			return err
		}
	}

	cores := params.MaxNodeCount
	m.cores = corelease.NewLedger(cores)
	m.sched = scheduler.New(params.MaxNodeCount, m.results)

	m.state = StateBuilding
	slog.Info("build started", "maxNodeCount", params.MaxNodeCount, "resetCaches", params.ResetCaches)
	return nil
}

// PendBuildRequest registers a new externally requested submission and
// kicks off scheduling without blocking for completion (spec.md §4.1's
// asynchronous submission path).
func (m *Manager) PendBuildRequest(data *model.RequestData) (*Submission, error) {
	m.mu.Lock()
	if m.state != StateBuilding || m.ending {
		m.mu.Unlock()
		return nil, model.NewInvalidOperation("PendBuildRequest called outside an active build")
	}
	subID := model.SubmissionID(atomic.AddInt32(&m.nextSubmission, 1))
	sub := &Submission{ID: subID, Done: make(chan *model.Result, 1)}
	m.submissions[subID] = sub
	// Counted while m.ending's check above and EndBuild's own flip to
	// true are serialized by mu, so this Add can never race a concurrent
	// subWG.Wait (see EndBuild).
	m.subWG.Add(1)
	affinity := model.AffinityAny
	if data.HostServices != nil {
		affinity = data.HostServices.AffinityHint
	}
	cfg := model.NewConfiguration(data.ProjectFullPath, data.ToolsVersion, data.GlobalProperties, affinity)
	sched := m.sched
	configs := m.configs
	forceOOP := m.params.ForceAllTasksOutOfProc
	m.mu.Unlock()

	assigned, err := configs.GetOrAssign(cfg)
	if err != nil {
		m.resolveSubmission(sub, &model.Result{OverallResult: model.ResultFailure, ExceptionMessage: err.Error()})
		return nil, fmt.Errorf("assigning configuration for submission %d: %w", subID, err)
	}

	req := &model.Request{
		Targets:           data.Targets,
		HostServices:      data.HostServices,
		SubmissionID:      subID,
		NodeRequest:       model.NodeRequestID(atomic.AddInt32(&m.nextNodeRequest, 1)),
		ConfigID:          assigned.ID,
		InitialProperties: assigned.GlobalProperties,
	}

	m.mu.Lock()
	m.submissionByRequest[req.NodeRequest] = sub
	m.mu.Unlock()

	responses, err := sched.Submit(req, assigned.RequestedAffinity, forceOOP, false, req.IsProxy())
	if err != nil {
		m.resolveSubmission(sub, &model.Result{OverallResult: model.ResultFailure, ExceptionMessage: err.Error()})
		return nil, fmt.Errorf("submitting request for submission %d: %w", subID, err)
	}
	m.deliver(responses)
	return sub, nil
}

// deliver resolves any ReportResults response against the submission its
// ParentRequest (a NodeRequestID) was registered under, whether the
// response arrived synchronously from Submit's result-cache fast path or
// later from ReportNodeResult.
func (m *Manager) deliver(responses []model.ScheduleResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range responses {
		if r.Kind != model.ReportResults || r.Result == nil {
			continue
		}
		sub, ok := m.submissionByRequest[r.ParentRequest]
		if !ok {
			continue
		}
		delete(m.submissionByRequest, r.ParentRequest)
		m.resolveSubmission(sub, r.Result)
	}
}

// resolveSubmission delivers result to sub exactly once (a submission
// already resolved, e.g. by CancelAllSubmissions, silently keeps its
// first outcome) and releases the EndBuild wait-group slot PendBuildRequest
// acquired for it, per spec.md §4.1's "EndBuild blocks until every pended
// submission has either completed or been canceled."
func (m *Manager) resolveSubmission(sub *Submission, result *model.Result) {
	sub.resolveOnce.Do(func() {
		sub.Done <- result
		m.subWG.Done()
	})
}

// BuildRequest submits data and blocks until its result is available or
// ctx is canceled — the synchronous convenience path spec.md §4.1
// describes alongside the asynchronous Pend/await split.
func (m *Manager) BuildRequest(ctx context.Context, data *model.RequestData) (*model.Result, error) {
	sub, err := m.PendBuildRequest(data)
	if err != nil {
		return nil, err
	}
	return m.Await(ctx, sub)
}

// Build is an alias for BuildRequest kept for parity with spec.md §4.1's
// naming of the top-level synchronous entry point.
func (m *Manager) Build(ctx context.Context, data *model.RequestData) (*model.Result, error) {
	return m.BuildRequest(ctx, data)
}

// Await blocks until sub completes or ctx is canceled.
func (m *Manager) Await(ctx context.Context, sub *Submission) (*model.Result, error) {
	select {
	case result := <-sub.Done:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReportNodeResult feeds a completed BuildResult from a node back into the
// scheduler and completes every submission it satisfies. Transports
// (pkg/nodeprovider) call this as packets arrive on a node's Inbound
// channel.
func (m *Manager) ReportNodeResult(nodeID int32, result *model.Result) {
	m.mu.Lock()
	sched := m.sched
	m.mu.Unlock()
	if sched == nil {
		return
	}
	responses := sched.ReportResult(nodeID, result)
	m.deliver(responses)
}

// CancelAllSubmissions fails every outstanding submission with a
// Cancellation result, per spec.md §4.1's cancellation contract. A
// submission whose real result arrives concurrently (or already arrived)
// keeps that outcome: resolveSubmission only ever delivers once.
func (m *Manager) CancelAllSubmissions() {
	m.mu.Lock()
	subs := make([]*Submission, 0, len(m.submissions))
	for _, sub := range m.submissions {
		subs = append(subs, sub)
	}
	m.submissionByRequest = make(map[model.NodeRequestID]*Submission)
	m.mu.Unlock()

	for _, sub := range subs {
		result := &model.Result{OverallResult: model.ResultFailure, ExceptionMessage: "cancelled"}
		m.resolveSubmission(sub, result)
	}
	slog.Info("cancelled all outstanding submissions", "count", len(subs))
}

// EndBuild transitions Building → Idle. It blocks until every submission
// PendBuildRequest accepted has either completed or been canceled
// (spec.md §4.1) — EndBuild itself does not implicitly cancel outstanding
// submissions; a caller with still in-flight work must call
// CancelAllSubmissions first or EndBuild will keep waiting.
func (m *Manager) EndBuild() error {
	m.mu.Lock()
	if m.state != StateBuilding || m.ending {
		m.mu.Unlock()
		return model.NewInvalidOperation("EndBuild called while not Building")
	}
	// Set under the same lock PendBuildRequest checks, so no submission
	// can be accepted (and Add'ed to subWG) after this point without also
	// observing m.ending and being rejected — subWG.Wait below therefore
	// sees a final count.
	m.ending = true
	m.mu.Unlock()

	m.subWG.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions = make(map[model.SubmissionID]*Submission)
	m.submissionByRequest = make(map[model.NodeRequestID]*Submission)
	m.state = StateIdle
	m.ending = false
	slog.Info("build ended")
	return nil
}

// ResetCaches discards every cached configuration and result, permitted
// only between builds (spec.md §4.1/§4.3).
func (m *Manager) ResetCaches() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateBuilding {
		return model.NewInvalidOperation("ResetCaches called while Building")
	}
	return m.resetCachesLocked()
}

func (m *Manager) resetCachesLocked() error {
	if err := m.configs.Reset(); err != nil {
		return fmt.Errorf("resetting config cache: %w", err)
	}
	m.results.Reset()
	return nil
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Cores exposes the session's core-rationing ledger to node providers.
func (m *Manager) Cores() *corelease.Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cores
}

// Scheduler exposes the session's scheduler to node providers wiring up
// transports.
func (m *Manager) Scheduler() *scheduler.Scheduler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sched
}

// Results exposes the session's results cache, e.g. for a caller priming
// it ahead of a submission or inspecting it for diagnostics.
func (m *Manager) Results() *resultscache.Cache {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results
}

// Configs exposes the session's configuration cache.
func (m *Manager) Configs() *configcache.Cache {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configs
}

// FlushDeferredMessages delivers BeginBuild's deferred (text, importance)
// messages to sink in their original order, then clears them so a second
// call is a no-op (spec.md §4.1: "Order is preserved", delivered once,
// after build-started and before any project-started event — the caller
// is expected to invoke this immediately after emitting build-started and
// before starting the first project).
func (m *Manager) FlushDeferredMessages(sink DeferredSink) {
	m.mu.Lock()
	pending := m.deferredMessages
	m.deferredMessages = nil
	m.mu.Unlock()

	for _, msg := range pending {
		sink.Emit(msg)
	}
}

// GetProjectInstanceForBuild returns the authoritative Configuration
// behind a project path if one has already been assigned, letting a
// caller inspect or reuse it without submitting a new request (spec.md
// §4.1's in-memory-ProjectInstance lookup path).
func (m *Manager) GetProjectInstanceForBuild(projectFullPath, toolsVersion string, globalProperties map[string]string) (*model.Configuration, bool) {
	probe := model.NewConfiguration(projectFullPath, toolsVersion, globalProperties, model.AffinityAny)
	m.mu.Lock()
	configs := m.configs
	m.mu.Unlock()

	assigned, err := configs.GetOrAssign(probe)
	if err != nil {
		return nil, false
	}
	return assigned, true
}

// ShutdownAllNodes tears down every live node, used when the process is
// exiting or the embedder requests an explicit shutdown rather than
// relying on node-reuse idle timeouts (spec.md §4.5).
func (m *Manager) ShutdownAllNodes(ctx context.Context, nodes []nodeprovider.Node) error {
	var firstErr error
	for _, n := range nodes {
		if err := n.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shutting down node %d: %w", n.ID(), err)
		}
	}
	slog.Info("shut down all nodes", "count", len(nodes))
	return firstErr
}
