package model

// Blocker is a worker→scheduler packet indicating a request cannot
// continue (BuildRequestBlocker in spec.md §3/§4.4): either it depends on
// yet-unbuilt child requests, or it is blocked on another in-flight
// request reaching a particular target.
type Blocker struct {
	// BlockingTarget is set when this is a "blocked on target" blocker:
	// the owning request cannot proceed until BlockingRequest reaches
	// this target name.
	BlockingTarget string
	// PartialResult is the result accumulated by the blocked request so
	// far, carried alongside a blocking-target blocker.
	PartialResult *Result
	// Children are new requests the blocked request needs built before it
	// can resume; empty when this is a blocking-target blocker instead.
	Children []*Request
	// BlockedRequest is the node-request id that cannot continue.
	BlockedRequest NodeRequestID
	// BlockingRequest is the node-request id being waited on, for
	// blocking-target blockers; zero for child-request blockers.
	BlockingRequest NodeRequestID
}

// IsBlockedOnTarget reports whether this is a "wait for another request to
// reach a target" blocker rather than a "wait for child requests" blocker.
func (b *Blocker) IsBlockedOnTarget() bool { return b.BlockingTarget != "" }

// Unblocker is the resolution counterpart to Blocker: scheduler→node,
// telling a suspended request it may resume, optionally carrying the
// results it was waiting on.
type Unblocker struct {
	ChildResults   []*Result
	BlockedRequest NodeRequestID
}

// ResponseKind enumerates the scheduler→transport instruction variants
// (ScheduleResponse in spec.md §3/§4.2).
type ResponseKind int

const (
	ScheduleWithConfiguration ResponseKind = iota
	ReportResults
	ResumeExecution
	CreateNode
)

func (k ResponseKind) String() string {
	switch k {
	case ScheduleWithConfiguration:
		return "ScheduleWithConfiguration"
	case ReportResults:
		return "ReportResults"
	case ResumeExecution:
		return "ResumeExecution"
	case CreateNode:
		return "CreateNode"
	default:
		return "Unknown"
	}
}

// ScheduleResponse is the scheduler's instruction to the transport layer.
type ScheduleResponse struct {
	Kind   ResponseKind
	NodeID int32
	// Request is populated for ScheduleWithConfiguration.
	Request *Request
	// Result is populated for ReportResults.
	Result *Result
	// ParentRequest is populated for ReportResults/ResumeExecution.
	ParentRequest NodeRequestID
	// NodesToCreate and NodeAffinity are populated for CreateNode.
	NodesToCreate int
	NodeAffinity  Affinity
}
