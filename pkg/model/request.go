package model

import "fmt"

// SubmissionID identifies an externally requested build unit. It completes
// exactly once with a Result.
type SubmissionID int32

// NodeRequestID is unique within a session and names one in-flight
// BuildRequest, independent of its configuration.
type NodeRequestID int32

// RequestFlags mirror BuildRequestData.flags from spec.md §3/§6.
type RequestFlags uint8

const (
	ProvideSubsetOfStateAfterBuild RequestFlags = 1 << iota
	ReplaceExistingProjectInstance
	IgnoreExistingProjectState
)

func (f RequestFlags) Has(flag RequestFlags) bool { return f&flag != 0 }

// ProjectStateFilter restricts the post-build state returned to the caller,
// per RequestedProjectState in spec.md §3/§6. A nil ItemFilters value for
// an item type means "all metadata" for that type.
type ProjectStateFilter struct {
	ItemFilters     map[string][]string
	PropertyFilters []string
}

// RequestData is the externally supplied description of a submission
// (BuildRequestData in spec.md §3).
type RequestData struct {
	ProjectFullPath       string
	ToolsVersion          string
	GlobalProperties      map[string]string
	Targets               []string
	HostServices          *HostServices
	RequestedProjectState *ProjectStateFilter
	Flags                 RequestFlags
}

// HostServices carries affinity hints and node overrides supplied by the
// embedder alongside a submission.
type HostServices struct {
	AffinityHint Affinity
	NodeAffinity map[string]Affinity
}

// ProxyTargets describes proxied target aliases: a map from the alias a
// caller invokes to the real target name it stands in for. A BuildRequest
// carries either a target list or ProxyTargets, never both.
type ProxyTargets struct {
	AliasToRealTarget map[string]string
}

// Request is an in-flight unit of work (BuildRequest in spec.md §3).
type Request struct {
	Proxy        *ProxyTargets
	Parent       *Request
	HostServices *HostServices
	Targets      []string
	SubmissionID SubmissionID
	NodeRequest  NodeRequestID
	ConfigID     ConfigID
	// AlreadyFailedTargets names the subset of Targets the scheduler's
	// results cache already records as a (non-skipped) failure for
	// ConfigID, as of dispatch time. It travels with the request over the
	// wire (gob-encoded, see nodeprotocol.Packet) so an out-of-process
	// node can apply skip-unsuccessful replay (spec.md §4.2/§8 scenario 4)
	// without calling back into the host's scheduler.
	AlreadyFailedTargets []string
	// InitialProperties carries the configuration's global properties for
	// the node to report on its ProjectStarted event (spec.md §4.4). A
	// node cannot look these up itself without the configuration
	// registration the request refers to, so they travel with the
	// request directly.
	InitialProperties map[string]string
}

// Validate enforces the "target list XOR proxy targets, never both"
// invariant from spec.md §3.
func (r *Request) Validate() error {
	if r.Proxy != nil && len(r.Targets) > 0 {
		return fmt.Errorf("request %d: carries both a target list and proxy targets", r.NodeRequest)
	}
	if r.ConfigID <= 0 {
		return fmt.Errorf("request %d: configuration id %d is not assigned", r.NodeRequest, r.ConfigID)
	}
	return nil
}

// IsProxy reports whether this request describes proxied targets rather
// than a literal target list.
func (r *Request) IsProxy() bool { return r.Proxy != nil }

// Key identifies requests for co-submission collapse purposes: identical
// (config, target set, host services) requests collapse into followers
// per spec.md §4.2.
func (r *Request) Key() string {
	targets := append([]string(nil), r.Targets...)
	key := fmt.Sprintf("%d|%v", r.ConfigID, targets)
	if r.HostServices != nil {
		key += fmt.Sprintf("|%s", r.HostServices.AffinityHint)
	}
	return key
}
