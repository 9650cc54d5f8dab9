package model

import "time"

// Parameters mirrors the session-wide knobs BeginBuild accepts and the
// environment variables spec.md §6 enumerates. Typed accessors with
// defaults follow the style of the teacher's ConfigProvider contract
// (GetXWithDefault) rather than a generic map, since the full set of
// parameters is small and fixed.
type Parameters struct {
	// DisableInProcNode forces every request's effective affinity to
	// OutOfProc (MSBUILDNOINPROCNODE=1).
	DisableInProcNode bool
	// MaxNodeCount bounds inproc+oop concurrently live nodes.
	MaxNodeCount int
	// ResetCaches discards configurations/results from the prior build
	// when set on BeginBuild.
	ResetCaches bool
	// WarningsAsErrors is nil for "none promoted"; a non-nil empty set
	// means "all codes promoted"; otherwise it is the promoted code set.
	WarningsAsErrors *StringSet
	// ForwardPropertiesFromChild is the semicolon-delimited allowlist
	// from MSBuildForwardPropertiesFromChild, already split.
	ForwardPropertiesFromChild []string
	// ForwardAllPropertiesFromChild corresponds to
	// MsBuildForwardAllPropertiesFromChild being non-empty.
	ForwardAllPropertiesFromChild bool
	// LogPropertiesAndItemsAfterEvaluation defaults true; set false by
	// MSBUILDLOGPROPERTIESANDITEMSAFTEREVALUATION=0.
	LogPropertiesAndItemsAfterEvaluation bool
	// ForceAllTasksOutOfProc corresponds to MSBUILDFORCEALLTASKSOUTOFPROC.
	ForceAllTasksOutOfProc bool
	// NodeReuse must also be enabled for ForceAllTasksOutOfProc to select
	// sidecar task-host mode rather than transient mode (spec.md §4.5).
	NodeReuse bool
	// NodeConnectionTimeout of 0 means "no wait": an internal-error
	// outcome is expected rather than a hang (spec.md §6/§8).
	NodeConnectionTimeout time.Duration
	// EnableDiskCache corresponds to MSBUILDCACHE.
	EnableDiskCache bool
	// ForceDiskCaching corresponds to MSBUILDDEBUGFORCECACHING.
	ForceDiskCaching bool
	// AsyncLogging selects asynchronous (queued) vs synchronous
	// (producer-thread) log delivery, per spec.md §5.
	AsyncLogging bool
}

// DefaultParameters returns the parameter set a bare BeginBuild(nil) call
// should resolve to.
func DefaultParameters() *Parameters {
	return &Parameters{
		MaxNodeCount:                          1,
		LogPropertiesAndItemsAfterEvaluation:  true,
		NodeConnectionTimeout:                 10 * time.Minute,
	}
}

// FilterForwardedProperties restricts props to the property-forwarding
// allowlist for an out-of-process node's ProjectStarted event (spec.md
// §4.4: "the property-forwarding allowlist... governs which initial
// project properties appear on the ProjectStarted event"). forwardAll
// takes precedence when set — spec.md §9 leaves the exact precedence
// between MSBuildForwardAllPropertiesFromChild and
// MSBuildForwardPropertiesFromChild uncontracted, but notes the observed
// behavior is "forward all wins", which this mirrors.
//
// InProc nodes must never call this: spec.md §4.4 says the allowlist is
// ignored for them and every initial property is included unfiltered.
func FilterForwardedProperties(props map[string]string, allowlist []string, forwardAll bool) map[string]string {
	if forwardAll || len(props) == 0 {
		return props
	}
	out := make(map[string]string, len(allowlist))
	for _, name := range allowlist {
		if v, ok := props[name]; ok {
			out[name] = v
		}
	}
	return out
}

// StringSet is a small case-sensitive set used for WarningsAsErrors code
// collections; a nil receiver behaves as the empty set.
type StringSet struct {
	members map[string]struct{}
}

// NewStringSet builds a StringSet from the given codes.
func NewStringSet(codes ...string) *StringSet {
	s := &StringSet{members: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		s.members[c] = struct{}{}
	}
	return s
}

// Contains reports whether code is promoted. An empty (but non-nil) set
// means "all codes" per spec.md §7.
func (s *StringSet) Contains(code string) bool {
	if s == nil {
		return false
	}
	if len(s.members) == 0 {
		return true
	}
	_, ok := s.members[code]
	return ok
}
