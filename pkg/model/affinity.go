// Package model defines the data types shared across the build manager:
// configurations, requests, results, and the affinity/host-service types
// that travel with them.
package model

// Affinity pins a configuration or request to a class of worker node.
type Affinity int

const (
	// AffinityAny lets the scheduler pick whichever node is least busy.
	AffinityAny Affinity = iota
	AffinityInProc
	AffinityOutOfProc
)

func (a Affinity) String() string {
	switch a {
	case AffinityAny:
		return "any"
	case AffinityInProc:
		return "inproc"
	case AffinityOutOfProc:
		return "outofproc"
	default:
		return "unknown"
	}
}

// Resolve combines a request-level hint, a configuration-level hint, and a
// session-wide force-out-of-process override into the effective affinity.
//
// An explicit InProc hint under forceOOP is silently promoted to OutOfProc;
// this mirrors the requester never being told "no" for a preference the
// session cannot honor.
func Resolve(requestHint, configHint Affinity, forceOOP bool) Affinity {
	effective := requestHint
	if effective == AffinityAny {
		effective = configHint
	}
	if forceOOP && effective == AffinityInProc {
		return AffinityOutOfProc
	}
	if forceOOP && effective == AffinityAny {
		return AffinityOutOfProc
	}
	return effective
}
