package scheduler

import "github.com/buildforge/manager/pkg/model"

// Metrics accumulates dispatch counters, adapted from the teacher's
// WorkerPool.GetMetrics (pkg/container/worker_pool.go) and re-themed
// around cache hits and co-submission collapses instead of container
// job counts.
type Metrics struct {
	CacheHits            int
	Collapsed            int
	DispatchedByAffinity map[model.Affinity]int
}

// Snapshot returns the current request-routing state: every live node's
// affinity/busy status and sticky configuration, mirroring the teacher's
// BuildOrchestrator.GetAllStepStatuses (pkg/container's status reporting
// path) re-themed around nodes instead of container steps.
func (s *Scheduler) Snapshot() map[int32]NodeInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int32]NodeInfo, len(s.nodes))
	for id, n := range s.nodes {
		out[id] = *n
	}
	return out
}

// GetMetrics returns a copy of the scheduler's dispatch counters.
func (s *Scheduler) GetMetrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Metrics{CacheHits: s.metrics.CacheHits, Collapsed: s.metrics.Collapsed}
	m.DispatchedByAffinity = make(map[model.Affinity]int, len(s.metrics.DispatchedByAffinity))
	for k, v := range s.metrics.DispatchedByAffinity {
		m.DispatchedByAffinity[k] = v
	}
	return m
}

// Diagnose reports scheduler-level health concerns worth surfacing to an
// embedder: pending requests stuck without any live node of a matching
// affinity, and the current blocked-on-target edge count. Kept as a
// library call rather than a CLI command, in the spirit of the teacher's
// dropped pkg/doctor (see DESIGN.md).
type Diagnosis struct {
	PendingWithoutNode int
	BlockEdgeCount     int
}

func (s *Scheduler) Diagnose() Diagnosis {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := Diagnosis{BlockEdgeCount: len(s.blockEdges)}
	for _, pr := range s.pending {
		aff := requestAffinity(pr.request)
		matched := false
		for _, n := range s.nodes {
			if aff == model.AffinityAny || n.Affinity == aff {
				matched = true
				break
			}
		}
		if !matched {
			d.PendingWithoutNode++
		}
	}
	return d
}
