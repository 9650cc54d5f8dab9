// Package incremental implements the per-target up-to-date (incremental
// build) decision from spec.md §4.6: given a target's declared Inputs and
// Outputs, partition inputs into "changed" and "up-to-date" and decide
// whether the target should be skipped, built incrementally, or built in
// full.
//
// Grounded on no example repo directly (none of the retrieval pack ships
// a build-incrementality checker); os.Lstat is used rather than a pack
// library because the spec's symlink contract requires the link's own
// timestamp, and no third-party dependency in the pack wraps that
// platform primitive (see DESIGN.md).
package incremental

import (
	"os"
	"time"
)

// Decision is the DependencyAnalysisResult outcome (spec.md §4.6).
type Decision int

const (
	SkipEntirely Decision = iota
	IncrementalBuild
	FullBuild
)

func (d Decision) String() string {
	switch d {
	case SkipEntirely:
		return "SkipEntirely"
	case IncrementalBuild:
		return "IncrementalBuild"
	case FullBuild:
		return "FullBuild"
	default:
		return "Unknown"
	}
}

// Item is one expanded input or output path, tagged with the item type
// and transform identity used for correlation (spec.md §4.6): two items
// correlate when they share SourceItem and come from the same
// Transform expression (e.g. "%(Filename).dll" applied to "@(X)").
type Item struct {
	Path        string
	ItemType    string
	SourceItem  string
	Transform   string
	// Uncorrelated is set for a bare path listed explicitly, or a
	// meta-input referenced only globally — compared against the
	// minimum output timestamp across all outputs instead of a
	// per-item correlation (spec.md §4.6).
	Uncorrelated bool
}

// correlationKey groups an item by the (SourceItem, Transform) pair that
// defines correlation; uncorrelated items never share a key with anything.
func (it Item) correlationKey() (string, bool) {
	if it.Uncorrelated || it.SourceItem == "" {
		return "", false
	}
	return it.SourceItem + "\x00" + it.Transform, true
}

// Result is the outcome of Analyze: the decision plus the two input
// partitions spec.md §4.6 requires. EmptyMarkers records every declared
// input item type even when it contributed no changed inputs, so
// downstream lookups can observe "this item type was considered and
// produced nothing" (spec.md §4.6).
type Result struct {
	Decision       Decision
	ChangedInputs  []Item
	UpToDateInputs []Item
	EmptyMarkers   map[string]bool
}

// statFunc abstracts os.Lstat for tests; production callers use Stat,
// which defers to os.Lstat so a symlinked input's own modification time
// is read, not its target's (spec.md §4.6 "Symlink handling").
type statFunc func(path string) (time.Time, bool)

// Stat is the production statFunc: os.Lstat never follows the final
// symlink component, satisfying the "link's own last-modified time"
// contract without any extra platform-specific code.
func Stat(path string) (time.Time, bool) {
	fi, err := os.Lstat(path)
	if err != nil {
		return time.Time{}, false
	}
	return fi.ModTime(), true
}

// Analyze computes the incremental-build decision for one target.
//
// inputTypes lists every input item type the target declared, even ones
// that currently expand to nothing, so EmptyMarkers can be populated
// per spec.md §4.6's "empty marker" requirement.
//
// An input whose item-spec expanded to the empty sequence for every
// declared type (inputs has length 0 while inputTypes is non-empty)
// causes the target to be skipped outright, per the edge case in
// spec.md §4.6.
func Analyze(inputs, outputs []Item, inputTypes []string) Result {
	return analyze(inputs, outputs, inputTypes, Stat)
}

func analyze(inputs, outputs []Item, inputTypes []string, stat statFunc) Result {
	res := Result{EmptyMarkers: make(map[string]bool, len(inputTypes))}
	for _, t := range inputTypes {
		res.EmptyMarkers[t] = true
	}
	for _, in := range inputs {
		res.EmptyMarkers[in.ItemType] = false
	}

	if len(inputs) == 0 {
		res.Decision = SkipEntirely
		return res
	}

	byKey := make(map[string][]Item)
	var uncorrelatedOutputs []Item
	anyCorrelation := false
	for _, out := range outputs {
		if key, ok := out.correlationKey(); ok {
			byKey[key] = append(byKey[key], out)
			anyCorrelation = true
		} else {
			uncorrelatedOutputs = append(uncorrelatedOutputs, out)
		}
	}

	if !anyCorrelation && len(uncorrelatedOutputs) == 0 {
		// No valid correlation at all: fall back to treating every
		// input as potentially dirty (spec.md §4.6 "Outcome").
		res.Decision = FullBuild
		res.ChangedInputs = append([]Item(nil), inputs...)
		return res
	}

	minOut, haveMinOut := minModTime(outputs, stat)

	for _, in := range inputs {
		if key, ok := in.correlationKey(); ok {
			correlated, present := byKey[key]
			if !present || len(correlated) == 0 {
				// Declared a transform but nothing correlated: treat as
				// output missing (spec.md §4.6 "Outcome" fallback applies
				// per-item here since other inputs may still correlate).
				res.ChangedInputs = append(res.ChangedInputs, in)
				continue
			}
			if isStaleAgainstAll(in, correlated, stat) {
				res.ChangedInputs = append(res.ChangedInputs, in)
			} else {
				res.UpToDateInputs = append(res.UpToDateInputs, in)
			}
			continue
		}

		// Uncorrelated input: compare against the minimum output
		// timestamp across all outputs (spec.md §4.6).
		if !haveMinOut {
			res.ChangedInputs = append(res.ChangedInputs, in)
			continue
		}
		if isStale(in, minOut, stat) {
			res.ChangedInputs = append(res.ChangedInputs, in)
		} else {
			res.UpToDateInputs = append(res.UpToDateInputs, in)
		}
	}

	switch {
	case len(res.ChangedInputs) == 0:
		res.Decision = SkipEntirely
	default:
		res.Decision = IncrementalBuild
	}
	return res
}

// isStaleAgainstAll reports whether in is out of date with respect to any
// of its correlated outputs — a stale partition is produced the moment
// one correlated output is missing or not newer than the input.
func isStaleAgainstAll(in Item, outs []Item, stat statFunc) bool {
	for _, out := range outs {
		if isStalePath(in.Path, out.Path, stat) {
			return true
		}
	}
	return false
}

// isStale applies the freshness rule (spec.md §4.6): an input is out of
// date w.r.t. an output iff the output is missing or the input's time is
// >= the output's time — ties count as out of date.
func isStale(in Item, outModTime time.Time, stat statFunc) bool {
	inTime, ok := stat(in.Path)
	if !ok {
		// A missing input cannot be "fresh"; spec.md §4.6 treats a
		// missing input as implying out-of-date too.
		return true
	}
	return !inTime.Before(outModTime)
}

func isStalePath(inPath, outPath string, stat statFunc) bool {
	outTime, ok := stat(outPath)
	if !ok || outPath == "" {
		return true
	}
	inTime, ok := stat(inPath)
	if !ok {
		return true
	}
	return !inTime.Before(outTime)
}

func minModTime(items []Item, stat statFunc) (time.Time, bool) {
	var min time.Time
	found := false
	for _, it := range items {
		if it.Path == "" {
			// An empty expanded output path is treated as "output
			// missing" (spec.md §4.6 edge case): it cannot contribute a
			// timestamp, and its absence forces execution for anything
			// relying on it as the sole output.
			continue
		}
		t, ok := stat(it.Path)
		if !ok {
			continue
		}
		if !found || t.Before(min) {
			min = t
			found = true
		}
	}
	return min, found
}
