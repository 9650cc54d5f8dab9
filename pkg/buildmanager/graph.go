package buildmanager

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/buildforge/manager/pkg/model"
)

// GraphNode is one project in a graph-build request: its project
// identity, the targets to run, and the project paths it depends on
// (spec.md §4.1's graph-build entry point, a batch submission that
// resolves project-to-project dependencies before scheduling instead of
// discovering them lazily via BuildRequestBlocker children).
type GraphNode struct {
	ProjectFullPath  string
	ToolsVersion     string
	GlobalProperties map[string]string
	Targets          []string
	References       []string // project paths this node depends on
}

// GraphBuildOptions controls a graph build. Build=false performs only
// cycle detection and returns a result with an empty Results map (or the
// CircularDependency path) without scheduling any work — used to validate
// a solution ahead of an actual build (spec.md §4.1).
type GraphBuildOptions struct {
	Build bool
}

// GraphBuildResult is the outcome of a graph build: per-project results,
// or a cycle description when the graph is invalid.
type GraphBuildResult struct {
	Results           map[string]*model.Result
	CircularDependency []string
}

// BuildGraph resolves nodes' dependency order, fans out independent
// projects concurrently via golang.org/x/sync/errgroup (grounded on
// distr1-distri's build.go errgroup.Group usage for concurrent build
// steps — present in the retrieval pack, not in the teacher's own
// go.mod; see DESIGN.md), and reports a CircularDependency instead of
// deadlocking when the graph is invalid.
func (m *Manager) BuildGraph(ctx context.Context, nodes []GraphNode, opts GraphBuildOptions) (*GraphBuildResult, error) {
	byPath := make(map[string]GraphNode, len(nodes))
	for _, n := range nodes {
		byPath[n.ProjectFullPath] = n
	}

	if cycle := detectCycle(byPath); cycle != nil {
		return &GraphBuildResult{CircularDependency: cycle}, nil
	}

	if !opts.Build {
		return &GraphBuildResult{Results: map[string]*model.Result{}}, nil
	}

	var mu sync.Mutex
	results := make(map[string]*model.Result, len(nodes))
	done := make(map[string]chan struct{}, len(nodes))
	for path := range byPath {
		done[path] = make(chan struct{})
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, node := range nodes {
		node := node
		eg.Go(func() error {
			defer close(done[node.ProjectFullPath])

			for _, dep := range node.References {
				depDone, ok := done[dep]
				if !ok {
					continue // reference outside this graph build; assumed already built
				}
				select {
				case <-depDone:
				case <-egCtx.Done():
					return egCtx.Err()
				}
			}

			mu.Lock()
			for _, dep := range node.References {
				if r, ok := results[dep]; ok && r.OverallResult == model.ResultFailure {
					mu.Unlock()
					return fmt.Errorf("project %q skipped: dependency %q failed", node.ProjectFullPath, dep)
				}
			}
			mu.Unlock()

			result, err := m.BuildRequest(egCtx, &model.RequestData{
				ProjectFullPath:  node.ProjectFullPath,
				ToolsVersion:     node.ToolsVersion,
				GlobalProperties: node.GlobalProperties,
				Targets:          node.Targets,
			})
			if err != nil {
				return fmt.Errorf("building %q: %w", node.ProjectFullPath, err)
			}

			mu.Lock()
			results[node.ProjectFullPath] = result
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return &GraphBuildResult{Results: results}, err
	}
	return &GraphBuildResult{Results: results}, nil
}

// detectCycle runs a DFS over project references and returns the path
// forming a cycle, or nil if the graph is acyclic.
func detectCycle(byPath map[string]GraphNode) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(byPath))
	var stack []string

	var visit func(path string) []string
	visit = func(path string) []string {
		color[path] = gray
		stack = append(stack, path)
		for _, dep := range byPath[path].References {
			if _, ok := byPath[dep]; !ok {
				continue
			}
			switch color[dep] {
			case gray:
				return append(append([]string(nil), stack...), dep)
			case white:
				if cyc := visit(dep); cyc != nil {
					return cyc
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[path] = black
		return nil
	}

	for path := range byPath {
		if color[path] == white {
			if cyc := visit(path); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}
