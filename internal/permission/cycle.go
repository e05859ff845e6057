package permission

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/contentgraph/internal/ir"
)

// CycleWarning reports a loop in the category hierarchy.
//
// A loop is a data error, not a fatal one: BuildClosure stops at the first
// repeated category, so every category on the loop still gets the supers
// of the loop's members. The warning lets an operator find and break it.
type CycleWarning struct {
	Path    []int64 `json:"path"` // [7, 9, 7]: 7's parent is 9, 9's parent is 7
	Message string  `json:"message"`
}

// FindCycles detects loops in the child → parent graph of cats.
//
// Strongly connected components are found with Tarjan's algorithm; every
// component with more than one member, or a category that is its own
// parent, is reported. Output is deterministic: components are ordered by
// their smallest id and each path starts there.
func FindCycles(cats []ir.Category) []CycleWarning {
	graph := make(map[int64]int64, len(cats))
	nodes := make([]int64, 0, len(cats))
	for _, c := range cats {
		graph[c.ID] = c.ParentID
		nodes = append(nodes, c.ID)
	}
	slices.Sort(nodes)

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(nodes, graph) {
		if len(scc) == 1 && graph[scc[0]] != scc[0] {
			continue
		}
		warnings = append(warnings, cycleWarning(scc, graph))
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return cmp.Compare(a.Path[0], b.Path[0])
	})
	return warnings
}

// tarjanSCC returns the strongly connected components of graph, in which
// every node has at most one outgoing edge (its parent).
func tarjanSCC(nodes []int64, graph map[int64]int64) [][]int64 {
	var (
		index   = 0
		stack   []int64
		indices = make(map[int64]int)
		lowlink = make(map[int64]int)
		onStack = make(map[int64]bool)
		sccs    [][]int64
	)

	var strongConnect func(int64)
	strongConnect = func(v int64) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		if w, ok := graph[v]; ok && w != 0 {
			if _, isNode := graph[w]; isNode {
				if _, visited := indices[w]; !visited {
					strongConnect(w)
					lowlink[v] = min(lowlink[v], lowlink[w])
				} else if onStack[w] {
					lowlink[v] = min(lowlink[v], indices[w])
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []int64
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// cycleWarning walks parent links from the smallest member of scc until it
// returns to it.
func cycleWarning(scc []int64, graph map[int64]int64) CycleWarning {
	start := slices.Min(scc)
	path := []int64{start}
	for cur := graph[start]; ; cur = graph[cur] {
		path = append(path, cur)
		if cur == start || len(path) > len(scc) {
			break
		}
	}

	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = strconv.FormatInt(id, 10)
	}
	msg := "category is its own parent: " + parts[0]
	if len(scc) > 1 {
		msg = fmt.Sprintf("category hierarchy loop: %s", strings.Join(parts, " → "))
	}
	return CycleWarning{Path: path, Message: msg}
}
