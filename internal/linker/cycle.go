package linker

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/captree/internal/model"
)

// Cycle is a group of nodes whose capacities reference each other.
//
// Cycles are warnings, not errors: the evaluator bounds its recursion, and
// a cycle often appears transiently while a tree is being edited.
type Cycle struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

// AnalyzeCycles finds strongly connected components in the node reference
// graph (Tarjan) and returns one CIRCULAR_REFERENCE diagnostic per cycle.
// An acyclic graph returns nil.
func AnalyzeCycles(edges map[string][]string) ([]Cycle, model.Diagnostics) {
	if len(edges) == 0 {
		return nil, nil
	}

	var (
		cycles []Cycle
		diags  model.Diagnostics
	)
	for _, scc := range tarjanSCC(edges) {
		if len(scc) < 2 && !slices.Contains(edges[scc[0]], scc[0]) {
			continue
		}
		slices.Sort(scc)
		path := cyclePath(scc, edges)
		c := Cycle{
			Path:    path,
			Message: fmt.Sprintf("circular reference: %s", strings.Join(path, " -> ")),
		}
		cycles = append(cycles, c)
		d := diags.Warn(model.DiagCircularReference, "%s", c.Message)
		d.NodeID = path[0]
	}
	return cycles, diags
}

// tarjanSCC returns the strongly connected components of graph. Nodes are
// visited in sorted order so the output is stable.
func tarjanSCC(graph map[string][]string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
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

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// cyclePath walks edges inside the SCC from its smallest member until it
// returns to the start.
func cyclePath(scc []string, graph map[string][]string) []string {
	start := scc[0]
	if len(scc) == 1 {
		return []string{start, start}
	}

	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, w := range graph[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
				if !visited[w] {
					break
				}
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}
	return path
}
