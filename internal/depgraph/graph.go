package depgraph

import (
	"sort"
	"strings"

	"github.com/dsandi/seed-it/internal/types"
)

// Graph is the table-level foreign-key dependency graph: an edge A→B exists
// for every non-self FK on A referencing B. Node and edge iteration is kept
// in sorted order so every derived ordering is deterministic.
type Graph struct {
	nodes []string
	deps  map[string][]string // table -> tables it references
}

func Build(schema types.Schema) *Graph {
	g := &Graph{deps: make(map[string][]string, len(schema))}

	for _, t := range schema {
		name := strings.ToLower(t.Name)
		g.nodes = append(g.nodes, name)

		seen := make(map[string]bool)
		for _, fk := range t.ForeignKeys {
			ref := strings.ToLower(fk.RefTable)
			if ref == name || seen[ref] {
				continue
			}
			if !schema.Has(ref) {
				continue
			}
			seen[ref] = true
			g.deps[name] = append(g.deps[name], ref)
		}
		sort.Strings(g.deps[name])
	}
	sort.Strings(g.nodes)
	return g
}

// TopologicalSort orders tables so that every referenced table precedes its
// referencing tables (Kahn's algorithm). Tables left over when the queue
// drains belong to a cycle and are appended at the end, none dropped.
func (g *Graph) TopologicalSort() []string {
	pending := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for _, n := range g.nodes {
		pending[n] = len(g.deps[n])
		for _, d := range g.deps[n] {
			dependents[d] = append(dependents[d], n)
		}
	}

	var queue []string
	for _, n := range g.nodes {
		if pending[n] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]string, 0, len(g.nodes))
	done := make(map[string]bool, len(g.nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		done[n] = true

		var ready []string
		for _, dep := range dependents[n] {
			pending[dep]--
			if pending[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	// Anything not emitted sits on a cycle; keep it in the output anyway.
	for _, n := range g.nodes {
		if !done[n] {
			order = append(order, n)
		}
	}
	return order
}

// DetectCircularDependencies returns every distinct FK cycle as a path of
// table names, first node repeated at the end.
func (g *Graph) DetectCircularDependencies() [][]string {
	var cycles [][]string
	seen := make(map[string]bool)

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string

	var visit func(string)
	visit = func(n string) {
		visited[n] = true
		onStack[n] = true
		stack = append(stack, n)

		for _, dep := range g.deps[n] {
			if onStack[dep] {
				start := 0
				for i, s := range stack {
					if s == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, stack[start:]...), dep)
				if key := cycleKey(cycle); !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
				continue
			}
			if !visited[dep] {
				visit(dep)
			}
		}

		stack = stack[:len(stack)-1]
		onStack[n] = false
	}

	for _, n := range g.nodes {
		if !visited[n] {
			visit(n)
		}
	}
	return cycles
}

// cycleKey identifies a cycle independent of the node it was entered from.
func cycleKey(cycle []string) string {
	members := append([]string{}, cycle[:len(cycle)-1]...)
	sort.Strings(members)
	return strings.Join(members, "→")
}

// SelfReferencingTables lists tables with at least one FK pointing at
// themselves, sorted by name.
func SelfReferencingTables(schema types.Schema) []string {
	var out []string
	for _, t := range schema {
		if len(t.SelfReferences()) > 0 {
			out = append(out, strings.ToLower(t.Name))
		}
	}
	sort.Strings(out)
	return out
}
