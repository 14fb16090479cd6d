package engine

import (
	"fmt"
	"sort"
	"strings"
)

// DAGBuilder builds the dependency graph of a unit set and orders it
// topologically. Ties between ready units are broken by declaration order,
// so the same input always yields the same order.
type DAGBuilder struct {
	// units holds the input in declaration order
	units []UnitSpec

	// position maps unit names to their declaration index
	position map[string]int

	// dependents maps a unit to the units that reference it
	dependents map[string][]string

	// dependencies maps a unit to the units it references
	dependencies map[string][]string

	// inDegree tracks the number of unresolved dependencies of each unit
	inDegree map[string]int
}

// Graph is the resolved dependency graph.
type Graph struct {
	// Order is the topological order of unit names.
	Order []string

	// Levels maps each unit to its dependency depth.
	Levels map[string]int

	// Depth is the number of distinct levels.
	Depth int

	// Roots are units without dependencies, in declaration order.
	Roots []string

	// Dependencies maps a unit to the units it references.
	Dependencies map[string][]string

	// Dependents maps a unit to the units that reference it.
	Dependents map[string][]string
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		position:     make(map[string]int),
		dependents:   make(map[string][]string),
		dependencies: make(map[string][]string),
		inDegree:     make(map[string]int),
	}
}

// Resolve returns units in an order where every unit follows all units it
// references. It is a pure function of its input.
func Resolve(units []UnitSpec) ([]UnitSpec, error) {
	graph, err := NewDAGBuilder().Build(units)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]UnitSpec, len(units))
	for _, u := range units {
		byName[u.Name] = u
	}

	ordered := make([]UnitSpec, 0, len(graph.Order))
	for _, name := range graph.Order {
		ordered = append(ordered, byName[name])
	}
	return ordered, nil
}

// Build constructs the graph for units. It fails with UnknownDependencyError
// when a reference leaves the set and with CyclicDependencyError when the
// references form a cycle.
func (b *DAGBuilder) Build(units []UnitSpec) (*Graph, error) {
	if err := b.initialize(units); err != nil {
		return nil, err
	}

	order := b.sort()
	if len(order) != len(b.units) {
		return nil, NewCyclicDependencyError(b.findCycle(order))
	}

	return b.buildGraph(order), nil
}

// initialize indexes units and builds adjacency lists.
func (b *DAGBuilder) initialize(units []UnitSpec) error {
	b.units = units

	for i, u := range units {
		if u.Name == "" {
			return NewConfigError("unit has empty name", nil)
		}
		if _, exists := b.position[u.Name]; exists {
			return NewConfigError(fmt.Sprintf("duplicate unit name: %s", u.Name), nil).WithUnit(u.Name)
		}
		b.position[u.Name] = i
		b.dependents[u.Name] = make([]string, 0)
		b.inDegree[u.Name] = 0
	}

	for _, u := range units {
		deps := u.Dependencies()
		for _, dep := range deps {
			if _, exists := b.position[dep]; !exists {
				return NewUnknownDependencyError(u.Name, dep)
			}
			b.dependents[dep] = append(b.dependents[dep], u.Name)
			b.inDegree[u.Name]++
		}
		b.dependencies[u.Name] = deps
	}

	return nil
}

// sort runs Kahn's algorithm. The ready set is kept ordered by declaration
// position and the lowest position is emitted first.
func (b *DAGBuilder) sort() []string {
	inDegree := make(map[string]int, len(b.inDegree))
	for name, d := range b.inDegree {
		inDegree[name] = d
	}

	ready := make([]int, 0)
	for i, u := range b.units {
		if inDegree[u.Name] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]string, 0, len(b.units))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]

		name := b.units[next].Name
		order = append(order, name)

		for _, dependent := range b.dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = insertSorted(ready, b.position[dependent])
			}
		}
	}

	return order
}

func insertSorted(s []int, v int) []int {
	i := sort.SearchInts(s, v)
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// findCycle returns the members of one cycle among the units Kahn's algorithm
// could not emit, starting from the earliest declared one.
func (b *DAGBuilder) findCycle(emitted []string) []string {
	done := make(map[string]bool, len(emitted))
	for _, name := range emitted {
		done[name] = true
	}

	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(name string, path []string) []string
	visit = func(name string, path []string) []string {
		visited[name] = true
		onStack[name] = true
		path = append(path, name)

		for _, dep := range b.dependencies[name] {
			if done[dep] {
				continue
			}
			if onStack[dep] {
				for i, id := range path {
					if id == dep {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						return cycle
					}
				}
			}
			if !visited[dep] {
				if cycle := visit(dep, path); cycle != nil {
					return cycle
				}
			}
		}

		onStack[name] = false
		return nil
	}

	for _, u := range b.units {
		if done[u.Name] || visited[u.Name] {
			continue
		}
		if cycle := visit(u.Name, nil); cycle != nil {
			return cycle
		}
	}

	// Unreachable for a consistent graph; report every stuck unit.
	stuck := make([]string, 0)
	for _, u := range b.units {
		if !done[u.Name] {
			stuck = append(stuck, u.Name)
		}
	}
	return stuck
}

// buildGraph assigns levels along the topological order.
func (b *DAGBuilder) buildGraph(order []string) *Graph {
	graph := &Graph{
		Order:        order,
		Levels:       make(map[string]int, len(order)),
		Roots:        make([]string, 0),
		Dependencies: b.dependencies,
		Dependents:   b.dependents,
	}

	for _, name := range order {
		level := 0
		for _, dep := range b.dependencies[name] {
			if l := graph.Levels[dep] + 1; l > level {
				level = l
			}
		}
		graph.Levels[name] = level
		if level+1 > graph.Depth {
			graph.Depth = level + 1
		}
	}

	for _, u := range b.units {
		if len(b.dependencies[u.Name]) == 0 {
			graph.Roots = append(graph.Roots, u.Name)
		}
	}

	return graph
}

// TransitiveDependents returns every unit that directly or indirectly
// references any of names. The names themselves are included.
func (g *Graph) TransitiveDependents(names ...string) map[string]bool {
	out := make(map[string]bool)
	queue := append([]string(nil), names...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if out[name] {
			continue
		}
		out[name] = true
		queue = append(queue, g.Dependents[name]...)
	}
	return out
}

// ToDOT renders the graph in Graphviz DOT format, grouping units by level and
// colouring them by planned action when actions is non-nil.
func (g *Graph) ToDOT(actions map[string]PlanAction) string {
	var sb strings.Builder

	sb.WriteString("digraph Deployment {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	byLevel := make([][]string, g.Depth)
	for _, name := range g.Order {
		l := g.Levels[name]
		byLevel[l] = append(byLevel[l], name)
	}

	for level, names := range byLevel {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, name := range names {
			action := actions[name]
			label := name
			if action != "" {
				label = fmt.Sprintf("%s\\n%s", name, action)
			}
			sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				name, label, actionColor(action)))
		}
		sb.WriteString("  }\n\n")
	}

	for _, name := range g.Order {
		for _, dep := range g.Dependencies[name] {
			sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\";\n", dep, name))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

func actionColor(action PlanAction) string {
	switch action {
	case ActionDeploy:
		return "lightgreen"
	case ActionRedeploy:
		return "lightcoral"
	case ActionSkip:
		return "lightgray"
	case ActionBlocked:
		return "gold"
	default:
		return "white"
	}
}
