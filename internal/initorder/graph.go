package initorder

// Graph is an initializer dependency graph over module-level variables. An
// edge a -> b means a's initializer reads b. Nodes keep insertion order,
// which is used to break ties.
type Graph struct {
	names []string
	index map[string]int
	edges [][]int
	seen  []map[int]bool
}

func NewGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

// AddNode registers name and returns its index. Adding a known name is a
// no-op.
func (g *Graph) AddNode(name string) int {
	if i, ok := g.index[name]; ok {
		return i
	}
	i := len(g.names)
	g.index[name] = i
	g.names = append(g.names, name)
	g.edges = append(g.edges, nil)
	g.seen = append(g.seen, make(map[int]bool))
	return i
}

// AddEdge records that from's initializer reads to. Unknown names are added.
func (g *Graph) AddEdge(from, to string) {
	a := g.AddNode(from)
	b := g.AddNode(to)
	if g.seen[a][b] {
		return
	}
	g.seen[a][b] = true
	g.edges[a] = append(g.edges[a], b)
}

func (g *Graph) Len() int {
	return len(g.names)
}

// Nodes returns node names in insertion order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Dependencies returns what name's initializer reads, in insertion order.
func (g *Graph) Dependencies(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	out := make([]string, len(g.edges[i]))
	for k, j := range g.edges[i] {
		out[k] = g.names[j]
	}
	return out
}

// HasEdge reports whether from reads to directly.
func (g *Graph) HasEdge(from, to string) bool {
	a, ok := g.index[from]
	if !ok {
		return false
	}
	b, ok := g.index[to]
	if !ok {
		return false
	}
	return g.seen[a][b]
}
