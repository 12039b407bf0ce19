package initorder

import (
	"fmt"
	"strings"

	"github.com/emirpasic/gods/stacks/arraystack"
)

// CircularInitializerError reports a dependency cycle. Cycle lists the
// variables in read order: each one reads the next, and the last reads the
// first.
type CircularInitializerError struct {
	Cycle []string
}

func (e *CircularInitializerError) Error() string {
	path := append(append([]string{}, e.Cycle...), e.Cycle[0])
	return fmt.Sprintf("circular initializer: %s", strings.Join(path, " -> "))
}

type color int

const (
	white color = iota
	gray        // on the DFS path
	black       // finished
)

type frame struct {
	node int
	next int // next edge to visit
}

// ComputeOrder returns the nodes of g ordered so that every variable comes
// after every variable its initializer reads: the reverse postorder of the
// graph with edges flipped, or equivalently the postorder of g. Roots are
// visited in insertion order and edges in insertion order, so the result is
// deterministic.
func ComputeOrder(g *Graph) ([]string, error) {
	colors := make([]color, len(g.names))
	order := make([]string, 0, len(g.names))
	stack := arraystack.New()

	for root := range g.names {
		if colors[root] != white {
			continue
		}
		colors[root] = gray
		stack.Push(&frame{node: root})

		for !stack.Empty() {
			top, _ := stack.Peek()
			f := top.(*frame)
			if f.next < len(g.edges[f.node]) {
				child := g.edges[f.node][f.next]
				f.next++
				switch colors[child] {
				case white:
					colors[child] = gray
					stack.Push(&frame{node: child})
				case gray:
					return nil, &CircularInitializerError{Cycle: cycleFrom(g, stack, child)}
				case black:
				}
				continue
			}
			stack.Pop()
			colors[f.node] = black
			order = append(order, g.names[f.node])
		}
	}
	return order, nil
}

// cycleFrom extracts the DFS path from child to the top of the stack.
func cycleFrom(g *Graph, stack *arraystack.Stack, child int) []string {
	vals := stack.Values() // top first
	var cycle []string
	for i := len(vals) - 1; i >= 0; i-- {
		f := vals[i].(*frame)
		if f.node == child || len(cycle) > 0 {
			cycle = append(cycle, g.names[f.node])
		}
	}
	return cycle
}
