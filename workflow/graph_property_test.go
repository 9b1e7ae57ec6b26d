package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// randomDAG 构造 n 个节点的链，再按 mask 加入前向边；节点按逆序添加
func randomDAG(n int, mask uint64) (*StateGraph[[]string], [][2]string) {
	g := newTrace("random")
	name := func(i int) string { return fmt.Sprintf("n%d", i) }
	for i := n - 1; i >= 0; i-- {
		g.AddNode(name(i), appendNode(name(i)))
	}

	var edges [][2]string
	g.AddEdge(START, name(0))
	bit := 0
	for i := 0; i < n; i++ {
		if i+1 < n {
			g.AddEdge(name(i), name(i+1))
			edges = append(edges, [2]string{name(i), name(i + 1)})
		}
		for j := i + 2; j < n; j++ {
			if mask&(1<<(bit%64)) != 0 {
				g.AddEdge(name(i), name(j))
				edges = append(edges, [2]string{name(i), name(j)})
			}
			bit++
		}
	}
	g.AddEdge(name(n-1), END)
	return g, edges
}

// Property: every node runs exactly once, after all of its predecessors.
func TestProperty_InvokeRespectsEdgeOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("topological execution", prop.ForAll(
		func(n int, mask uint64) bool {
			g, edges := randomDAG(n, mask)
			compiled, err := g.Compile()
			if err != nil {
				t.Logf("compile failed: %v", err)
				return false
			}
			out, err := compiled.Invoke(context.Background(), nil)
			if err != nil || len(out) != n {
				return false
			}

			pos := make(map[string]int, n)
			for i, name := range out {
				if _, dup := pos[name]; dup {
					return false
				}
				pos[name] = i
			}
			for _, e := range edges {
				if pos[e[0]] >= pos[e[1]] {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}

// Property: any back edge makes Compile fail with ErrInvalidGraph.
func TestProperty_BackEdgeRejected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("cycles never compile", prop.ForAll(
		func(n int, mask uint64, from, to int) bool {
			g, _ := randomDAG(n, mask)
			src := from % n
			dst := to % (src + 1)
			g.AddEdge(fmt.Sprintf("n%d", src), fmt.Sprintf("n%d", dst))
			_, err := g.Compile()
			return errors.Is(err, ErrInvalidGraph)
		},
		gen.IntRange(1, 8),
		gen.UInt64(),
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
