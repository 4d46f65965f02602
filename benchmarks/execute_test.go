package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/randalmurphal/agentflow/pkg/agent"
	"github.com/randalmurphal/agentflow/pkg/flowgraph"
	"github.com/randalmurphal/agentflow/pkg/flowgraph/checkpoint"
)

func testContext() flowgraph.Context {
	return flowgraph.NewContext(context.Background())
}

func BenchmarkRun_Linear(b *testing.B) {
	for _, n := range []int{5, 10, 45} {
		b.Run(fmt.Sprintf("nodes=%d", n), func(b *testing.B) {
			compiled := mustCompile(buildLinearGraph(n))
			ctx := testContext()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = compiled.Run(ctx, State{})
			}
		})
	}
}

func BenchmarkRun_Branching(b *testing.B) {
	compiled := mustCompile(buildBranchingGraph())
	ctx := testContext()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = compiled.Run(ctx, State{Value: i})
	}
}

// BenchmarkRun_Loop runs a self-loop that exits after iterations passes.
func BenchmarkRun_Loop(b *testing.B) {
	const iterations = 10
	compiled := mustCompile(flowgraph.NewGraph[State]().
		AddNode("loop", func(ctx flowgraph.Context, s State) (State, error) {
			s.Value++
			return s, nil
		}).
		AddNode("done", noopNode).
		SetEntry("loop").
		AddConditionalEdge("loop", func(ctx flowgraph.Context, s State) string {
			if s.Value >= iterations {
				return "done"
			}
			return "again"
		}, map[string]string{"again": "loop", "done": "done"}))
	ctx := testContext()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = compiled.Run(ctx, State{})
	}
}

// BenchmarkProcess measures one full agent turn per iteration.
func BenchmarkProcess(b *testing.B) {
	inputs := map[string]string{
		"greeting": "hello",
		"search":   "find laptops",
		"weather":  "weather in Paris",
	}
	for name, input := range inputs {
		b.Run(name, func(b *testing.B) {
			engine, err := agent.New(checkpoint.NewMemoryStore())
			if err != nil {
				b.Fatal(err)
			}
			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := engine.Process(ctx, fmt.Sprintf("s-%d", i), input); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkProcess_Parallel runs independent sessions concurrently.
func BenchmarkProcess_Parallel(b *testing.B) {
	engine, err := agent.New(checkpoint.NewMemoryStore())
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	var seq atomicCounter
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = engine.Process(ctx, fmt.Sprintf("p-%d", seq.next()), "find phones")
		}
	})
}
